package main

import _ "embed"

//go:embed README.md
var readmeText string
