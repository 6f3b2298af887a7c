package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli"
)

// VERSION is injected by build flags when packaging official binaries.
var VERSION = "SELFBUILD"

func main() {
	if VERSION == "SELFBUILD" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	cli.VersionFlag = cli.BoolFlag{Name: "version, V", Usage: "print the version"}
	cli.VersionPrinter = func(c *cli.Context) {
		fmt.Printf("qft v%s\n", c.App.Version)
	}

	app := cli.NewApp()
	app.Name = "qft"
	app.Usage = "peer-to-peer file transfer over hole-punched UDP"
	app.Version = VERSION
	app.CommandNotFound = func(c *cli.Context, name string) {
		cli.ShowAppHelp(c)
		os.Exit(1)
	}
	app.Commands = commands()
	app.Action = func(c *cli.Context) error {
		cli.ShowAppHelp(c)
		os.Exit(1)
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		checkError(err)
	}
}

// checkError logs err with its pkg/errors stack trace and aborts, matching
// the teacher's checkError disposition for unrecoverable setup failures.
func checkError(err error) {
	if err != nil {
		log.Printf("%+v\n", err)
		os.Exit(1)
	}
}
