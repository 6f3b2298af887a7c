package config

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// TransferConfig is the CLI-independent shape of a send/receive invocation,
// json-tagged the same way the teacher's server.Config is so it can be
// overridden wholesale by a -c FILE the way parseJSONConfig does.
type TransferConfig struct {
	File    string `json:"file"`
	Tag     string `json:"tag"`
	Address string `json:"address"`
	Delay   uint64 `json:"delay"`
	Bitrate uint32 `json:"bitrate"`
	Start   uint64 `json:"start"`
}

// ParseJSONConfig overwrites cfg with the contents of the JSON file at
// path, the same override semantics as the teacher's parseJSONConfig.
func ParseJSONConfig(cfg *TransferConfig, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open config file")
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(cfg); err != nil {
		return errors.Wrap(err, "decode config file")
	}
	return nil
}
