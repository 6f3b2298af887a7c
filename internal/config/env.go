// Package config centralizes the environment-variable knobs and the
// optional JSON file overlay used by the qft CLI, mirroring the teacher's
// own Config/parseJSONConfig conventions but for this project's surface.
package config

import "os"

// DefaultHelper is used when neither the ADDRESS:PORT argument nor
// QFT_HELPER is given.
const DefaultHelper = "tudbut.de:4277"

// Env holds the small set of runtime knobs read once from the process
// environment at startup, so the protocol packages never call os.Getenv
// directly in their hot paths.
type Env struct {
	// Helper overrides the default rendezvous server address.
	Helper string
	// HideDrops suppresses the per-drop log line in safestream.
	HideDrops bool
	// Stream makes the sender treat a zero-byte file read as transient
	// rather than end-of-file, for transferring from a growing source.
	Stream bool
	// UseTimedHolepunch selects the alternate wall-clock handshake.
	UseTimedHolepunch bool
}

// LoadEnv reads the supported environment variables once.
func LoadEnv() Env {
	helper := DefaultHelper
	if v, ok := os.LookupEnv("QFT_HELPER"); ok {
		helper = v
	}
	_, hideDrops := os.LookupEnv("QFT_HIDE_DROPS")
	_, stream := os.LookupEnv("QFT_STREAM")
	_, timed := os.LookupEnv("QFT_USE_TIMED_HOLEPUNCH")

	return Env{
		Helper:            helper,
		HideDrops:         hideDrops,
		Stream:            stream,
		UseTimedHolepunch: timed,
	}
}
