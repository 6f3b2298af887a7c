package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseJSONConfigOverridesFields(t *testing.T) {
	path := writeTempConfig(t, `{"file":"/tmp/out.bin","tag":"hello","address":"1.2.3.4:9","delay":700,"bitrate":512,"start":1024}`)

	cfg := TransferConfig{File: "/old.bin", Bitrate: 256}
	if err := ParseJSONConfig(&cfg, path); err != nil {
		t.Fatalf("ParseJSONConfig returned error: %v", err)
	}

	if cfg.File != "/tmp/out.bin" || cfg.Tag != "hello" || cfg.Address != "1.2.3.4:9" {
		t.Fatalf("unexpected string fields: %+v", cfg)
	}
	if cfg.Delay != 700 || cfg.Bitrate != 512 || cfg.Start != 1024 {
		t.Fatalf("unexpected numeric fields: %+v", cfg)
	}
}

func TestParseJSONConfigMissingFile(t *testing.T) {
	var cfg TransferConfig
	missing := filepath.Join(t.TempDir(), "missing.json")
	if err := ParseJSONConfig(&cfg, missing); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestParseJSONConfigMalformedJSON(t *testing.T) {
	path := writeTempConfig(t, `{not valid json`)
	var cfg TransferConfig
	if err := ParseJSONConfig(&cfg, path); err == nil {
		t.Fatalf("expected error for malformed JSON")
	}
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}
