package config

import (
	"os"
	"testing"
)

func unsetForTest(t *testing.T, key string) {
	t.Helper()
	prev, had := os.LookupEnv(key)
	os.Unsetenv(key)
	t.Cleanup(func() {
		if had {
			os.Setenv(key, prev)
		}
	})
}

func TestLoadEnvDefaults(t *testing.T) {
	for _, key := range []string{"QFT_HELPER", "QFT_HIDE_DROPS", "QFT_STREAM", "QFT_USE_TIMED_HOLEPUNCH"} {
		unsetForTest(t, key)
	}
	env := LoadEnv()
	if env.Helper != DefaultHelper {
		t.Fatalf("expected default helper %q, got %q", DefaultHelper, env.Helper)
	}
	if env.HideDrops || env.Stream || env.UseTimedHolepunch {
		t.Fatalf("expected all flags false with empty env, got %+v", env)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("QFT_HELPER", "example.com:1234")
	t.Setenv("QFT_HIDE_DROPS", "1")
	t.Setenv("QFT_STREAM", "1")
	t.Setenv("QFT_USE_TIMED_HOLEPUNCH", "1")

	env := LoadEnv()
	if env.Helper != "example.com:1234" {
		t.Fatalf("expected overridden helper, got %q", env.Helper)
	}
	if !env.HideDrops || !env.Stream || !env.UseTimedHolepunch {
		t.Fatalf("expected all flags true, got %+v", env)
	}
}
