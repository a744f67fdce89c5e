package utilities

import (
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zapcore"
)

func TestIDsAreUnique(t *testing.T) {
	gens := map[string]func() string{
		"ksuid":     NewKSUID,
		"uuid":      NewUUID,
		"ulid":      NewULID,
		"snowflake": NewSnowflakeID,
	}
	for name, gen := range gens {
		seen := make(map[string]bool)
		for i := 0; i < 1000; i++ {
			id := gen()
			if id == "" || seen[id] {
				t.Fatalf("%s: duplicate or empty id %q", name, id)
			}
			seen[id] = true
		}
	}
}

func TestLevelFromString(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"bogus":   zapcore.InfoLevel,
	}
	for in, want := range cases {
		if got := levelFromString(in); got != want {
			t.Errorf("%q: expected %v, got %v", in, want, got)
		}
	}
}

func TestInitWithRotatedFile(t *testing.T) {
	lg, err := Init(Config{Level: "info", File: filepath.Join(t.TempDir(), "api.log"), RotateEvery: time.Hour, MaxAge: 24 * time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	lg.Info("hello")
	_ = lg.Sync()
}
