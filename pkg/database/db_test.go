package database

import (
	"strings"
	"testing"
)

func TestConfigFromEnvDefaults(t *testing.T) {
	cfg := ConfigFromEnv(func(string) string { return "" })
	if cfg.DSN != defaultDSN || cfg.MaxConns != 10 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	cfg = ConfigFromEnv(func(k string) string {
		if k == "DATABASE_MAX_CONNS" {
			return "nope"
		}
		return ""
	})
	if cfg.MaxConns != 10 {
		t.Fatalf("bad max conns must keep the default, got %d", cfg.MaxConns)
	}
}

func TestDSNRuntimeParams(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		want []string
	}{
		{"untouched", Config{DSN: defaultDSN}, []string{defaultDSN}},
		{"url", Config{DSN: defaultDSN, TimeZone: "Africa/Maputo", ClientEncoding: "UTF8"},
			[]string{"sslmode=disable", "timezone=Africa%2FMaputo", "client_encoding=UTF8"}},
		{"keyvalue", Config{DSN: "host=db user=app", TimeZone: "O'Hare"},
			[]string{"host=db user=app", `timezone='O\'Hare'`}},
	}
	for _, c := range cases {
		got := c.cfg.dsn()
		for _, w := range c.want {
			if !strings.Contains(got, w) {
				t.Errorf("%s: %q lacks %q", c.name, got, w)
			}
		}
	}
}
