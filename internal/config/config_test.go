package config

import (
	"strings"
	"testing"
	"time"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefaults(t *testing.T) {
	cfg, err := FromEnv(env(nil))
	if err != nil {
		t.Fatalf("defaults: %v", err)
	}
	if cfg.HTTP.Addr != "0.0.0.0:8431" || cfg.Session.TTL != 5*time.Minute || cfg.Session.ReplayWindow != 3*time.Second || cfg.Session.RetryWindow != time.Minute {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Decision.DefaultSalary != 15000 || cfg.Decision.DefaultBankLimit != 200000 || cfg.Decision.MonthlyRate != 0.05 {
		t.Fatalf("unexpected decision defaults %+v", cfg.Decision)
	}
	if cfg.Storage.Driver != "postgres" || cfg.Notification.Provider != "log" {
		t.Fatalf("unexpected drivers %+v %+v", cfg.Storage.Driver, cfg.Notification.Provider)
	}
}

func TestOverrides(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{
		"SESSION_TTL":           "90s",
		"SESSION_RETRY_WINDOW":  "2m",
		"STORE":                 "Memory",
		"SMS_PROVIDER":          "sns",
		"DISBURSE_MAX_ATTEMPTS": "4",
		"DEFAULT_BANK_LIMIT":    "150000",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Session.TTL != 90*time.Second || cfg.Session.RetryWindow != 2*time.Minute || cfg.Storage.Driver != "memory" || cfg.Notification.Provider != "sns" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Partner.DisburseAttempts != 4 || cfg.Decision.DefaultBankLimit != 150000 {
		t.Fatalf("numeric overrides not applied: %+v %+v", cfg.Partner, cfg.Decision)
	}
}

func TestInvalidValues(t *testing.T) {
	cases := []struct {
		key, value, want string
	}{
		{"SESSION_TTL", "five minutes", "SESSION_TTL"},
		{"DISBURSE_MAX_ATTEMPTS", "-1", "DISBURSE_MAX_ATTEMPTS"},
		{"LOAN_MONTHLY_RATE", "abc", "LOAN_MONTHLY_RATE"},
		{"STORE", "mongo", "STORE"},
		{"SMS_PROVIDER", "pigeon", "SMS_PROVIDER"},
	}
	for _, c := range cases {
		_, err := FromEnv(env(map[string]string{c.key: c.value}))
		if err == nil || !strings.Contains(err.Error(), c.want) {
			t.Errorf("%s=%s: expected error naming %s, got %v", c.key, c.value, c.want, err)
		}
	}
}
