// Package config reads service settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ovaphlow/pitchfork/service-ussd-credit/pkg/database"
)

type HTTP struct {
	Addr            string
	ShutdownTimeout time.Duration
}

type Session struct {
	TTL           time.Duration
	ReplayWindow  time.Duration
	RetryWindow   time.Duration
	PendingWait   time.Duration
	EffectTimeout time.Duration
	CodeTTL       time.Duration
	CodeAttempts  int
}

type Decision struct {
	DefaultSalary    float64
	DefaultBankLimit float64
	MonthlyRate      float64
}

type Partner struct {
	File              string
	Issuer            string
	DisburseAttempts  int
	DisburseBaseDelay time.Duration
}

type Notification struct {
	Provider    string
	Interval    time.Duration
	AWSRegion   string
	SNSEndpoint string
	SenderID    string
}

type Storage struct {
	Driver   string
	Database database.Config
}

// Config is the full service configuration.
type Config struct {
	HTTP         HTTP
	Session      Session
	Decision     Decision
	Partner      Partner
	Notification Notification
	Storage      Storage
}

// Load reads .env when present, then the environment. Malformed values are
// reported rather than silently replaced by defaults.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv.
func FromEnv(getenv func(string) string) (Config, error) {
	r := reader{getenv: getenv}
	cfg := Config{
		HTTP: HTTP{
			Addr:            r.str("HTTP_ADDR", "0.0.0.0:8431"),
			ShutdownTimeout: r.duration("HTTP_SHUTDOWN_TIMEOUT", 5*time.Second),
		},
		Session: Session{
			TTL:           r.duration("SESSION_TTL", 5*time.Minute),
			ReplayWindow:  r.duration("SESSION_REPLAY_WINDOW", 3*time.Second),
			RetryWindow:   r.duration("SESSION_RETRY_WINDOW", time.Minute),
			PendingWait:   r.duration("SESSION_PENDING_WAIT", 5*time.Second),
			EffectTimeout: r.duration("SESSION_EFFECT_TIMEOUT", 30*time.Second),
			CodeTTL:       r.duration("VERIFICATION_CODE_TTL", 10*time.Minute),
			CodeAttempts:  r.integer("VERIFICATION_MAX_ATTEMPTS", 5),
		},
		Decision: Decision{
			DefaultSalary:    r.float("DEFAULT_SALARY", 15000),
			DefaultBankLimit: r.float("DEFAULT_BANK_LIMIT", 200000),
			MonthlyRate:      r.float("LOAN_MONTHLY_RATE", 0.05),
		},
		Partner: Partner{
			File:              r.str("PARTNERS_FILE", ""),
			Issuer:            r.str("PARTNER_JWT_ISSUER", "ussd-credit"),
			DisburseAttempts:  r.integer("DISBURSE_MAX_ATTEMPTS", 3),
			DisburseBaseDelay: r.duration("DISBURSE_BASE_DELAY", 500*time.Millisecond),
		},
		Notification: Notification{
			Provider:    strings.ToLower(r.str("SMS_PROVIDER", "log")),
			Interval:    r.duration("NOTIFY_INTERVAL", 10*time.Second),
			AWSRegion:   r.str("AWS_REGION", "af-south-1"),
			SNSEndpoint: r.str("SNS_ENDPOINT", ""),
			SenderID:    r.str("SMS_SENDER_ID", ""),
		},
		Storage: Storage{
			Driver:   strings.ToLower(r.str("STORE", "postgres")),
			Database: database.ConfigFromEnv(getenv),
		},
	}
	if len(r.errs) > 0 {
		return cfg, fmt.Errorf("config: %s", strings.Join(r.errs, "; "))
	}
	switch cfg.Storage.Driver {
	case "postgres", "memory":
	default:
		return cfg, fmt.Errorf("config: STORE must be postgres or memory, got %q", cfg.Storage.Driver)
	}
	switch cfg.Notification.Provider {
	case "log", "sns":
	default:
		return cfg, fmt.Errorf("config: SMS_PROVIDER must be log or sns, got %q", cfg.Notification.Provider)
	}
	return cfg, nil
}

type reader struct {
	getenv func(string) string
	errs   []string
}

func (r *reader) str(key, def string) string {
	if v := strings.TrimSpace(r.getenv(key)); v != "" {
		return v
	}
	return def
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(r.getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		r.errs = append(r.errs, key+": invalid duration "+strconv.Quote(v))
		return def
	}
	return d
}

func (r *reader) integer(key string, def int) int {
	v := strings.TrimSpace(r.getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		r.errs = append(r.errs, key+": invalid number "+strconv.Quote(v))
		return def
	}
	return n
}

func (r *reader) float(key string, def float64) float64 {
	v := strings.TrimSpace(r.getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		r.errs = append(r.errs, key+": invalid number "+strconv.Quote(v))
		return def
	}
	return f
}
