package utilities

import (
	"os"
	"strconv"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Level       string
	Dev         bool
	File        string
	RotateEvery time.Duration
	MaxAge      time.Duration
}

// ConfigFromEnv reads minimal config from env vars.
func ConfigFromEnv() Config {
	dev := os.Getenv("LOG_DEV") == "1"
	lvl := os.Getenv("LOG_LEVEL")
	if lvl == "" {
		if dev {
			lvl = "debug"
		} else {
			lvl = "info"
		}
	}
	cfg := Config{Level: lvl, Dev: dev, File: os.Getenv("LOG_FILE"), RotateEvery: 24 * time.Hour, MaxAge: 7 * 24 * time.Hour}
	if h, err := strconv.Atoi(os.Getenv("LOG_ROTATE_HOURS")); err == nil && h > 0 {
		cfg.RotateEvery = time.Duration(h) * time.Hour
	}
	if d, err := strconv.Atoi(os.Getenv("LOG_MAX_AGE_DAYS")); err == nil && d > 0 {
		cfg.MaxAge = time.Duration(d) * 24 * time.Hour
	}
	return cfg
}

func levelFromString(l string) zapcore.Level {
	switch l {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Init initializes and returns a *zap.Logger. When cfg.File is set the JSON
// output is also written to a time-rotated file.
func Init(cfg Config) (*zap.Logger, error) {
	lvl := levelFromString(cfg.Level)
	if cfg.Dev {
		c := zap.NewDevelopmentConfig()
		c.Level = zap.NewAtomicLevelAt(lvl)
		return c.Build()
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	sink := zapcore.AddSync(os.Stdout)
	if cfg.File != "" {
		rl, err := rotatelogs.New(
			cfg.File+".%Y%m%d%H",
			rotatelogs.WithLinkName(cfg.File),
			rotatelogs.WithRotationTime(cfg.RotateEvery),
			rotatelogs.WithMaxAge(cfg.MaxAge),
		)
		if err != nil {
			return nil, err
		}
		sink = zapcore.NewMultiWriteSyncer(sink, zapcore.AddSync(rl))
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), sink, lvl)
	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)}
	return zap.New(core, opts...), nil
}
