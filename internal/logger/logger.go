// Package logger builds the zerolog loggers used across the service.
package logger

import (
	"fmt"
	"os"
	"time"

	"cardpay/internal/config"

	"github.com/rs/zerolog"
	gormlogger "gorm.io/gorm/logger"
)

const timeFormat = "2006-01-02 15:04:05"

// New returns the root logger. Production writes JSON to stdout, everything
// else gets the console writer.
func New(cfg *config.Config) zerolog.Logger {
	zerolog.TimeFieldFormat = timeFormat

	var base zerolog.Logger
	if cfg.IsProduction() {
		base = zerolog.New(os.Stdout)
	} else {
		base = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: timeFormat})
	}

	return base.
		Level(ParseLevel(cfg.LogLevel)).
		With().
		Timestamp().
		Str("service", "cardpay").
		Str("environment", cfg.Env).
		Logger()
}

func ParseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// gormWriter forwards gorm's printf-style output to zerolog.
type gormWriter struct {
	log zerolog.Logger
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.log.Warn().Msg(fmt.Sprintf(format, args...))
}

// NewGormLogger only reports slow queries and errors, and ignores
// record-not-found.
func NewGormLogger(log zerolog.Logger) gormlogger.Interface {
	return gormlogger.New(
		gormWriter{log: log.With().Str("component", "database").Logger()},
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}
