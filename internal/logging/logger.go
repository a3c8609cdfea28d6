// Package logging builds the logrus loggers used by the server and the CLI.
//
// The application logger writes to stderr and the access logger writes to
// stdout, so a supervisor that appends each stream to its own file ends up
// with separate error and access logs.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pandeptwidyaop/trp-api/internal/config"
)

// New returns the application logger.
func New(cfg config.LoggingConfig) *logrus.Logger {
	return build(cfg, os.Stderr)
}

// NewAccess returns the logger used for per-request lines.
func NewAccess(cfg config.LoggingConfig) *logrus.Logger {
	l := build(cfg, os.Stdout)
	// Requests are always recorded, whatever the application level.
	l.SetLevel(logrus.InfoLevel)
	return l
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(cfg config.LoggingConfig, w io.Writer) *logrus.Logger {
	return build(cfg, w)
}

func build(cfg config.LoggingConfig, w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(ParseLevel(cfg.Level))

	switch strings.ToLower(cfg.Format) {
	case "text", "console":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		l.SetFormatter(&logrus.JSONFormatter{})
	}
	return l
}

// ParseLevel maps a LOG_LEVEL value onto logrus, defaulting to info.
// "critical" is accepted as an alias of fatal.
func ParseLevel(s string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return logrus.FatalLevel
	case "warn":
		return logrus.WarnLevel
	}
	lvl, err := logrus.ParseLevel(s)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}
