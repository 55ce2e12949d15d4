// Package logger wraps zerolog with the process-wide configuration used by the binaries.
package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	once   sync.Once
	logger zerolog.Logger
)

// Config controls level, encoding and destination.
type Config struct {
	Level      string `yaml:"level" json:"level"`
	Format     string `yaml:"format" json:"format"` // json or console
	Output     string `yaml:"output" json:"output"` // stdout, stderr or file
	FilePath   string `yaml:"file_path,omitempty" json:"file_path,omitempty"`
	TimeFormat string `yaml:"time_format,omitempty" json:"time_format,omitempty"`
}

func DefaultConfig() Config {
	return Config{Level: "info", Format: "console", Output: "stdout", TimeFormat: time.RFC3339}
}

// Init configures the process logger. Only the first call has effect.
func Init(cfg Config) {
	once.Do(func() {
		logger = New(cfg)
		zerolog.SetGlobalLevel(ParseLevel(cfg.Level))
	})
}

// New builds a standalone logger from cfg without touching process state.
func New(cfg Config) zerolog.Logger {
	var out io.Writer = os.Stdout
	switch cfg.Output {
	case "stderr":
		out = os.Stderr
	case "file":
		if cfg.FilePath != "" {
			if f, err := os.OpenFile(cfg.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644); err == nil {
				out = f
			}
		}
	}
	if cfg.Format == "console" {
		tf := cfg.TimeFormat
		if tf == "" {
			tf = time.RFC3339
		}
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: tf}
	}
	return zerolog.New(out).Level(ParseLevel(cfg.Level)).With().Timestamp().Logger()
}

// ParseLevel maps a level name to a zerolog level; unknown names are info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// Get returns the process logger, initialising it with defaults if needed.
func Get() *zerolog.Logger {
	Init(DefaultConfig())
	return &logger
}

// Component returns a child logger tagged with component=name.
func Component(name string) zerolog.Logger {
	return Get().With().Str("component", name).Logger()
}
