package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every settings environment variable.
const EnvPrefix = "FLOWLINE"

// Settings holds process-wide options read from the environment.
type Settings struct {
	// LogLevel is debug, info, warn or error.
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	// LogFormat is text or json.
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`

	// StrictLifecycle makes stop and dispose return component failures.
	StrictLifecycle bool `envconfig:"STRICT_LIFECYCLE" default:"false"`

	// WaitInterval is the retry pause of the Wait admission strategy.
	WaitInterval time.Duration `envconfig:"WAIT_INTERVAL" default:"2ms"`

	// StateStore is empty (none), "memory", or a SQLite file path.
	StateStore string `envconfig:"STATE_STORE"`

	// MetricsAddr is where the CLI serves /metrics. Empty disables it.
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	// Tracing enables OpenTelemetry spans.
	Tracing bool `envconfig:"TRACING" default:"false"`
}

// LoadSettings reads FLOWLINE_* environment variables.
func LoadSettings() (Settings, error) {
	var s Settings
	if err := envconfig.Process(EnvPrefix, &s); err != nil {
		return Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return s, nil
}

// DefaultSettings returns the settings used when nothing is set.
func DefaultSettings() Settings {
	return Settings{
		LogLevel:     "info",
		LogFormat:    "text",
		WaitInterval: 2 * time.Millisecond,
		MetricsAddr:  ":9090",
	}
}

// Level returns the slog level for LogLevel, defaulting to info.
func (s Settings) Level() slog.Level {
	switch strings.ToLower(s.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
