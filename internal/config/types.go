package config

import (
	"log/slog"
	"strings"
	"time"
)

type Config struct {
	Gateway GatewayConfig `yaml:"gateway" json:"gateway"`
	Backend BackendConfig `yaml:"backend" json:"backend"`
	Log     LogConfig     `yaml:"log" json:"log"`
}

type GatewayConfig struct {
	Port            int    `yaml:"port" json:"port"`
	StaticDir       string `yaml:"staticDir" json:"staticDir"`             // frontend assets served at /
	StatsSchedule   string `yaml:"statsSchedule" json:"statsSchedule"`     // cron expression; empty disables the stats job
	MaxMessageBytes int64  `yaml:"maxMessageBytes" json:"maxMessageBytes"` // largest inbound frame accepted
}

type BackendConfig struct {
	URL     string        `yaml:"url" json:"url"`         // answering service endpoint, POST JSON
	Timeout time.Duration `yaml:"timeout" json:"timeout"` // 0 waits forever
}

type LogConfig struct {
	Level string `yaml:"level" json:"level"` // debug | info | warn | error
}

const (
	DefaultPort           = 3000
	DefaultStaticDir      = "public"
	DefaultStatsSchedule  = "@every 1m"
	DefaultBackendURL     = "http://localhost:5001/chat"
	DefaultBackendTimeout = 2 * time.Minute
	DefaultLogLevel       = "info"

	DefaultMaxMessageBytes int64 = 100 << 20
)

func DefaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Port:            DefaultPort,
			StaticDir:       DefaultStaticDir,
			StatsSchedule:   DefaultStatsSchedule,
			MaxMessageBytes: DefaultMaxMessageBytes,
		},
		Backend: BackendConfig{
			URL:     DefaultBackendURL,
			Timeout: DefaultBackendTimeout,
		},
		Log: LogConfig{Level: DefaultLogLevel},
	}
}

// SlogLevel maps the configured level name to a slog.Level, defaulting to info.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(l.Level)) {
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
