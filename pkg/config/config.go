package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dungeongate/bancho/pkg/logging"
)

// Config is the top-level configuration for the bancho service.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Protocol    ProtocolConfig    `yaml:"protocol"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Logging     logging.Config    `yaml:"logging"`
	Monitoring  MonitoringConfig  `yaml:"monitoring"`
}

// ServerConfig describes the three listener fronts.
type ServerConfig struct {
	TCPAddr   string `yaml:"tcp_addr"`
	HTTPAddr  string `yaml:"http_addr"`
	IRCAddr   string `yaml:"irc_addr"`
	Debug     bool   `yaml:"debug"`
}

// ProtocolConfig carries the osu!-style bancho protocol constants.
type ProtocolConfig struct {
	Version            int           `yaml:"version"`
	MenuIconImage      string        `yaml:"menu_icon_image"`
	MenuIconURL        string        `yaml:"menu_icon_url"`
	PingInterval       time.Duration `yaml:"ping_interval"`
	Timeout            time.Duration `yaml:"timeout"`
	SupportedClientVersions []int    `yaml:"supported_client_versions"`
}

// PersistenceConfig selects the Repository collaborator backend.
type PersistenceConfig struct {
	Driver string `yaml:"driver"` // "memory", "sqlite", "mysql", "postgres"
	DSN    string `yaml:"dsn"`
}

// MonitoringConfig controls the metrics HTTP surface (/metrics and /health).
type MonitoringConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Default returns a Config usable out of the box for local development.
func Default() Config {
	return Config{
		Server: ServerConfig{
			TCPAddr: ":13381",
			HTTPAddr: ":8080",
			IRCAddr: ":6667",
		},
		Protocol: ProtocolConfig{
			Version:                 18,
			MenuIconImage:           "",
			MenuIconURL:             "",
			PingInterval:            10 * time.Second,
			Timeout:                 45 * time.Second,
			SupportedClientVersions: []int{504, 535, 20121223, 20130418, 20120812},
		},
		Persistence: PersistenceConfig{
			Driver: "memory",
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Monitoring: MonitoringConfig{
			Enabled: true,
			Addr:    ":9100",
		},
	}
}

// Load reads a YAML config file, expanding environment variables, and fills
// any zero-valued fields with defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	def := Default()

	if cfg.Server.TCPAddr == "" {
		cfg.Server.TCPAddr = def.Server.TCPAddr
	}
	if cfg.Server.HTTPAddr == "" {
		cfg.Server.HTTPAddr = def.Server.HTTPAddr
	}
	if cfg.Server.IRCAddr == "" {
		cfg.Server.IRCAddr = def.Server.IRCAddr
	}
	if cfg.Protocol.Version == 0 {
		cfg.Protocol.Version = def.Protocol.Version
	}
	if cfg.Protocol.PingInterval == 0 {
		cfg.Protocol.PingInterval = def.Protocol.PingInterval
	}
	if cfg.Protocol.Timeout == 0 {
		cfg.Protocol.Timeout = def.Protocol.Timeout
	}
	if len(cfg.Protocol.SupportedClientVersions) == 0 {
		cfg.Protocol.SupportedClientVersions = def.Protocol.SupportedClientVersions
	}
	if cfg.Persistence.Driver == "" {
		cfg.Persistence.Driver = def.Persistence.Driver
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = def.Logging.Format
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = def.Logging.Output
	}
	if cfg.Monitoring.Addr == "" {
		cfg.Monitoring.Addr = def.Monitoring.Addr
	}
}

// ParseDuration parses a duration string with a fallback, matching the
// teacher's lenient config parsing for human-entered values.
func ParseDuration(durationStr string, fallback time.Duration) time.Duration {
	if duration, err := time.ParseDuration(durationStr); err == nil {
		return duration
	}
	return fallback
}
