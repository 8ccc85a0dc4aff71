// Package config loads the server's ambient settings: logging, the TCP
// listener, and the optional audit sink and practice bot. Core gameplay has
// no tunables of its own.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Network NetworkConfig `toml:"network"`
	Logging LoggingConfig `toml:"logging"`
	Audit   AuditConfig   `toml:"audit"`
	Bot     BotConfig     `toml:"bot"`
}

type NetworkConfig struct {
	BindAddress  string        `toml:"bind_address"`
	MaxSessions  int           `toml:"max_sessions"`
	ReadTimeout  time.Duration `toml:"read_timeout"`
	WriteTimeout time.Duration `toml:"write_timeout"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

// AuditConfig configures the best-effort match-history sink. An empty DSN
// disables the sink entirely.
type AuditConfig struct {
	DSN           string        `toml:"dsn"`
	BatchSize     int           `toml:"batch_size"`
	FlushInterval time.Duration `toml:"flush_interval"`
}

// BotConfig locates the practice bot's personality manifest and script
// directory. An empty ManifestPath disables the bot.
type BotConfig struct {
	ManifestPath string `toml:"manifest_path"`
	ScriptDir    string `toml:"script_dir"`
}

// Load reads and parses the TOML file at path, falling back to built-in
// defaults for anything the file omits. A missing file is not an error: the
// defaults alone are enough to run the server.
func Load(path string) (*Config, error) {
	cfg := defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Network: NetworkConfig{
			BindAddress:  "0.0.0.0:3000",
			MaxSessions:  256,
			ReadTimeout:  0,
			WriteTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Audit: AuditConfig{
			BatchSize:     20,
			FlushInterval: 5 * time.Second,
		},
	}
}
