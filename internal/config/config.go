// Package config loads and validates verifier configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/prm-gestao/projudi-verifier/internal/portal"
	"github.com/prm-gestao/projudi-verifier/internal/storage"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig   `mapstructure:"server"`
	Auth      AuthConfig     `mapstructure:"auth"`
	DB        DBConfig       `mapstructure:"db"`
	Portal    portal.Config  `mapstructure:"portal"`
	Worker    WorkerConfig   `mapstructure:"worker"`
	Snapshots storage.Config `mapstructure:"snapshots"`
	Logging   LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// DBConfig controls access to the Postgres store.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// WorkerConfig governs the verification worker loop.
type WorkerConfig struct {
	// PollInterval is the wait between store polls for pending items.
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// HeartbeatInterval is how often the worker heartbeats while working.
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	// StallThreshold is the consecutive heartbeat count with no progress
	// after which the watchdog tears a batch down.
	StallThreshold int `mapstructure:"stall_threshold"`
	// Credential and Password are the environment fallback for batches
	// submitted without an assigned credential.
	Credential string `mapstructure:"credential"`
	Password   string `mapstructure:"password"`
	// WorkerID labels stored log lines; defaults to the hostname.
	WorkerID string `mapstructure:"worker_id"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("VERIFIER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.max_conn_lifetime", time.Hour)
	v.SetDefault("portal.base_url", "https://projudi.tjgo.jus.br")
	v.SetDefault("portal.login_timeout", 60*time.Second)
	v.SetDefault("portal.verify_timeout", 120*time.Second)
	v.SetDefault("portal.poll_interval", 500*time.Millisecond)
	v.SetDefault("portal.search_interval", 2*time.Second)
	v.SetDefault("worker.poll_interval", 5*time.Second)
	v.SetDefault("worker.heartbeat_interval", 10*time.Second)
	v.SetDefault("worker.stall_threshold", 10)
	v.SetDefault("snapshots.backend", storage.BackendLocal)
	v.SetDefault("snapshots.base_dir", "snapshots")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required")
	}
	if c.Worker.PollInterval <= 0 {
		return fmt.Errorf("worker.poll_interval must be > 0")
	}
	if c.Worker.StallThreshold <= 0 {
		return fmt.Errorf("worker.stall_threshold must be > 0")
	}
	if c.Portal.BaseURL == "" {
		return fmt.Errorf("portal.base_url is required")
	}
	if c.Snapshots.Backend == storage.BackendGCS && c.Snapshots.Bucket == "" {
		return fmt.Errorf("snapshots.bucket is required for the gcs backend")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}
