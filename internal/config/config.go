// Package config loads and validates batchwatch configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Provider ProviderConfig `mapstructure:"provider"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	DB       DBConfig       `mapstructure:"db"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
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

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// ProviderConfig selects and configures the batch provider client.
type ProviderConfig struct {
	// Kind selects the implementation: "openai" or "memory".
	Kind             string `mapstructure:"kind"`
	BaseURL          string `mapstructure:"base_url"`
	APIKey           string `mapstructure:"api_key"`
	Endpoint         string `mapstructure:"endpoint"`
	CompletionWindow string  `mapstructure:"completion_window"`
	TimeoutSeconds   int     `mapstructure:"timeout_seconds"`
	MaxRPS           float64 `mapstructure:"max_rps"`
}

// MonitorConfig governs the polling loop and shutdown behavior.
type MonitorConfig struct {
	PollIntervalSeconds  int    `mapstructure:"poll_interval_seconds"`
	ShutdownGraceSeconds int    `mapstructure:"shutdown_grace_seconds"`
	JobDescription       string `mapstructure:"job_description"`
}

// ArchiveConfig selects where result files of completed jobs are written.
type ArchiveConfig struct {
	// Kind selects the blob store: "gcs", "local", "memory", or "off".
	Kind      string `mapstructure:"kind"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls the completion history database.
type DBConfig struct {
	// Kind is "postgres" or "off".
	Kind  string `mapstructure:"kind"`
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// PubSubConfig holds metadata for publish-subscribe completion notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Load builds a Config from the given file (optional) and the environment.
// Environment variables use the BATCHWATCH_ prefix with dots replaced by
// underscores, e.g. BATCHWATCH_SERVER_PORT.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BATCHWATCH")
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
	v.SetDefault("logging.development", true)
	v.SetDefault("provider.kind", "openai")
	v.SetDefault("provider.base_url", "https://api.openai.com/v1")
	v.SetDefault("provider.endpoint", "/v1/chat/completions")
	v.SetDefault("provider.completion_window", "24h")
	v.SetDefault("provider.timeout_seconds", 60)
	v.SetDefault("provider.max_rps", 5)
	v.SetDefault("monitor.poll_interval_seconds", 30)
	v.SetDefault("monitor.shutdown_grace_seconds", 30)
	v.SetDefault("monitor.job_description", "batch prompts job")
	v.SetDefault("archive.kind", "off")
	v.SetDefault("archive.prefix", "results")
	v.SetDefault("db.kind", "off")
	v.SetDefault("db.table", "batch_completions")
	v.SetDefault("pubsub.enabled", false)
}

// Validate enforces required values and basic sanity limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Provider.Kind {
	case "openai":
		if c.Provider.APIKey == "" {
			return fmt.Errorf("provider.api_key must be set for the openai provider")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown provider kind %q", c.Provider.Kind)
	}
	if c.Monitor.PollIntervalSeconds <= 0 {
		return fmt.Errorf("monitor.poll_interval_seconds must be > 0")
	}
	if c.Monitor.ShutdownGraceSeconds < 0 {
		return fmt.Errorf("monitor.shutdown_grace_seconds must be >= 0")
	}
	switch c.Archive.Kind {
	case "gcs":
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket must be set for the gcs archive")
		}
	case "local":
		if c.Archive.LocalDir == "" {
			return fmt.Errorf("archive.local_dir must be set for the local archive")
		}
	case "memory", "off":
	default:
		return fmt.Errorf("unknown archive kind %q", c.Archive.Kind)
	}
	switch c.DB.Kind {
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set for the postgres store")
		}
	case "off":
	default:
		return fmt.Errorf("unknown db kind %q", c.DB.Kind)
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when pubsub is enabled")
	}
	return nil
}

// PollInterval returns the monitor tick interval as a duration.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Monitor.PollIntervalSeconds) * time.Second
}

// ShutdownGrace returns the shutdown grace window as a duration.
func (c Config) ShutdownGrace() time.Duration {
	return time.Duration(c.Monitor.ShutdownGraceSeconds) * time.Second
}

// ProviderTimeout returns the provider HTTP timeout as a duration.
func (c Config) ProviderTimeout() time.Duration {
	return time.Duration(c.Provider.TimeoutSeconds) * time.Second
}
