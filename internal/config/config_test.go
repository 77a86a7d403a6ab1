package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BATCHWATCH_PROVIDER_KIND", "memory")

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "memory", cfg.Provider.Kind)
	require.Equal(t, 30*time.Second, cfg.PollInterval())
	require.Equal(t, 30*time.Second, cfg.ShutdownGrace())
	require.Equal(t, "batch prompts job", cfg.Monitor.JobDescription)
	require.Equal(t, "off", cfg.Archive.Kind)
	require.Equal(t, "off", cfg.DB.Kind)
	require.False(t, cfg.PubSub.Enabled)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
server:
  port: 9090
provider:
  kind: memory
monitor:
  poll_interval_seconds: 5
archive:
  kind: local
  local_dir: /tmp/results
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, 5*time.Second, cfg.PollInterval())
	require.Equal(t, "local", cfg.Archive.Kind)
	require.Equal(t, "/tmp/results", cfg.Archive.LocalDir)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("BATCHWATCH_PROVIDER_KIND", "memory")
	t.Setenv("BATCHWATCH_SERVER_PORT", "7070")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.Server.Port)
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	base := func() Config {
		return Config{
			Server:   ServerConfig{Port: 8080},
			Provider: ProviderConfig{Kind: "memory"},
			Monitor:  MonitorConfig{PollIntervalSeconds: 30},
			Archive:  ArchiveConfig{Kind: "off"},
			DB:       DBConfig{Kind: "off"},
		}
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"openai without key", func(c *Config) { c.Provider = ProviderConfig{Kind: "openai"} }},
		{"unknown provider", func(c *Config) { c.Provider.Kind = "carrier-pigeon" }},
		{"zero poll interval", func(c *Config) { c.Monitor.PollIntervalSeconds = 0 }},
		{"gcs without bucket", func(c *Config) { c.Archive.Kind = "gcs" }},
		{"postgres without dsn", func(c *Config) { c.DB.Kind = "postgres" }},
		{"auth without key", func(c *Config) { c.Auth.Enabled = true }},
		{"pubsub without topic", func(c *Config) { c.PubSub = PubSubConfig{Enabled: true, ProjectID: "p"} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := base()
			tc.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
