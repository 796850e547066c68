package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 50, cfg.Datadog.MaxBatchLength)
	assert.Equal(t, 443, cfg.Datadog.Port)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
datadog:
  url: http-intake.logs.datadoghq.eu
  apiKey: abc123
  tags: env:prod,team:core
  maxBatchLength: 10
  payloadMode: raw
  requestTimeout: 15s
source:
  logRootPath: /data/logs
  pollInterval: 2s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http-intake.logs.datadoghq.eu", cfg.Datadog.URL)
	assert.Equal(t, "abc123", cfg.Datadog.APIKey)
	assert.Equal(t, "env:prod,team:core", cfg.Datadog.Tags)
	assert.Equal(t, 10, cfg.Datadog.MaxBatchLength)
	assert.Equal(t, "raw", cfg.Datadog.PayloadMode)
	assert.Equal(t, 15*time.Second, cfg.Datadog.RequestTimeout)
	assert.Equal(t, "/data/logs", cfg.Source.LogRootPath)
	assert.Equal(t, 2*time.Second, cfg.Source.PollInterval)
	// untouched fields keep their defaults
	assert.Equal(t, 443, cfg.Datadog.Port)
	assert.Equal(t, "kafka-connect", cfg.Datadog.Source)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("datadog: [unclosed"), 0644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("DD_API_KEY", "from-env")
	t.Setenv("DD_PORT", "10516")
	t.Setenv("DD_MAX_BATCH_LENGTH", "not-a-number")
	t.Setenv("DD_SCHEMAS_ENABLE", "true")
	t.Setenv("POLL_INTERVAL", "250ms")

	cfg := Default()
	cfg.ApplyEnv()

	assert.Equal(t, "from-env", cfg.Datadog.APIKey)
	assert.Equal(t, 10516, cfg.Datadog.Port)
	assert.Equal(t, 50, cfg.Datadog.MaxBatchLength)
	assert.True(t, cfg.Datadog.SchemasEnable)
	assert.Equal(t, 250*time.Millisecond, cfg.Source.PollInterval)
}

func TestValidate(t *testing.T) {
	valid := Default()
	valid.Datadog.APIKey = "key"

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing api key", func(c *Config) { c.Datadog.APIKey = "" }, "apiKey"},
		{"missing url", func(c *Config) { c.Datadog.URL = "" }, "url"},
		{"bad port", func(c *Config) { c.Datadog.Port = 70000 }, "port"},
		{"zero batch length", func(c *Config) { c.Datadog.MaxBatchLength = 0 }, "maxBatchLength"},
		{"unknown mode", func(c *Config) { c.Datadog.PayloadMode = "xml" }, "payloadMode"},
		{"no workers", func(c *Config) { c.Source.Workers = 0 }, "workers"},
		{"zero poll size", func(c *Config) { c.Source.PollBatchSize = 0 }, "pollBatchSize"},
		{"zero poll interval", func(c *Config) { c.Source.PollInterval = 0 }, "pollInterval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
