package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.DB.Driver)
	assert.Equal(t, DefaultArchiveBaseURL, cfg.Archive.BaseURL)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
  format: json
db:
  driver: postgres
  host: db.internal
  user: ashare
  name: market
  connect_timeout: 10s
tdx:
  hosts: ["124.71.187.122:7709", "122.51.120.217:7709"]
  rate_interval: 500ms
sync:
  intervals: [1d, 15m]
  schedule: "0 30 15 * * 1-5"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "stdout", cfg.Log.Output, "unset keys keep defaults")
	assert.Equal(t, "postgres", cfg.DB.Driver)
	assert.Equal(t, "db.internal", cfg.DB.Host)
	assert.Equal(t, 10*time.Second, cfg.DB.ConnectTimeout)
	assert.Equal(t, []string{"124.71.187.122:7709", "122.51.120.217:7709"}, cfg.TDX.Hosts)
	assert.Equal(t, 500*time.Millisecond, cfg.TDX.RateInterval)
	assert.Equal(t, 10, cfg.TDX.RateLimit)
	assert.Equal(t, []string{"1d", "15m"}, cfg.Sync.Intervals)
	assert.Equal(t, "0 30 15 * * 1-5", cfg.Sync.Schedule)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DB_DSN", "file::memory:")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_PASSWORD", "redispass")
	t.Setenv("TDX_HOSTS", " 1.2.3.4:7709 ,, 5.6.7.8:7709")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "file::memory:", cfg.DB.DSN)
	assert.Equal(t, "secret", cfg.DB.Password)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "redispass", cfg.Redis.Password)
	assert.Equal(t, []string{"1.2.3.4:7709", "5.6.7.8:7709"}, cfg.TDX.Hosts)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "unknown log level", body: "log:\n  level: loud\n"},
		{name: "unknown driver", body: "db:\n  driver: mysql\n"},
		{name: "unsupported interval", body: "sync:\n  intervals: [1w]\n"},
		{name: "no intervals", body: "sync:\n  intervals: []\n"},
		{name: "bad tdx host", body: "tdx:\n  hosts: [\"not a host\"]\n"},
		{name: "zero rate limit", body: "tdx:\n  rate_limit: 0\n"},
		{name: "file output without path", body: "log:\n  output: file\n"},
		{name: "bad archive url", body: "archive:\n  base_url: \"::\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.ErrorContains(t, err, "invalid configuration")
		})
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "log: [unclosed"))
	assert.ErrorContains(t, err, "parse config")
}

func TestLoad_ExampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "..", "configs", "config.example.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.DB.Driver)
	assert.Equal(t, time.Second, cfg.TDX.RateInterval)
	assert.Equal(t, 5*time.Minute, cfg.Archive.Timeout)
	assert.Equal(t, []string{"1d"}, cfg.Sync.Intervals)
	assert.Equal(t, ":9100", cfg.Metrics.Addr)
}
