package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoadYAML(t *testing.T) {
	p := writeTempFile(t, "cfg.yaml", "database: /tmp/cart.db\ncollection: carts\nrules_dir: ./rules\nmetrics_addr: :9102\nlog_level: debug\nlog_format: json\nwrite_timeout: 2s\npoll_interval: 1s\noverwrites_as_adds: true\n")

	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, Config{
		Database:         "/tmp/cart.db",
		Collection:       "carts",
		RulesDir:         "./rules",
		MetricsAddr:      ":9102",
		LogLevel:         "debug",
		LogFormat:        "json",
		WriteTimeout:     "2s",
		PollInterval:     "1s",
		OverwritesAsAdds: true,
	}, cfg)
}

func TestLoadJSON(t *testing.T) {
	p := writeTempFile(t, "cfg.json", `{"database":"/m.db","collection":"items"}`)

	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "/m.db", cfg.Database)
	assert.Equal(t, "items", cfg.Collection)
	assert.Equal(t, "info", cfg.LogLevel, "missing fields keep defaults")
}

func TestLoadTOML(t *testing.T) {
	p := writeTempFile(t, "cfg.toml", "database=\"/x.db\"\nlog_level=\"warn\"\nwrite_timeout=\"500ms\"\n")

	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "/x.db", cfg.Database)
	assert.Equal(t, DefaultCollection, cfg.Collection)

	lvl, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, lvl)

	d, err := cfg.WriteTimeoutDuration()
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, d)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load("")
	assert.Error(t, err, "empty path")

	_, err = Load(writeTempFile(t, "cfg.txt", "not supported"))
	assert.ErrorContains(t, err, "unsupported config extension")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeTempFile(t, "bad.yaml", "log_format: xml\n"))
	assert.ErrorContains(t, err, "log_format")

	_, err = Load(writeTempFile(t, "bad.json", `{"write_timeout":"soon"}`))
	assert.ErrorContains(t, err, "write_timeout")

	_, err = Load(writeTempFile(t, "neg.yaml", "poll_interval: -1s\n"))
	assert.ErrorContains(t, err, "poll_interval")

	_, err = Load(writeTempFile(t, "bad.toml", "log_level=\"loud\"\n"))
	assert.ErrorContains(t, err, "log_level")
}

func TestDefault_Valid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestPollIntervalDuration(t *testing.T) {
	d, err := Default().PollIntervalDuration()
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, d)

	cfg := Default()
	cfg.PollInterval = "0s"
	d, err = cfg.PollIntervalDuration()
	require.NoError(t, err)
	assert.Zero(t, d, "zero disables polling")
}
