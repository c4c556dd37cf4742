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
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0644))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, "PT4H", cfg.Window.Lookback)
	assert.Equal(t, "P1D", cfg.Window.Lookahead)
	assert.Equal(t, "pazaan/openaps", cfg.Optimizer.Image)
	assert.Equal(t, "oref0-autotune-prep", cfg.Optimizer.PrepBin)
	assert.False(t, cfg.Optimizer.Local)
	assert.Equal(t, "0 30 2 * * *", cfg.Watch.Cron)

	lookback, err := cfg.Lookback()
	require.NoError(t, err)
	assert.Equal(t, 4*time.Hour, lookback)
	lookahead, err := cfg.Lookahead()
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, lookahead)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
source: export.json
data_dir: /tmp/run
start_date: "2020-01-01"
window:
  lookback: PT6H
optimizer:
  local: true
  image: custom/openaps
history:
  sqlite_path: history.db
output:
  chart: true
`)
	t.Setenv("TP_AUTOTUNE_DATA_DIR", "/tmp/override")
	t.Setenv("TP_AUTOTUNE_END_DATE", "2020-01-05")
	t.Setenv("TP_AUTOTUNE_NO_DOCKER", "false")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "export.json", cfg.Source)
	assert.Equal(t, "/tmp/override", cfg.DataDir)
	assert.Equal(t, "2020-01-01", cfg.StartDate)
	assert.Equal(t, "2020-01-05", cfg.EndDate)
	assert.False(t, cfg.Optimizer.Local)
	assert.Equal(t, "custom/openaps", cfg.Optimizer.Image)
	assert.Equal(t, "history.db", cfg.History.SQLitePath)
	assert.True(t, cfg.Output.Chart)

	lookback, err := cfg.Lookback()
	require.NoError(t, err)
	assert.Equal(t, 6*time.Hour, lookback)
}

func TestLoad_BadYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "source: [unclosed"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing source", mutate: func(c *Config) { c.Source = "" }, wantErr: "source is required"},
		{name: "bad start", mutate: func(c *Config) { c.StartDate = "01/02/2020" }, wantErr: "start_date"},
		{name: "bad end", mutate: func(c *Config) { c.EndDate = "2020-13-01" }, wantErr: "end_date"},
		{name: "bad lookback", mutate: func(c *Config) { c.Window.Lookback = "4h" }, wantErr: "window.lookback"},
		{name: "bad lookahead", mutate: func(c *Config) { c.Window.Lookahead = "tomorrow" }, wantErr: "window.lookahead"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			cfg.Source = "export.json"
			tt.mutate(cfg)

			err = cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateWatch(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.NoError(t, cfg.ValidateWatch())

	cfg.Watch.Cron = "@daily"
	assert.NoError(t, cfg.ValidateWatch())

	cfg.Watch.Cron = "not a cron"
	assert.Error(t, cfg.ValidateWatch())
}

func TestRange(t *testing.T) {
	now := time.Date(2020, 3, 10, 1, 30, 0, 0, time.FixedZone("CET", 3600))

	cfg := &Config{}
	start, end, err := cfg.Range(now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2020, 3, 9, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, start, end)

	cfg = &Config{StartDate: "2020-02-28", EndDate: "2020-03-01"}
	start, end, err = cfg.Range(now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2020, 2, 28, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC), end)

	cfg = &Config{StartDate: "2020-03-05", EndDate: "2020-03-01"}
	_, _, err = cfg.Range(now)
	assert.Error(t, err)
}
