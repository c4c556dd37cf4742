package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strrl/tp-autotune/internal/config"
	"github.com/strrl/tp-autotune/internal/refine"
)

const export = `[
	{"type": "pumpSettings", "time": "2019-12-31T00:00:00Z", "activeSchedule": "standard",
	 "basalSchedules": {"standard": [{"start": 0, "rate": 0.8}]},
	 "insulinSensitivity": [{"start": 0, "amount": 2.5}],
	 "carbRatio": [{"start": 0, "amount": 10}]},
	{"type": "cbg", "time": "2020-01-01T08:00:00Z", "value": 6.2},
	{"type": "bolus", "time": "2020-01-01T12:00:00Z", "normal": 3},
	{"type": "wizard", "time": "2020-01-01T12:00:00Z", "carbInput": 45},
	{"type": "basal", "time": "2020-01-01T15:00:00Z", "deliveryType": "temp", "rate": 0.4, "duration": 1800000},
	{"type": "cbg", "time": "2020-01-02T08:00:00Z", "value": 5.9},
	{"type": "smbg", "time": "2020-01-02T09:00:00Z", "value": 6.0}
]`

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("#!/bin/sh\n"+body+"\n"), 0755))
	return p
}

// testConfig points the optimizer at shell scripts standing in for oref0:
// prep emits an empty object, core echoes the working profile back and
// report appends one line to the recommendations log.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	bin := filepath.Join(dir, "bin")
	require.NoError(t, os.MkdirAll(bin, 0755))

	source := filepath.Join(dir, "export.json")
	require.NoError(t, os.WriteFile(source, []byte(export), 0644))

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Source = source
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.StartDate = "2020-01-01"
	cfg.EndDate = "2020-01-02"
	cfg.Optimizer.Local = true
	cfg.Optimizer.PrepBin = writeScript(t, bin, "prep", `echo '{}'`)
	cfg.Optimizer.CoreBin = writeScript(t, bin, "core", `cat "$2"`)
	cfg.Optimizer.ReportBin = writeScript(t, bin, "report", `echo "tuned" >> "$1/autotune/autotune_recommendations.log"`)
	cfg.Output.Chart = true
	cfg.History.SQLitePath = filepath.Join(dir, "history.db")
	require.NoError(t, cfg.Validate())
	return cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExecute_EndToEnd(t *testing.T) {
	cfg := testConfig(t)

	res, err := execute(context.Background(), cfg, discardLogger())
	require.NoError(t, err)

	assert.Equal(t, "tuned\ntuned\n", res.Loop.Recommendations)
	require.Len(t, res.Loop.Days, 2)
	for _, day := range res.Loop.Days {
		assert.Equal(t, refine.StateDone, day.State)
	}

	for _, name := range []string{
		"settings/profile.json",
		"settings/pumpprofile.json",
		"settings/autotune.json",
		"autotune/profile.pump.json",
		"autotune/profile.json",
		"autotune/profile.2020-01-01.json",
		"autotune/profile.2020-01-02.json",
		"entries-2020-01-01.json",
		"entries-2020-01-02.json",
		"treatments.json",
		"autotune.2020-01-01.json",
		"newprofile.2020-01-02.json",
		"autotune/summary.md",
		"autotune/basal.html",
	} {
		assert.FileExists(t, filepath.Join(cfg.DataDir, name))
	}

	data, err := os.ReadFile(filepath.Join(cfg.DataDir, "treatments.json"))
	require.NoError(t, err)
	var treatments []map[string]any
	require.NoError(t, json.Unmarshal(data, &treatments))
	assert.Len(t, treatments, 3)

	rec, err := openRecorder(cfg, discardLogger())
	require.NoError(t, err)
	defer rec.Close()
	runs, err := rec.Runs(0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "succeeded", runs[0].Status)
	assert.Equal(t, 2, runs[0].Days)
}

func TestExecute_MissingBucket(t *testing.T) {
	cfg := testConfig(t)
	cfg.EndDate = "2020-01-03"

	_, err := execute(context.Background(), cfg, discardLogger())

	var missing *refine.MissingReadingBucketError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "2020-01-03", missing.Date)

	// Earlier days stay inspectable.
	assert.FileExists(t, filepath.Join(cfg.DataDir, "autotune", "profile.2020-01-02.json"))
	assert.FileExists(t, filepath.Join(cfg.DataDir, "autotune", "summary.md"))
}

func TestExecute_ResetsDataDir(t *testing.T) {
	cfg := testConfig(t)
	stale := filepath.Join(cfg.DataDir, "entries-1999-01-01.json")
	require.NoError(t, os.MkdirAll(cfg.DataDir, 0755))
	require.NoError(t, os.WriteFile(stale, []byte("[]"), 0644))

	_, err := execute(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	assert.NoFileExists(t, stale)
}

func TestApplyRunFlags(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Source = "from-config.json"
	cfg.DataDir = "from-config"

	require.NoError(t, runCmd.Flags().Set("source", "from-flag.json"))
	require.NoError(t, runCmd.Flags().Set("no-docker", "true"))
	t.Cleanup(func() {
		runCmd.Flags().Lookup("source").Changed = false
		runCmd.Flags().Lookup("no-docker").Changed = false
		runSource, runNoDocker = "", false
	})

	applyRunFlags(runCmd, cfg)

	assert.Equal(t, "from-flag.json", cfg.Source)
	assert.True(t, cfg.Optimizer.Local)
	assert.Equal(t, "from-config", cfg.DataDir)
}
