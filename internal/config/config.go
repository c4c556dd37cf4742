package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sosodev/duration"
	"gopkg.in/yaml.v3"

	"github.com/strrl/tp-autotune/internal/optimizer"
)

const dateLayout = "2006-01-02"

// Config holds all application configuration. It is built once by the
// command layer and passed down by value.
type Config struct {
	Source    string `yaml:"source"`
	DataDir   string `yaml:"data_dir"`
	StartDate string `yaml:"start_date"`
	EndDate   string `yaml:"end_date"`
	Template  string `yaml:"template"`
	Verbose   bool   `yaml:"verbose"`

	Window struct {
		Lookback  string `yaml:"lookback"`
		Lookahead string `yaml:"lookahead"`
	} `yaml:"window"`
	Optimizer struct {
		Local     bool   `yaml:"local"`
		Image     string `yaml:"image"`
		PrepBin   string `yaml:"prep_bin"`
		CoreBin   string `yaml:"core_bin"`
		ReportBin string `yaml:"report_bin"`
	} `yaml:"optimizer"`
	History struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"history"`
	Output struct {
		Chart       bool   `yaml:"chart"`
		ChartPath   string `yaml:"chart_path"`
		SummaryPath string `yaml:"summary_path"`
	} `yaml:"output"`
	Watch struct {
		Cron string `yaml:"cron"`
	} `yaml:"watch"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides and defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	// Environment variable overrides
	if v := os.Getenv("TP_AUTOTUNE_SOURCE"); v != "" {
		cfg.Source = v
	}
	if v := os.Getenv("TP_AUTOTUNE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("TP_AUTOTUNE_START_DATE"); v != "" {
		cfg.StartDate = v
	}
	if v := os.Getenv("TP_AUTOTUNE_END_DATE"); v != "" {
		cfg.EndDate = v
	}
	if v := os.Getenv("TP_AUTOTUNE_NO_DOCKER"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Optimizer.Local = b
		}
	}
	if v := os.Getenv("TP_AUTOTUNE_DOCKER_IMAGE"); v != "" {
		cfg.Optimizer.Image = v
	}
	if v := os.Getenv("TP_AUTOTUNE_HISTORY_DB"); v != "" {
		cfg.History.SQLitePath = v
	}
	if v := os.Getenv("TP_AUTOTUNE_WATCH_CRON"); v != "" {
		cfg.Watch.Cron = v
	}
	if v := os.Getenv("TP_AUTOTUNE_VERBOSE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Verbose = b
		}
	}

	// Defaults
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	if cfg.Window.Lookback == "" {
		cfg.Window.Lookback = "PT4H"
	}
	if cfg.Window.Lookahead == "" {
		cfg.Window.Lookahead = "P1D"
	}
	if cfg.Optimizer.Image == "" {
		cfg.Optimizer.Image = optimizer.DefaultImage
	}
	if cfg.Optimizer.PrepBin == "" {
		cfg.Optimizer.PrepBin = optimizer.DefaultPrepBin
	}
	if cfg.Optimizer.CoreBin == "" {
		cfg.Optimizer.CoreBin = optimizer.DefaultCoreBin
	}
	if cfg.Optimizer.ReportBin == "" {
		cfg.Optimizer.ReportBin = optimizer.DefaultReportBin
	}
	if cfg.Watch.Cron == "" {
		cfg.Watch.Cron = "0 30 2 * * *"
	}

	return cfg, nil
}

// Validate checks that all required fields are set and well formed.
func (c *Config) Validate() error {
	if c.Source == "" {
		return fmt.Errorf("source is required")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.StartDate != "" {
		if _, err := time.Parse(dateLayout, c.StartDate); err != nil {
			return fmt.Errorf("start_date must be YYYY-MM-DD: %w", err)
		}
	}
	if c.EndDate != "" {
		if _, err := time.Parse(dateLayout, c.EndDate); err != nil {
			return fmt.Errorf("end_date must be YYYY-MM-DD: %w", err)
		}
	}
	if _, err := c.Lookback(); err != nil {
		return err
	}
	if _, err := c.Lookahead(); err != nil {
		return err
	}
	return nil
}

// ValidateWatch checks the settings only the watch command needs.
func (c *Config) ValidateWatch() error {
	if _, err := cron.NewParser(CronFields).Parse(c.Watch.Cron); err != nil {
		return fmt.Errorf("watch.cron is invalid: %w", err)
	}
	return nil
}

// CronFields is the cron spec format used by watch: seconds first.
const CronFields = cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor

// Range returns the inclusive tuning range as UTC midnights. A missing
// date defaults to the day before now.
func (c *Config) Range(now time.Time) (time.Time, time.Time, error) {
	y, m, d := now.UTC().Date()
	yesterday := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)

	start, err := parseDate(c.StartDate, yesterday)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start date: %w", err)
	}
	end, err := parseDate(c.EndDate, yesterday)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end date: %w", err)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end date %s is before start date %s",
			end.Format(dateLayout), start.Format(dateLayout))
	}
	return start, end, nil
}

func (c *Config) Lookback() (time.Duration, error) {
	return parseWindow("window.lookback", c.Window.Lookback)
}

func (c *Config) Lookahead() (time.Duration, error) {
	return parseWindow("window.lookahead", c.Window.Lookahead)
}

func parseDate(s string, fallback time.Time) (time.Time, error) {
	if s == "" {
		return fallback, nil
	}
	return time.Parse(dateLayout, s)
}

func parseWindow(name, value string) (time.Duration, error) {
	d, err := duration.Parse(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an ISO-8601 duration: %w", name, err)
	}
	td := d.ToTimeDuration()
	if td < 0 {
		return 0, fmt.Errorf("%s must not be negative", name)
	}
	return td, nil
}
