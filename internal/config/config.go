package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type FeedConfig struct {
	BaseURL  string        `yaml:"base_url"`
	Interval time.Duration `yaml:"interval"`
}

const _feedIntervalDefault = 5 * time.Minute

func (c *FeedConfig) Setup() {
	if c.Interval <= 0 {
		c.Interval = _feedIntervalDefault
	}
}

// Enabled reports whether the price feed poller should run at all.
func (c *FeedConfig) Enabled() bool {
	return c.BaseURL != ""
}

type LedgerConfig struct {
	TradesDir string `yaml:"trades_dir"`
	PricesDir string `yaml:"prices_dir"`

	Timezone            string `yaml:"timezone"`
	AfternoonCutoffHour int    `yaml:"afternoon_cutoff_hour"`
	CloseCutoffHour     int    `yaml:"close_cutoff_hour"`
	FileCutoverHour     int    `yaml:"file_cutover_hour"`
	SODHour             int    `yaml:"sod_hour"`

	Debounce        time.Duration `yaml:"debounce"`
	FilesPerMinute  int           `yaml:"files_per_minute"`
	RecalcQueueSize int           `yaml:"recalc_queue_size"`

	HTTPPort string `yaml:"http_port"`

	Feed FeedConfig `yaml:"feed"`
}

const (
	_timezoneDefault            = "America/Chicago"
	_afternoonCutoffHourDefault = 15
	_closeCutoffHourDefault     = 17
	_fileCutoverHourDefault     = 16
	_sodHourDefault             = 7
	_debounceDefault            = 1 * time.Second
	_filesPerMinuteDefault      = 120
	_recalcQueueSizeDefault     = 16
	_httpPortDefault            = "8080"
)

func (c *LedgerConfig) ValidateAndSetup() error {
	if c.TradesDir == "" {
		return fmt.Errorf("trades_dir is required")
	}
	if c.PricesDir == "" {
		return fmt.Errorf("prices_dir is required")
	}

	if c.Timezone == "" {
		c.Timezone = _timezoneDefault
	}
	if c.AfternoonCutoffHour <= 0 {
		c.AfternoonCutoffHour = _afternoonCutoffHourDefault
	}
	if c.CloseCutoffHour <= 0 {
		c.CloseCutoffHour = _closeCutoffHourDefault
	}
	if c.CloseCutoffHour <= c.AfternoonCutoffHour {
		return fmt.Errorf("close cutoff %d must be after afternoon cutoff %d", c.CloseCutoffHour, c.AfternoonCutoffHour)
	}
	if c.FileCutoverHour <= 0 {
		c.FileCutoverHour = _fileCutoverHourDefault
	}
	if c.SODHour <= 0 {
		c.SODHour = _sodHourDefault
	}
	if c.Debounce <= 0 {
		c.Debounce = _debounceDefault
	}
	if c.FilesPerMinute <= 0 {
		c.FilesPerMinute = _filesPerMinuteDefault
	}
	if c.RecalcQueueSize <= 0 {
		c.RecalcQueueSize = _recalcQueueSizeDefault
	}
	if c.HTTPPort == "" {
		c.HTTPPort = _httpPortDefault
	}

	c.Feed.Setup()
	return nil
}

func LoadLedgerConfig(filename string) (LedgerConfig, error) {
	var cfg LedgerConfig
	input, err := os.ReadFile(filename)
	if err != nil {
		return cfg, fmt.Errorf("%w: can't read file", err)
	}

	if err := yaml.Unmarshal(input, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: can't unmarshal config", err)
	}

	if err := cfg.ValidateAndSetup(); err != nil {
		return cfg, fmt.Errorf("%w: can't setup cfg", err)
	}

	return cfg, nil
}
