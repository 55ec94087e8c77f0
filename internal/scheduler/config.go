package scheduler

import (
	"time"

	"github.com/smallbiznis/perishables/internal/config"
)

// Config controls the expiry sweep schedule and thresholds.
type Config struct {
	Cron       string
	AlertDays  int
	KPIDays    int
	JobTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Cron:       "*/15 * * * *",
		AlertDays:  2,
		KPIDays:    5,
		JobTimeout: time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		Cron:      cfg.ExpirySweepCron,
		AlertDays: cfg.ExpiryAlertDays,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.Cron == "" {
		c.Cron = defaults.Cron
	}
	if c.AlertDays <= 0 {
		c.AlertDays = defaults.AlertDays
	}
	if c.KPIDays <= 0 {
		c.KPIDays = defaults.KPIDays
	}
	if c.KPIDays < c.AlertDays {
		c.KPIDays = c.AlertDays
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}
