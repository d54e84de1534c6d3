package scheduler

import "time"

type Config struct {
	Interval             time.Duration `yaml:"interval" json:"interval"`
	MinTimeBetweenTrades time.Duration `yaml:"min_time_between_trades" json:"min_time_between_trades"`
	MaxDailyTrades       int           `yaml:"max_daily_trades" json:"max_daily_trades"`

	MaxAttempts  int           `yaml:"max_attempts" json:"max_attempts"`
	RetryBackoff time.Duration `yaml:"retry_backoff" json:"retry_backoff"`
	CallTimeout  time.Duration `yaml:"call_timeout" json:"call_timeout"`

	FillTimeout      time.Duration `yaml:"fill_timeout" json:"fill_timeout"`
	FillPollInterval time.Duration `yaml:"fill_poll_interval" json:"fill_poll_interval"`
	MaxQuoteAge      time.Duration `yaml:"max_quote_age" json:"max_quote_age"`

	ScoreInterval       time.Duration `yaml:"score_interval" json:"score_interval"`
	RiskMonitorInterval time.Duration `yaml:"risk_monitor_interval" json:"risk_monitor_interval"`
	// MonitorConcurrency caps how many agents the scoring and drawdown
	// loops visit at once.
	MonitorConcurrency int `yaml:"monitor_concurrency" json:"monitor_concurrency"`
}

func DefaultConfig() Config {
	return Config{
		Interval:             10 * time.Second,
		MinTimeBetweenTrades: 60 * time.Second,
		MaxDailyTrades:       50,
		MaxAttempts:          3,
		RetryBackoff:         500 * time.Millisecond,
		CallTimeout:          10 * time.Second,
		FillTimeout:          30 * time.Second,
		FillPollInterval:     100 * time.Millisecond,
		MaxQuoteAge:          30 * time.Second,
		ScoreInterval:        time.Minute,
		RiskMonitorInterval:  5 * time.Second,
		MonitorConcurrency:   16,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = d.CallTimeout
	}
	if c.FillTimeout <= 0 {
		c.FillTimeout = d.FillTimeout
	}
	if c.FillPollInterval <= 0 {
		c.FillPollInterval = d.FillPollInterval
	}
	if c.ScoreInterval <= 0 {
		c.ScoreInterval = d.ScoreInterval
	}
	if c.RiskMonitorInterval <= 0 {
		c.RiskMonitorInterval = d.RiskMonitorInterval
	}
	if c.MonitorConcurrency <= 0 {
		c.MonitorConcurrency = d.MonitorConcurrency
	}
	return c
}
