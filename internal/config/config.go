package config

import (
	"time"
)

// Config represents the complete application configuration.
// Values come from, in increasing precedence: built-in defaults, the YAML
// config file, VOIDHAUL_* environment variables (plus AGENT_TOKEN from .env).
type Config struct {
	Agent     AgentConfig     `mapstructure:"agent"`
	Governor  GovernorConfig  `mapstructure:"governor"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Store     StoreConfig     `mapstructure:"store"`
	TradeLog  TradeLogConfig  `mapstructure:"trade_log"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// AgentConfig identifies the player account.
type AgentConfig struct {
	// Token is the bearer token. Read from AGENT_TOKEN when not set in the file.
	Token   string `mapstructure:"token"`
	BaseURL string `mapstructure:"base_url"`
}

// GovernorConfig shapes outbound request admission and retries.
type GovernorConfig struct {
	SteadyLimit       int           `mapstructure:"steady_limit"`
	SteadyWindow      time.Duration `mapstructure:"steady_window"`
	BurstLimit        int           `mapstructure:"burst_limit"`
	BurstWindow       time.Duration `mapstructure:"burst_window"`
	WindowMargin      time.Duration `mapstructure:"window_margin"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	BackoffBase       time.Duration `mapstructure:"backoff_base"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier"`
	BackoffMax        time.Duration `mapstructure:"backoff_max"`
	BackoffJitter     float64       `mapstructure:"backoff_jitter"`
	MaxResetWait      time.Duration `mapstructure:"max_reset_wait"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
}

// EngineConfig tunes the per-ship automation loops.
type EngineConfig struct {
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	ErrorBackoff   time.Duration `mapstructure:"error_backoff"`
	ResyncInterval time.Duration `mapstructure:"resync_interval"`
	SurveyMaxAge   time.Duration `mapstructure:"survey_max_age"`
	Jettison       bool          `mapstructure:"jettison"`
}

// StoreConfig contains database configuration for libsql/Turso
type StoreConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`

	// Retention is how long journal rows are kept.
	Retention time.Duration `mapstructure:"retention"`
	// PruneInterval is the minimum spacing between retention sweeps.
	PruneInterval time.Duration `mapstructure:"prune_interval"`
	// HydrateWindow bounds which journal rows are replayed into the warehouse at startup.
	HydrateWindow time.Duration `mapstructure:"hydrate_window"`
}

// TradeLogConfig controls the append-only TSV trade log.
type TradeLogConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// SchedulerConfig holds cron specs for maintenance jobs.
type SchedulerConfig struct {
	Retention  string `mapstructure:"retention"`
	FleetSync  string `mapstructure:"fleet_sync"`
	Checkpoint string `mapstructure:"checkpoint"`
	Stats      string `mapstructure:"stats"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logging complexity level
	// Valid values: SIMPLE, STRUCTURED
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}
