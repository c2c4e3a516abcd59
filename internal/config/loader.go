// Package config provides centralized configuration management for voidhaul.
// It layers built-in defaults, an optional YAML file discovered under the XDG
// config directory, and environment variables, then decodes the result into a
// typed Config.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"path/filepath"
	"strings"
	"sync"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// AppName names the XDG config/data directories and the binary.
	AppName = "voidhaul"
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "VOIDHAUL"
	// TokenEnv is the variable the agent token is read from.
	TokenEnv = "AGENT_TOKEN"
)

var (
	// appConfig holds the current application configuration
	appConfig *Config
	configMu  sync.RWMutex
)

// ErrMissingToken is returned when no agent token is configured.
var ErrMissingToken = errors.New("agent token is required (set AGENT_TOKEN or agent.token)")

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// LoadDotEnv reads KEY=VALUE pairs from the given files (default ".env") into
// the process environment. Variables that are already set win. Missing files
// are not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Prepare configures v with defaults, config file discovery and environment
// binding. cfgFile, when set, overrides discovery.
func Prepare(v *viper.Viper, cfgFile string) {
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if dir := gfconfig.GetAppConfigDir(AppName); dir != "" {
			v.AddConfigPath(dir)
		}
		v.AddConfigPath("./config")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("agent.token", EnvPrefix+"_AGENT_TOKEN", TokenEnv)
}

// ReadFile reads the config file if one is found. A missing file is not an
// error when no explicit path was requested.
func ReadFile(v *viper.Viper) (string, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return "", nil
		}
		return "", fmt.Errorf("read config file: %w", err)
	}
	return v.ConfigFileUsed(), nil
}

// SetDefaults registers every known key so environment overrides are seen by
// Decode.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("agent.token", "")
	v.SetDefault("agent.base_url", "https://api.spacetraders.io/v2")

	v.SetDefault("governor.steady_limit", 2)
	v.SetDefault("governor.steady_window", "1s")
	v.SetDefault("governor.burst_limit", 30)
	v.SetDefault("governor.burst_window", "60s")
	v.SetDefault("governor.window_margin", "50ms")
	v.SetDefault("governor.max_attempts", 5)
	v.SetDefault("governor.backoff_base", "1.2s")
	v.SetDefault("governor.backoff_multiplier", 2.0)
	v.SetDefault("governor.backoff_max", "30s")
	v.SetDefault("governor.backoff_jitter", 0.1)
	v.SetDefault("governor.max_reset_wait", "60s")
	v.SetDefault("governor.request_timeout", "30s")

	v.SetDefault("engine.poll_interval", "1s")
	v.SetDefault("engine.error_backoff", "10s")
	v.SetDefault("engine.resync_interval", "5m")
	v.SetDefault("engine.survey_max_age", "15m")
	v.SetDefault("engine.jettison", true)

	v.SetDefault("store.enabled", true)
	v.SetDefault("store.driver", "libsql")
	v.SetDefault("store.path", DefaultStorePath())
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")
	v.SetDefault("store.retention", "48h")
	v.SetDefault("store.prune_interval", "1h")
	v.SetDefault("store.hydrate_window", "6h")

	v.SetDefault("trade_log.enabled", true)
	v.SetDefault("trade_log.path", DefaultTradeLogPath())

	v.SetDefault("scheduler.retention", "@hourly")
	v.SetDefault("scheduler.fleet_sync", "@every 5m")
	v.SetDefault("scheduler.checkpoint", "@every 1m")
	v.SetDefault("scheduler.stats", "@every 30s")

	v.SetDefault("server.enabled", false)
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.port", 9090)
}

// Decode converts the merged viper settings into a Config and validates it.
func Decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToFloat64HookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Agent.Token = strings.TrimSpace(cfg.Agent.Token)
	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	setConfig(cfg)
	return cfg, nil
}

// Validate checks ranges. It does not require a token; commands that talk to
// the API call RequireToken.
func (c *Config) Validate() error {
	var problems []string

	if _, err := url.ParseRequestURI(c.Agent.BaseURL); err != nil {
		problems = append(problems, fmt.Sprintf("agent.base_url: %v", err))
	}

	g := c.Governor
	if g.SteadyLimit <= 0 || g.BurstLimit <= 0 {
		problems = append(problems, "governor limits must be positive")
	}
	if g.SteadyWindow <= 0 || g.BurstWindow <= 0 {
		problems = append(problems, "governor windows must be positive")
	}
	if g.MaxAttempts <= 0 {
		problems = append(problems, "governor.max_attempts must be positive")
	}
	if g.BackoffMultiplier < 1 {
		problems = append(problems, "governor.backoff_multiplier must be >= 1")
	}
	if g.BackoffBase <= 0 || g.BackoffMax < g.BackoffBase {
		problems = append(problems, "governor.backoff_max must be >= governor.backoff_base > 0")
	}
	if g.BackoffJitter < 0 || g.BackoffJitter >= 1 {
		problems = append(problems, "governor.backoff_jitter must be in [0, 1)")
	}
	if g.WindowMargin < 0 {
		problems = append(problems, "governor.window_margin must not be negative")
	}

	e := c.Engine
	if e.PollInterval <= 0 || e.ErrorBackoff <= 0 || e.ResyncInterval <= 0 {
		problems = append(problems, "engine intervals must be positive")
	}

	if c.Store.Enabled && c.Store.Retention <= 0 {
		problems = append(problems, "store.retention must be positive")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		problems = append(problems, "server.port out of range")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// RequireToken returns ErrMissingToken when no token is configured.
func (c *Config) RequireToken() error {
	if c == nil || c.Agent.Token == "" {
		return ErrMissingToken
	}
	return nil
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configDir := gfconfig.GetAppConfigDir(AppName)
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultDataDir returns the XDG-compliant data directory for the app.
func DefaultDataDir() string {
	return gfconfig.GetAppDataDir(AppName)
}

// DefaultStorePath returns the XDG-compliant path to the database file.
func DefaultStorePath() string {
	dataDir := DefaultDataDir()
	if strings.TrimSpace(dataDir) == "" {
		return "./" + AppName + ".db"
	}
	return filepath.Join(dataDir, AppName+".db")
}

// DefaultTradeLogPath returns where the TSV trade log is written by default.
func DefaultTradeLogPath() string {
	dataDir := DefaultDataDir()
	if strings.TrimSpace(dataDir) == "" {
		return "./trades.tsv"
	}
	return filepath.Join(dataDir, "trades.tsv")
}
