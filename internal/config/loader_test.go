package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(t *testing.T, cfgFile string) *viper.Viper {
	t.Helper()
	v := viper.New()
	Prepare(v, cfgFile)
	return v
}

func TestDecode(t *testing.T) {
	t.Run("LoadDefaults", func(t *testing.T) {
		t.Setenv("XDG_DATA_HOME", t.TempDir())
		t.Setenv(TokenEnv, "")

		cfg, err := Decode(newViper(t, ""))
		require.NoError(t, err)

		assert.Equal(t, "https://api.spacetraders.io/v2", cfg.Agent.BaseURL)
		assert.Empty(t, cfg.Agent.Token)

		assert.Equal(t, 2, cfg.Governor.SteadyLimit)
		assert.Equal(t, time.Second, cfg.Governor.SteadyWindow)
		assert.Equal(t, 30, cfg.Governor.BurstLimit)
		assert.Equal(t, 60*time.Second, cfg.Governor.BurstWindow)
		assert.Equal(t, 5, cfg.Governor.MaxAttempts)
		assert.Equal(t, 1200*time.Millisecond, cfg.Governor.BackoffBase)
		assert.InDelta(t, 2.0, cfg.Governor.BackoffMultiplier, 0.0001)
		assert.Equal(t, 30*time.Second, cfg.Governor.BackoffMax)
		assert.InDelta(t, 0.1, cfg.Governor.BackoffJitter, 0.0001)
		assert.Equal(t, 50*time.Millisecond, cfg.Governor.WindowMargin)
		assert.Equal(t, 60*time.Second, cfg.Governor.MaxResetWait)

		assert.Equal(t, time.Second, cfg.Engine.PollInterval)
		assert.Equal(t, 10*time.Second, cfg.Engine.ErrorBackoff)
		assert.Equal(t, 5*time.Minute, cfg.Engine.ResyncInterval)

		assert.Equal(t, "libsql", cfg.Store.Driver)
		assert.Equal(t, 48*time.Hour, cfg.Store.Retention)
		assert.Equal(t, time.Hour, cfg.Store.PruneInterval)
		assert.NotEmpty(t, cfg.Store.Path)

		assert.Equal(t, "@hourly", cfg.Scheduler.Retention)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, "info", cfg.Logging.Level)

		assert.Same(t, cfg, GetConfig())
	})

	t.Run("TokenFromAgentTokenEnv", func(t *testing.T) {
		t.Setenv(TokenEnv, "  tok-123  ")

		cfg, err := Decode(newViper(t, ""))
		require.NoError(t, err)
		assert.Equal(t, "tok-123", cfg.Agent.Token)
		assert.NoError(t, cfg.RequireToken())
	})

	t.Run("PrefixedEnvOverrides", func(t *testing.T) {
		t.Setenv("VOIDHAUL_GOVERNOR_BURST_LIMIT", "10")
		t.Setenv("VOIDHAUL_ENGINE_POLL_INTERVAL", "250ms")
		t.Setenv("VOIDHAUL_SERVER_PORT", "9191")

		cfg, err := Decode(newViper(t, ""))
		require.NoError(t, err)
		assert.Equal(t, 10, cfg.Governor.BurstLimit)
		assert.Equal(t, 250*time.Millisecond, cfg.Engine.PollInterval)
		assert.Equal(t, 9191, cfg.Server.Port)
	})

	t.Run("ConfigFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
governor:
  steady_limit: 1
  backoff_base: 500ms
engine:
  jettison: false
trade_log:
  path: /tmp/trades.tsv
`), 0o600))

		v := newViper(t, path)
		used, err := ReadFile(v)
		require.NoError(t, err)
		assert.Equal(t, path, used)

		cfg, err := Decode(v)
		require.NoError(t, err)
		assert.Equal(t, 1, cfg.Governor.SteadyLimit)
		assert.Equal(t, 500*time.Millisecond, cfg.Governor.BackoffBase)
		assert.False(t, cfg.Engine.Jettison)
		assert.Equal(t, "/tmp/trades.tsv", cfg.TradeLog.Path)
	})

	t.Run("InvalidValues", func(t *testing.T) {
		v := newViper(t, "")
		v.Set("governor.steady_limit", 0)
		v.Set("governor.backoff_multiplier", 0.5)

		_, err := Decode(v)
		require.ErrorIs(t, err, ErrInvalid)
		assert.Contains(t, err.Error(), "governor limits")
		assert.Contains(t, err.Error(), "backoff_multiplier")
	})

	t.Run("JitterAndMarginOverrides", func(t *testing.T) {
		t.Setenv("VOIDHAUL_GOVERNOR_BACKOFF_JITTER", "0")
		t.Setenv("VOIDHAUL_GOVERNOR_WINDOW_MARGIN", "120ms")

		cfg, err := Decode(newViper(t, ""))
		require.NoError(t, err)
		assert.Zero(t, cfg.Governor.BackoffJitter)
		assert.Equal(t, 120*time.Millisecond, cfg.Governor.WindowMargin)

		v := newViper(t, "")
		v.Set("governor.backoff_jitter", 1.5)
		_, err = Decode(v)
		require.ErrorIs(t, err, ErrInvalid)
		assert.Contains(t, err.Error(), "backoff_jitter")
	})
}

func TestRequireToken(t *testing.T) {
	var nilCfg *Config
	assert.ErrorIs(t, nilCfg.RequireToken(), ErrMissingToken)
	assert.ErrorIs(t, (&Config{}).RequireToken(), ErrMissingToken)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("VOIDHAUL_TEST_DOTENV=from-file\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("VOIDHAUL_TEST_DOTENV") })

	require.NoError(t, LoadDotEnv(path, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "from-file", os.Getenv("VOIDHAUL_TEST_DOTENV"))
}

func TestDefaultPaths(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	assert.Equal(t, "voidhaul.db", filepath.Base(DefaultStorePath()))
	assert.Equal(t, "trades.tsv", filepath.Base(DefaultTradeLogPath()))
}
