// File: internal/config/config_test.go
package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "minerctl", cfg.Logger().ServiceName)
	assert.Equal(t, DriverChromedp, cfg.Browser().Driver)
	assert.Equal(t, 60*time.Second, cfg.Browser().LaunchTimeout)
	assert.Equal(t, time.Second, cfg.Miner().Interval)
	assert.Equal(t, 10*time.Second, cfg.Miner().UpdateLogInterval)
	assert.True(t, cfg.Server().Enabled)
	assert.Equal(t, "localhost", cfg.Server().Host)
	assert.Equal(t, 3002, cfg.Server().Port)
	assert.False(t, cfg.Store().Enabled())
	assert.NoError(t, cfg.Validate())
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("Browser Validation", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.SetBrowserDriver("rod")
		assert.NoError(t, cfg.Validate())

		cfg.SetBrowserDriver("selenium")
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "browser.driver must be")

		cfg = NewDefaultConfig()
		cfg.BrowserCfg.EvalTimeout = -time.Second
		err = cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "browser timeouts must not be negative")
	})

	t.Run("Miner Validation", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.MinerCfg.Interval = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "miner.interval must be a positive duration")

		cfg = NewDefaultConfig()
		cfg.SetMinerThreads(-2)
		err = cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "miner.threads must not be negative")
	})

	t.Run("Server Validation", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.ServerCfg.Port = 70000
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "server.port must be between 1 and 65535")

		// A disabled server is never validated.
		cfg.ServerCfg.Enabled = false
		assert.NoError(t, cfg.Validate())
	})
}

// -- Factory Function Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("Successful Load from YAML", func(t *testing.T) {
		yamlBytes := []byte(`
browser:
  driver: rod
  proxy: "socks5://127.0.0.1:9050"
miner:
  site_key: "abc123"
  threads: 4
  interval: 2s
server:
  port: 8080
`)
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlBytes)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, DriverRod, cfg.Browser().Driver)
		assert.Equal(t, "socks5://127.0.0.1:9050", cfg.Browser().Proxy)
		assert.Equal(t, "abc123", cfg.Miner().SiteKey)
		assert.Equal(t, 4, cfg.Miner().Threads)
		assert.Equal(t, 2*time.Second, cfg.Miner().Interval)
		assert.Equal(t, 8080, cfg.Server().Port)
		// Check a default value was also loaded
		assert.Equal(t, "info", cfg.Logger().Level)
	})

	t.Run("Validation Failure", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("miner.threads", -1)

		cfg, err := NewConfigFromViper(v)
		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "invalid configuration")
		assert.Contains(t, err.Error(), "miner.threads must not be negative")
	})

	t.Run("Environment Variable Binding", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBufferString(`
miner:
  site_key: "from-file"
`)))

		t.Setenv("MINERCTL_SITE_KEY", "from-env")
		t.Setenv("MINERCTL_STORE_POSTGRES_URL", "postgres://env/db")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, "from-env", cfg.Miner().SiteKey)
		assert.Equal(t, "postgres://env/db", cfg.Store().PostgresURL)
		assert.True(t, cfg.Store().Enabled())
	})

	t.Run("Home Directory Expansion", func(t *testing.T) {
		home, err := homedir.Dir()
		if err != nil {
			t.Skip("no home directory available")
		}

		v := viper.New()
		SetDefaults(v)
		v.Set("browser.executable_path", "~/bin/chromium")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, home+"/bin/chromium", cfg.Browser().ExecutablePath)
	})
}

// -- URL Resolution Tests --

func TestResolveURL(t *testing.T) {
	assert.Equal(t, "http://env", ResolveURL("http://env", "http://explicit", "localhost", 3002))
	assert.Equal(t, "http://explicit", ResolveURL("", "http://explicit", "localhost", 3002))
	assert.Equal(t, "http://localhost:3002", ResolveURL("", "", "localhost", 3002))
}

func TestConfigTargetURL(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.SetMinerURL("http://explicit:1")

	t.Setenv(URLOverrideEnv, "")
	assert.Equal(t, "http://explicit:1", cfg.TargetURL())

	t.Setenv(URLOverrideEnv, "http://override:9")
	assert.Equal(t, "http://override:9", cfg.TargetURL())
}
