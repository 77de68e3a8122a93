// File: cmd/root_test.go
package cmd

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/minerctl/internal/config"
	"github.com/xkilldash9x/minerctl/internal/observability"
)

// resetForTest restores package state and silences the global logger.
func resetForTest(t *testing.T) {
	t.Helper()
	cfgFile = ""
	observability.ResetForTest()
	observability.Initialize(config.LoggerConfig{Level: "fatal", Format: "console", ServiceName: "test"}, zapcore.AddSync(io.Discard))
	t.Cleanup(observability.ResetForTest)
	// Keep the host environment out of the loaded configuration.
	t.Chdir(t.TempDir())
}

// executeProbe runs a throwaway subcommand carrying the miner flags and
// returns the configuration it saw.
func executeProbe(t *testing.T, args ...string) (*config.Config, error) {
	t.Helper()
	var seen *config.Config

	root := NewRootCommand()
	probe := &cobra.Command{
		Use: "probe",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromContext(cmd.Context())
			seen = cfg
			return err
		},
	}
	addMinerFlags(probe)
	root.AddCommand(probe)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"probe"}, args...))
	err := root.ExecuteContext(context.Background())
	return seen, err
}

func TestRootCmd_VersionFlag(t *testing.T) {
	resetForTest(t)
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--version"})

	require.NoError(t, root.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "minerctl version "+Version)
}

func TestVersionCmd(t *testing.T) {
	resetForTest(t)
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.ExecuteContext(context.Background()))
	assert.Equal(t, "minerctl version "+Version+"\n", out.String())
}

func TestRootCmd_Defaults(t *testing.T) {
	resetForTest(t)
	cfg, err := executeProbe(t)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, config.DriverChromedp, cfg.Browser().Driver)
	assert.Equal(t, time.Second, cfg.Miner().Interval)
	assert.Equal(t, "localhost", cfg.Server().Host)
	assert.Equal(t, 3002, cfg.Server().Port)
}

func TestRootCmd_FlagsOverride(t *testing.T) {
	resetForTest(t)
	cfg, err := executeProbe(t,
		"--site-key", "flag-key",
		"--threads", "3",
		"--driver", "rod",
		"--proxy", "http://proxy:3128",
		"--interval", "250ms",
		"--port", "4000",
	)
	require.NoError(t, err)

	assert.Equal(t, "flag-key", cfg.Miner().SiteKey)
	assert.Equal(t, 3, cfg.Miner().Threads)
	assert.Equal(t, config.DriverRod, cfg.Browser().Driver)
	assert.Equal(t, "http://proxy:3128", cfg.Browser().Proxy)
	assert.Equal(t, 250*time.Millisecond, cfg.Miner().Interval)
	assert.Equal(t, 4000, cfg.Server().Port)
}

func TestRootCmd_ConfigFileAndEnv(t *testing.T) {
	resetForTest(t)
	path := filepath.Join(t.TempDir(), "minerctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
miner:
  site_key: file-key
  username: from-file
  threads: 2
server:
  port: 3999
`), 0o644))
	t.Setenv("MINERCTL_MINER_USERNAME", "from-env")

	cfg, err := executeProbe(t, "--config", path, "--threads", "6")
	require.NoError(t, err)

	assert.Equal(t, "file-key", cfg.Miner().SiteKey)
	assert.Equal(t, "from-env", cfg.Miner().Username, "env beats the config file")
	assert.Equal(t, 6, cfg.Miner().Threads, "flags beat the config file")
	assert.Equal(t, 3999, cfg.Server().Port)
}

func TestRootCmd_InvalidConfig(t *testing.T) {
	resetForTest(t)
	_, err := executeProbe(t, "--driver", "selenium")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "browser.driver")
}

func TestConfigFromContext_Missing(t *testing.T) {
	_, err := configFromContext(context.Background())
	assert.Error(t, err)
}
