// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/minerctl/internal/config"
	"github.com/xkilldash9x/minerctl/internal/observability"
)

type configKeyType struct{}

var configKey = configKeyType{}

var cfgFile string

// flagBindings maps command line flags onto their viper keys. Only flags a
// command actually defines are bound.
var flagBindings = map[string]string{
	"driver":          "browser.driver",
	"executable-path": "browser.executable_path",
	"proxy":           "browser.proxy",
	"tail-debug-log":  "browser.tail_debug_log",
	"site-key":        "miner.site_key",
	"interval":        "miner.interval",
	"threads":         "miner.threads",
	"username":        "miner.username",
	"url":             "miner.url",
	"host":            "server.host",
	"port":            "server.port",
	"postgres-url":    "store.postgres_url",
}

// NewRootCommand builds a fresh command tree with its own viper instance.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "minerctl",
		Short:         "minerctl drives a browser hosted miner from the command line.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(cmd, v); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.NewDefaultConfig().Logger())
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Configuration loaded.", zap.String("version", Version))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s version %s\n" .Name .Version}}`)

	rootCmd.AddCommand(
		newRunCmd(),
		newServeCmd(),
		newRPCCmd(),
		newShellCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the command tree with args. With no args it opens the shell.
func Execute(ctx context.Context, args []string) error {
	if len(args) == 0 {
		args = []string{"shell"}
	}
	rootCmd := NewRootCommand()
	rootCmd.SetArgs(args)

	err := rootCmd.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		observability.GetLogger().Error("Command execution failed", zap.Error(err))
	}
	return err
}

// initializeConfig reads the config file, environment and flags into v.
func initializeConfig(cmd *cobra.Command, v *viper.Viper) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("MINERCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		key, ok := flagBindings[f.Name]
		if !ok || bindErr != nil {
			return
		}
		bindErr = v.BindPFlag(key, f)
	})
	return bindErr
}

// configFromContext returns the configuration stored by PersistentPreRunE.
func configFromContext(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	return cfg, nil
}

// addMinerFlags registers the flags shared by every command that builds a controller.
func addMinerFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("driver", config.DriverChromedp, "browser driver: chromedp or rod")
	f.String("executable-path", "", "custom Chromium binary (forces headless and logs its output)")
	f.String("proxy", "", "proxy server passed to the browser")
	f.String("site-key", "", "site key handed to window.init")
	f.Duration("interval", 0, "update interval reported by the page")
	f.Int("threads", 0, "worker threads (0 lets the page decide)")
	f.String("username", "", "user name handed to window.init")
	f.String("url", "", "page URL (COINHIVE_PUPPETEER_URL takes precedence)")
	f.String("host", "", "page server host")
	f.Int("port", 0, "page server port")
}
