// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// URLOverrideEnv names the environment variable that, when set, replaces the
// page URL the miner navigates to. It wins over miner.url and server host/port.
const URLOverrideEnv = "COINHIVE_PUPPETEER_URL"

// Supported browser drivers.
const (
	DriverChromedp = "chromedp"
	DriverRod      = "rod"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Miner() MinerConfig
	Server() ServerConfig
	Store() StoreConfig

	// Browser Setters
	SetBrowserDriver(string)
	SetBrowserExecutablePath(string)
	SetBrowserProxy(string)

	// Miner Setters
	SetMinerSiteKey(string)
	SetMinerThreads(int)
	SetMinerUsername(string)
	SetMinerURL(string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	BrowserCfg BrowserConfig `mapstructure:"browser" yaml:"browser"`
	MinerCfg   MinerConfig   `mapstructure:"miner" yaml:"miner"`
	ServerCfg  ServerConfig  `mapstructure:"server" yaml:"server"`
	StoreCfg   StoreConfig   `mapstructure:"store" yaml:"store"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig   { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig { return c.BrowserCfg }
func (c *Config) Miner() MinerConfig     { return c.MinerCfg }
func (c *Config) Server() ServerConfig   { return c.ServerCfg }
func (c *Config) Store() StoreConfig     { return c.StoreCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserDriver(d string)         { c.BrowserCfg.Driver = d }
func (c *Config) SetBrowserExecutablePath(p string) { c.BrowserCfg.ExecutablePath = p }
func (c *Config) SetBrowserProxy(p string)          { c.BrowserCfg.Proxy = p }

func (c *Config) SetMinerSiteKey(k string)  { c.MinerCfg.SiteKey = k }
func (c *Config) SetMinerThreads(n int)     { c.MinerCfg.Threads = n }
func (c *Config) SetMinerUsername(u string) { c.MinerCfg.Username = u }
func (c *Config) SetMinerURL(u string)      { c.MinerCfg.URL = u }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig controls how the headless browser is launched and driven.
type BrowserConfig struct {
	// Driver selects the automation backend: "chromedp" or "rod".
	Driver string `mapstructure:"driver" yaml:"driver"`
	// ExecutablePath points at a custom Chromium binary. Setting it forces
	// headless mode and pipes the browser's output into the log.
	ExecutablePath string `mapstructure:"executable_path" yaml:"executable_path"`
	// Proxy is passed to Chromium as --proxy-server.
	Proxy         string        `mapstructure:"proxy" yaml:"proxy"`
	LaunchTimeout time.Duration `mapstructure:"launch_timeout" yaml:"launch_timeout"`
	EvalTimeout   time.Duration `mapstructure:"eval_timeout" yaml:"eval_timeout"`
	// TailDebugLog relays chrome_debug.log into the logger at debug level.
	TailDebugLog bool   `mapstructure:"tail_debug_log" yaml:"tail_debug_log"`
	DebugLogPath string `mapstructure:"debug_log_path" yaml:"debug_log_path"`
}

// MinerConfig holds the values handed to the in-page init function.
type MinerConfig struct {
	SiteKey  string        `mapstructure:"site_key" yaml:"site_key"`
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
	Threads  int           `mapstructure:"threads" yaml:"threads"`
	Username string        `mapstructure:"username" yaml:"username"`
	// URL overrides the page server address. COINHIVE_PUPPETEER_URL wins over it.
	URL string `mapstructure:"url" yaml:"url"`
	// UpdateLogInterval throttles how often update events are written to the log.
	UpdateLogInterval time.Duration `mapstructure:"update_log_interval" yaml:"update_log_interval"`
}

// ServerConfig configures the page server hosting the in-page contract.
type ServerConfig struct {
	Enabled        bool   `mapstructure:"enabled" yaml:"enabled"`
	Host           string `mapstructure:"host" yaml:"host"`
	Port           int    `mapstructure:"port" yaml:"port"`
	MinerScriptURL string `mapstructure:"miner_script_url" yaml:"miner_script_url"`
	MaxConnections int    `mapstructure:"max_connections" yaml:"max_connections"`
	Metrics        bool   `mapstructure:"metrics" yaml:"metrics"`
}

// StoreConfig configures the optional statistics sink.
type StoreConfig struct {
	PostgresURL string `mapstructure:"postgres_url" yaml:"-"`
}

// Enabled reports whether update samples should be persisted.
func (s StoreConfig) Enabled() bool { return s.PostgresURL != "" }

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "minerctl")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.driver", DriverChromedp)
	v.SetDefault("browser.executable_path", "")
	v.SetDefault("browser.proxy", "")
	v.SetDefault("browser.launch_timeout", "60s")
	v.SetDefault("browser.eval_timeout", "30s")
	v.SetDefault("browser.tail_debug_log", false)
	v.SetDefault("browser.debug_log_path", "/tmp/user-data/chrome_debug.log")

	// -- Miner --
	v.SetDefault("miner.site_key", "")
	v.SetDefault("miner.interval", "1s")
	v.SetDefault("miner.threads", 0)
	v.SetDefault("miner.username", "")
	v.SetDefault("miner.url", "")
	v.SetDefault("miner.update_log_interval", "10s")

	// -- Server --
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 3002)
	v.SetDefault("server.miner_script_url", "https://coinhive.com/lib/coinhive.min.js")
	v.SetDefault("server.max_connections", 64)
	v.SetDefault("server.metrics", true)

	// -- Store --
	v.SetDefault("store.postgres_url", "")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	v.BindEnv("store.postgres_url", "MINERCTL_STORE_POSTGRES_URL")
	v.BindEnv("miner.site_key", "MINERCTL_SITE_KEY")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves "~" in user supplied file paths.
func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.BrowserCfg.ExecutablePath, &c.BrowserCfg.DebugLogPath, &c.LoggerCfg.LogFile} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.BrowserCfg.Validate(); err != nil {
		return fmt.Errorf("browser configuration invalid: %w", err)
	}
	if err := c.MinerCfg.Validate(); err != nil {
		return fmt.Errorf("miner configuration invalid: %w", err)
	}
	if err := c.ServerCfg.Validate(); err != nil {
		return fmt.Errorf("server configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the browser settings.
func (b *BrowserConfig) Validate() error {
	switch strings.ToLower(b.Driver) {
	case DriverChromedp, DriverRod:
	default:
		return fmt.Errorf("browser.driver must be %q or %q, got %q", DriverChromedp, DriverRod, b.Driver)
	}
	if b.LaunchTimeout < 0 || b.EvalTimeout < 0 {
		return fmt.Errorf("browser timeouts must not be negative")
	}
	return nil
}

// Validate checks the miner settings.
func (m *MinerConfig) Validate() error {
	if m.Interval <= 0 {
		return fmt.Errorf("miner.interval must be a positive duration")
	}
	if m.Threads < 0 {
		return fmt.Errorf("miner.threads must not be negative")
	}
	return nil
}

// Validate checks the page server settings.
func (s *ServerConfig) Validate() error {
	if !s.Enabled {
		return nil
	}
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if s.MaxConnections < 0 {
		return fmt.Errorf("server.max_connections must not be negative")
	}
	return nil
}

// TargetURL resolves the page the miner navigates to. The environment
// override wins, then miner.url, then the page server address.
func (c *Config) TargetURL() string {
	return ResolveURL(os.Getenv(URLOverrideEnv), c.MinerCfg.URL, c.ServerCfg.Host, c.ServerCfg.Port)
}

// ResolveURL applies the override > explicit > host:port precedence.
func ResolveURL(override, explicit, host string, port int) string {
	if override != "" {
		return override
	}
	if explicit != "" {
		return explicit
	}
	return fmt.Sprintf("http://%s:%d", host, port)
}
