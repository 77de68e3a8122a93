package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/minerctl/internal/browser"
	"github.com/xkilldash9x/minerctl/internal/browser/cdp"
	"github.com/xkilldash9x/minerctl/internal/browser/rodriver"
	"github.com/xkilldash9x/minerctl/internal/config"
	"github.com/xkilldash9x/minerctl/internal/miner"
	"github.com/xkilldash9x/minerctl/internal/observability"
)

// newLauncher selects the browser driver by name.
func newLauncher(driver string, logger *zap.Logger) (browser.Launcher, error) {
	switch strings.ToLower(driver) {
	case "", config.DriverChromedp:
		return cdp.NewLauncher(logger), nil
	case config.DriverRod:
		return rodriver.NewLauncher(logger), nil
	default:
		return nil, fmt.Errorf("unknown browser driver %q", driver)
	}
}

// minerOptions maps the configuration onto controller options. server may be nil.
func minerOptions(cfg *config.Config, server io.Closer, logger *zap.Logger) miner.Options {
	opts := miner.Options{
		SiteKey:        cfg.Miner().SiteKey,
		Interval:       cfg.Miner().Interval,
		Host:           cfg.Server().Host,
		Port:           cfg.Server().Port,
		Threads:        cfg.Miner().Threads,
		Proxy:          cfg.Browser().Proxy,
		ExecutablePath: cfg.Browser().ExecutablePath,
		Username:       cfg.Miner().Username,
		URL:            cfg.Miner().URL,
		Server:         server,
	}
	if opts.ExecutablePath != "" {
		opts.BrowserOutput = observability.Writer(logger.Named("chrome"), zapcore.DebugLevel)
	}
	return opts
}

// newController wires a controller from configuration. server may be nil.
func newController(cfg *config.Config, server io.Closer, logger *zap.Logger) (*miner.Controller, error) {
	launcher, err := newLauncher(cfg.Browser().Driver, logger)
	if err != nil {
		return nil, err
	}
	return miner.New(minerOptions(cfg, server, logger), launcher, logger), nil
}

// withTimeout bounds ctx by d; a zero d leaves it unbounded.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// firstCallTimeout covers a browser launch plus page initialization.
func firstCallTimeout(cfg *config.Config) time.Duration {
	b := cfg.Browser()
	if b.LaunchTimeout <= 0 || b.EvalTimeout <= 0 {
		return 0
	}
	return b.LaunchTimeout + b.EvalTimeout
}
