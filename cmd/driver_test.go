package cmd

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/minerctl/internal/browser/cdp"
	"github.com/xkilldash9x/minerctl/internal/browser/rodriver"
	"github.com/xkilldash9x/minerctl/internal/config"
	"github.com/xkilldash9x/minerctl/internal/mocks"
)

func TestNewLauncher(t *testing.T) {
	logger := zaptest.NewLogger(t)

	l, err := newLauncher("", logger)
	require.NoError(t, err)
	assert.IsType(t, &cdp.Launcher{}, l)

	l, err = newLauncher("chromedp", logger)
	require.NoError(t, err)
	assert.IsType(t, &cdp.Launcher{}, l)

	l, err = newLauncher("ROD", logger)
	require.NoError(t, err)
	assert.IsType(t, &rodriver.Launcher{}, l)

	_, err = newLauncher("webdriver", logger)
	assert.Error(t, err)
}

func TestMinerOptions(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cfg := config.NewDefaultConfig()
	cfg.SetMinerSiteKey("key")
	cfg.SetMinerThreads(2)
	cfg.SetMinerUsername("alice")
	cfg.SetBrowserProxy("http://proxy:1")

	opts := minerOptions(cfg, nil, logger)
	assert.Equal(t, "key", opts.SiteKey)
	assert.Equal(t, 2, opts.Threads)
	assert.Equal(t, "alice", opts.Username)
	assert.Equal(t, "http://proxy:1", opts.Proxy)
	assert.Equal(t, "localhost", opts.Host)
	assert.Equal(t, 3002, opts.Port)
	assert.Equal(t, time.Second, opts.Interval)
	assert.Nil(t, opts.Server, "no server must stay an untyped nil")
	assert.Nil(t, opts.BrowserOutput)

	cfg.SetBrowserExecutablePath("/opt/chrome/chrome")
	closer := new(mocks.MockCloser)
	opts = minerOptions(cfg, closer, logger)
	assert.Same(t, closer, opts.Server)
	assert.NotNil(t, opts.BrowserOutput, "custom executables get their output logged")
}

func TestWithTimeout(t *testing.T) {
	ctx, cancel := withTimeout(context.Background(), 0)
	defer cancel()
	_, ok := ctx.Deadline()
	assert.False(t, ok)

	ctx2, cancel2 := withTimeout(context.Background(), time.Minute)
	defer cancel2()
	_, ok = ctx2.Deadline()
	assert.True(t, ok)
}

func TestFirstCallTimeout(t *testing.T) {
	cfg := config.NewDefaultConfig()
	assert.Equal(t, 90*time.Second, firstCallTimeout(cfg))

	cfg.BrowserCfg.EvalTimeout = 0
	assert.Zero(t, firstCallTimeout(cfg))
}
