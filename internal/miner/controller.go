// Package miner drives a mining page inside a headless browser: it loads the
// page, wires the page's bridges to an event bus and calls the page's
// init/start/stop functions and the methods of its window.miner object.
package miner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/minerctl/internal/browser"
	"github.com/xkilldash9x/minerctl/internal/config"
	"github.com/xkilldash9x/minerctl/internal/events"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrKilled is returned by every lifecycle call made after Kill.
var ErrKilled = errors.New("this miner has been killed")

const (
	// EventUpdate carries (data, interval) from the page's update bridge.
	EventUpdate = "update"

	bridgeEmit   = "emitMessage"
	bridgeUpdate = "update"

	eventBufferSize = 256
)

// Options is the controller's immutable configuration.
type Options struct {
	SiteKey  string
	Interval time.Duration
	Host     string
	Port     int
	// Server is an externally owned handle closed by Kill, typically the page server.
	Server         io.Closer
	Threads        int
	Proxy          string
	ExecutablePath string
	Username       string
	URL            string
	// BrowserOutput receives the browser's stdout/stderr when ExecutablePath is set.
	BrowserOutput io.Writer
}

// TargetURL resolves the page address: COINHIVE_PUPPETEER_URL, then URL,
// then http://Host:Port.
func (o Options) TargetURL() string {
	return config.ResolveURL(os.Getenv(config.URLOverrideEnv), o.URL, o.Host, o.Port)
}

func (o Options) launchOptions() browser.LaunchOptions {
	return browser.LaunchOptions{
		Proxy:          o.Proxy,
		ExecutablePath: o.ExecutablePath,
		Output:         o.BrowserOutput,
	}
}

// Controller owns one browser and one page and exposes the page's mining API.
// All methods are safe for concurrent use; they are serialized internally.
type Controller struct {
	id       string
	opts     Options
	launcher browser.Launcher
	logger   *zap.Logger
	bus      *events.Bus

	mu          sync.Mutex
	browser     browser.Browser
	page        browser.Page
	exposed     map[string]bool // bridges registered on page
	initialized bool
	killed      bool
}

// New creates a controller. No browser is started until the first call.
func New(opts Options, launcher browser.Launcher, logger *zap.Logger) *Controller {
	id := uuid.NewString()
	logger = logger.Named("miner").With(zap.String("controller_id", id))
	return &Controller{
		id:       id,
		opts:     opts,
		launcher: launcher,
		logger:   logger,
		bus:      events.NewBus(logger, eventBufferSize),
	}
}

// ID identifies the controller in logs and stored samples.
func (c *Controller) ID() string { return c.id }

// Events returns the bus page events are published on.
func (c *Controller) Events() *events.Bus { return c.bus }

// Subscribe is shorthand for Events().Subscribe.
func (c *Controller) Subscribe(names ...string) (<-chan events.Event, func()) {
	return c.bus.Subscribe(names...)
}

// Killed reports whether Kill has run.
func (c *Controller) Killed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.killed
}

// Initialized reports whether the page has been loaded and initialized.
func (c *Controller) Initialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized
}

// acquireBrowser returns the current browser when it passes the liveness
// probe and launches a replacement otherwise. Callers hold c.mu.
func (c *Controller) acquireBrowser(ctx context.Context) (browser.Browser, error) {
	if c.browser != nil {
		_, err := c.browser.Version(ctx)
		if err == nil {
			return c.browser, nil
		}
		c.logger.Warn("Browser failed liveness probe, relaunching.", zap.Error(err))
		if err := c.browser.Close(ctx); err != nil {
			c.logger.Debug("Closing stale browser failed.", zap.Error(err))
		}
		c.browser = nil
	}

	b, err := c.launcher.Launch(ctx, c.opts.launchOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	c.browser = b
	return b, nil
}

// acquirePage returns the page, creating it on first use. Callers hold c.mu.
func (c *Controller) acquirePage(ctx context.Context) (browser.Page, error) {
	if c.page != nil {
		return c.page, nil
	}
	b, err := c.acquireBrowser(ctx)
	if err != nil {
		return nil, err
	}
	p, err := b.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	c.page = p
	c.exposed = make(map[string]bool)
	return p, nil
}

// Initialize loads the mining page, registers the bridges and calls
// window.init. It runs once; later calls return the same page.
func (c *Controller) Initialize(ctx context.Context) (browser.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initializeLocked(ctx)
}

func (c *Controller) initializeLocked(ctx context.Context) (browser.Page, error) {
	if c.killed {
		return nil, ErrKilled
	}
	if c.initialized {
		return c.page, nil
	}

	p, err := c.acquirePage(ctx)
	if err != nil {
		return nil, err
	}

	url := c.opts.TargetURL()
	c.logger.Info("Loading miner page.", zap.String("url", url))
	if err := p.Navigate(ctx, url); err != nil {
		return nil, err
	}

	if err := c.exposeLocked(ctx, p, bridgeEmit, c.onEmitMessage); err != nil {
		return nil, err
	}
	if err := c.exposeLocked(ctx, p, bridgeUpdate, c.onUpdate); err != nil {
		return nil, err
	}

	expr, err := initExpression(c.opts)
	if err != nil {
		return nil, err
	}
	if _, err := p.Evaluate(ctx, expr); err != nil {
		return nil, fmt.Errorf("window.init failed: %w", err)
	}

	c.initialized = true
	c.logger.Info("Miner page initialized.", zap.Int("threads", c.opts.Threads))
	return p, nil
}

// exposeLocked registers a bridge unless an earlier, failed initialization
// already did. Drivers keep bindings across navigations, so a second Expose
// would deliver every event twice.
func (c *Controller) exposeLocked(ctx context.Context, p browser.Page, name string, fn browser.BindingFunc) error {
	if c.exposed[name] {
		return nil
	}
	if err := p.Expose(ctx, name, fn); err != nil {
		return err
	}
	c.exposed[name] = true
	return nil
}

// Start calls window.start, initializing first when needed.
func (c *Controller) Start(ctx context.Context) (json.RawMessage, error) {
	return c.evaluate(ctx, "window.start()")
}

// Stop calls window.stop, initializing first when needed.
func (c *Controller) Stop(ctx context.Context) (json.RawMessage, error) {
	return c.evaluate(ctx, "window.stop()")
}

// Call invokes window.miner[method] with args and returns its result.
// Any method name is accepted.
func (c *Controller) Call(ctx context.Context, method string, args ...interface{}) (json.RawMessage, error) {
	expr, err := callExpression(method, args)
	if err != nil {
		return nil, err
	}
	return c.evaluate(ctx, expr)
}

func (c *Controller) evaluate(ctx context.Context, expr string) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, err := c.initializeLocked(ctx)
	if err != nil {
		return nil, err
	}
	res, err := p.Evaluate(ctx, expr)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", expr, err)
	}
	return res, nil
}

// Kill stops the miner, closes the browser and the attached server, then
// marks the controller dead. Every step runs even if an earlier one failed;
// failures are logged, never returned. Calling Kill again does nothing.
func (c *Controller) Kill(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.killed {
		return
	}

	if c.initialized {
		if _, err := c.page.Evaluate(ctx, "window.stop()"); err != nil {
			c.logger.Error("Failed to stop miner.", zap.Error(err))
		}
	}

	if c.browser != nil {
		if err := c.browser.Close(ctx); err != nil {
			c.logger.Error("Failed to close browser.", zap.Error(err))
		}
	}

	if c.opts.Server != nil {
		if err := c.opts.Server.Close(); err != nil {
			c.logger.Error("Failed to close server.", zap.Error(err))
		}
	}

	c.killed = true
	c.bus.Shutdown()
	c.logger.Info("Miner killed.")
}

func (c *Controller) onEmitMessage(args []json.RawMessage) {
	if len(args) == 0 {
		c.logger.Warn("emitMessage called without an event name.")
		return
	}
	var name string
	if err := jsonAPI.Unmarshal(args[0], &name); err != nil || name == "" {
		c.logger.Warn("emitMessage called with an invalid event name.", zap.ByteString("name", args[0]))
		return
	}
	c.bus.Publish(name, args[1:]...)
}

func (c *Controller) onUpdate(args []json.RawMessage) {
	c.bus.Publish(EventUpdate, args...)
}

type initParams struct {
	SiteKey  string `json:"siteKey"`
	Interval int64  `json:"interval"`
	Threads  int    `json:"threads"`
	Username string `json:"username"`
}

func initExpression(opts Options) (string, error) {
	params, err := jsonAPI.MarshalToString(initParams{
		SiteKey:  opts.SiteKey,
		Interval: opts.Interval.Milliseconds(),
		Threads:  opts.Threads,
		Username: opts.Username,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode init params: %w", err)
	}
	return "window.init(" + params + ")", nil
}

func callExpression(method string, args []interface{}) (string, error) {
	if args == nil {
		args = []interface{}{}
	}
	name, err := jsonAPI.MarshalToString(method)
	if err != nil {
		return "", fmt.Errorf("failed to encode method name: %w", err)
	}
	encoded, err := jsonAPI.MarshalToString(args)
	if err != nil {
		return "", fmt.Errorf("failed to encode arguments for %s: %w", method, err)
	}
	return fmt.Sprintf("window.miner[%s].apply(window.miner, %s)", name, encoded), nil
}
