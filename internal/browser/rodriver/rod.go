// Package rodriver implements the browser driver contract on top of go-rod.
package rodriver

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
	"go.uber.org/zap"

	"github.com/xkilldash9x/minerctl/internal/browser"
)

// Launcher starts Chromium through rod's launcher.
type Launcher struct {
	logger *zap.Logger
}

var _ browser.Launcher = (*Launcher)(nil)

// NewLauncher creates a rod backed launcher.
func NewLauncher(logger *zap.Logger) *Launcher {
	return &Launcher{logger: logger.Named("rod")}
}

// NewProcess builds the rod launcher for opts without starting it.
func NewProcess(opts browser.LaunchOptions) *launcher.Launcher {
	l := launcher.New().Headless(true)
	for _, f := range browser.ParseFlags(browser.LaunchArgs(opts)) {
		if f.IsBool() {
			l = l.Set(flags.Flag(f.Name))
		} else {
			l = l.Set(flags.Flag(f.Name), f.Value)
		}
	}
	if opts.ExecutablePath != "" {
		l = l.Bin(opts.ExecutablePath).Set(flags.Headless)
		if opts.Output != nil {
			l = l.Logger(opts.Output)
		}
	}
	return l
}

type launchResult struct {
	url string
	err error
}

// Launch starts and connects to a browser. ctx only bounds startup.
func (l *Launcher) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Browser, error) {
	proc := NewProcess(opts)
	l.logger.Info("Launching browser.",
		zap.String("proxy", opts.Proxy),
		zap.String("executable", opts.ExecutablePath))

	resCh := make(chan launchResult, 1)
	go func() {
		u, err := proc.Launch()
		resCh <- launchResult{url: u, err: err}
	}()

	var controlURL string
	select {
	case res := <-resCh:
		if res.err != nil {
			return nil, fmt.Errorf("failed to launch browser: %w", res.err)
		}
		controlURL = res.url
	case <-ctx.Done():
		proc.Kill()
		return nil, fmt.Errorf("browser launch aborted: %w", ctx.Err())
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		proc.Kill()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	return &Browser{browser: b, process: proc, logger: l.logger}, nil
}

// Browser wraps a connected rod browser and the process behind it.
type Browser struct {
	browser *rod.Browser
	process *launcher.Launcher
	logger  *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

var _ browser.Browser = (*Browser)(nil)

// Version probes the browser over the existing connection.
func (b *Browser) Version(ctx context.Context) (string, error) {
	res, err := b.browser.Context(ctx).Version()
	if err != nil {
		return "", fmt.Errorf("failed to query browser version: %w", err)
	}
	return res.Product, nil
}

// NewPage opens a blank tab.
func (b *Browser) NewPage(ctx context.Context) (browser.Page, error) {
	p, err := b.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	// Drop the creation context so the tab is not bound to it.
	return &Page{page: p.Context(context.Background()), logger: b.logger.Named("page")}, nil
}

// Close closes the browser and reaps the process.
func (b *Browser) Close(ctx context.Context) error {
	b.closeOnce.Do(func() {
		b.closeErr = b.browser.Context(ctx).Close()
		b.process.Kill()
		b.process.Cleanup()
		if b.closeErr == nil {
			b.logger.Info("Browser closed.")
		}
	})
	return b.closeErr
}

// Page wraps a rod page.
type Page struct {
	page   *rod.Page
	logger *zap.Logger
}

var _ browser.Page = (*Page)(nil)

// Navigate loads url and waits for the load event.
func (p *Page) Navigate(ctx context.Context, url string) error {
	page := p.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("failed waiting for %s to load: %w", url, err)
	}
	return nil
}

// Expose binds window[name] to fn for the current and all future documents.
func (p *Page) Expose(ctx context.Context, name string, fn browser.BindingFunc) error {
	page := p.page.Context(ctx)
	script := browser.BridgeScript(name)

	_, err := p.page.Expose(browser.BindingName(name), func(payload gson.JSON) (interface{}, error) {
		args, err := browser.DecodePayload(payload.Str())
		if err != nil {
			p.logger.Warn("Dropping malformed bridge call.", zap.String("bridge", name), zap.Error(err))
			return nil, nil
		}
		p.dispatch(name, fn, args)
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("failed to expose %q: %w", name, err)
	}
	if _, err := page.EvalOnNewDocument(script); err != nil {
		return fmt.Errorf("failed to register bridge %q: %w", name, err)
	}
	if _, err := evaluate(page, script); err != nil {
		return fmt.Errorf("failed to install bridge %q: %w", name, err)
	}
	return nil
}

func (p *Page) dispatch(name string, fn browser.BindingFunc, args []json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Bridge handler panicked.", zap.String("bridge", name), zap.Any("panic", r))
		}
	}()
	fn(args)
}

// Evaluate runs expression in the page and returns its JSON value.
func (p *Page) Evaluate(ctx context.Context, expression string) (json.RawMessage, error) {
	res, err := evaluate(p.page.Context(ctx), expression)
	if err != nil {
		return nil, err
	}
	if res == nil || res.Type == proto.RuntimeRemoteObjectTypeUndefined {
		return nil, nil
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to encode evaluation result: %w", err)
	}
	return json.RawMessage(raw), nil
}

// evaluate sends expression as a plain Runtime.evaluate. rod.Eval would wrap
// it in a function and apply the result, which only works for function
// literals.
func evaluate(page *rod.Page, expression string) (*proto.RuntimeRemoteObject, error) {
	res, err := proto.RuntimeEvaluate{
		Expression:    expression,
		ReturnByValue: true,
		AwaitPromise:  true,
		UserGesture:   true,
	}.Call(page)
	if err != nil {
		return nil, err
	}
	if res.ExceptionDetails != nil {
		return nil, fmt.Errorf("evaluation failed: %s", exceptionText(res.ExceptionDetails))
	}
	return res.Result, nil
}

func exceptionText(d *proto.RuntimeExceptionDetails) string {
	if d.Exception != nil && d.Exception.Description != "" {
		return d.Exception.Description
	}
	return d.Text
}

// Close closes the tab.
func (p *Page) Close(ctx context.Context) error {
	return p.page.Context(ctx).Close()
}
