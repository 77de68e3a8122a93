// Package cdp implements the browser driver contract on top of chromedp.
package cdp

import (
	"context"
	"fmt"
	"sync"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	cdpexec "github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/minerctl/internal/browser"
)

// Launcher starts Chromium processes through a chromedp ExecAllocator.
type Launcher struct {
	logger *zap.Logger
}

var _ browser.Launcher = (*Launcher)(nil)

// NewLauncher creates a chromedp backed launcher.
func NewLauncher(logger *zap.Logger) *Launcher {
	return &Launcher{logger: logger.Named("chromedp")}
}

// AllocatorOptions converts the launch flags into chromedp allocator options.
func AllocatorOptions(opts browser.LaunchOptions) []chromedp.ExecAllocatorOption {
	flags := browser.ParseFlags(browser.LaunchArgs(opts))
	allocOpts := make([]chromedp.ExecAllocatorOption, 0, len(flags)+3)

	for _, f := range flags {
		if f.IsBool() {
			allocOpts = append(allocOpts, chromedp.Flag(f.Name, true))
		} else {
			allocOpts = append(allocOpts, chromedp.Flag(f.Name, f.Value))
		}
	}

	if opts.ExecutablePath != "" {
		allocOpts = append(allocOpts,
			chromedp.ExecPath(opts.ExecutablePath),
			chromedp.Flag("headless", true),
		)
		if opts.Output != nil {
			allocOpts = append(allocOpts, chromedp.CombinedOutput(opts.Output))
		}
	}
	return allocOpts
}

// Launch starts a browser. The process outlives ctx; ctx only bounds startup.
func (l *Launcher) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Browser, error) {
	l.logger.Info("Launching browser.",
		zap.String("proxy", opts.Proxy),
		zap.String("executable", opts.ExecutablePath))

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), AllocatorOptions(opts)...)

	sugar := l.logger.Sugar()
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Errorf),
	)

	if err := start(ctx, browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	return &Browser{
		ctx:         browserCtx,
		cancel:      browserCancel,
		allocCancel: allocCancel,
		logger:      l.logger,
	}, nil
}

// Browser is a running Chromium process owned by a chromedp context.
type Browser struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	logger      *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

var _ browser.Browser = (*Browser)(nil)

// Version asks the browser for its product string over the browser session.
func (b *Browser) Version(ctx context.Context) (string, error) {
	if err := b.ctx.Err(); err != nil {
		return "", fmt.Errorf("browser context closed: %w", err)
	}
	c := chromedp.FromContext(b.ctx)
	if c == nil || c.Browser == nil {
		return "", fmt.Errorf("browser not started")
	}

	runCtx, cancel := CombineContext(b.ctx, ctx)
	defer cancel()

	_, product, _, _, _, err := cdpbrowser.GetVersion().Do(cdpexec.WithExecutor(runCtx, c.Browser))
	if err != nil {
		return "", fmt.Errorf("failed to query browser version: %w", err)
	}
	return product, nil
}

// NewPage opens a new tab.
func (b *Browser) NewPage(ctx context.Context) (browser.Page, error) {
	pageCtx, cancel := chromedp.NewContext(b.ctx)
	if err := start(ctx, pageCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	return &Page{ctx: pageCtx, cancel: cancel, logger: b.logger.Named("page")}, nil
}

// Close shuts the browser down gracefully, then releases the allocator which
// kills the process if it is still around.
func (b *Browser) Close(ctx context.Context) error {
	b.closeOnce.Do(func() {
		done := make(chan error, 1)
		go func() {
			done <- chromedp.Cancel(b.ctx)
		}()

		select {
		case b.closeErr = <-done:
		case <-ctx.Done():
			b.closeErr = fmt.Errorf("browser close interrupted: %w", ctx.Err())
		}
		b.cancel()
		b.allocCancel()
		if b.closeErr == nil {
			b.logger.Info("Browser closed.")
		}
	})
	return b.closeErr
}
