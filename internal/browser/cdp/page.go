package cdp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/minerctl/internal/browser"
)

// Page is a chromedp tab.
type Page struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
}

var _ browser.Page = (*Page)(nil)

// Navigate loads url and waits for the load event.
func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := run(p.ctx, ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// Expose binds window[name] to fn for the current and all future documents.
func (p *Page) Expose(ctx context.Context, name string, fn browser.BindingFunc) error {
	binding := browser.BindingName(name)
	script := browser.BridgeScript(name)

	chromedp.ListenTarget(p.ctx, func(ev interface{}) {
		called, ok := ev.(*runtime.EventBindingCalled)
		if !ok || called.Name != binding {
			return
		}
		args, err := browser.DecodePayload(called.Payload)
		if err != nil {
			p.logger.Warn("Dropping malformed bridge call.", zap.String("bridge", name), zap.Error(err))
			return
		}
		p.dispatch(name, fn, args)
	})

	err := run(p.ctx, ctx,
		runtime.AddBinding(binding),
		chromedp.ActionFunc(func(c context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(script).Do(c)
			return err
		}),
		chromedp.Evaluate(script, nil),
	)
	if err != nil {
		return fmt.Errorf("failed to expose %q: %w", name, err)
	}
	return nil
}

// dispatch invokes a bridge handler, keeping a panic inside it from taking
// down the chromedp event loop.
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
	var res *runtime.RemoteObject
	err := run(p.ctx, ctx, chromedp.Evaluate(expression, &res,
		chromedp.EvalAsValue,
		func(params *runtime.EvaluateParams) *runtime.EvaluateParams {
			return params.WithAwaitPromise(true)
		},
	))
	if err != nil {
		return nil, err
	}
	if res == nil || res.Type == runtime.TypeUndefined || len(res.Value) == 0 {
		return nil, nil
	}
	out := make(json.RawMessage, len(res.Value))
	copy(out, res.Value)
	return out, nil
}

// Close closes the tab.
func (p *Page) Close(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		done <- chromedp.Cancel(p.ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		p.cancel()
		return ctx.Err()
	}
}
