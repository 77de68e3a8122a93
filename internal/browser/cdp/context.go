// internal/browser/cdp/context.go
package cdp

import (
	"context"

	"github.com/chromedp/chromedp"
)

// CombineContext creates a context derived from ctx1 that is also canceled
// when ctx2 is. Values (and so the chromedp target) come from ctx1, the
// deadline or cancellation of the operation comes from ctx2.
func CombineContext(ctx1, ctx2 context.Context) (context.Context, context.CancelFunc) {
	combinedCtx, cancel := context.WithCancel(ctx1)

	go func() {
		select {
		case <-ctx2.Done():
			cancel()
		case <-combinedCtx.Done():
		}
	}()

	return combinedCtx, cancel
}

// start performs the first Run on a fresh chromedp context. That Run
// allocates the browser or tab and binds it to target's lifetime, so it must
// not see ctx's deadline; ctx only bounds how long we wait.
func start(ctx, target context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- chromedp.Run(target)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run executes actions against the chromedp context owner, bounded by ctx.
func run(owner, ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(owner, ctx)
	defer cancel()

	return chromedp.Run(runCtx, actions...)
}
