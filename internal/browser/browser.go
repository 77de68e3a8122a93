// Package browser defines the driver contract the miner controller uses to
// run a headless browser, plus the launch flags and bridge script shared by
// every driver implementation.
package browser

import (
	"context"
	"encoding/json"
	"io"
)

// BindingFunc receives the arguments a page passed to an exposed bridge, one
// raw JSON value per positional argument. It runs on the driver's event
// goroutine and must not block.
type BindingFunc func(args []json.RawMessage)

// Launcher starts browser processes.
type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (Browser, error)
}

// Browser is a handle to a running browser process.
type Browser interface {
	// Version is the liveness probe: it fails when the process is gone.
	Version(ctx context.Context) (string, error)
	NewPage(ctx context.Context) (Page, error)
	Close(ctx context.Context) error
}

// Page is a single tab inside a Browser.
type Page interface {
	Navigate(ctx context.Context, url string) error
	// Expose makes window[name](...args) call fn on the host, in the current
	// document and in every document loaded afterwards.
	Expose(ctx context.Context, name string, fn BindingFunc) error
	// Evaluate runs expression, awaiting it when it yields a promise, and
	// returns the JSON encoded result. An undefined result is returned as nil.
	Evaluate(ctx context.Context, expression string) (json.RawMessage, error)
	Close(ctx context.Context) error
}

// LaunchOptions are the per-launch knobs layered over the fixed flag set.
type LaunchOptions struct {
	// Proxy becomes --proxy-server, placed before every other flag.
	Proxy string
	// ExecutablePath selects a custom browser binary. When set the browser
	// runs headless and its stdout/stderr is copied to Output.
	ExecutablePath string
	Output         io.Writer
}

// DumpOutput reports whether the browser's own output should be captured.
func (o LaunchOptions) DumpOutput() bool {
	return o.ExecutablePath != "" && o.Output != nil
}
