// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/stretchr/testify/mock"
	"github.com/xkilldash9x/minerctl/internal/browser"
	"github.com/xkilldash9x/minerctl/internal/config"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

// --- Getters ---

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Browser() config.BrowserConfig {
	args := m.Called()
	return args.Get(0).(config.BrowserConfig)
}

func (m *MockConfig) Miner() config.MinerConfig {
	args := m.Called()
	return args.Get(0).(config.MinerConfig)
}

func (m *MockConfig) Server() config.ServerConfig {
	args := m.Called()
	return args.Get(0).(config.ServerConfig)
}

func (m *MockConfig) Store() config.StoreConfig {
	args := m.Called()
	return args.Get(0).(config.StoreConfig)
}

// --- Setters ---

func (m *MockConfig) SetBrowserDriver(d string)         { m.Called(d) }
func (m *MockConfig) SetBrowserExecutablePath(p string) { m.Called(p) }
func (m *MockConfig) SetBrowserProxy(p string)          { m.Called(p) }
func (m *MockConfig) SetMinerSiteKey(k string)          { m.Called(k) }
func (m *MockConfig) SetMinerThreads(n int)             { m.Called(n) }
func (m *MockConfig) SetMinerUsername(u string)         { m.Called(u) }
func (m *MockConfig) SetMinerURL(u string)              { m.Called(u) }

// -- Browser Driver Mocks --

// MockLauncher mocks browser.Launcher.
type MockLauncher struct {
	mock.Mock
}

func (m *MockLauncher) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Browser, error) {
	args := m.Called(ctx, opts)
	if b, ok := args.Get(0).(browser.Browser); ok {
		return b, args.Error(1)
	}
	return nil, args.Error(1)
}

// MockBrowser mocks browser.Browser.
type MockBrowser struct {
	mock.Mock
}

func (m *MockBrowser) Version(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockBrowser) NewPage(ctx context.Context) (browser.Page, error) {
	args := m.Called(ctx)
	if p, ok := args.Get(0).(browser.Page); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBrowser) Close(ctx context.Context) error { return m.Called(ctx).Error(0) }

// MockPage mocks browser.Page. Bindings passed to Expose are kept so tests
// can play the page's side of a bridge with Fire.
type MockPage struct {
	mock.Mock
	mu       sync.Mutex
	bindings map[string]browser.BindingFunc
}

// NewMockPage creates a MockPage ready to record bindings.
func NewMockPage() *MockPage {
	return &MockPage{bindings: make(map[string]browser.BindingFunc)}
}

func (m *MockPage) Navigate(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

func (m *MockPage) Expose(ctx context.Context, name string, fn browser.BindingFunc) error {
	args := m.Called(ctx, name, fn)
	if args.Error(0) == nil {
		m.mu.Lock()
		if m.bindings == nil {
			m.bindings = make(map[string]browser.BindingFunc)
		}
		m.bindings[name] = fn
		m.mu.Unlock()
	}
	return args.Error(0)
}

func (m *MockPage) Evaluate(ctx context.Context, expression string) (json.RawMessage, error) {
	args := m.Called(ctx, expression)
	var res json.RawMessage
	switch v := args.Get(0).(type) {
	case json.RawMessage:
		res = v
	case string:
		res = json.RawMessage(v)
	}
	return res, args.Error(1)
}

func (m *MockPage) Close(ctx context.Context) error { return m.Called(ctx).Error(0) }

// Fire invokes the binding exposed under name as if page code had called it.
// It reports false when nothing was exposed under that name.
func (m *MockPage) Fire(name string, args ...json.RawMessage) bool {
	m.mu.Lock()
	fn, ok := m.bindings[name]
	m.mu.Unlock()
	if !ok {
		return false
	}
	fn(args)
	return true
}

// -- io.Closer Mock --

// MockCloser mocks an io.Closer such as the page server handle.
type MockCloser struct {
	mock.Mock
}

func (m *MockCloser) Close() error { return m.Called().Error(0) }
