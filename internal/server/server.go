// Package server hosts the mining page the controller loads, together with
// health and metrics endpoints.
package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"

	"github.com/xkilldash9x/minerctl/internal/config"
	"github.com/xkilldash9x/minerctl/internal/observability"
)

//go:embed assets
var assets embed.FS

var indexTemplate = template.Must(template.ParseFS(assets, "assets/index.html.tmpl"))

const shutdownTimeout = 5 * time.Second

// Server serves the mining page. It satisfies io.Closer so a controller can
// take ownership of it.
type Server struct {
	cfg     config.ServerConfig
	metrics *observability.Metrics
	logger  *zap.Logger
	router  *chi.Mux

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
	closed     bool
	closeErr   error
}

var _ io.Closer = (*Server)(nil)

// New builds the server and its routes. metrics may be nil.
func New(cfg config.ServerConfig, metrics *observability.Metrics, logger *zap.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		metrics: metrics,
		logger:  logger.Named("server"),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *chi.Mux {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(s.requestLogger)
	router.Use(newCompressor().Handler)

	router.Get("/", s.handleIndex)
	router.Get("/miner.js", s.handleScript)
	router.Get("/healthz", s.handleHealth)
	if s.cfg.Metrics && s.metrics != nil {
		router.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	return router
}

// newCompressor adds brotli next to chi's built in gzip and deflate encoders.
func newCompressor() *middleware.Compressor {
	c := middleware.NewCompressor(5, "text/html", "text/javascript", "application/javascript", "application/json", "text/plain")
	c.SetEncoder("br", func(w io.Writer, level int) io.Writer {
		return brotli.NewWriterLevel(w, level)
	})
	return c
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start binds host:port and serves in the background until ctx ends or
// Close is called. Bind errors are returned synchronously.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpServer != nil {
		return errors.New("server already started")
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	if s.cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConnections)
	}

	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		MaxHeaderBytes:    1 << 20,
	}

	srv := s.httpServer
	go func() {
		s.logger.Info("Serving miner page.", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Page server stopped unexpectedly.", zap.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		if err := s.Close(); err != nil {
			s.logger.Warn("Page server shutdown failed.", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts the server down. It is safe to call more than once.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpServer == nil || s.closed {
		return s.closeErr
	}
	s.closed = true

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.closeErr = s.httpServer.Shutdown(ctx)
	s.logger.Info("Page server stopped.")
	return s.closeErr
}

type indexData struct {
	Title          string
	MinerScriptURL string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := indexTemplate.Execute(w, indexData{Title: "minerctl", MinerScriptURL: s.cfg.MinerScriptURL})
	if err != nil {
		s.logger.Error("Failed to render index.", zap.Error(err))
	}
}

func (s *Server) handleScript(w http.ResponseWriter, r *http.Request) {
	body, err := assets.ReadFile("assets/miner.js")
	if err != nil {
		http.Error(w, "script unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(body)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("Request served.",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}
