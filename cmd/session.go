package cmd

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/minerctl/internal/config"
	"github.com/xkilldash9x/minerctl/internal/miner"
	"github.com/xkilldash9x/minerctl/internal/observability"
	"github.com/xkilldash9x/minerctl/internal/server"
)

const defaultKillTimeout = 30 * time.Second

// session is the controller plus the page server it owns.
type session struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *observability.Metrics
	server  *server.Server
	ctrl    *miner.Controller
}

// openSession starts the page server when enabled and builds a controller
// that takes ownership of it.
func openSession(ctx context.Context, cfg *config.Config, logger *zap.Logger, withServer bool) (*session, error) {
	s := &session{cfg: cfg, logger: logger, metrics: observability.NewMetrics()}

	var closer io.Closer
	if withServer && cfg.Server().Enabled {
		s.server = server.New(cfg.Server(), s.metrics, logger)
		if err := s.server.Start(ctx); err != nil {
			return nil, err
		}
		closer = s.server
	}

	ctrl, err := newController(cfg, closer, logger)
	if err != nil {
		if s.server != nil {
			_ = s.server.Close()
		}
		return nil, err
	}
	s.ctrl = ctrl
	return s, nil
}

// close kills the controller, which also closes the page server. It does
// not use the caller's context so it still runs after an interrupt.
func (s *session) close() {
	timeout := s.cfg.Browser().EvalTimeout
	if timeout <= 0 {
		timeout = defaultKillTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	s.ctrl.Kill(ctx)
}
