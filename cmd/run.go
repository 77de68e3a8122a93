package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/minerctl/internal/chromelog"
	"github.com/xkilldash9x/minerctl/internal/config"
	"github.com/xkilldash9x/minerctl/internal/observability"
	"github.com/xkilldash9x/minerctl/internal/store"
)

func newRunCmd() *cobra.Command {
	var noServer bool

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Start mining and relay page events until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := configFromContext(ctx)
			if err != nil {
				return err
			}
			logger := observability.GetLogger()

			sess, err := openSession(ctx, cfg, logger, !noServer)
			if err != nil {
				return err
			}
			defer sess.close()

			r := &relay{
				controllerID: sess.ctrl.ID(),
				logger:       logger.Named("events"),
				metrics:      sess.metrics,
				updateLog:    newUpdateLimiter(cfg),
			}

			if cfg.Store().Enabled() {
				st, closeStore, err := store.Open(ctx, cfg.Store().PostgresURL, logger)
				if err != nil {
					return err
				}
				defer closeStore()
				if err := st.EnsureSchema(ctx); err != nil {
					return err
				}
				r.recorder = st
			}

			return runMiner(ctx, sess, r)
		},
	}

	addMinerFlags(runCmd)
	runCmd.Flags().BoolVar(&noServer, "no-server", false, "do not start the page server (use with --url)")
	runCmd.Flags().Bool("tail-debug-log", false, "relay chrome_debug.log into the log at debug level")
	runCmd.Flags().String("postgres-url", "", "store update samples in this PostgreSQL database")
	return runCmd
}

func newUpdateLimiter(cfg *config.Config) *rate.Limiter {
	every := cfg.Miner().UpdateLogInterval
	if every <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(every), 1)
}

// runMiner starts the miner and keeps relaying events until ctx ends or a
// worker fails.
func runMiner(ctx context.Context, sess *session, r *relay) error {
	cfg := sess.cfg
	logger := sess.logger

	g, gctx := errgroup.WithContext(ctx)

	evs, unsubscribe := sess.ctrl.Subscribe()
	defer unsubscribe()
	g.Go(func() error { return r.run(gctx, evs) })

	if cfg.Browser().TailDebugLog {
		g.Go(func() error {
			if err := chromelog.Follow(gctx, cfg.Browser().DebugLogPath, logger); err != nil {
				logger.Warn("Browser log relay stopped.", zap.Error(err))
			}
			return nil
		})
	}

	g.Go(func() error {
		startCtx, cancel := withTimeout(gctx, firstCallTimeout(cfg))
		defer cancel()
		if _, err := sess.ctrl.Start(startCtx); err != nil {
			return fmt.Errorf("failed to start miner: %w", err)
		}
		logger.Info("Miner running. Press Ctrl+C to stop.",
			zap.String("controller_id", sess.ctrl.ID()),
			zap.String("url", cfg.TargetURL()))
		<-gctx.Done()
		return nil
	})

	err := g.Wait()
	logger.Info("Shutting down miner.")
	return err
}
