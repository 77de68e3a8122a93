package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/minerctl/internal/observability"
	"github.com/xkilldash9x/minerctl/internal/server"
)

func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the miner page without driving a browser",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := configFromContext(ctx)
			if err != nil {
				return err
			}
			logger := observability.GetLogger()

			srv := server.New(cfg.Server(), observability.NewMetrics(), logger)
			if err := srv.Start(ctx); err != nil {
				return err
			}
			logger.Info("Page server running. Press Ctrl+C to stop.", zap.String("addr", srv.Addr()))

			<-ctx.Done()
			return srv.Close()
		},
	}
	serveCmd.Flags().String("host", "", "page server host")
	serveCmd.Flags().Int("port", 0, "page server port")
	return serveCmd
}
