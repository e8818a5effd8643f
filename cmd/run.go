package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"mod-update-notifier/logger"
	"mod-update-notifier/server"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// runCmd represents the daemon
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Polls the portal and sends notifications until interrupted",
	Long: `Runs an update cycle every POLL_INTERVAL. When HTTP_ADDR is set a status
server exposes /healthz, /v1/report, /v1/cycle and /metrics.`,
	Run: func(cmd *cobra.Command, args []string) {
		runDaemon()
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runDaemon() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := bootstrap(configDir, true)
	defer a.Close()

	logger.Log.Infow("Starting notifier",
		zap.String("portal", a.cfg.PortalURL),
		zap.Duration("interval", a.cfg.PollInterval),
		zap.Bool("run_on_start", a.cfg.RunOnStart),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.scheduler.Run(ctx)
		return nil
	})
	if addr := a.cfg.HTTPAddr; addr != "" {
		g.Go(func() error {
			router := server.Router(ctx, a.engine, a.scheduler, a.metrics)
			return server.Serve(ctx, addr, router, logger.Log.Named("server"))
		})
	}

	if err := g.Wait(); err != nil {
		logger.Log.Errorw("Notifier stopped with error", zap.Error(err))
		return
	}
	logger.Log.Info("Notifier stopped")
}
