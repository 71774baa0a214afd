package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"trade-reconciliation/internal/api"
	"trade-reconciliation/internal/workflow"
)

func serveCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the SLA sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cache, err := api.NewCache(1<<16, a.cfg.HTTP.CacheTTL)
			if err != nil {
				return err
			}
			defer cache.Close()

			sweeper := workflow.NewSweeper(a.workflow, a.cfg.Workflow.SweepInterval, a.logger).
				OnSweep(func(res workflow.SweepResult) { cache.InvalidateReports(res.TradeDates...) })
			go sweeper.Start(ctx)

			srv := api.NewServer(a.recon, a.queries, a.workflow, cache, a.cfg.HTTP, a.logger)
			a.logger.Info("reconciler starting", zap.String("addr", a.cfg.HTTP.Addr))
			return srv.ListenAndServe(ctx, a.cfg.HTTP.Addr)
		},
	}
	return cmd
}
