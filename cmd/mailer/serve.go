package main

import (
	"github.com/kursadbilgin/mailrunner/internal/config"
	"github.com/kursadbilgin/mailrunner/internal/observability"
	"github.com/spf13/cobra"
)

func newServeCommand(rt *runtimeState) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve health, metrics and the run history API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadServer()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.MetricsPort = port
			}

			logger, err := rt.newLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			b := openBackends(cmd.Context(), backendOptions{
				databaseDSN: cfg.DatabaseDSN,
				redisURL:    cfg.RedisURL,
			}, logger)
			defer b.Close(logger)

			app, err := newStatusApp(logger, observability.NewMetrics(), b.history(), b.checks...)
			if err != nil {
				return err
			}
			return serveStatus(cmd.Context(), app, cfg.MetricsPort, logger)
		},
	}

	cmd.Flags().IntVar(&port, "port", 9090, "Listen port (default METRICS_PORT)")

	return cmd
}
