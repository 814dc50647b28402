package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/genre-analyzer/internal/app"
	"github.com/JakeFAU/genre-analyzer/internal/config"
	"github.com/JakeFAU/genre-analyzer/internal/logging"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service and the analysis worker pool.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development, zap.String("version", version))
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer func() {
				if syncErr := logging.Sync(logger); syncErr != nil {
					fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
				}
			}()
			zap.ReplaceGlobals(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			application, err := app.New(ctx, cfg, logger)
			if err != nil {
				logger.Error("application init failed", zap.Error(err))
				return fmt.Errorf("init application: %w", err)
			}
			defer application.Close()

			return application.Run(ctx)
		},
	}
}

