package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"campuscal/internal/ics"
	appLog "campuscal/internal/log"
	"campuscal/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "serve the HTTP API and refresh ICS subscriptions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
			cfg.Listen = listen
		}

		appLog.Info("campuscal starting", "version", version)
		appLog.Info("effective config",
			"listen", cfg.Listen,
			"timezone", cfg.Timezone,
			"week_start", cfg.WeekStart,
			"refresh", cfg.RefreshCron,
			"max_occurrences", cfg.MaxOccurrences,
			"clubs", len(cfg.Clubs),
			"ics_count", len(cfg.ICS),
		)

		// Root context with cancellation on SIGINT/SIGTERM.
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			sig := <-sigCh
			appLog.Info("signal received, shutting down", "signal", sig.String())
			cancel()
		}()

		eng := newEngine(cfg)
		sub := ics.NewSubscriber(
			ics.NewFetcher(cfg.CacheDir),
			ics.NewImporter(eng),
			sourcesFromConfig(cfg),
			cfg.Location(),
		)
		if err := sub.Start(ctx, cfg.RefreshCron); err != nil {
			return err
		}

		if err := web.StartServer(ctx, cfg, eng); err != nil {
			return err
		}
		appLog.Info("campuscal exiting")
		return nil
	},
}

func init() {
	serveCmd.Flags().String("listen", "", "HTTP listen address (overrides config if set)")
}
