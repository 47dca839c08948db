package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"serialarr/internal/scheduler"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the acquisition scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			lock := flock.New(app.cfg.DatabasePath + ".lock")
			locked, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("failed to acquire instance lock: %w", err)
			}
			if !locked {
				return fmt.Errorf("another serialarr instance is already running")
			}
			defer lock.Unlock()

			slog.Info("Starting serialarr", "database", app.cfg.DatabasePath, "library", app.cfg.LibraryPath)

			// Claims left behind by a previous run are released so their
			// episodes become eligible again.
			reclaimed, err := app.db.ReclaimStaleClaims()
			if err != nil {
				return fmt.Errorf("failed to reclaim stale claims: %w", err)
			}
			if reclaimed > 0 {
				slog.Info("Released stale episode claims", "count", reclaimed)
			}

			sched := scheduler.New()
			tasks := []scheduler.Task{
				{
					Name:     "updateSweep",
					Interval: app.cfg.UpdateInterval(),
					WarmUp:   20 * time.Second,
					Run:      app.service.CheckAllMonitored,
				},
				{
					Name:         "downloadDrain",
					Interval:     app.cfg.DrainInterval(),
					SingleFlight: true,
					Run:          app.processor.Drain,
				},
				{
					Name:     "metadataBackfill",
					Interval: app.cfg.MetadataBackfillInterval(),
					WarmUp:   10 * time.Second,
					Run:      app.service.FillMissingMetadata,
				},
				{
					Name:     "historyPrune",
					Interval: 24 * time.Hour,
					Run: func(context.Context) error {
						return app.db.DeleteOldHistory(app.cfg.HistoryRetention())
					},
				},
			}
			for _, task := range tasks {
				if err := sched.Add(task); err != nil {
					return fmt.Errorf("failed to register task: %w", err)
				}
			}

			sched.Start(ctx)
			<-ctx.Done()
			slog.Info("Received shutdown signal")
			sched.Stop()

			return nil
		},
	}
}
