// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vortice Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/transer/vortice/internal/auth"
	"github.com/transer/vortice/internal/auth/postgres"
	"github.com/transer/vortice/internal/config"
	"github.com/transer/vortice/internal/observability"
	"github.com/transer/vortice/internal/store"
	"github.com/transer/vortice/pkg/errutil"
)

// Matches the original deployment's nightly cleanup window.
const defaultSweepSchedule = "0 2 * * *"

// NewSweepCmd creates the sweep subcommand.
func NewSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired refresh and reset tokens",
		Long: `Delete refresh tokens and password reset tokens whose expiry has passed.
Runs once and exits by default; with --schedule it runs as a daemon under the
given cron expression until interrupted.`,
		RunE: runSweep,
	}
	cmd.Flags().String("database.url", "", "PostgreSQL connection URL")
	cmd.Flags().String("schedule", "", "cron expression for daemon mode (e.g. \"0 2 * * *\")")
	cmd.Flags().Lookup("schedule").NoOptDefVal = defaultSweepSchedule
	return cmd
}

func runSweep(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	pool, err := store.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	schedule, err := cmd.Flags().GetString("schedule")
	if err != nil {
		return oops.Wrap(err)
	}

	if schedule == "" {
		metrics := auth.NewMetrics(nil)
		deleted, err := sweepOnce(ctx, pool, cfg, metrics)
		if err != nil {
			return err
		}
		cmd.Printf("Deleted %d expired tokens\n", deleted)
		return nil
	}

	return runSweepDaemon(ctx, pool, cfg, schedule)
}

// sweepOnce deletes expired tokens of both kinds and returns the total count.
func sweepOnce(ctx context.Context, pool *pgxpool.Pool, cfg config.Config, metrics *auth.Metrics) (int64, error) {
	now := time.Now()

	refreshSvc := auth.NewRefreshTokenService(
		postgres.NewRefreshTokenRepository(pool), cfg.Auth.RefreshTokenTTL, metrics, nil)
	resetSvc := auth.NewPasswordResetService(
		postgres.NewPasswordResetRepository(pool), cfg.Auth.ResetTokenTTL, metrics, nil)

	refreshDeleted, err := refreshSvc.SweepExpired(ctx, now)
	if err != nil {
		return 0, err
	}
	resetDeleted, err := resetSvc.SweepExpired(ctx, now)
	if err != nil {
		return refreshDeleted, err
	}
	return refreshDeleted + resetDeleted, nil
}

// runSweepDaemon runs the sweep under a cron schedule with the observability
// server exposing sweep metrics, until SIGINT or SIGTERM.
func runSweepDaemon(ctx context.Context, pool *pgxpool.Pool, cfg config.Config, schedule string) error {
	obs := observability.NewServer(cfg.Observability.Addr, func() bool {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return pool.Ping(pingCtx) == nil
	})
	metrics := auth.NewMetrics(obs.Registry())

	obsErrCh, err := obs.Start()
	if err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = obs.Stop(stopCtx) //nolint:errcheck // shutdown is best-effort
	}()

	scheduler := cron.New()
	_, err = scheduler.AddFunc(schedule, func() {
		deleted, sweepErr := sweepOnce(ctx, pool, cfg, metrics)
		if sweepErr != nil {
			errutil.LogError(slog.Default(), "scheduled sweep failed", sweepErr)
			return
		}
		slog.Info("scheduled sweep completed", "deleted", deleted)
	})
	if err != nil {
		return oops.Code("SWEEP_SCHEDULE_INVALID").
			With("schedule", schedule).
			Wrap(err)
	}

	scheduler.Start()
	defer scheduler.Stop()
	slog.Info("sweep daemon started", "schedule", schedule)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig.String())
		return nil
	case err := <-obsErrCh:
		if err != nil {
			return oops.With("component", "observability server").Wrap(err)
		}
		return nil
	case <-ctx.Done():
		return nil
	}
}
