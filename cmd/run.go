package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/desertthunder/tfx/internal/formatter"
	"github.com/desertthunder/tfx/internal/server"
	"github.com/desertthunder/tfx/internal/shared"
	"github.com/urfave/cli/v3"
)

// Run recovers interrupted work and runs the scheduler until SIGINT/SIGTERM, or with --once
// until no stage can claim anything. A status summary is printed when it stops.
func (r *Runner) Run(ctx context.Context, cmd *cli.Command) error {
	s, err := r.openStore()
	if err != nil {
		return err
	}
	remote, err := r.openRemote(ctx)
	if err != nil {
		return err
	}

	paths := r.config.Paths
	if err := shared.EnsureDirs(paths.Downloads, paths.Extract, paths.Library); err != nil {
		return fmt.Errorf("failed to create working directories: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scheduler := r.newScheduler(s, remote, nil)
	if _, _, err := scheduler.Recover(); err != nil {
		return err
	}

	if cmd.Bool("metrics") || r.config.Server.Enabled {
		srv := server.NewServer(r.config.Server.Addr(), server.NewPipelineRouter(s.report, scheduler.IsRunning, r.logger), r.logger)
		if err := srv.Start(); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				r.logger.Warn("error shutting down server", "error", err)
			}
		}()
	}

	start := time.Now()
	if cmd.Bool("once") {
		r.logger.Info("draining pipeline", "tick", r.config.Pipeline.Tick())
		if err := scheduler.Drain(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	} else {
		if err := scheduler.Start(ctx); err != nil {
			return err
		}
		r.logger.Info("pipeline running, press Ctrl+C to stop")
		<-ctx.Done()
		scheduler.Stop()
		r.logger.Info("stopping, waiting for running units")
		scheduler.Wait()
	}
	r.logger.Info("pipeline stopped", "elapsed", time.Since(start).Round(time.Millisecond))

	report, err := s.report()
	if err != nil {
		return err
	}
	data, err := formatter.ExportToText(report, false)
	if err != nil {
		return err
	}
	_, err = r.output.Write(data)
	return err
}
