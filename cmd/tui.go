package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/tfx/internal/shared"
	"github.com/desertthunder/tfx/internal/tasks"
	"github.com/desertthunder/tfx/internal/ui"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"
)

// progressBuffer bounds the updates queued between the scheduler and the monitor.
// [tasks.ChannelSink] drops updates while it is full.
const progressBuffer = 512

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Watch runs the scheduler under the bubbletea monitor. Stage limits can be changed and the
// scheduler paused from the monitor; leaving it stops the scheduler and waits for running units.
func (r *Runner) Watch(ctx context.Context, cmd *cli.Command) error {
	if !isTerminal(r.output) {
		return fmt.Errorf("%w: watch needs an interactive terminal, use `tfx run` instead", shared.ErrInvalidArgument)
	}

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

	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger(cmd.String("log"))
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM)
	defer stop()

	updates := make(chan tasks.ProgressUpdate, progressBuffer)
	scheduler := r.newScheduler(s, remote, tasks.NewChannelSink(updates))
	if _, _, err := scheduler.Recover(); err != nil {
		return err
	}

	if !cmd.Bool("paused") {
		if err := scheduler.Start(ctx); err != nil {
			return err
		}
	}
	defer func() {
		scheduler.Stop()
		scheduler.Wait()
		r.logger.Info("monitor closed, scheduler stopped")
	}()

	model := ui.NewModel(ctx, scheduler, s.report, updates)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
