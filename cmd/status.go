package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/tfx/internal/formatter"
	"github.com/desertthunder/tfx/internal/models"
	"github.com/urfave/cli/v3"
)

// Status renders entity counts and failures in the --format of choice.
func (r *Runner) Status(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	s, err := r.openStore()
	if err != nil {
		return err
	}

	failedOnly := cmd.Bool("failed")

	var data []byte
	if format == formatter.FormatTree {
		tree, err := r.archiveTree(s, failedOnly)
		if err != nil {
			return err
		}
		data = []byte(tree)
	} else {
		report, err := s.report()
		if err != nil {
			return err
		}
		if data, err = formatter.Render(report, format, failedOnly); err != nil {
			return err
		}
	}

	if path := cmd.String("output"); path != "" {
		if err := formatter.WriteReport(path, data); err != nil {
			return err
		}
		r.logger.Info("status report written", "path", path, "format", format)
		return nil
	}

	_, err = r.output.Write(data)
	return err
}

// archiveTree loads every archive with its entries and renders them as a tree.
func (r *Runner) archiveTree(s *store, failedOnly bool) (string, error) {
	archives, err := s.archives.List(nil)
	if err != nil {
		return "", err
	}

	entries := make(map[string][]*models.FileEntry, len(archives))
	for _, a := range archives {
		list, err := s.files.List(map[string]any{"archive_id": a.ID()})
		if err != nil {
			return "", fmt.Errorf("failed to list entries of %s: %w", a.DisplayName(), err)
		}
		entries[a.ID()] = list
	}

	return formatter.ArchiveTree(archives, entries, failedOnly), nil
}
