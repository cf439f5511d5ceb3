package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/tfx/internal/catalog"
	"github.com/desertthunder/tfx/internal/shared"
	"github.com/urfave/cli/v3"
)

// ExportCatalog writes every media record, or those captured since --since, to a parquet file.
func (r *Runner) ExportCatalog(ctx context.Context, cmd *cli.Command) error {
	criteria := map[string]any{}
	if since := cmd.String("since"); since != "" {
		t, err := time.Parse("2006-01-02", since)
		if err != nil {
			return fmt.Errorf("%w: --since wants YYYY-MM-DD, got %q", shared.ErrInvalidArgument, since)
		}
		criteria["since"] = t
	}

	s, err := r.openStore()
	if err != nil {
		return err
	}

	records, err := s.records.List(criteria)
	if err != nil {
		return err
	}

	path := cmd.String("output")
	n, err := catalog.Export(path, records, r.logger)
	if err != nil {
		return err
	}

	return r.writePlain("✓ Exported %d media records to %s\n", n, path)
}

// ExportInspect prints the rows of a catalog file as JSON.
func (r *Runner) ExportInspect(ctx context.Context, cmd *cli.Command) error {
	rows, err := catalog.Read(cmd.StringArg("path"))
	if err != nil {
		return err
	}

	total := len(rows)
	if limit := int(cmd.Int("limit")); limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}

	r.logger.Debug("catalog read", "rows", total, "shown", len(rows))
	return r.writeJSON(rows, true)
}
