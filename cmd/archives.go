package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/desertthunder/tfx/internal/models"
	"github.com/desertthunder/tfx/internal/shared"
	"github.com/urfave/cli/v3"
)

// folderID returns --folder, falling back to remote.folder_id.
func (r *Runner) folderID(cmd *cli.Command) (string, error) {
	folder := cmd.String("folder")
	if folder == "" {
		folder = r.config.Remote.FolderID
	}
	if folder == "" || strings.HasPrefix(folder, "your_") {
		return "", fmt.Errorf("%w: --folder or remote.folder_id", shared.ErrMissingArgument)
	}
	return folder, nil
}

// ArchivesList prints the items of the remote Takeout folder.
func (r *Runner) ArchivesList(ctx context.Context, cmd *cli.Command) error {
	folder, err := r.folderID(cmd)
	if err != nil {
		return err
	}
	remote, err := r.openRemote(ctx)
	if err != nil {
		return err
	}

	items, err := remote.List(ctx, folder)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(items, true)
	}

	if len(items) == 0 {
		return r.writePlain("No items in %s folder %s\n", remote.Name(), folder)
	}

	r.writePlain("Found %d items in %s folder %s:\n\n", len(items), remote.Name(), folder)
	for i, item := range items {
		if item.IsFolder {
			r.writePlain("%d. %s/ (folder, skipped on import)\n", i+1, item.Name)
			continue
		}
		r.writePlain("%d. %s\n", i+1, item.Name)
		r.writePlain("   ID: %s, Size: %s\n", item.ID, humanSize(item.Size))
	}
	return nil
}

// ArchivesImport stores one New archive per remote file. Items already stored, matched by
// external id, are left untouched so the command can be repeated.
func (r *Runner) ArchivesImport(ctx context.Context, cmd *cli.Command) error {
	folder, err := r.folderID(cmd)
	if err != nil {
		return err
	}
	remote, err := r.openRemote(ctx)
	if err != nil {
		return err
	}
	s, err := r.openStore()
	if err != nil {
		return err
	}

	items, err := remote.List(ctx, folder)
	if err != nil {
		return err
	}

	created, existing, skipped := 0, 0, 0
	for _, item := range items {
		if item.IsFolder {
			skipped++
			continue
		}

		archive, isNew, err := s.archives.CreateIfAbsent(models.NewArchive(0, item.ID, item.Name, item.Size))
		if err != nil {
			return fmt.Errorf("failed to import %s: %w", item.Name, err)
		}
		if isNew {
			created++
			r.logger.Info("archive imported", "archive", archive.DisplayName(), "external_id", archive.ExternalID())
		} else {
			existing++
			r.logger.Debug("archive already stored", "archive", archive.DisplayName(), "status", archive.Status())
		}
	}

	return r.writePlain("✓ Imported %d archives (%d already stored, %d folders skipped)\n", created, existing, skipped)
}

// archiveView is the JSON shape of `archives show`.
type archiveView struct {
	ID      string      `json:"id"`
	Name    string      `json:"name"`
	Size    int64       `json:"size"`
	Status  string      `json:"status"`
	Reason  string      `json:"reason,omitempty"`
	Entries []entryView `json:"entries,omitempty"`
}

type entryView struct {
	Path    string `json:"path"`
	Kind    string `json:"kind"`
	Status  string `json:"status"`
	Reason  string `json:"reason,omitempty"`
	Related string `json:"related_entry_id,omitempty"`
	Final   string `json:"final_path,omitempty"`
}

func newArchiveView(a *models.Archive) archiveView {
	return archiveView{
		ID:     a.ID(),
		Name:   a.DisplayName(),
		Size:   a.Size(),
		Status: a.Status().State.String(),
		Reason: a.Status().Reason,
	}
}

// ArchivesShow lists stored archives. Given a name or id, it lists that archive's entries instead.
func (r *Runner) ArchivesShow(ctx context.Context, cmd *cli.Command) error {
	s, err := r.openStore()
	if err != nil {
		return err
	}

	name := cmd.StringArg("name")
	if name == "" {
		archives, err := s.archives.List(nil)
		if err != nil {
			return err
		}

		views := make([]archiveView, 0, len(archives))
		for _, a := range archives {
			views = append(views, newArchiveView(a))
		}
		if cmd.Bool("json") {
			return r.writeJSON(views, true)
		}
		if len(views) == 0 {
			return r.writePlain("No archives stored (run `tfx archives import`)\n")
		}
		for i, v := range views {
			r.writePlain("%d. %s [%s] %s\n", i+1, v.Name, v.Status, humanSize(v.Size))
			if v.Reason != "" {
				r.writePlain("   %s\n", v.Reason)
			}
		}
		return nil
	}

	archive, err := r.findArchive(s, name)
	if err != nil {
		return err
	}

	entries, err := s.files.List(map[string]any{"archive_id": archive.ID()})
	if err != nil {
		return err
	}

	view := newArchiveView(archive)
	for _, e := range entries {
		ev := entryView{
			Path:    e.EntryPath(),
			Kind:    string(e.Kind()),
			Status:  e.Status().State.String(),
			Reason:  e.Status().Reason,
			Related: e.RelatedEntryID(),
		}
		if e.Status().State == models.FileProcessed {
			ev.Final = e.Path()
		}
		view.Entries = append(view.Entries, ev)
	}

	if cmd.Bool("json") {
		return r.writeJSON(view, true)
	}

	r.writePlainHeader(fmt.Sprintf("%s [%s]", view.Name, view.Status))
	for _, e := range view.Entries {
		line := fmt.Sprintf("%-8s %-13s %s", e.Kind, e.Status, e.Path)
		if e.Final != "" {
			line += " → " + e.Final
		}
		if e.Reason != "" {
			line += " (" + e.Reason + ")"
		}
		r.writePlain("%s\n", line)
	}
	return nil
}

// findArchive looks an archive up by id, then by display name.
func (r *Runner) findArchive(s *store, name string) (*models.Archive, error) {
	archive, err := s.archives.Get(name)
	if err == nil {
		return archive, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	archives, err := s.archives.List(nil)
	if err != nil {
		return nil, err
	}
	for _, a := range archives {
		if a.DisplayName() == name {
			return a, nil
		}
	}
	return nil, fmt.Errorf("%w: archive %s", shared.ErrNotFound, name)
}

// humanSize formats a byte count with binary units.
func humanSize(n int64) string {
	if n < 0 {
		return "unknown"
	}
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
