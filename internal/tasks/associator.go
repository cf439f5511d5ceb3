package tasks

import (
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tfx/internal/models"
	"github.com/desertthunder/tfx/internal/shared"
)

// Associator links a media entry with its sidecar.
//
// A link is two independent writes, one per side. Readers only trust a link both sides confirm;
// when the pointers disagree, the pair is looked up again by pairing key and the link is repaired.
type Associator struct {
	files  FileStore
	logger *log.Logger
}

func NewAssociator(files FileStore, logger *log.Logger) *Associator {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Associator{files: files, logger: logger}
}

// FindPair returns the entry of the opposite kind sharing entry's pairing key in the same archive,
// or nil when there is none.
//
// A confirmed link is returned as is. A one-sided link is repaired in place; a stale pointer with
// no counterpart left is cleared. The counterpart being confirmed-paired with a third entry is an
// [shared.ErrAssociationInconsistency].
func (a *Associator) FindPair(entry *models.FileEntry) (*models.FileEntry, error) {
	if related := entry.RelatedEntryID(); related != "" {
		other, err := a.files.Get(related)
		switch {
		case err == nil && other.IsLinkedTo(entry):
			return other, nil
		case err != nil && !errors.Is(err, shared.ErrNotFound):
			return nil, err
		}
		a.logger.Debug("one-sided link, looking up pair by key", "entry", entry.EntryPath(), "related", related)
	}

	candidate, err := a.files.FindByPairingKey(entry.ArchiveID(), entry.PairingKey(), entry.Kind().Opposite())
	if err != nil {
		return nil, err
	}

	if candidate == nil {
		if entry.RelatedEntryID() != "" {
			if err := a.files.SetRelated(entry.ID(), ""); err != nil {
				return nil, err
			}
			entry.SetRelatedEntryID("")
		}
		return nil, nil
	}

	if err := a.checkFree(candidate, entry); err != nil {
		return nil, err
	}

	if entry.IsLinkedTo(candidate) || candidate.IsLinkedTo(entry) {
		if err := a.Associate(entry, candidate); err != nil {
			return nil, err
		}
	}
	return candidate, nil
}

// Associate links x and y in both directions. Sides already pointing at each other are not
// rewritten, so calling it again for a linked pair is a no-op.
func (a *Associator) Associate(x, y *models.FileEntry) error {
	if x == nil || y == nil {
		return fmt.Errorf("%w: associate needs two entries", shared.ErrInvalidArgument)
	}
	if x.ID() == y.ID() {
		return fmt.Errorf("%w: entry %s cannot be paired with itself", shared.ErrInvalidArgument, x.EntryPath())
	}
	if x.Kind() == y.Kind() {
		return fmt.Errorf("%w: cannot pair two %s entries", shared.ErrInvalidArgument, x.Kind())
	}
	if x.ArchiveID() != y.ArchiveID() {
		return fmt.Errorf("%w: %s and %s belong to different archives", shared.ErrInvalidArgument, x.EntryPath(), y.EntryPath())
	}

	if err := a.checkFree(x, y); err != nil {
		return err
	}
	if err := a.checkFree(y, x); err != nil {
		return err
	}

	for _, pair := range [][2]*models.FileEntry{{x, y}, {y, x}} {
		from, to := pair[0], pair[1]
		if from.IsLinkedTo(to) {
			continue
		}
		if err := a.files.SetRelated(from.ID(), to.ID()); err != nil {
			return fmt.Errorf("failed to link %s: %w", from.EntryPath(), err)
		}
		from.SetRelatedEntryID(to.ID())
	}
	return nil
}

// checkFree fails when e points at an entry other than want that points back at e.
func (a *Associator) checkFree(e, want *models.FileEntry) error {
	related := e.RelatedEntryID()
	if related == "" || related == want.ID() {
		return nil
	}

	other, err := a.files.Get(related)
	if errors.Is(err, shared.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if other.IsLinkedTo(e) {
		return fmt.Errorf("%w: %s is already paired with %s", shared.ErrAssociationInconsistency, e.EntryPath(), other.EntryPath())
	}
	return nil
}
