package tasks

import (
	"errors"
	"testing"

	"github.com/desertthunder/tfx/internal/models"
	"github.com/desertthunder/tfx/internal/shared"
)

func TestAssociator(t *testing.T) {
	setup := func(t *testing.T) (*testEnv, *Associator, *models.Archive) {
		env := newTestEnv(t)
		archive := env.archive(t, "takeout.tgz", models.ArchiveProcessedZip, "")
		return env, NewAssociator(env.files, nil), archive
	}

	t.Run("Find Pair Without Link", func(t *testing.T) {
		env, assoc, archive := setup(t)
		media := env.entry(t, archive.ID(), "Photos/a.jpg", "/x/a.jpg")
		sidecar := env.entry(t, archive.ID(), "Photos/a.jpg.supplemental-metadata.json", "/x/a.json")
		env.entry(t, archive.ID(), "Other/a.jpg.json", "/x/other.json")

		pair, err := assoc.FindPair(media)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if pair == nil || pair.ID() != sidecar.ID() {
			t.Fatalf("expected sidecar in the same folder, got %v", pair)
		}
		if env.reload(t, media).RelatedEntryID() != "" {
			t.Error("finding a pair must not link it")
		}
	})

	t.Run("No Pair", func(t *testing.T) {
		env, assoc, archive := setup(t)
		media := env.entry(t, archive.ID(), "Photos/b.mp4", "/x/b.mp4")

		pair, err := assoc.FindPair(media)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if pair != nil {
			t.Errorf("expected no pair, got %s", pair.EntryPath())
		}
	})

	t.Run("Pairing Symmetry", func(t *testing.T) {
		env, assoc, archive := setup(t)
		media := env.entry(t, archive.ID(), "Photos/a.jpg", "/x/a.jpg")
		sidecar := env.entry(t, archive.ID(), "Photos/a.jpg.json", "/x/a.jpg.json")

		if err := assoc.Associate(media, sidecar); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		fromMedia, err := assoc.FindPair(env.reload(t, media))
		if err != nil || fromMedia == nil || fromMedia.ID() != sidecar.ID() {
			t.Fatalf("expected find_pair(media) = sidecar, got %v, %v", fromMedia, err)
		}
		fromSidecar, err := assoc.FindPair(env.reload(t, sidecar))
		if err != nil || fromSidecar == nil || fromSidecar.ID() != media.ID() {
			t.Fatalf("expected find_pair(sidecar) = media, got %v, %v", fromSidecar, err)
		}
	})

	t.Run("Idempotent", func(t *testing.T) {
		env, assoc, archive := setup(t)
		media := env.entry(t, archive.ID(), "Photos/a.jpg", "/x/a.jpg")
		sidecar := env.entry(t, archive.ID(), "Photos/a.jpg.json", "/x/a.jpg.json")

		if err := assoc.Associate(media, sidecar); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		before := env.reload(t, media).UpdatedAt()

		if err := assoc.Associate(media, sidecar); err != nil {
			t.Fatalf("unexpected error on second associate: %v", err)
		}
		if err := assoc.Associate(env.reload(t, sidecar), env.reload(t, media)); err != nil {
			t.Fatalf("unexpected error on reversed associate: %v", err)
		}

		m, s := env.reload(t, media), env.reload(t, sidecar)
		if !m.IsLinkedTo(s) || !s.IsLinkedTo(m) {
			t.Errorf("expected a single reciprocal link")
		}
		if !m.UpdatedAt().Equal(before) {
			t.Errorf("expected linked side not to be rewritten")
		}
	})

	t.Run("Repairs One Sided Link", func(t *testing.T) {
		env, assoc, archive := setup(t)
		media := env.entry(t, archive.ID(), "Photos/a.jpg", "/x/a.jpg")
		sidecar := env.entry(t, archive.ID(), "Photos/a.jpg.json", "/x/a.jpg.json")

		// first write landed, second did not
		if err := env.files.SetRelated(sidecar.ID(), media.ID()); err != nil {
			t.Fatalf("failed to link: %v", err)
		}

		pair, err := assoc.FindPair(env.reload(t, media))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if pair == nil || pair.ID() != sidecar.ID() {
			t.Fatalf("expected sidecar, got %v", pair)
		}
		if !env.reload(t, media).IsLinkedTo(sidecar) {
			t.Errorf("expected missing side to be written")
		}
	})

	t.Run("Clears Stale Pointer", func(t *testing.T) {
		env, assoc, archive := setup(t)
		media := env.entry(t, archive.ID(), "Photos/a.jpg", "/x/a.jpg")
		unrelated := env.entry(t, archive.ID(), "Photos/z.jpg.json", "/x/z.jpg.json")

		if err := env.files.SetRelated(media.ID(), unrelated.ID()); err != nil {
			t.Fatalf("failed to link: %v", err)
		}

		pair, err := assoc.FindPair(env.reload(t, media))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if pair != nil {
			t.Fatalf("expected no pair, got %s", pair.EntryPath())
		}
		if env.reload(t, media).RelatedEntryID() != "" {
			t.Errorf("expected stale pointer to be cleared")
		}
	})

	t.Run("Inconsistency", func(t *testing.T) {
		env, assoc, archive := setup(t)
		media := env.entry(t, archive.ID(), "Photos/a.jpg", "/x/a.jpg")
		other := env.entry(t, archive.ID(), "Photos/a(1).jpg", "/x/a(1).jpg")
		sidecar := env.entry(t, archive.ID(), "Photos/a.jpg.json", "/x/a.jpg.json")

		if err := assoc.Associate(other, sidecar); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if _, err := assoc.FindPair(media); !errors.Is(err, shared.ErrAssociationInconsistency) {
			t.Errorf("expected ErrAssociationInconsistency, got %v", err)
		}
		if err := assoc.Associate(media, env.reload(t, sidecar)); !errors.Is(err, shared.ErrAssociationInconsistency) {
			t.Errorf("expected ErrAssociationInconsistency, got %v", err)
		}
	})

	t.Run("Invalid Pairs", func(t *testing.T) {
		env, assoc, archive := setup(t)
		second := env.archive(t, "takeout-2.tgz", models.ArchiveProcessedZip, "")
		a := env.entry(t, archive.ID(), "Photos/a.jpg", "/x/a.jpg")
		b := env.entry(t, archive.ID(), "Photos/b.jpg", "/x/b.jpg")
		foreign := env.entry(t, second.ID(), "Photos/a.jpg.json", "/y/a.jpg.json")

		tests := []struct {
			name string
			x, y *models.FileEntry
		}{
			{"Nil", a, nil},
			{"Self", a, a},
			{"Same Kind", a, b},
			{"Different Archives", a, foreign},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if err := assoc.Associate(tt.x, tt.y); !errors.Is(err, shared.ErrInvalidArgument) {
					t.Errorf("expected ErrInvalidArgument, got %v", err)
				}
			})
		}
	})
}
