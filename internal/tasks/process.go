package tasks

import (
	"context"
	"errors"

	"github.com/desertthunder/tfx/internal/metrics"
	"github.com/desertthunder/tfx/internal/models"
	"github.com/desertthunder/tfx/internal/shared"
)

// Claim predicates of the file stages. Associated sidecars wait for their media, which files both.
var (
	mediaClaimable   = []models.FileState{models.FileUnassociated, models.FileAssociated}
	sidecarClaimable = []models.FileState{models.FileUnassociated}

	// States from which a media unit takes over its sidecar.
	sidecarTakeover = []models.FileState{models.FileUnassociated, models.FileAssociated, models.FileNoPair}

	// Parked media a late sidecar makes eligible again.
	mediaParked = []models.FileState{models.FileNoPair, models.FileNoDate}
)

// Reasons written when one side of a pair fails because of the other.
const (
	reasonMediaFailed        = "media file failed"
	reasonMediaAlreadyFailed = "media file already failed"
)

// processMedia pairs, dates and files one claimed media entry.
//
//   - sidecar owned by its own unit: both end up associated and the media is claimed again later
//   - date found: media (and sidecar) processed, media record for a pair
//   - no date, no sidecar: no_pair
//   - no date, sidecar: media no_date, sidecar associated
//   - error: media failed, a taken over sidecar failed too
func (s *Scheduler) processMedia(ctx context.Context, media *models.FileEntry) string {
	key := media.EntryPath()
	label := StageMediaProcess.String()
	s.sink.OnProgress(key, label, 0)

	var sidecar *models.FileEntry

	fail := func(err error) string {
		media.SetStatus(models.Failed(shared.Reason(err)))
		if uerr := s.files.Update(media); uerr != nil {
			s.logger.Error("failed to record media failure", "entry", key, "error", uerr)
		}
		if sidecar != nil {
			sidecar.SetStatus(models.Failed(reasonMediaFailed))
			if uerr := s.files.Update(sidecar); uerr != nil {
				s.logger.Error("failed to record sidecar failure", "entry", sidecar.EntryPath(), "error", uerr)
			}
		}
		s.sink.OnProgress(key, label, 1)
		return s.failed(StageMediaProcess, key, err)
	}

	pair, err := s.associator.FindPair(media)
	if err != nil {
		return fail(err)
	}

	if pair != nil {
		claimed, err := s.files.ClaimByID(pair.ID(), sidecarTakeover, models.FileProcessing)
		if err != nil {
			return fail(err)
		}
		if claimed == nil {
			// The status read by FindPair may be stale.
			if pair, err = s.files.Get(pair.ID()); err != nil {
				return fail(err)
			}
		}

		switch {
		case claimed != nil:
			sidecar = claimed
		case pair.Status().State == models.FileProcessing:
			// The sidecar unit links both sides; pick the media up again once it let go.
			if err := s.associator.Associate(media, pair); err != nil {
				return fail(err)
			}
			return s.park(media, models.FileAssociated, label)
		default:
			s.logger.Warn("sidecar not available, filing media alone", "entry", key, "sidecar", pair.EntryPath(), "status", pair.Status())
		}
	}

	if sidecar != nil {
		if err := s.associator.Associate(media, sidecar); err != nil {
			return fail(err)
		}
		s.sink.OnProgress(key, label, 0.3)
	}

	res, err := s.dates.Resolve(media, sidecar)
	if err != nil {
		return fail(err)
	}
	s.sink.OnProgress(key, label, 0.5)

	if !res.Found() {
		if sidecar == nil {
			return s.park(media, models.FileNoPair, label)
		}
		sidecar.SetStatus(models.FileStatusOf(models.FileAssociated))
		if err := s.files.Update(sidecar); err != nil {
			return fail(err)
		}
		return s.park(media, models.FileNoDate, label)
	}

	if _, err := s.filer.File(media, sidecar, res); err != nil {
		return fail(err)
	}

	s.sink.OnProgress(key, label, 1)
	s.logger.Info("media filed", "entry", key, "path", media.Path(), "source", res.Source, "paired", sidecar != nil)
	return metrics.OutcomeDone
}

// processSidecar handles a sidecar claimed on its own, depending on where its media is.
//
//   - no media: no_pair
//   - media failed: failed
//   - media processed: sidecar filed next to it, media record created
//   - media parked (no_pair, no_date): linked, media made eligible again, sidecar associated
//   - otherwise: linked, sidecar associated until the media unit files both
func (s *Scheduler) processSidecar(ctx context.Context, sidecar *models.FileEntry) string {
	key := sidecar.EntryPath()
	label := StageSidecarProcess.String()
	s.sink.OnProgress(key, label, 0)

	fail := func(err error) string {
		sidecar.SetStatus(models.Failed(shared.Reason(err)))
		if uerr := s.files.Update(sidecar); uerr != nil {
			s.logger.Error("failed to record sidecar failure", "entry", key, "error", uerr)
		}
		s.sink.OnProgress(key, label, 1)
		return s.failed(StageSidecarProcess, key, err)
	}

	media, err := s.associator.FindPair(sidecar)
	if err != nil {
		return fail(err)
	}
	if media == nil {
		return s.park(sidecar, models.FileNoPair, label)
	}

	switch media.Status().State {
	case models.FileFailed:
		return fail(errors.New(reasonMediaAlreadyFailed))

	case models.FileProcessed:
		if err := s.associator.Associate(media, sidecar); err != nil {
			return fail(err)
		}
		record, err := s.fileLateSidecar(media, sidecar)
		if err != nil {
			return fail(err)
		}
		s.sink.OnProgress(key, label, 1)
		s.logger.Info("sidecar filed", "entry", key, "path", sidecar.Path(), "record", record.ID())
		return metrics.OutcomeDone

	case models.FileNoPair, models.FileNoDate:
		if err := s.associator.Associate(media, sidecar); err != nil {
			return fail(err)
		}
		if _, err := s.files.ClaimByID(media.ID(), mediaParked, models.FileAssociated); err != nil {
			return fail(err)
		}

	default:
		if err := s.associator.Associate(media, sidecar); err != nil {
			return fail(err)
		}
	}

	return s.park(sidecar, models.FileAssociated, label)
}

// fileLateSidecar files a sidecar whose media was filed without it.
func (s *Scheduler) fileLateSidecar(media, sidecar *models.FileEntry) (*models.MediaRecord, error) {
	res, err := s.dates.Resolve(media, sidecar)
	if err != nil {
		return nil, err
	}

	capturedAt := res.Time
	if !res.Found() {
		capturedAt = media.UpdatedAt()
	}
	return s.filer.FileSidecar(media, sidecar, capturedAt, res.Raw)
}

// park writes a non-terminal, non-failure status and reports the entity's stage as finished.
func (s *Scheduler) park(entry *models.FileEntry, state models.FileState, label string) string {
	entry.SetStatus(models.FileStatusOf(state))
	if err := s.files.Update(entry); err != nil {
		s.logger.Error("failed to park entry", "entry", entry.EntryPath(), "status", state, "error", err)
		metrics.ObserveFailure(label, err)
		return metrics.OutcomeFailed
	}

	s.sink.OnProgress(entry.EntryPath(), label, 1)
	s.logger.Debug("entry parked", "entry", entry.EntryPath(), "status", state)

	if state == models.FileAssociated {
		return metrics.OutcomeDone
	}
	return metrics.OutcomeParked
}
