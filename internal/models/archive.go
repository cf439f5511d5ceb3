package models

import (
	"fmt"
	"time"
)

// Archive is one remote compressed export and its download/extraction lifecycle.
//
// The staging path is set while the archive is downloaded or being examined and cleared once
// extraction succeeds. Archives are never hard deleted.
type Archive struct {
	id               string
	sequence         int
	externalID       string
	displayName      string
	size             int64
	localStagingPath string
	status           ArchiveStatus
	createdAt        time.Time
	updatedAt        time.Time
	deletedAt        *time.Time
}

// NewArchive creates an [Archive] in status New for a remote item.
func NewArchive(sequence int, externalID, displayName string, size int64) *Archive {
	now := time.Now()
	return &Archive{
		sequence:    sequence,
		externalID:  externalID,
		displayName: displayName,
		size:        size,
		status:      ArchiveStatusOf(ArchiveNew),
		createdAt:   now,
		updatedAt:   now,
	}
}

func (a *Archive) ID() string { return a.id }
func (a *Archive) Sequence() int { return a.sequence }
func (a *Archive) ExternalID() string { return a.externalID }
func (a *Archive) DisplayName() string { return a.displayName }
func (a *Archive) Size() int64 { return a.size }
func (a *Archive) LocalStagingPath() string { return a.localStagingPath }
func (a *Archive) Status() ArchiveStatus { return a.status }
func (a *Archive) CreatedAt() time.Time { return a.createdAt }
func (a *Archive) UpdatedAt() time.Time { return a.updatedAt }
func (a *Archive) DeletedAt() *time.Time { return a.deletedAt }
func (a *Archive) SetID(id string) { a.id = id }
func (a *Archive) SetSequence(seq int) { a.sequence = seq }
func (a *Archive) SetSize(size int64) { a.size = size }
func (a *Archive) SetCreatedAt(t time.Time) { a.createdAt = t }
func (a *Archive) SetUpdatedAt(t time.Time) { a.updatedAt = t }
func (a *Archive) SetDeletedAt(t *time.Time) { a.deletedAt = t }

// SetStatus replaces the status without touching the staging path.
func (a *Archive) SetStatus(s ArchiveStatus) { a.status = s }

// SetLocalStagingPath records (or clears, with "") the staged local file.
func (a *Archive) SetLocalStagingPath(p string) { a.localStagingPath = p }

// MarkDownloaded records a finished download.
func (a *Archive) MarkDownloaded(stagingPath string, size int64) {
	a.localStagingPath = stagingPath
	a.size = size
	a.status = ArchiveStatusOf(ArchiveDownloaded)
}

// MarkProcessed records a finished extraction and clears the staging path.
func (a *Archive) MarkProcessed() {
	a.localStagingPath = ""
	a.status = ArchiveStatusOf(ArchiveProcessedZip)
}

// Fail moves the archive to a failed status and clears the staging path.
func (a *Archive) Fail(s ArchiveStatus) {
	a.localStagingPath = ""
	a.status = s
}

// Validate checks required fields and that the staging path is set exactly when the state requires one.
func (a *Archive) Validate() error {
	if a.externalID == "" {
		return fmt.Errorf("external id is required")
	}
	if a.displayName == "" {
		return fmt.Errorf("display name is required")
	}
	if a.size < 0 {
		return fmt.Errorf("size must not be negative")
	}

	hasPath := a.localStagingPath != ""
	if need := a.status.State.HasStagingFile(); need != hasPath {
		if need {
			return fmt.Errorf("archive in %s requires a staging path", a.status.State)
		}
		return fmt.Errorf("archive in %s must not have a staging path", a.status.State)
	}

	if a.status.Reason != "" && !a.status.State.IsFailure() {
		return fmt.Errorf("status %s cannot carry a reason", a.status.State)
	}

	return nil
}
