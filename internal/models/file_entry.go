package models

import (
	"fmt"
	"path"
	"time"
)

// FileEntry is one regular file unpacked from an [Archive].
//
// EntryPath is the path inside the archive and never changes. Path is the current location on
// disk and is rewritten when the Filer moves the file. RelatedEntryID is a peer reference to the
// paired entry of the opposite kind and is only trusted once both sides point at each other.
type FileEntry struct {
	id             string
	sequence       int
	archiveID      string
	name           string
	entryPath      string
	path           string
	kind           Kind
	pairingKey     string
	status         FileStatus
	relatedEntryID string
	createdAt      time.Time
	updatedAt      time.Time
	deletedAt      *time.Time
}

// NewFileEntry creates an Unassociated [FileEntry]. Kind and pairing key are derived from entryPath.
func NewFileEntry(sequence int, archiveID, entryPath, diskPath string) *FileEntry {
	now := time.Now()
	return &FileEntry{
		sequence:   sequence,
		archiveID:  archiveID,
		name:       path.Base(entryPath),
		entryPath:  entryPath,
		path:       diskPath,
		kind:       KindFromName(entryPath),
		pairingKey: PairingKey(entryPath),
		status:     FileStatusOf(FileUnassociated),
		createdAt:  now,
		updatedAt:  now,
	}
}

func (f *FileEntry) ID() string { return f.id }
func (f *FileEntry) Sequence() int { return f.sequence }
func (f *FileEntry) ArchiveID() string { return f.archiveID }
func (f *FileEntry) Name() string { return f.name }
func (f *FileEntry) EntryPath() string { return f.entryPath }
func (f *FileEntry) Path() string { return f.path }
func (f *FileEntry) Kind() Kind { return f.kind }
func (f *FileEntry) PairingKey() string { return f.pairingKey }
func (f *FileEntry) Status() FileStatus { return f.status }
func (f *FileEntry) RelatedEntryID() string { return f.relatedEntryID }
func (f *FileEntry) CreatedAt() time.Time { return f.createdAt }
func (f *FileEntry) UpdatedAt() time.Time { return f.updatedAt }
func (f *FileEntry) DeletedAt() *time.Time { return f.deletedAt }
func (f *FileEntry) SetID(id string) { f.id = id }
func (f *FileEntry) SetSequence(seq int) { f.sequence = seq }
func (f *FileEntry) SetPath(p string) { f.path = p }
func (f *FileEntry) SetStatus(s FileStatus) { f.status = s }
func (f *FileEntry) SetRelatedEntryID(id string) { f.relatedEntryID = id }
func (f *FileEntry) SetCreatedAt(t time.Time) { f.createdAt = t }
func (f *FileEntry) SetUpdatedAt(t time.Time) { f.updatedAt = t }
func (f *FileEntry) SetDeletedAt(t *time.Time) { f.deletedAt = t }
func (f *FileEntry) SetKind(k Kind) { f.kind = k }
func (f *FileEntry) SetPairingKey(key string) { f.pairingKey = key }
func (f *FileEntry) SetName(name string) { f.name = name }
func (f *FileEntry) SetEntryPath(entryPath string) { f.entryPath = entryPath }

// IsMedia reports whether the entry is a media file.
func (f *FileEntry) IsMedia() bool { return f.kind == KindMedia }

// IsLinkedTo reports whether the entry's pointer targets other.
func (f *FileEntry) IsLinkedTo(other *FileEntry) bool {
	return other != nil && f.relatedEntryID != "" && f.relatedEntryID == other.id
}

// Validate checks required fields.
func (f *FileEntry) Validate() error {
	if f.archiveID == "" {
		return fmt.Errorf("archive id is required")
	}
	if f.entryPath == "" {
		return fmt.Errorf("entry path is required")
	}
	if f.path == "" {
		return fmt.Errorf("path is required")
	}
	if _, err := ParseKind(string(f.kind)); err != nil {
		return err
	}
	if f.pairingKey == "" {
		return fmt.Errorf("pairing key is required")
	}
	if f.id != "" && f.relatedEntryID == f.id {
		return fmt.Errorf("entry cannot be related to itself")
	}
	if f.status.Reason != "" && !f.status.State.IsFailure() {
		return fmt.Errorf("status %s cannot carry a reason", f.status.State)
	}
	return nil
}
