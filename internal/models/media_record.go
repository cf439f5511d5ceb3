package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// MediaRecord is the durable artifact created once per filed media/sidecar pair. It is immutable.
type MediaRecord struct {
	id           string
	sequence     int
	mediaEntryID string
	fileName     string
	finalPath    string
	capturedAt   time.Time
	rawMetadata  json.RawMessage
	createdAt    time.Time
}

// NewMediaRecord creates a [MediaRecord] for the media entry filed at finalPath.
// rawMetadata is the sidecar's JSON payload; nil stores an empty object.
func NewMediaRecord(sequence int, mediaEntryID, fileName, finalPath string, capturedAt time.Time, rawMetadata []byte) *MediaRecord {
	if len(rawMetadata) == 0 {
		rawMetadata = []byte("{}")
	}
	return &MediaRecord{
		sequence:     sequence,
		mediaEntryID: mediaEntryID,
		fileName:     fileName,
		finalPath:    finalPath,
		capturedAt:   capturedAt.UTC(),
		rawMetadata:  json.RawMessage(rawMetadata),
		createdAt:    time.Now(),
	}
}

func (m *MediaRecord) ID() string { return m.id }
func (m *MediaRecord) Sequence() int { return m.sequence }
func (m *MediaRecord) MediaEntryID() string { return m.mediaEntryID }
func (m *MediaRecord) FileName() string { return m.fileName }
func (m *MediaRecord) FinalPath() string { return m.finalPath }
func (m *MediaRecord) CapturedAt() time.Time { return m.capturedAt }
func (m *MediaRecord) RawMetadata() json.RawMessage { return m.rawMetadata }
func (m *MediaRecord) CreatedAt() time.Time { return m.createdAt }
func (m *MediaRecord) SetID(id string) { m.id = id }
func (m *MediaRecord) SetSequence(seq int) { m.sequence = seq }
func (m *MediaRecord) SetCreatedAt(t time.Time) { m.createdAt = t }

// UpdatedAt equals CreatedAt, records are never modified.
func (m *MediaRecord) UpdatedAt() time.Time { return m.createdAt }

// Payload decodes the stored sidecar metadata.
func (m *MediaRecord) Payload() (*SidecarPayload, error) {
	return ParseSidecar(m.rawMetadata)
}

// Validate checks required fields and that the metadata is a JSON document.
func (m *MediaRecord) Validate() error {
	if m.mediaEntryID == "" {
		return fmt.Errorf("media entry id is required")
	}
	if m.fileName == "" {
		return fmt.Errorf("file name is required")
	}
	if m.finalPath == "" {
		return fmt.Errorf("final path is required")
	}
	if !json.Valid(m.rawMetadata) {
		return fmt.Errorf("raw metadata is not valid JSON")
	}
	return nil
}
