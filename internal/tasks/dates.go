package tasks

import (
	"fmt"
	"os"
	"time"

	"github.com/desertthunder/tfx/internal/metadata"
	"github.com/desertthunder/tfx/internal/models"
	"github.com/desertthunder/tfx/internal/shared"
)

// DateSource names where a resolved capture date came from.
type DateSource string

const (
	SourceNone     DateSource = ""
	SourceEmbedded DateSource = "embedded"
	SourceSidecar  DateSource = "sidecar"
)

// Resolution is the outcome of [DateResolver.Resolve].
type Resolution struct {
	Time    time.Time
	Source  DateSource
	Raw     []byte                 // Sidecar payload as read from disk, nil without a sidecar
	Payload *models.SidecarPayload // Parsed sidecar payload, nil without a sidecar
}

// Found reports whether a capture date was resolved.
func (r Resolution) Found() bool {
	return r.Source != SourceNone
}

// DateResolver derives the capture date of a media entry.
//
// Embedded metadata wins; the sidecar's photoTakenTime is the fallback.
type DateResolver struct {
	reader metadata.CaptureDateReader
}

// NewDateResolver creates a resolver. A nil reader never finds embedded dates.
func NewDateResolver(reader metadata.CaptureDateReader) *DateResolver {
	if reader == nil {
		reader = metadata.NopReader{}
	}
	return &DateResolver{reader: reader}
}

// Resolve reads the capture date of media, consulting sidecar (which may be nil) second.
// An unresolved date is not an error: the returned resolution reports Found() == false.
//
// A sidecar that cannot be parsed is an [shared.ErrFormat] even when the embedded date wins,
// because its payload is stored with the media record.
func (d *DateResolver) Resolve(media, sidecar *models.FileEntry) (Resolution, error) {
	var res Resolution

	if sidecar != nil {
		raw, err := os.ReadFile(sidecar.Path())
		if err != nil {
			return res, fmt.Errorf("%w: failed to read sidecar %s: %v", shared.ErrIO, sidecar.EntryPath(), err)
		}
		payload, err := models.ParseSidecar(raw)
		if err != nil {
			return res, fmt.Errorf("%w: %s: %v", shared.ErrFormat, sidecar.EntryPath(), err)
		}
		res.Raw = raw
		res.Payload = payload
	}

	t, ok, err := d.reader.CaptureDate(media.Path())
	if err != nil {
		return res, err
	}
	if ok {
		res.Time = t.UTC()
		res.Source = SourceEmbedded
		return res, nil
	}

	if res.Payload != nil {
		t, ok, err := res.Payload.TakenAt()
		if err != nil {
			return res, fmt.Errorf("%w: %s: %v", shared.ErrFormat, sidecar.EntryPath(), err)
		}
		if ok {
			res.Time = t
			res.Source = SourceSidecar
		}
	}

	return res, nil
}
