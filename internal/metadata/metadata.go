// Package metadata reads capture dates embedded in media files.
//
// [ExifReader] implements [CaptureDateReader] for JPEG and TIFF files using EXIF DateTimeOriginal,
// falling back to DateTime. Files without EXIF report no date rather than an error, so the caller
// can fall back to the sidecar.
package metadata

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/desertthunder/tfx/internal/shared"
	"github.com/rwcarlsen/goexif/exif"
)

// exifLayout is the EXIF 2.3 date format. It carries no zone.
const exifLayout = "2006:01:02 15:04:05"

// CaptureDateReader extracts the capture time embedded in a media file.
type CaptureDateReader interface {
	// CaptureDate returns the capture time in UTC. ok is false when the file carries none.
	CaptureDate(path string) (t time.Time, ok bool, err error)
}

// ExifReader reads EXIF capture dates.
type ExifReader struct {
	exts map[string]bool
}

// NewExifReader creates a reader for .jpg, .jpeg, .tif, .tiff and .dng files.
func NewExifReader() *ExifReader {
	return &ExifReader{exts: map[string]bool{
		".jpg": true, ".jpeg": true, ".tif": true, ".tiff": true, ".dng": true,
	}}
}

// Supports reports whether path has an extension the reader inspects.
func (r *ExifReader) Supports(path string) bool {
	return r.exts[strings.ToLower(filepath.Ext(path))]
}

// CaptureDate implements [CaptureDateReader]. Only failing to open the file is an error.
//
// EXIF times are naive and interpreted as UTC.
func (r *ExifReader) CaptureDate(path string) (time.Time, bool, error) {
	if !r.Supports(path) {
		return time.Time{}, false, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: failed to open %s: %v", shared.ErrIO, path, err)
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return time.Time{}, false, nil
	}

	for _, field := range []exif.FieldName{exif.DateTimeOriginal, exif.DateTimeDigitized, exif.DateTime} {
		if t, ok := dateField(x, field); ok {
			return t, true, nil
		}
	}

	return time.Time{}, false, nil
}

func dateField(x *exif.Exif, field exif.FieldName) (time.Time, bool) {
	tag, err := x.Get(field)
	if err != nil {
		return time.Time{}, false
	}

	raw, err := tag.StringVal()
	if err != nil {
		return time.Time{}, false
	}

	raw = strings.TrimRight(strings.TrimSpace(raw), "\x00")
	if raw == "" || strings.HasPrefix(raw, "0000") {
		return time.Time{}, false
	}

	t, err := time.ParseInLocation(exifLayout, raw, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// NopReader never finds a date.
type NopReader struct{}

func (NopReader) CaptureDate(string) (time.Time, bool, error) { return time.Time{}, false, nil }
