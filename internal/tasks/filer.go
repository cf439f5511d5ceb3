package tasks

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tfx/internal/metrics"
	"github.com/desertthunder/tfx/internal/models"
	"github.com/desertthunder/tfx/internal/shared"
)

// Filer moves resolved media (and sidecars) into the library's year/month/day tree.
type Filer struct {
	files   FileStore
	records RecordStore
	library string
	logger  *log.Logger
}

func NewFiler(files FileStore, records RecordStore, library string, logger *log.Logger) *Filer {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Filer{files: files, records: records, library: library, logger: logger}
}

// TargetDir returns {library}/{year}/{full month name}/{day} for t in UTC, e.g. 2001/September/9.
func TargetDir(library string, t time.Time) string {
	t = t.UTC()
	return filepath.Join(library, strconv.Itoa(t.Year()), t.Month().String(), strconv.Itoa(t.Day()))
}

// SidecarName is the library name of the sidecar filed next to mediaName.
func SidecarName(mediaName string) string {
	return mediaName + ".json"
}

// File moves media, and sidecar when not nil, into the directory for res.Time, marks both
// processed and, for a pair, creates the media record from the sidecar payload.
func (f *Filer) File(media, sidecar *models.FileEntry, res Resolution) (*models.MediaRecord, error) {
	dir := TargetDir(f.library, res.Time)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: failed to create %s: %v", shared.ErrIO, dir, err)
	}

	mediaPath, err := f.move(media.Path(), dir, media.Name())
	if err != nil {
		return nil, err
	}
	media.SetPath(mediaPath)
	media.SetStatus(models.FileStatusOf(models.FileProcessed))
	if err := f.files.Update(media); err != nil {
		return nil, err
	}

	f.logger.Debug("filed media", "entry", media.EntryPath(), "path", mediaPath, "source", res.Source)

	if sidecar == nil {
		return nil, nil
	}
	return f.placeSidecar(media, sidecar, res.Time, res.Raw)
}

// FileSidecar places a late sidecar next to its already processed media and creates the media
// record if it does not exist yet.
func (f *Filer) FileSidecar(media, sidecar *models.FileEntry, capturedAt time.Time, raw []byte) (*models.MediaRecord, error) {
	if media.Status().State != models.FileProcessed {
		return nil, fmt.Errorf("%w: media %s is %s, not processed", shared.ErrInvalidArgument, media.EntryPath(), media.Status().State)
	}
	return f.placeSidecar(media, sidecar, capturedAt, raw)
}

func (f *Filer) placeSidecar(media, sidecar *models.FileEntry, capturedAt time.Time, raw []byte) (*models.MediaRecord, error) {
	dir := filepath.Dir(media.Path())
	sidecarPath, err := f.move(sidecar.Path(), dir, SidecarName(filepath.Base(media.Path())))
	if err != nil {
		return nil, err
	}
	sidecar.SetPath(sidecarPath)
	sidecar.SetStatus(models.FileStatusOf(models.FileProcessed))
	if err := f.files.Update(sidecar); err != nil {
		return nil, err
	}

	record := models.NewMediaRecord(0, media.ID(), filepath.Base(media.Path()), media.Path(), capturedAt, raw)
	record, created, err := f.records.Create(record)
	if err != nil {
		return nil, fmt.Errorf("failed to create media record for %s: %w", media.EntryPath(), err)
	}
	if created {
		metrics.IncMediaRecords()
	}
	return record, nil
}

// move renames src into dir as name, picking "name (n).ext" when the target exists.
// A file already at its target is left alone.
func (f *Filer) move(src, dir, name string) (string, error) {
	if filepath.Dir(src) == filepath.Clean(dir) && filepath.Base(src) == name {
		return src, nil
	}

	target, err := availablePath(dir, name)
	if err != nil {
		return "", err
	}

	if err := os.Rename(src, target); err != nil {
		if !errors.Is(err, syscall.EXDEV) {
			return "", fmt.Errorf("%w: failed to move %s: %v", shared.ErrIO, src, err)
		}
		if err := copyFile(src, target); err != nil {
			return "", err
		}
		if err := os.Remove(src); err != nil {
			return "", fmt.Errorf("%w: failed to remove %s: %v", shared.ErrIO, src, err)
		}
	}
	return target, nil
}

// availablePath returns dir/name, or the first dir/"stem (n)ext" that does not exist.
func availablePath(dir, name string) (string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	candidate := filepath.Join(dir, name)
	for n := 1; ; n++ {
		_, err := os.Lstat(candidate)
		if os.IsNotExist(err) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("%w: failed to stat %s: %v", shared.ErrIO, candidate, err)
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, n, ext))
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("%w: failed to open %s: %v", shared.ErrIO, src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("%w: failed to create %s: %v", shared.ErrIO, dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("%w: failed to copy %s: %v", shared.ErrIO, src, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("%w: failed to close %s: %v", shared.ErrIO, dst, err)
	}
	return nil
}
