package tasks

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tfx/internal/models"
	"github.com/desertthunder/tfx/internal/shared"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
)

// archiveFormat is the container layout of a staged archive.
type archiveFormat int

const (
	formatUnknown archiveFormat = iota
	formatTarGz
	formatZip
)

// detectFormat picks the format from the file name.
func detectFormat(name string) archiveFormat {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".tgz"), strings.HasSuffix(lower, ".tar.gz"):
		return formatTarGz
	case strings.HasSuffix(lower, ".zip"):
		return formatZip
	default:
		return formatUnknown
	}
}

// entryFunc receives one regular archive entry. name is the slash separated path inside the archive.
type entryFunc func(name string, r io.Reader) error

// Extractor unpacks a downloaded archive into its staging directory and registers one
// [models.FileEntry] per regular entry.
type Extractor struct {
	archives ArchiveStore
	files    FileStore
	root     string
	sink     ProgressSink
	logger   *log.Logger
}

// NewExtractor creates an extractor staging entries under root/<archive id>/.
func NewExtractor(archives ArchiveStore, files FileStore, root string, sink ProgressSink, logger *log.Logger) *Extractor {
	if sink == nil {
		sink = nopSink{}
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Extractor{archives: archives, files: files, root: root, sink: sink, logger: logger}
}

// StagingDir returns the directory entries of archive are written to.
func (e *Extractor) StagingDir(archive *models.Archive) string {
	return filepath.Join(e.root, archive.ID())
}

// Extract unpacks an archive in examining_zip and writes its terminal status: processed_zip on
// success, extraction_failed with the error's reason otherwise. Entries registered before a
// failure are kept. The staged file is removed in both cases. Returns the number of regular
// entries written.
//
// Re-running over an archive reuses the entries already registered for an entry path.
func (e *Extractor) Extract(ctx context.Context, archive *models.Archive) (int, error) {
	if archive.Status().State != models.ArchiveExaminingZip {
		return 0, fmt.Errorf("%w: archive %s is %s, expected %s",
			shared.ErrInvalidArgument, archive.DisplayName(), archive.Status().State, models.ArchiveExaminingZip)
	}

	count, err := e.extract(ctx, archive)
	e.removeStaged(archive)
	if err != nil {
		archive.Fail(models.ExtractionFailed(shared.Reason(err)))
		if uerr := e.archives.Update(archive); uerr != nil {
			return count, errors.Join(err, fmt.Errorf("failed to record extraction failure: %w", uerr))
		}
		return count, err
	}

	archive.MarkProcessed()
	if err := e.archives.Update(archive); err != nil {
		return count, fmt.Errorf("failed to mark archive processed: %w", err)
	}
	return count, nil
}

// removeStaged deletes the downloaded archive once extraction ended either way. The status stops
// pointing at it, and a retry downloads it again.
func (e *Extractor) removeStaged(archive *models.Archive) {
	staged := archive.LocalStagingPath()
	if rerr := os.Remove(staged); rerr != nil && !os.IsNotExist(rerr) {
		e.logger.Warn("failed to remove staged archive", "archive", archive.DisplayName(), "path", staged, "error", rerr)
	}
}

func (e *Extractor) extract(ctx context.Context, archive *models.Archive) (int, error) {
	staged := archive.LocalStagingPath()
	format := detectFormat(staged)
	if format == formatUnknown {
		format = detectFormat(archive.DisplayName())
	}
	if format == formatUnknown {
		return 0, fmt.Errorf("%w: unsupported archive %s", shared.ErrFormat, archive.DisplayName())
	}

	var total int64
	if err := walkArchive(ctx, staged, format, func(string, io.Reader) error {
		total++
		return nil
	}); err != nil {
		return 0, err
	}

	e.logger.Debug("extracting archive", "archive", archive.DisplayName(), "entries", total)

	root := e.StagingDir(archive)
	var count int64
	e.sink.OnProgress(archive.DisplayName(), StageExamine.String(), 0)

	err := walkArchive(ctx, staged, format, func(name string, r io.Reader) error {
		entryPath, target, err := stagingTarget(root, name)
		if err != nil {
			return err
		}
		if err := writeEntry(target, r); err != nil {
			return err
		}
		if err := e.register(archive, entryPath, target); err != nil {
			return err
		}

		count++
		e.sink.OnProgress(archive.DisplayName(), StageExamine.String(), fraction(count, total))
		return nil
	})
	return int(count), err
}

// register creates the entry row unless the entry path is already registered for the archive.
func (e *Extractor) register(archive *models.Archive, entryPath, target string) error {
	existing, err := e.files.GetByEntryPath(archive.ID(), entryPath)
	if err == nil {
		if existing.Path() != target && !existing.Status().State.IsTerminal() {
			existing.SetPath(target)
			return e.files.Update(existing)
		}
		return nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return err
	}

	return e.files.Create(models.NewFileEntry(0, archive.ID(), entryPath, target))
}

// stagingTarget maps an archive entry name to its cleaned entry path and its location under root.
// Absolute names and names escaping root are format errors.
func stagingTarget(root, name string) (string, string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	if name == "" || strings.HasPrefix(name, "/") || filepath.IsAbs(name) || filepath.VolumeName(name) != "" {
		return "", "", fmt.Errorf("%w: illegal entry path %q", shared.ErrFormat, name)
	}

	entryPath := path.Clean(name)
	if entryPath == "." || entryPath == ".." || strings.HasPrefix(entryPath, "../") {
		return "", "", fmt.Errorf("%w: entry %q escapes the staging directory", shared.ErrFormat, name)
	}

	target := filepath.Join(root, filepath.FromSlash(entryPath))
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", "", fmt.Errorf("%w: entry %q escapes the staging directory", shared.ErrFormat, name)
	}
	return entryPath, target, nil
}

// writeEntry copies r to target, creating parent directories.
func writeEntry(target string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("%w: failed to create directory for %s: %v", shared.ErrIO, target, err)
	}

	f, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("%w: failed to create %s: %v", shared.ErrIO, target, err)
	}

	if _, err := io.Copy(f, formatReader{r}); err != nil {
		f.Close()
		if errors.Is(err, shared.ErrFormat) {
			return err
		}
		return fmt.Errorf("%w: failed to write %s: %v", shared.ErrIO, target, err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: failed to close %s: %v", shared.ErrIO, target, err)
	}
	return nil
}

// formatReader marks read errors of an archive entry as format errors.
type formatReader struct {
	r io.Reader
}

func (f formatReader) Read(p []byte) (int, error) {
	n, err := f.r.Read(p)
	if err != nil && err != io.EOF {
		err = fmt.Errorf("%w: %v", shared.ErrFormat, err)
	}
	return n, err
}

// walkArchive calls fn for every regular entry of the archive at p, in archive order.
func walkArchive(ctx context.Context, p string, format archiveFormat, fn entryFunc) error {
	switch format {
	case formatTarGz:
		return walkTarGz(ctx, p, fn)
	case formatZip:
		return walkZip(ctx, p, fn)
	default:
		return fmt.Errorf("%w: unsupported archive %s", shared.ErrFormat, p)
	}
}

func walkTarGz(ctx context.Context, p string, fn entryFunc) error {
	f, err := os.Open(p)
	if err != nil {
		return fmt.Errorf("%w: failed to open %s: %v", shared.ErrIO, p, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("%w: %s is not gzip compressed: %v", shared.ErrFormat, filepath.Base(p), err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: failed to read tar header: %v", shared.ErrFormat, err)
		}
		if !hdr.FileInfo().Mode().IsRegular() {
			continue
		}

		if err := fn(hdr.Name, tr); err != nil {
			return err
		}
	}
}

func walkZip(ctx context.Context, p string, fn entryFunc) error {
	zr, err := zip.OpenReader(p)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: failed to open %s: %v", shared.ErrIO, p, err)
		}
		return fmt.Errorf("%w: %s is not a zip archive: %v", shared.ErrFormat, filepath.Base(p), err)
	}
	defer zr.Close()

	for _, zf := range zr.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !zf.Mode().IsRegular() {
			continue
		}

		if err := walkZipEntry(zf, fn); err != nil {
			return err
		}
	}
	return nil
}

func walkZipEntry(zf *zip.File, fn entryFunc) error {
	rc, err := zf.Open()
	if err != nil {
		return fmt.Errorf("%w: failed to open entry %s: %v", shared.ErrFormat, zf.Name, err)
	}
	defer rc.Close()

	return fn(zf.Name, rc)
}
