package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/desertthunder/tfx/internal/metrics"
	"github.com/desertthunder/tfx/internal/models"
	"github.com/desertthunder/tfx/internal/shared"
)

// StagingFile returns the download location of archive under dir.
func StagingFile(dir string, archive *models.Archive) string {
	name := filepath.Base(strings.ReplaceAll(archive.DisplayName(), "\\", "/"))
	return filepath.Join(dir, archive.ID()+"-"+name)
}

// download streams the archive into the downloads directory. Terminal statuses: downloaded or
// download_failed.
func (s *Scheduler) download(ctx context.Context, archive *models.Archive) string {
	key := archive.DisplayName()
	s.sink.OnProgress(key, StageDownload.String(), 0)

	path, size, err := s.fetch(ctx, archive)
	if err != nil {
		archive.Fail(models.DownloadFailed(shared.Reason(err)))
		if uerr := s.archives.Update(archive); uerr != nil {
			s.logger.Error("failed to record download failure", "archive", key, "error", uerr)
		}
		return s.failed(StageDownload, key, err)
	}

	archive.MarkDownloaded(path, size)
	if err := s.archives.Update(archive); err != nil {
		os.Remove(path)
		archive.Fail(models.DownloadFailed(shared.Reason(err)))
		if uerr := s.archives.Update(archive); uerr != nil {
			s.logger.Error("failed to record download failure", "archive", key, "error", uerr)
		}
		return s.failed(StageDownload, key, err)
	}

	metrics.AddDownloadedBytes(size)
	s.sink.OnProgress(key, StageDownload.String(), 1)
	s.logger.Info("archive downloaded", "archive", key, "bytes", size)
	return metrics.OutcomeDone
}

// fetch writes the remote file to its staging location and returns the path and byte count.
// A partial file is removed on error.
func (s *Scheduler) fetch(ctx context.Context, archive *models.Archive) (string, int64, error) {
	dl, err := s.remote.Download(ctx, archive.ExternalID())
	if err != nil {
		if !errors.Is(err, shared.ErrTransport) {
			err = fmt.Errorf("%w: %v", shared.ErrTransport, err)
		}
		return "", 0, err
	}
	defer dl.Body.Close()

	if err := os.MkdirAll(s.downloads, 0755); err != nil {
		return "", 0, fmt.Errorf("%w: failed to create downloads directory: %v", shared.ErrIO, err)
	}

	path := StagingFile(s.downloads, archive)
	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("%w: failed to create %s: %v", shared.ErrIO, path, err)
	}

	total := dl.Size
	if total <= 0 {
		total = archive.Size()
	}

	key := archive.DisplayName()
	body := newProgressReader(transportReader{dl.Body}, total, func(f float64) {
		s.sink.OnProgress(key, StageDownload.String(), f)
	})

	_, err = io.Copy(f, body)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		if !errors.Is(err, shared.ErrTransport) {
			err = fmt.Errorf("%w: failed to write %s: %v", shared.ErrIO, path, err)
		}
		return "", 0, err
	}

	if dl.Size > 0 && body.N() != dl.Size {
		os.Remove(path)
		return "", 0, fmt.Errorf("%w: short download, got %d of %d bytes", shared.ErrTransport, body.N(), dl.Size)
	}

	return path, body.N(), nil
}

// transportReader marks read errors of a remote stream as transport errors.
type transportReader struct {
	r io.Reader
}

func (t transportReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF {
		err = fmt.Errorf("%w: %v", shared.ErrTransport, err)
	}
	return n, err
}

// examine extracts a claimed archive. The extractor writes the terminal status.
func (s *Scheduler) examine(ctx context.Context, archive *models.Archive) string {
	count, err := s.extractor.Extract(ctx, archive)
	if err != nil {
		return s.failed(StageExamine, archive.DisplayName(), err)
	}

	s.logger.Info("archive extracted", "archive", archive.DisplayName(), "entries", count)
	return metrics.OutcomeDone
}
