package tasks

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/tfx/internal/models"
	"github.com/desertthunder/tfx/internal/repositories"
	"github.com/desertthunder/tfx/internal/services"
	"github.com/desertthunder/tfx/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	shared.ConfigureDatabase(db, 1, 1)
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}
	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	return db
}

// testEnv bundles the repositories and directories one pipeline test works with.
type testEnv struct {
	archives *repositories.ArchiveRepository
	files    *repositories.FileEntryRepository
	records  *repositories.MediaRecordRepository
	paths    shared.PathsConfig
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := setupTestDB(t)
	root := t.TempDir()
	return &testEnv{
		archives: repositories.NewArchiveRepository(db),
		files:    repositories.NewFileEntryRepository(db),
		records:  repositories.NewMediaRecordRepository(db),
		paths: shared.PathsConfig{
			Downloads: filepath.Join(root, "downloads"),
			Extract:   filepath.Join(root, "extract"),
			Library:   filepath.Join(root, "library"),
		},
	}
}

// archive inserts an archive named name. A non-empty staged path moves it to state with that path.
func (e *testEnv) archive(t *testing.T, name string, state models.ArchiveState, staged string) *models.Archive {
	t.Helper()

	a := models.NewArchive(0, "remote-"+name, name, 0)
	if err := e.archives.Create(a); err != nil {
		t.Fatalf("failed to create archive: %v", err)
	}
	if state != models.ArchiveNew {
		a.SetLocalStagingPath(staged)
		a.SetStatus(models.ArchiveStatusOf(state))
		if err := e.archives.Update(a); err != nil {
			t.Fatalf("failed to move archive to %s: %v", state, err)
		}
	}
	return a
}

// entry registers an extracted entry whose file lives at diskPath.
func (e *testEnv) entry(t *testing.T, archiveID, entryPath, diskPath string) *models.FileEntry {
	t.Helper()

	f := models.NewFileEntry(0, archiveID, entryPath, diskPath)
	if err := e.files.Create(f); err != nil {
		t.Fatalf("failed to create entry %s: %v", entryPath, err)
	}
	return f
}

func (e *testEnv) reload(t *testing.T, f *models.FileEntry) *models.FileEntry {
	t.Helper()

	got, err := e.files.Get(f.ID())
	if err != nil {
		t.Fatalf("failed to reload %s: %v", f.EntryPath(), err)
	}
	return got
}

func (e *testEnv) reloadArchive(t *testing.T, a *models.Archive) *models.Archive {
	t.Helper()

	got, err := e.archives.Get(a.ID())
	if err != nil {
		t.Fatalf("failed to reload archive %s: %v", a.DisplayName(), err)
	}
	return got
}

func (e *testEnv) scheduler(remote services.Remote, dates map[string]time.Time, sink ProgressSink) *Scheduler {
	return NewScheduler(SchedulerOpts{
		Archives: e.archives,
		Files:    e.files,
		Records:  e.records,
		Remote:   remote,
		Dates:    fakeDates(dates),
		Paths:    e.paths,
		Pipeline: shared.PipelineConfig{TickMS: 5},
		Sink:     sink,
	})
}

// fakeDates reports embedded dates by file base name.
type fakeDates map[string]time.Time

func (d fakeDates) CaptureDate(path string) (time.Time, bool, error) {
	t, ok := d[filepath.Base(path)]
	return t, ok, nil
}

// fakeRemote serves archives from memory, keyed by external id.
type fakeRemote struct {
	mu    sync.Mutex
	files map[string][]byte
	err   error
	calls int
}

func (r *fakeRemote) Name() string { return "fake" }

func (r *fakeRemote) List(ctx context.Context, folderID string) ([]models.RemoteItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var items []models.RemoteItem
	for id, data := range r.files {
		items = append(items, models.RemoteItem{ID: id, Name: id, Size: int64(len(data))})
	}
	return items, r.err
}

func (r *fakeRemote) Download(ctx context.Context, id string) (*services.Download, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	data, ok := r.files[id]
	if !ok {
		return nil, fmt.Errorf("%w: %w: %s", shared.ErrTransport, shared.ErrRemoteNotFound, id)
	}
	return &services.Download{Name: id, Size: int64(len(data)), Body: io.NopCloser(bytes.NewReader(data))}, nil
}

// recordingSink keeps every progress report.
type recordingSink struct {
	mu      sync.Mutex
	updates []ProgressUpdate
}

func (s *recordingSink) OnProgress(key, label string, fraction float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, ProgressUpdate{Key: key, Label: label, Fraction: fraction})
}

// fractions returns the reports for key and label, in order.
func (s *recordingSink) fractions(key, label string) []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []float64
	for _, u := range s.updates {
		if u.Key == key && u.Label == label {
			out = append(out, u.Fraction)
		}
	}
	return out
}

func assertMonotonic(t *testing.T, fractions []float64) {
	t.Helper()
	for i := 1; i < len(fractions); i++ {
		if fractions[i] < fractions[i-1] {
			t.Fatalf("progress decreased at %d: %v", i, fractions)
		}
	}
}

func assertFileState(t *testing.T, f *models.FileEntry, want models.FileState) {
	t.Helper()
	if got := f.Status().State; got != want {
		t.Errorf("expected %s to be %s, got %s", f.EntryPath(), want, f.Status())
	}
}
