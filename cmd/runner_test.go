package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/tfx/internal/models"
	"github.com/desertthunder/tfx/internal/services"
	"github.com/desertthunder/tfx/internal/shared"
	tu "github.com/desertthunder/tfx/internal/testing"
)

// fakeRemote serves in-memory archives and lists them along with one folder.
type fakeRemote struct {
	mu    sync.Mutex
	files map[string][]byte
}

func (f *fakeRemote) Name() string { return "fake drive" }

func (f *fakeRemote) List(ctx context.Context, folderID string) ([]models.RemoteItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	items := []models.RemoteItem{{ID: "folder-1", Name: "older", IsFolder: true}}
	for _, id := range []string{"takeout-001.tgz", "takeout-002.tgz"} {
		if data, ok := f.files[id]; ok {
			items = append(items, models.RemoteItem{ID: id, Name: id, Size: int64(len(data))})
		}
	}
	return items, nil
}

func (f *fakeRemote) Download(ctx context.Context, id string) (*services.Download, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, ok := f.files[id]
	if !ok {
		return nil, fmt.Errorf("%w: %w: %s", shared.ErrTransport, shared.ErrRemoteNotFound, id)
	}
	return &services.Download{Name: id, Size: int64(len(data)), Body: io.NopCloser(bytes.NewReader(data))}, nil
}

// testConfig points every path and the database into a temporary directory.
func testConfig(t *testing.T) *shared.Config {
	t.Helper()

	dir := t.TempDir()
	config := shared.DefaultConfig()
	config.Database.Path = filepath.Join(dir, "tfx.db")
	config.Paths = shared.PathsConfig{
		Downloads: filepath.Join(dir, "downloads"),
		Extract:   filepath.Join(dir, "extract"),
		Library:   filepath.Join(dir, "library"),
	}
	config.Pipeline.TickMS = 5
	config.Remote.FolderID = "takeout-folder"
	return config
}

func newTestRunner(t *testing.T, config *shared.Config, remote services.Remote) (*Runner, *bytes.Buffer) {
	t.Helper()

	output := &bytes.Buffer{}
	runner := NewRunner(RunnerOpts{
		Config: config,
		Remote: remote,
		Logger: shared.NewLogger(io.Discard),
		Output: output,
	})
	t.Cleanup(func() { runner.Close() })
	return runner, output
}

// run executes the app with a config path that does not exist, so the runner keeps its config.
func run(t *testing.T, r *Runner, args ...string) error {
	t.Helper()

	missing := filepath.Join(t.TempDir(), "missing.toml")
	return newApp(r).Run(context.Background(), append([]string{"tfx", "--config", missing}, args...))
}

func takeoutRemote(t *testing.T) *fakeRemote {
	t.Helper()

	path := filepath.Join(t.TempDir(), "takeout.tgz")
	tu.WriteTarGz(t, path, tu.Files(map[string]string{
		"Takeout/Google Photos/a.jpg":      "jpeg",
		"Takeout/Google Photos/a.jpg.json": `{"title":"a.jpg","photoTakenTime":{"timestamp":"1000000000"}}`,
		"Takeout/Google Photos/b.mp4":      "mp4",
	}))
	return &fakeRemote{files: map[string][]byte{"takeout-001.tgz": []byte(tu.MustReadFile(t, path))}}
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			remote := &fakeRemote{}

			runner := NewRunner(RunnerOpts{
				Config:     config,
				ConfigPath: "/test/path/config.toml",
				Remote:     remote,
				Logger:     logger,
				Output:     output,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.remote != remote {
				t.Error("expected remote to be set")
			}
			if runner.configPath != "/test/path/config.toml" {
				t.Errorf("expected configPath to be set, got %s", runner.configPath)
			}
		})

		t.Run("with nil options uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.config == nil {
				t.Error("expected default config to be set")
			}
			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
			if runner.remote != nil || runner.db != nil {
				t.Error("expected remote and database to be opened lazily")
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		commands := runner.register()

		expected := []string{"setup", "auth", "archives", "run", "status", "export", "watch"}
		if len(commands) != len(expected) {
			t.Fatalf("expected %d commands, got %d", len(expected), len(commands))
		}
		for i, name := range expected {
			if commands[i].Name != name {
				t.Errorf("expected command %d to be %s, got %s", i, name, commands[i].Name)
			}
		}
	})

	t.Run("Close without database", func(t *testing.T) {
		if err := NewRunner(RunnerOpts{}).Close(); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestConfigure(t *testing.T) {
	t.Run("Loads Existing File", func(t *testing.T) {
		config := testConfig(t)
		path := filepath.Join(t.TempDir(), "config.toml")
		if err := shared.SaveConfig(path, config); err != nil {
			t.Fatalf("failed to save config: %v", err)
		}

		runner, _ := newTestRunner(t, nil, nil)
		if err := newApp(runner).Run(context.Background(), []string{"tfx", "-c", path, "status"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if runner.configPath != path {
			t.Errorf("expected config path %s, got %s", path, runner.configPath)
		}
		if runner.config.Database.Path != config.Database.Path {
			t.Errorf("expected database %s, got %s", config.Database.Path, runner.config.Database.Path)
		}
	})

	t.Run("Missing File Keeps Config", func(t *testing.T) {
		config := testConfig(t)
		runner, _ := newTestRunner(t, config, nil)

		if err := run(t, runner, "status"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if runner.config != config {
			t.Error("expected the provided config to be kept")
		}
	})

	t.Run("Invalid File", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		tu.MustWriteFile(t, path, []byte("[pipeline]\ndownload = -1\n"))

		runner, _ := newTestRunner(t, testConfig(t), nil)
		err := newApp(runner).Run(context.Background(), []string{"tfx", "--config", path, "status"})
		if !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})
}

func TestSetup(t *testing.T) {
	t.Run("Database", func(t *testing.T) {
		wd := tu.MustGetwd(t)
		dir := t.TempDir()
		tu.MustChdir(t, dir)
		t.Cleanup(func() { tu.MustChdir(t, wd) })

		runner, output := newTestRunner(t, nil, nil)
		if err := newApp(runner).Run(context.Background(), []string{"tfx", "setup", "database"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		tu.AssertFileExists(t, filepath.Join(dir, "config.toml"))
		tu.AssertFileExists(t, filepath.Join(dir, "tfx.db"))
		tu.AssertDirExists(t, filepath.Join(dir, "takeout", "library"))

		if !strings.Contains(output.String(), "Database ready") {
			t.Errorf("unexpected output: %q", output.String())
		}
	})

	t.Run("Migrations And Rollback", func(t *testing.T) {
		runner, output := newTestRunner(t, testConfig(t), nil)

		if err := run(t, runner, "setup", "database"); err != nil {
			t.Fatalf("setup failed: %v", err)
		}
		output.Reset()

		if err := run(t, runner, "setup", "migrations"); err != nil {
			t.Fatalf("migrations failed: %v", err)
		}
		if !strings.Contains(output.String(), "0000") || !strings.Contains(output.String(), "0001") {
			t.Errorf("expected both migrations listed, got %q", output.String())
		}

		if err := run(t, runner, "setup", "rollback"); err != nil {
			t.Fatalf("rollback failed: %v", err)
		}
		output.Reset()

		if err := run(t, runner, "setup", "migrations"); err != nil {
			t.Fatalf("migrations failed: %v", err)
		}
		if strings.Contains(output.String(), "0001") {
			t.Errorf("expected 0001 to be rolled back, got %q", output.String())
		}
	})
}

func TestArchives(t *testing.T) {
	t.Run("List", func(t *testing.T) {
		runner, output := newTestRunner(t, testConfig(t), takeoutRemote(t))

		if err := run(t, runner, "archives", "list"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		out := output.String()
		if !strings.Contains(out, "Found 2 items") || !strings.Contains(out, "older/ (folder") || !strings.Contains(out, "takeout-001.tgz") {
			t.Errorf("unexpected output: %q", out)
		}
	})

	t.Run("List JSON", func(t *testing.T) {
		runner, output := newTestRunner(t, testConfig(t), takeoutRemote(t))

		if err := run(t, runner, "archives", "list", "--json"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var items []models.RemoteItem
		if err := json.Unmarshal(output.Bytes(), &items); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(items) != 2 || !items[0].IsFolder {
			t.Errorf("unexpected items: %+v", items)
		}
	})

	t.Run("Missing Folder", func(t *testing.T) {
		config := testConfig(t)
		config.Remote.FolderID = "your_takeout_folder_id"
		runner, _ := newTestRunner(t, config, takeoutRemote(t))

		if err := run(t, runner, "archives", "list"); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("Import Is Idempotent", func(t *testing.T) {
		runner, output := newTestRunner(t, testConfig(t), takeoutRemote(t))

		if err := run(t, runner, "archives", "import"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(output.String(), "Imported 1 archives (0 already stored, 1 folders skipped)") {
			t.Errorf("unexpected output: %q", output.String())
		}
		output.Reset()

		if err := run(t, runner, "archives", "import", "--folder", "other"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(output.String(), "Imported 0 archives (1 already stored") {
			t.Errorf("unexpected output: %q", output.String())
		}

		s, _ := runner.openStore()
		archives, err := s.archives.List(nil)
		if err != nil {
			t.Fatalf("failed to list archives: %v", err)
		}
		if len(archives) != 1 || archives[0].Status().State != models.ArchiveNew {
			t.Errorf("expected one new archive, got %d", len(archives))
		}
	})

	t.Run("Show", func(t *testing.T) {
		runner, output := newTestRunner(t, testConfig(t), takeoutRemote(t))

		if err := run(t, runner, "archives", "show"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(output.String(), "No archives stored") {
			t.Errorf("unexpected output: %q", output.String())
		}

		if err := run(t, runner, "archives", "import"); err != nil {
			t.Fatalf("import failed: %v", err)
		}
		if err := run(t, runner, "run", "--once"); err != nil {
			t.Fatalf("run failed: %v", err)
		}
		output.Reset()

		if err := run(t, runner, "archives", "show", "--json", "takeout-001.tgz"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var view archiveView
		if err := json.Unmarshal(output.Bytes(), &view); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if view.Status != "processed_zip" || len(view.Entries) != 3 {
			t.Errorf("unexpected archive view: %+v", view)
		}

		if err := run(t, runner, "archives", "show", "nope"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestRun(t *testing.T) {
	t.Run("Once", func(t *testing.T) {
		config := testConfig(t)
		runner, output := newTestRunner(t, config, takeoutRemote(t))

		if err := run(t, runner, "archives", "import"); err != nil {
			t.Fatalf("import failed: %v", err)
		}
		output.Reset()

		if err := run(t, runner, "run", "--once"); err != nil {
			t.Fatalf("run failed: %v", err)
		}

		out := output.String()
		if !strings.Contains(out, "Media records: 1") {
			t.Errorf("expected one media record, got %q", out)
		}
		if !strings.Contains(out, "no_pair") {
			t.Errorf("expected b.mp4 to be parked, got %q", out)
		}

		dir := filepath.Join(config.Paths.Library, "2001", "September", "9")
		tu.AssertFileExists(t, filepath.Join(dir, "a.jpg"))
		tu.AssertFileExists(t, filepath.Join(dir, "a.jpg.json"))
	})

	t.Run("Stops On Cancel", func(t *testing.T) {
		runner, output := newTestRunner(t, testConfig(t), takeoutRemote(t))

		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()

		missing := filepath.Join(t.TempDir(), "missing.toml")
		if err := newApp(runner).Run(ctx, []string{"tfx", "--config", missing, "run"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(output.String(), "Archives: 0") {
			t.Errorf("expected a summary, got %q", output.String())
		}
	})
}

func TestStatus(t *testing.T) {
	runner, output := newTestRunner(t, testConfig(t), takeoutRemote(t))
	if err := run(t, runner, "archives", "import"); err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if err := run(t, runner, "run", "--once"); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	tests := []struct {
		name     string
		args     []string
		contains []string
	}{
		{"Text", []string{"status"}, []string{"Archives: 1", "processed_zip", "Media records: 1"}},
		{"Markdown", []string{"status", "--format", "markdown"}, []string{"# tfx status", "## Failures (1)"}},
		{"CSV", []string{"status", "--format", "csv"}, []string{"Entity,State,Count", "Records,created,1"}},
		{"JSON Failed", []string{"status", "--format", "json", "--failed"}, []string{`"state": "no_pair"`}},
		{"Tree", []string{"status", "--format", "tree"}, []string{"takeout-001.tgz [processed_zip]", "b.mp4 [no_pair]"}},
		{"Tree Failed", []string{"status", "--format", "tree", "--failed"}, []string{"b.mp4 [no_pair]"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output.Reset()
			if err := run(t, runner, tt.args...); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			for _, s := range tt.contains {
				if !strings.Contains(output.String(), s) {
					t.Errorf("expected output to contain %q, got:\n%s", s, output.String())
				}
			}
		})
	}

	t.Run("Tree Failed Hides Processed", func(t *testing.T) {
		output.Reset()
		if err := run(t, runner, "status", "--format", "tree", "--failed"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.Contains(output.String(), "a.jpg [") {
			t.Errorf("expected processed entries to be hidden, got:\n%s", output.String())
		}
	})

	t.Run("Output File", func(t *testing.T) {
		output.Reset()
		path := filepath.Join(t.TempDir(), "status.md")
		if err := run(t, runner, "status", "--format", "markdown", "-o", path); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if output.Len() != 0 {
			t.Errorf("expected nothing on stdout, got %q", output.String())
		}
		if !strings.Contains(tu.MustReadFile(t, path), "# tfx status") {
			t.Error("expected the report in the output file")
		}
	})

	t.Run("Unknown Format", func(t *testing.T) {
		if err := run(t, runner, "status", "--format", "yaml"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestExport(t *testing.T) {
	runner, output := newTestRunner(t, testConfig(t), takeoutRemote(t))
	if err := run(t, runner, "archives", "import"); err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if err := run(t, runner, "run", "--once"); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "catalog.parquet")

	t.Run("Catalog", func(t *testing.T) {
		output.Reset()
		if err := run(t, runner, "export", "catalog", "--output", path); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(output.String(), "Exported 1 media records") {
			t.Errorf("unexpected output: %q", output.String())
		}
		tu.AssertFileExists(t, path)
	})

	t.Run("Inspect", func(t *testing.T) {
		output.Reset()
		if err := run(t, runner, "export", "inspect", path); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(output.String(), "a.jpg") {
			t.Errorf("expected the record in the output, got %q", output.String())
		}
	})

	t.Run("Since Filters", func(t *testing.T) {
		output.Reset()
		filtered := filepath.Join(t.TempDir(), "recent.parquet")
		if err := run(t, runner, "export", "catalog", "--output", filtered, "--since", "2020-01-01"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(output.String(), "Exported 0 media records") {
			t.Errorf("unexpected output: %q", output.String())
		}
	})

	t.Run("Invalid Since", func(t *testing.T) {
		if err := run(t, runner, "export", "catalog", "--since", "yesterday"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestWatchNeedsTerminal(t *testing.T) {
	runner, _ := newTestRunner(t, testConfig(t), takeoutRemote(t))

	if err := run(t, runner, "watch"); !errors.Is(err, shared.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestHumanSize(t *testing.T) {
	tests := []struct {
		in       int64
		expected string
	}{
		{-1, "unknown"},
		{512, "512 B"},
		{2048, "2.0 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
	}
	for _, tt := range tests {
		if got := humanSize(tt.in); got != tt.expected {
			t.Errorf("humanSize(%d) = %q, want %q", tt.in, got, tt.expected)
		}
	}
}
