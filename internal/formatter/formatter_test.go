package formatter

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/tfx/internal/models"
	"github.com/desertthunder/tfx/internal/repositories"
	"github.com/desertthunder/tfx/internal/shared"
	th "github.com/desertthunder/tfx/internal/testing"
)

func testReport() *repositories.StatusReport {
	return &repositories.StatusReport{
		GeneratedAt: time.Date(2026, time.January, 2, 3, 4, 5, 0, time.UTC),
		Archives:    map[string]int{"processed_zip": 2, "download_failed": 1},
		Media:       map[string]int{"processed": 3, "no_pair": 1},
		Sidecars:    map[string]int{"processed": 3},
		Records:     3,
		Failures: []repositories.Failure{
			{Archive: "takeout-003.tgz", State: "download_failed", Reason: "transport error: reset"},
			{Archive: "takeout-001.tgz", Entry: "Photos/b.mp4", Kind: "media", State: "no_pair"},
		},
	}
}

func TestParseFormat(t *testing.T) {
	for _, f := range Formats {
		got, err := ParseFormat(string(f))
		if err != nil || got != f {
			t.Errorf("ParseFormat(%q) = %q, %v", f, got, err)
		}
	}

	if _, err := ParseFormat("yaml"); !errors.Is(err, shared.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestExporters(t *testing.T) {
	t.Run("ExportToCSV", func(t *testing.T) {
		data, err := ExportToCSV(testReport(), false)
		if err != nil {
			t.Fatalf("ExportToCSV failed: %v", err)
		}

		output := string(data)
		for _, want := range []string{
			"Entity,State,Count",
			"Archives,processed_zip,2",
			"Media,no_pair,1",
			"Records,created,3",
			"Archive,Entry,Kind,State,Reason",
			"takeout-001.tgz,Photos/b.mp4,media,no_pair,",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("CSV missing %q, got: %s", want, output)
			}
		}

		// lifecycle order, not map order
		if strings.Index(output, "processed_zip") > strings.Index(output, "download_failed,1") {
			t.Errorf("expected download_failed before processed_zip")
		}
	})

	t.Run("ExportToCSV Failed Only", func(t *testing.T) {
		data, err := ExportToCSV(testReport(), true)
		if err != nil {
			t.Fatalf("ExportToCSV failed: %v", err)
		}

		output := string(data)
		if strings.Contains(output, "Entity,State,Count") {
			t.Errorf("expected counts to be omitted, got: %s", output)
		}
		if !strings.HasPrefix(output, "Archive,Entry,Kind,State,Reason") {
			t.Errorf("expected failures header first, got: %s", output)
		}
	})

	t.Run("ExportToMarkdown", func(t *testing.T) {
		data, err := ExportToMarkdown(testReport(), false)
		if err != nil {
			t.Fatalf("ExportToMarkdown failed: %v", err)
		}

		output := string(data)
		for _, want := range []string{
			"# tfx status",
			"**Media records**: 3",
			"## Archives (3)",
			"| processed_zip | 2 |",
			"## Sidecars (3)",
			"## Failures (2)",
			"| takeout-003.tgz | - | download_failed | transport error: reset |",
			"| takeout-001.tgz | Photos/b.mp4 | no_pair | - |",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("Markdown missing %q, got: %s", want, output)
			}
		}
	})

	t.Run("ExportToMarkdown Empty", func(t *testing.T) {
		report := &repositories.StatusReport{Archives: map[string]int{}, Media: map[string]int{}, Sidecars: map[string]int{}}

		data, err := ExportToMarkdown(report, false)
		if err != nil {
			t.Fatalf("ExportToMarkdown failed: %v", err)
		}
		if !strings.Contains(string(data), "## Media (0)\n\n_none_") {
			t.Errorf("expected empty sections, got: %s", data)
		}
	})

	t.Run("ExportToText", func(t *testing.T) {
		data, err := ExportToText(testReport(), false)
		if err != nil {
			t.Fatalf("ExportToText failed: %v", err)
		}

		output := string(data)
		for _, want := range []string{
			"Archives: 3",
			"Media: 4",
			"Media records: 3",
			"Failures: 2",
			"1. takeout-003.tgz [download_failed] transport error: reset",
			"2. takeout-001.tgz:Photos/b.mp4 [no_pair]",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("Text missing %q, got: %s", want, output)
			}
		}
	})

	t.Run("ExportToText No Failures", func(t *testing.T) {
		report := testReport()
		report.Failures = nil

		data, _ := ExportToText(report, true)
		if strings.TrimSpace(string(data)) != "No failures" {
			t.Errorf("unexpected output: %q", data)
		}
	})

	t.Run("ExportToJSON", func(t *testing.T) {
		data, err := ExportToJSON(testReport(), false)
		if err != nil {
			t.Fatalf("ExportToJSON failed: %v", err)
		}

		var decoded repositories.StatusReport
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if decoded.Records != 3 || decoded.Archives["processed_zip"] != 2 {
			t.Errorf("unexpected decoded report: %+v", decoded)
		}

		data, _ = ExportToJSON(testReport(), true)
		var failures []repositories.Failure
		if err := json.Unmarshal(data, &failures); err != nil || len(failures) != 2 {
			t.Errorf("expected failure list, got %s (%v)", data, err)
		}
	})

	t.Run("Render", func(t *testing.T) {
		for _, f := range []Format{FormatText, FormatMarkdown, FormatCSV, FormatJSON} {
			if _, err := Render(testReport(), f, false); err != nil {
				t.Errorf("Render(%s) failed: %v", f, err)
			}
		}
		if _, err := Render(testReport(), FormatTree, false); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected tree to be rejected, got %v", err)
		}
	})
}

func TestArchiveTree(t *testing.T) {
	archive := models.NewArchive(1, "drive-1", "takeout-001.tgz", 100)
	archive.SetID("a1")
	archive.MarkProcessed()

	entry := func(p string, status models.FileStatus) *models.FileEntry {
		e := models.NewFileEntry(0, "a1", p, "/x/"+p)
		e.SetStatus(status)
		return e
	}
	entries := map[string][]*models.FileEntry{
		"a1": {
			entry("Takeout/Google Photos/a.jpg", models.FileStatusOf(models.FileProcessed)),
			entry("Takeout/Google Photos/a.jpg.json", models.FileStatusOf(models.FileProcessed)),
			entry("Takeout/Google Photos/Trip/b.mp4", models.FileStatusOf(models.FileNoPair)),
			entry("c.png", models.Failed("io error: rename")),
		},
	}

	t.Run("All Entries", func(t *testing.T) {
		output := ArchiveTree([]*models.Archive{archive}, entries, false)

		for _, want := range []string{
			"tfx",
			"takeout-001.tgz [processed_zip]",
			"Google Photos",
			"a.jpg [processed]",
			"a.jpg.json [processed]",
			"Trip",
			"b.mp4 [no_pair]",
			"c.png [failed: io error: rename]",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("tree missing %q, got:\n%s", want, output)
			}
		}
		if strings.Count(output, "Google Photos") != 1 {
			t.Errorf("expected directories to be shared, got:\n%s", output)
		}
	})

	t.Run("Failed Only", func(t *testing.T) {
		output := ArchiveTree([]*models.Archive{archive}, entries, true)

		if strings.Contains(output, "a.jpg") {
			t.Errorf("expected processed entries to be hidden, got:\n%s", output)
		}
		if !strings.Contains(output, "b.mp4 [no_pair]") || !strings.Contains(output, "c.png") {
			t.Errorf("expected problem entries, got:\n%s", output)
		}
	})
}

func TestWriteReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.md")

	if err := WriteReport(path, []byte("# tfx status\n")); err != nil {
		t.Fatalf("WriteReport failed: %v", err)
	}
	if got := th.MustReadFile(t, path); got != "# tfx status\n" {
		t.Errorf("unexpected file content: %q", got)
	}
}
