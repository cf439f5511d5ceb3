// package formatter renders pipeline status reports as CSV, Markdown, plain text, JSON or a tree
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path"
	"sort"
	"strconv"

	"github.com/desertthunder/tfx/internal/models"
	"github.com/desertthunder/tfx/internal/repositories"
	"github.com/desertthunder/tfx/internal/shared"
	"github.com/disiqueira/gotree/v3"
)

// Format names an output format of `tfx status`.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatCSV      Format = "csv"
	FormatJSON     Format = "json"
	FormatTree     Format = "tree"
)

// Formats lists the supported formats.
var Formats = []Format{FormatText, FormatMarkdown, FormatCSV, FormatJSON, FormatTree}

// ParseFormat converts a flag value into a [Format].
func ParseFormat(s string) (Format, error) {
	for _, f := range Formats {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: unknown format %q (want text, markdown, csv, json or tree)", shared.ErrInvalidArgument, s)
}

// section is one block of state counts in lifecycle order.
type section struct {
	name   string
	counts map[string]int
	order  []string
}

func sections(report *repositories.StatusReport) []section {
	archiveOrder := make([]string, 0, len(models.ArchiveStates))
	for _, s := range models.ArchiveStates {
		archiveOrder = append(archiveOrder, s.String())
	}
	fileOrder := make([]string, 0, len(models.FileStates))
	for _, s := range models.FileStates {
		fileOrder = append(fileOrder, s.String())
	}

	return []section{
		{"Archives", report.Archives, archiveOrder},
		{"Media", report.Media, fileOrder},
		{"Sidecars", report.Sidecars, fileOrder},
	}
}

// ExportToCSV renders one row per entity and state with columns: Entity, State, Count.
//
// Failed and parked entities follow as rows with columns: Archive, Entry, Kind, State, Reason.
func ExportToCSV(report *repositories.StatusReport, failedOnly bool) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if !failedOnly {
		if err := writer.Write([]string{"Entity", "State", "Count"}); err != nil {
			return nil, fmt.Errorf("failed to write CSV headers: %w", err)
		}
		for _, s := range sections(report) {
			for _, state := range s.order {
				n, ok := s.counts[state]
				if !ok {
					continue
				}
				if err := writer.Write([]string{s.name, state, strconv.Itoa(n)}); err != nil {
					return nil, fmt.Errorf("failed to write CSV record: %w", err)
				}
			}
		}
		if err := writer.Write([]string{"Records", "created", strconv.Itoa(report.Records)}); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	if failedOnly || len(report.Failures) > 0 {
		if !failedOnly {
			writer.Write(nil)
		}
		if err := writer.Write([]string{"Archive", "Entry", "Kind", "State", "Reason"}); err != nil {
			return nil, fmt.Errorf("failed to write CSV headers: %w", err)
		}
		for _, f := range report.Failures {
			if err := writer.Write([]string{f.Archive, f.Entry, f.Kind, f.State, f.Reason}); err != nil {
				return nil, fmt.Errorf("failed to write CSV record: %w", err)
			}
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown renders the report as tables, one per entity kind, followed by a failures table.
func ExportToMarkdown(report *repositories.StatusReport, failedOnly bool) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString("# tfx status\n\n")
	buf.WriteString(fmt.Sprintf("**Generated**: %s\n", report.GeneratedAt.Format("2006-01-02 15:04:05 MST")))
	buf.WriteString(fmt.Sprintf("**Media records**: %d\n\n", report.Records))

	if !failedOnly {
		for _, s := range sections(report) {
			buf.WriteString(fmt.Sprintf("## %s (%d)\n\n", s.name, repositories.Total(s.counts)))
			if len(s.counts) == 0 {
				buf.WriteString("_none_\n\n")
				continue
			}
			buf.WriteString("| State | Count |\n|-------|------:|\n")
			for _, state := range s.order {
				if n, ok := s.counts[state]; ok {
					buf.WriteString(fmt.Sprintf("| %s | %d |\n", state, n))
				}
			}
			buf.WriteString("\n")
		}
	}

	buf.WriteString(fmt.Sprintf("## Failures (%d)\n\n", len(report.Failures)))
	if len(report.Failures) == 0 {
		buf.WriteString("_none_\n")
		return buf.Bytes(), nil
	}
	buf.WriteString("| Archive | Entry | State | Reason |\n|---------|-------|-------|--------|\n")
	for _, f := range report.Failures {
		buf.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n", f.Archive, dash(f.Entry), f.State, dash(f.Reason)))
	}

	return buf.Bytes(), nil
}

// ExportToText renders the report for a terminal.
func ExportToText(report *repositories.StatusReport, failedOnly bool) ([]byte, error) {
	var buf bytes.Buffer

	if !failedOnly {
		for _, s := range sections(report) {
			buf.WriteString(fmt.Sprintf("%s: %d\n", s.name, repositories.Total(s.counts)))
			for _, state := range s.order {
				if n, ok := s.counts[state]; ok {
					buf.WriteString(fmt.Sprintf("  %-18s %d\n", state, n))
				}
			}
		}
		buf.WriteString(fmt.Sprintf("Media records: %d\n", report.Records))
	}

	if len(report.Failures) > 0 {
		if !failedOnly {
			buf.WriteString("\n")
		}
		buf.WriteString(fmt.Sprintf("Failures: %d\n", len(report.Failures)))
		for i, f := range report.Failures {
			target := f.Archive
			if f.Entry != "" {
				target = f.Archive + ":" + f.Entry
			}
			line := fmt.Sprintf("%d. %s [%s]", i+1, target, f.State)
			if f.Reason != "" {
				line += " " + f.Reason
			}
			buf.WriteString(line + "\n")
		}
	} else if failedOnly {
		buf.WriteString("No failures\n")
	}

	return buf.Bytes(), nil
}

// ExportToJSON renders the report as indented JSON. With failedOnly only the failure list is kept.
func ExportToJSON(report *repositories.StatusReport, failedOnly bool) ([]byte, error) {
	if failedOnly {
		return shared.MarshalJSON(report.Failures, true)
	}
	return shared.MarshalJSON(report, true)
}

// ArchiveTree renders archives and their entries as a directory tree, each node tagged with its status.
//
// entries maps archive id to the archive's entries. With failedOnly only failed or parked entries are shown.
func ArchiveTree(archives []*models.Archive, entries map[string][]*models.FileEntry, failedOnly bool) string {
	root := gotree.New("tfx")

	for _, a := range archives {
		node := root.Add(fmt.Sprintf("%s [%s]", a.DisplayName(), a.Status()))
		dirs := map[string]gotree.Tree{}

		list := append([]*models.FileEntry(nil), entries[a.ID()]...)
		sort.Slice(list, func(i, j int) bool { return list[i].EntryPath() < list[j].EntryPath() })

		for _, e := range list {
			st := e.Status().State
			if failedOnly && !st.IsFailure() && !st.IsParked() {
				continue
			}
			dir := treeDir(node, dirs, path.Dir(e.EntryPath()))
			dir.Add(fmt.Sprintf("%s [%s]", path.Base(e.EntryPath()), e.Status()))
		}
	}

	return root.Print()
}

// treeDir returns the node for dir, creating parents as needed. Entry paths use forward slashes.
func treeDir(root gotree.Tree, dirs map[string]gotree.Tree, dir string) gotree.Tree {
	if dir == "." || dir == "/" || dir == "" {
		return root
	}
	if node, ok := dirs[dir]; ok {
		return node
	}
	node := treeDir(root, dirs, path.Dir(dir)).Add(path.Base(dir))
	dirs[dir] = node
	return node
}

// Render dispatches to the exporter for format. [FormatTree] is built by [ArchiveTree] instead.
func Render(report *repositories.StatusReport, format Format, failedOnly bool) ([]byte, error) {
	switch format {
	case FormatText:
		return ExportToText(report, failedOnly)
	case FormatMarkdown:
		return ExportToMarkdown(report, failedOnly)
	case FormatCSV:
		return ExportToCSV(report, failedOnly)
	case FormatJSON:
		return ExportToJSON(report, failedOnly)
	default:
		return nil, fmt.Errorf("%w: format %q needs the archive listing", shared.ErrInvalidArgument, format)
	}
}

// WriteReport writes data to path, or to stdout when path is empty.
func WriteReport(path string, data []byte) error {
	if path == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
