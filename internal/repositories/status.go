package repositories

import (
	"fmt"
	"time"

	"github.com/desertthunder/tfx/internal/models"
)

// StatusReport is a point-in-time view of the pipeline built from the three repositories.
//
// Count maps are keyed by the persisted state names so the report encodes as-is to JSON.
type StatusReport struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Archives    map[string]int `json:"archives"`
	Media       map[string]int `json:"media"`
	Sidecars    map[string]int `json:"sidecars"`
	Records     int            `json:"records"`
	Failures    []Failure      `json:"failures"`
}

// Failure is one failed or parked entity in a [StatusReport].
type Failure struct {
	Archive string `json:"archive"`
	Entry   string `json:"entry,omitempty"` // Empty for archive failures
	Kind    string `json:"kind,omitempty"`
	State   string `json:"state"`
	Reason  string `json:"reason,omitempty"`
}

// Total sums the counts of m.
func Total(m map[string]int) int {
	n := 0
	for _, v := range m {
		n += v
	}
	return n
}

// LoadStatusReport counts every entity by state and collects failed archives followed by problem entries.
func LoadStatusReport(archives *ArchiveRepository, files *FileEntryRepository, records *MediaRecordRepository) (*StatusReport, error) {
	report := &StatusReport{
		GeneratedAt: time.Now().UTC(),
		Archives:    make(map[string]int),
		Media:       make(map[string]int),
		Sidecars:    make(map[string]int),
		Failures:    []Failure{},
	}

	archiveCounts, err := archives.CountByState()
	if err != nil {
		return nil, err
	}
	for state, n := range archiveCounts {
		report.Archives[state.String()] = n
	}

	for kind, dst := range map[models.Kind]map[string]int{models.KindMedia: report.Media, models.KindSidecar: report.Sidecars} {
		counts, err := files.CountByState(kind)
		if err != nil {
			return nil, err
		}
		for state, n := range counts {
			dst[state.String()] = n
		}
	}

	if report.Records, err = records.Count(); err != nil {
		return nil, err
	}

	for _, state := range models.ArchiveStates {
		if !state.IsFailure() || archiveCounts[state] == 0 {
			continue
		}
		failed, err := archives.List(map[string]any{"status": state})
		if err != nil {
			return nil, fmt.Errorf("failed to list %s archives: %w", state, err)
		}
		for _, a := range failed {
			report.Failures = append(report.Failures, Failure{
				Archive: a.DisplayName(),
				State:   a.Status().State.String(),
				Reason:  a.Status().Reason,
			})
		}
	}

	problems, err := files.ListProblems()
	if err != nil {
		return nil, err
	}
	for _, p := range problems {
		report.Failures = append(report.Failures, Failure{
			Archive: p.ArchiveName,
			Entry:   p.EntryPath,
			Kind:    string(p.Kind),
			State:   p.Status.State.String(),
			Reason:  p.Status.Reason,
		})
	}

	return report, nil
}
