package tasks

import (
	"fmt"
	"io"
	"math"
	"sync"
)

// Stage is one kind of unit of work the [Scheduler] budgets separately.
type Stage int

const (
	StageDownload Stage = iota
	StageExamine
	StageMediaProcess
	StageSidecarProcess
)

// Stages lists every stage in the order the scheduler visits them on a tick.
var Stages = []Stage{StageDownload, StageExamine, StageMediaProcess, StageSidecarProcess}

func (s Stage) String() string {
	switch s {
	case StageDownload:
		return "download"
	case StageExamine:
		return "examine"
	case StageMediaProcess:
		return "media_process"
	case StageSidecarProcess:
		return "sidecar_process"
	default:
		return ""
	}
}

// Title is the human readable stage name used by the monitor.
func (s Stage) Title() string {
	switch s {
	case StageDownload:
		return "Download"
	case StageExamine:
		return "Examine"
	case StageMediaProcess:
		return "Media"
	case StageSidecarProcess:
		return "Sidecars"
	default:
		return ""
	}
}

// ParseStage returns the stage named s.
func ParseStage(s string) (Stage, error) {
	for _, stage := range Stages {
		if stage.String() == s {
			return stage, nil
		}
	}
	return 0, fmt.Errorf("unknown stage: %q", s)
}

// ProgressUpdate represents a progress event for one entity.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Key      string  // Entity key, the archive name or the file's entry path
	Label    string  // Stage label, see [Stage.String]
	Fraction float64 // Completion in [0,1]
}

// Done reports whether the update marks the end of the entity's stage.
func (u ProgressUpdate) Done() bool {
	return u.Fraction >= 1
}

// ProgressSink observes progress. It is invoked at least when a stage finishes for an entity
// and at intermediate milestones (download chunks, extracted entries).
//
// Implementations must not block; they run on the unit of work's goroutine.
type ProgressSink interface {
	OnProgress(key, label string, fraction float64)
}

// ProgressFunc adapts a function to [ProgressSink].
type ProgressFunc func(key, label string, fraction float64)

func (f ProgressFunc) OnProgress(key, label string, fraction float64) {
	f(key, label, fraction)
}

// ChannelSink forwards progress into a channel without blocking.
type ChannelSink struct {
	ch chan<- ProgressUpdate
}

// NewChannelSink creates a sink sending to ch. Updates are dropped while ch is full.
func NewChannelSink(ch chan<- ProgressUpdate) *ChannelSink {
	return &ChannelSink{ch: ch}
}

// OnProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func (s *ChannelSink) OnProgress(key, label string, fraction float64) {
	if s == nil || s.ch == nil {
		return
	}
	select {
	case s.ch <- ProgressUpdate{Key: key, Label: label, Fraction: clampFraction(fraction)}:
	default:
		// Channel full, skip this update
	}
}

type nopSink struct{}

func (nopSink) OnProgress(string, string, float64) {}

// clampFraction bounds f to [0,1].
func clampFraction(f float64) float64 {
	switch {
	case f < 0 || math.IsNaN(f):
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}

// fraction is count/total clamped to [0,1], and 0 when total is 0.
func fraction(count, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return clampFraction(float64(count) / float64(total))
}

// progressReader reports the fraction of total read so far. Reports are sent only when the
// whole-percent value changes, so they stay monotonic and bounded in number.
type progressReader struct {
	r     io.Reader
	total int64
	read  int64
	last  int
	once  sync.Once
	emit  func(float64)
}

func newProgressReader(r io.Reader, total int64, emit func(float64)) *progressReader {
	return &progressReader{r: r, total: total, last: -1, emit: emit}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)

	if p.total > 0 {
		f := fraction(p.read, p.total)
		if pct := int(f * 100); pct > p.last {
			p.last = pct
			p.emit(f)
		}
	} else {
		p.once.Do(func() { p.emit(0) })
	}
	return n, err
}

// N returns the number of bytes read.
func (p *progressReader) N() int64 {
	return p.read
}
