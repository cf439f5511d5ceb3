package tasks

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tfx/internal/metadata"
	"github.com/desertthunder/tfx/internal/metrics"
	"github.com/desertthunder/tfx/internal/models"
	"github.com/desertthunder/tfx/internal/repositories"
	"github.com/desertthunder/tfx/internal/services"
	"github.com/desertthunder/tfx/internal/shared"
)

// Default budgets, matching config.example.toml.
const (
	DefaultTick          = 100 * time.Millisecond
	DefaultMaxDownloaded = 10
)

var defaultLimits = map[Stage]int{
	StageDownload:       5,
	StageExamine:        5,
	StageMediaProcess:   10,
	StageSidecarProcess: 10,
}

// SchedulerOpts contains the collaborators and budgets of a [Scheduler].
type SchedulerOpts struct {
	Archives ArchiveStore
	Files    FileStore
	Records  RecordStore
	Remote   services.Remote            // Required for the download stage only
	Dates    metadata.CaptureDateReader // Embedded date reader, nil reads none
	Paths    shared.PathsConfig
	Pipeline shared.PipelineConfig // Zero limits fall back to the defaults
	Sink     ProgressSink
	Logger   *log.Logger
}

// unit is the work spawned for one claimed entity. It returns the metrics outcome label.
type unit func(ctx context.Context) string

// Scheduler advances archives and file entries through their lifecycles.
//
// A single loop ticks at a fixed interval. On each tick, every stage with spare budget claims at
// most one eligible entity through an atomic conditional update and runs it as its own goroutine.
// Units write exactly one terminal status and release their budget on success and failure.
type Scheduler struct {
	archives ArchiveStore
	files    FileStore
	remote   services.Remote

	extractor  *Extractor
	associator *Associator
	dates      *DateResolver
	filer      *Filer

	downloads     string
	tick          time.Duration
	maxDownloaded int
	sink          ProgressSink
	logger        *log.Logger

	mu       sync.Mutex
	limits   map[Stage]int
	inFlight map[Stage]int

	running atomic.Bool
	loopGen atomic.Uint64
	loop    sync.WaitGroup
	units   sync.WaitGroup
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(opts SchedulerOpts) *Scheduler {
	sink := opts.Sink
	if sink == nil {
		sink = nopSink{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	s := &Scheduler{
		archives:      opts.Archives,
		files:         opts.Files,
		remote:        opts.Remote,
		extractor:     NewExtractor(opts.Archives, opts.Files, opts.Paths.Extract, sink, logger),
		associator:    NewAssociator(opts.Files, logger),
		dates:         NewDateResolver(opts.Dates),
		filer:         NewFiler(opts.Files, opts.Records, opts.Paths.Library, logger),
		downloads:     opts.Paths.Downloads,
		tick:          opts.Pipeline.Tick(),
		maxDownloaded: opts.Pipeline.MaxDownloaded,
		sink:          sink,
		logger:        logger,
		limits:        make(map[Stage]int, len(Stages)),
		inFlight:      make(map[Stage]int, len(Stages)),
	}

	configured := map[Stage]int{
		StageDownload:       opts.Pipeline.Download,
		StageExamine:        opts.Pipeline.Examine,
		StageMediaProcess:   opts.Pipeline.MediaProcess,
		StageSidecarProcess: opts.Pipeline.SidecarProcess,
	}
	for _, stage := range Stages {
		n := configured[stage]
		if n <= 0 {
			n = defaultLimits[stage]
		}
		s.limits[stage] = n
		metrics.SetStageLimit(stage.String(), n)
	}

	return s
}

// SetStageLimit changes the budget of stage. Units already running are not affected; a lower
// limit only stops new claims until enough of them finish. n may be 0 to pause a stage.
func (s *Scheduler) SetStageLimit(stage Stage, n int) error {
	if stage.String() == "" {
		return fmt.Errorf("%w: unknown stage %d", shared.ErrInvalidArgument, stage)
	}
	if n < 0 {
		return fmt.Errorf("%w: stage limit must not be negative", shared.ErrInvalidArgument)
	}

	s.mu.Lock()
	s.limits[stage] = n
	s.mu.Unlock()

	metrics.SetStageLimit(stage.String(), n)
	s.logger.Info("stage limit changed", "stage", stage, "limit", n)
	return nil
}

func (s *Scheduler) StageLimit(stage Stage) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limits[stage]
}

// InFlight returns the number of running units of stage.
func (s *Scheduler) InFlight(stage Stage) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight[stage]
}

func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

// Start launches the polling loop and returns immediately. The loop exits after the tick in which
// [Scheduler.Stop] is called or ctx is done. Units outlive ctx: they are never cancelled mid-way.
//
// Starting a running scheduler returns an error. Starting right after Stop waits for the previous
// loop to finish its last tick.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("scheduler already running")
	}

	gen := s.loopGen.Add(1)
	s.loop.Wait()

	s.logger.Info("scheduler started", "tick", s.tick)

	s.loop.Add(1)
	go func() {
		defer s.loop.Done()
		defer func() {
			// A newer loop owns the flag.
			if s.loopGen.Load() == gen {
				s.running.Store(false)
			}
		}()

		ticker := time.NewTicker(s.tick)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("scheduler stopping", "reason", ctx.Err())
				return
			case <-ticker.C:
				s.Tick(ctx)
				if !s.running.Load() || s.loopGen.Load() != gen {
					s.logger.Info("scheduler stopped")
					return
				}
			}
		}
	}()

	return nil
}

// Stop flips the running flag. The loop exits after its current tick; running units finish.
func (s *Scheduler) Stop() {
	s.running.Store(false)
}

// Wait blocks until the loop has exited and every spawned unit has finished.
func (s *Scheduler) Wait() {
	s.loop.Wait()
	s.units.Wait()
}

// Recover returns entities left in an in-flight status by an interrupted run to their claimable
// status. It must run before [Scheduler.Start], while no unit owns any entity.
func (s *Scheduler) Recover() (archives, files int64, err error) {
	if s.IsRunning() {
		return 0, 0, fmt.Errorf("cannot recover while the scheduler is running")
	}

	archives, err = s.archives.ResetInFlight()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to reset archives: %w", err)
	}
	files, err = s.files.ResetInFlight()
	if err != nil {
		return archives, 0, fmt.Errorf("failed to reset file entries: %w", err)
	}

	if archives > 0 || files > 0 {
		s.logger.Info("recovered interrupted work", "archives", archives, "files", files)
	}
	return archives, files, nil
}

// Drain ticks until no stage can claim anything and no unit is running, or ctx is done.
// It is the "run once" mode and must not be combined with [Scheduler.Start].
func (s *Scheduler) Drain(ctx context.Context) error {
	if s.IsRunning() {
		return fmt.Errorf("cannot drain while the scheduler is running")
	}

	for {
		claimed := s.Tick(ctx)
		if claimed == 0 && s.idle() {
			// A unit finishing between the tick and the idle check may have made work eligible.
			if s.Tick(ctx) == 0 && s.idle() {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			s.units.Wait()
			return ctx.Err()
		case <-time.After(s.tick):
		}
	}
}

func (s *Scheduler) idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.inFlight {
		if n > 0 {
			return false
		}
	}
	return true
}

// Tick runs one pass over the stages and returns the number of claims made.
// Claim errors are logged; they never stop the loop.
func (s *Scheduler) Tick(ctx context.Context) int {
	claimed := 0

	for _, stage := range Stages {
		if s.InFlight(stage) >= s.StageLimit(stage) {
			continue
		}

		work, err := s.claim(stage)
		if err != nil {
			s.logger.Error("claim failed", "stage", stage, "error", err)
			continue
		}
		if work == nil {
			continue
		}

		claimed++
		s.spawn(ctx, stage, work)
	}

	return claimed
}

// claim performs the conditional update for stage and returns the unit for the claimed entity,
// or nil when nothing is eligible.
func (s *Scheduler) claim(stage Stage) (unit, error) {
	switch stage {
	case StageDownload:
		if s.remote == nil {
			return nil, nil
		}
		var guard *repositories.ClaimGuard
		if s.maxDownloaded > 0 {
			guard = &repositories.ClaimGuard{
				States: []models.ArchiveState{models.ArchiveDownloading, models.ArchiveDownloaded, models.ArchiveExaminingZip},
				Max:    s.maxDownloaded,
			}
		}
		archive, err := s.archives.ClaimNext(models.ArchiveNew, models.ArchiveDownloading, guard)
		if err != nil || archive == nil {
			return nil, err
		}
		s.logger.Info("archive claimed", "stage", stage, "archive", archive.DisplayName())
		return func(ctx context.Context) string { return s.download(ctx, archive) }, nil

	case StageExamine:
		archive, err := s.archives.ClaimNext(models.ArchiveDownloaded, models.ArchiveExaminingZip, nil)
		if err != nil || archive == nil {
			return nil, err
		}
		s.logger.Info("archive claimed", "stage", stage, "archive", archive.DisplayName())
		return func(ctx context.Context) string { return s.examine(ctx, archive) }, nil

	case StageMediaProcess:
		entry, err := s.files.ClaimNext(models.KindMedia, mediaClaimable, models.FileProcessing)
		if err != nil || entry == nil {
			return nil, err
		}
		s.logger.Debug("entry claimed", "stage", stage, "entry", entry.EntryPath())
		return func(ctx context.Context) string { return s.processMedia(ctx, entry) }, nil

	case StageSidecarProcess:
		entry, err := s.files.ClaimNext(models.KindSidecar, sidecarClaimable, models.FileProcessing)
		if err != nil || entry == nil {
			return nil, err
		}
		s.logger.Debug("entry claimed", "stage", stage, "entry", entry.EntryPath())
		return func(ctx context.Context) string { return s.processSidecar(ctx, entry) }, nil

	default:
		return nil, fmt.Errorf("%w: unknown stage %d", shared.ErrInvalidArgument, stage)
	}
}

// spawn runs work on its own goroutine and releases the stage budget when it returns.
func (s *Scheduler) spawn(ctx context.Context, stage Stage, work unit) {
	s.acquire(stage)
	metrics.ObserveClaim(stage.String())

	s.units.Add(1)
	go func() {
		defer s.units.Done()
		defer s.release(stage)

		start := time.Now()
		outcome := work(context.WithoutCancel(ctx))
		metrics.ObserveUnit(stage.String(), outcome, time.Since(start))
	}()
}

func (s *Scheduler) acquire(stage Stage) {
	s.mu.Lock()
	s.inFlight[stage]++
	n := s.inFlight[stage]
	s.mu.Unlock()
	metrics.SetInFlight(stage.String(), n)
}

func (s *Scheduler) release(stage Stage) {
	s.mu.Lock()
	s.inFlight[stage]--
	n := s.inFlight[stage]
	s.mu.Unlock()
	metrics.SetInFlight(stage.String(), n)
}

// failed logs and counts a unit failure and returns the failed outcome label.
func (s *Scheduler) failed(stage Stage, key string, err error) string {
	s.logger.Error("unit failed", "stage", stage, "entity", key, "class", shared.Classify(err), "error", err)
	metrics.ObserveFailure(stage.String(), err)
	return metrics.OutcomeFailed
}
