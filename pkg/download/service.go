package download

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/skyforge/fitsflow/internal/logger"
	"github.com/skyforge/fitsflow/pkg/jobs"
	"github.com/skyforge/fitsflow/pkg/storage"
)

// ErrNotResumable indicates a resume request for a job that has nothing
// left to resume.
var ErrNotResumable = errors.New("download: job is not resumable")

// run tracks one live engine execution.
type run struct {
	gate *Gate
	done chan struct{}
}

// Service is the control-plane face of the download subsystem. It wires
// manifest resolution, the job registry, and the engine together, owning
// the gate of every live run.
type Service struct {
	registry *jobs.Registry
	resolver Resolver
	provider storage.Provider
	engine   *Engine

	mu     sync.Mutex
	runs   map[string]*run
	latest map[string]jobs.Snapshot
}

// NewService creates the download service. Engine options (S3 source,
// metrics, test HTTP client) are forwarded; the progress sink is owned by
// the service.
func NewService(registry *jobs.Registry, resolver Resolver, provider storage.Provider,
	cfg Config, opts ...EngineOption) *Service {
	s := &Service{
		registry: registry,
		resolver: resolver,
		provider: provider,
		runs:     make(map[string]*run),
		latest:   make(map[string]jobs.Snapshot),
	}
	opts = append(opts, WithProgressSink(s.onProgress))
	s.engine = NewEngine(provider, registry, cfg, opts...)
	return s
}

// onProgress is the engine's throttled sink: it records the latest
// client-facing snapshot and checkpoints the journal.
func (s *Service) onProgress(snapshot jobs.Snapshot) {
	s.mu.Lock()
	s.latest[snapshot.JobID] = snapshot
	s.mu.Unlock()

	if _, err := s.registry.Checkpoint(context.Background(), snapshot.JobID); err != nil &&
		!errors.Is(err, jobs.ErrNotFound) {
		logger.Warn("progress checkpoint failed",
			logger.KeyJobID, snapshot.JobID,
			logger.KeyError, err.Error())
	}
}

// StartResult reports how a start request was satisfied.
type StartResult struct {
	JobID    string `json:"job_id"`
	IsResume bool   `json:"is_resume"`
}

// Start begins downloading sourceID. If a resumable job for the same
// source already exists in the journal it is resumed instead of starting
// over; the result says which happened. targetDir defaults to sourceID.
func (s *Service) Start(ctx context.Context, sourceID, targetDir string, filters []string) (StartResult, error) {
	if err := jobs.ValidateSourceID(sourceID); err != nil {
		return StartResult{}, err
	}
	if targetDir == "" {
		targetDir = sourceID
	}

	summaries, err := s.registry.ListResumable(ctx)
	if err != nil {
		logger.WarnCtx(ctx, "resumable scan failed, starting fresh",
			logger.KeySourceID, sourceID,
			logger.KeyError, err.Error())
	}
	for _, summary := range summaries {
		if summary.SourceID != sourceID {
			continue
		}
		if err := s.Resume(ctx, summary.JobID); err != nil {
			if errors.Is(err, jobs.ErrResumeConflict) {
				return StartResult{}, err
			}
			logger.WarnCtx(ctx, "could not resume existing job, starting fresh",
				logger.KeyJobID, summary.JobID,
				logger.KeyError, err.Error())
			break
		}
		return StartResult{JobID: summary.JobID, IsResume: true}, nil
	}

	job, err := s.registry.Create(ctx, sourceID, targetDir)
	if err != nil {
		return StartResult{}, err
	}

	g := NewGate()
	s.track(job.ID, g)
	go s.runFresh(job.ID, sourceID, targetDir, filters, g)

	return StartResult{JobID: job.ID}, nil
}

// runFresh drives a new job: manifest resolution, then the engine.
func (s *Service) runFresh(jobID, sourceID, targetDir string, filters []string, g *Gate) {
	ctx := jobContext(jobID, sourceID)
	defer s.untrack(jobID)

	if _, err := s.registry.Transition(ctx, jobID, jobs.StatusFetchingManifest, nil); err != nil {
		return
	}

	manifest, err := s.resolver.Resolve(ctx, sourceID, filters)
	if err != nil {
		s.failJob(ctx, jobID, fmt.Errorf("manifest resolution failed: %w", err))
		return
	}
	if len(manifest.Files) == 0 {
		s.failJob(ctx, jobID, fmt.Errorf("no files in manifest for %s", sourceID))
		return
	}

	// An unusable filename skips that entry only; the rest of the
	// manifest still downloads.
	entries := make([]*jobs.FileEntry, 0, len(manifest.Files))
	for _, spec := range manifest.Files {
		name, err := SanitizeFilename(ctx, spec.Filename)
		if err != nil {
			logger.WarnCtx(ctx, "skipping manifest entry with unusable filename",
				logger.KeyFilename, spec.Filename,
				logger.KeyError, err.Error())
			continue
		}
		key, err := storage.JoinKey(targetDir, name)
		if err != nil {
			logger.WarnCtx(ctx, "skipping manifest entry with unusable filename",
				logger.KeyFilename, spec.Filename,
				logger.KeyError, err.Error())
			continue
		}
		entries = append(entries, &jobs.FileEntry{
			Filename:      name,
			RemoteLocator: spec.RemoteLocator,
			LocalKey:      key,
			TotalBytes:    spec.ExpectedSize,
			Status:        jobs.FileStatusPending,
		})
	}
	if len(entries) == 0 {
		s.failJob(ctx, jobID, fmt.Errorf("no usable files in manifest for %s: %w", sourceID, ErrInvalidFilename))
		return
	}

	if _, err := s.registry.Transition(ctx, jobID, jobs.StatusDownloading, func(j *jobs.Job) {
		j.Files = entries
		j.RecomputeTotals()
	}); err != nil {
		return
	}

	s.runEngine(ctx, jobID, g)
}

// Resume continues a paused, failed, or crash-recovered job. A concurrent
// resume of the same job fails with jobs.ErrResumeConflict.
func (s *Service) Resume(ctx context.Context, jobID string) error {
	// A live paused run only needs its gate reopened
	s.mu.Lock()
	if r, ok := s.runs[jobID]; ok {
		s.mu.Unlock()
		if !r.gate.Paused() {
			return fmt.Errorf("%w: %s", jobs.ErrResumeConflict, jobID)
		}
		if _, err := s.registry.Transition(ctx, jobID, jobs.StatusDownloading, markLiveFilesDownloading); err != nil {
			return err
		}
		r.gate.Resume()
		return nil
	}
	s.mu.Unlock()

	if err := s.registry.AcquireResume(jobID); err != nil {
		return err
	}

	job, err := s.registry.Get(ctx, jobID)
	if err != nil {
		s.registry.ReleaseResume(jobID)
		return err
	}
	if !job.IsResumable() {
		s.registry.ReleaseResume(jobID)
		return fmt.Errorf("%w: %s is %s", ErrNotResumable, jobID, job.Status)
	}

	s.registry.Adopt(job)
	if _, err := s.registry.Transition(ctx, jobID, jobs.StatusDownloading, markPausedFilesDownloading); err != nil {
		s.registry.ReleaseResume(jobID)
		return err
	}

	g := NewGate()
	s.track(jobID, g)
	go func() {
		runCtx := jobContext(jobID, job.SourceID)
		defer s.registry.ReleaseResume(jobID)
		defer s.untrack(jobID)
		s.runEngine(runCtx, jobID, g)
	}()
	return nil
}

// markLiveFilesDownloading reopens a live run: its workers are still
// holding their offsets behind the gate, so paused entries go straight
// back to downloading rather than pending.
func markLiveFilesDownloading(j *jobs.Job) {
	j.Error = ""
	j.Message = ""
	for _, f := range j.Files {
		if f.Status == jobs.FileStatusPaused {
			f.Status = jobs.FileStatusDownloading
		}
	}
}

// markPausedFilesDownloading resets resumable file entries for a new run.
func markPausedFilesDownloading(j *jobs.Job) {
	j.Error = ""
	j.Message = ""
	for _, f := range j.Files {
		if f.Status == jobs.FileStatusPaused || f.Status == jobs.FileStatusFailed {
			f.Status = jobs.FileStatusPending
			f.Error = ""
		}
	}
}

// Pause suspends an active job at its next chunk boundary. Returns
// jobs.ErrNotFound when no run is live for the job.
func (s *Service) Pause(ctx context.Context, jobID string) error {
	s.mu.Lock()
	r, ok := s.runs[jobID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: no active run for %s", jobs.ErrNotFound, jobID)
	}

	r.gate.Pause()
	_, err := s.registry.Transition(ctx, jobID, jobs.StatusPaused, func(j *jobs.Job) {
		j.Message = "paused"
		for _, f := range j.Files {
			if f.Status == jobs.FileStatusDownloading {
				f.Status = jobs.FileStatusPaused
			}
		}
	})
	return err
}

// Cancel aborts a job. Live runs are unwound through the gate; journaled
// jobs are cancelled directly. With deleteParts the job's .part files are
// removed once the run has drained; completed files always survive.
func (s *Service) Cancel(ctx context.Context, jobID string, deleteParts bool) error {
	s.mu.Lock()
	r, ok := s.runs[jobID]
	s.mu.Unlock()

	markCancelled := func(j *jobs.Job) {
		j.Message = "cancelled"
	}

	if _, err := s.registry.Transition(ctx, jobID, jobs.StatusCancelled, markCancelled); err != nil {
		switch {
		case ok:
			// The engine may finish the transition itself; keep unwinding
			logger.WarnCtx(ctx, "cancel transition deferred to engine",
				logger.KeyJobID, jobID,
				logger.KeyError, err.Error())
		case errors.Is(err, jobs.ErrNotFound):
			// Journal-only entry left by a previous process: rehydrate so
			// the cancellation reaches the journal
			job, getErr := s.registry.Get(ctx, jobID)
			if getErr != nil {
				return getErr
			}
			s.registry.Adopt(job)
			if _, err := s.registry.Transition(ctx, jobID, jobs.StatusCancelled, markCancelled); err != nil {
				return err
			}
		default:
			return err
		}
	}

	if ok {
		r.gate.Cancel()
		if deleteParts {
			go func() {
				<-r.done
				s.deleteParts(context.Background(), jobID)
			}()
		}
		return nil
	}

	if deleteParts {
		s.deleteParts(ctx, jobID)
	}
	return nil
}

// deleteParts removes every .part partial the job still references.
func (s *Service) deleteParts(ctx context.Context, jobID string) {
	job, err := s.registry.Get(ctx, jobID)
	if err != nil {
		return
	}
	for _, f := range job.Files {
		if f.Status == jobs.FileStatusComplete {
			continue
		}
		if err := s.provider.Delete(ctx, f.PartKey()); err != nil && !errors.Is(err, storage.ErrNotFound) {
			logger.WarnCtx(ctx, "failed to delete partial",
				logger.KeyJobID, jobID,
				logger.KeyKey, f.PartKey(),
				logger.KeyError, err.Error())
		}
	}
}

// Snapshot returns the job's latest progress view. For live runs this is
// the engine's most recent emission (including speed and ETA); otherwise
// it is built from registry or journal state with zero speed.
func (s *Service) Snapshot(ctx context.Context, jobID string) (jobs.Snapshot, error) {
	s.mu.Lock()
	snap, live := s.latest[jobID]
	_, running := s.runs[jobID]
	s.mu.Unlock()
	if live && running {
		return snap, nil
	}

	job, err := s.registry.Get(ctx, jobID)
	if err != nil {
		return jobs.Snapshot{}, err
	}
	return jobs.BuildSnapshot(job, 0), nil
}

// ListResumable surfaces resumable journal entries, deduplicated by
// source.
func (s *Service) ListResumable(ctx context.Context) ([]jobs.ResumableSummary, error) {
	return s.registry.ListResumable(ctx)
}

// Dismiss forgets a job, optionally deleting its files.
func (s *Service) Dismiss(ctx context.Context, jobID string, deleteFiles bool) (int, error) {
	s.mu.Lock()
	_, running := s.runs[jobID]
	s.mu.Unlock()
	if running {
		return 0, fmt.Errorf("%w: %s", jobs.ErrResumeConflict, jobID)
	}
	n, err := s.registry.Dismiss(ctx, jobID, deleteFiles)
	if err == nil {
		s.mu.Lock()
		delete(s.latest, jobID)
		s.mu.Unlock()
	}
	return n, err
}

// runEngine executes the engine and runs journal housekeeping once the
// job settles.
func (s *Service) runEngine(ctx context.Context, jobID string, g *Gate) {
	if err := s.engine.Run(ctx, jobID, g); err != nil && !errors.Is(err, jobs.ErrNotFound) {
		logger.ErrorCtx(ctx, "download run ended with error",
			logger.KeyJobID, jobID,
			logger.KeyError, err.Error())
	}
	s.registry.Journal().Housekeep(ctx, s.registry.ActiveIDs())
}

// failJob records a pre-engine failure (manifest stage).
func (s *Service) failJob(ctx context.Context, jobID string, cause error) {
	logger.ErrorCtx(ctx, "job failed before download started",
		logger.KeyJobID, jobID,
		logger.KeyError, cause.Error())
	if _, err := s.registry.Transition(ctx, jobID, jobs.StatusFailed, func(j *jobs.Job) {
		j.Error = cause.Error()
		j.Message = "failed"
	}); err != nil {
		logger.WarnCtx(ctx, "could not record job failure",
			logger.KeyJobID, jobID,
			logger.KeyError, err.Error())
	}
}

// jobContext builds a background context carrying job-scoped log fields
// for a download goroutine.
func jobContext(jobID, sourceID string) context.Context {
	lc := logger.NewLogContext("")
	lc.JobID = jobID
	lc.SourceID = sourceID
	return logger.WithContext(context.Background(), lc)
}

// track registers a live run.
func (s *Service) track(jobID string, g *Gate) {
	s.mu.Lock()
	s.runs[jobID] = &run{gate: g, done: make(chan struct{})}
	s.mu.Unlock()
}

// untrack closes out a live run.
func (s *Service) untrack(jobID string) {
	s.mu.Lock()
	if r, ok := s.runs[jobID]; ok {
		close(r.done)
		delete(s.runs, jobID)
	}
	s.mu.Unlock()
}

// Shutdown pauses every live run so partials and journal entries are
// consistent before process exit.
func (s *Service) Shutdown(ctx context.Context) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.runs))
	for id := range s.runs {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		if err := s.Pause(ctx, id); err != nil && !errors.Is(err, jobs.ErrNotFound) {
			logger.Warn("failed to pause job during shutdown",
				logger.KeyJobID, id,
				logger.KeyError, err.Error())
		}
	}
}
