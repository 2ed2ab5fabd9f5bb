package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/skyforge/fitsflow/internal/logger"
	"github.com/skyforge/fitsflow/pkg/storage"
)

// Registry assigns job identifiers and owns live job state. Every
// meaningful mutation goes through it so the journal and the in-memory
// view never diverge.
type Registry struct {
	journal      *Journal
	provider     storage.Provider
	completedTTL time.Duration
	now          func() time.Time

	mu       sync.Mutex
	jobs     map[string]*Job
	resuming map[string]bool
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryClock overrides the time source (used in tests).
func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates a registry backed by the given journal. completedTTL
// bounds how long completed jobs stay resident in memory.
func NewRegistry(journal *Journal, provider storage.Provider, completedTTL time.Duration, opts ...RegistryOption) *Registry {
	r := &Registry{
		journal:      journal,
		provider:     provider,
		completedTTL: completedTTL,
		now:          time.Now,
		jobs:         make(map[string]*Job),
		resuming:     make(map[string]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Journal exposes the backing journal for startup housekeeping.
func (r *Registry) Journal() *Journal {
	return r.journal
}

// Create registers a new pending job for sourceID and journals it.
func (r *Registry) Create(ctx context.Context, sourceID, targetDir string) (*Job, error) {
	if err := ValidateSourceID(sourceID); err != nil {
		return nil, err
	}
	if targetDir != "" {
		if err := storage.ValidateKey(targetDir); err != nil {
			return nil, err
		}
	}

	now := r.now()
	job := &Job{
		ID:        newJobID(),
		SourceID:  sourceID,
		TargetDir: targetDir,
		Status:    StatusPending,
		StartedAt: now,
		UpdatedAt: now,
	}

	r.mu.Lock()
	r.pruneCompletedLocked()
	r.jobs[job.ID] = job
	clone := job.Clone()
	r.mu.Unlock()

	if err := r.journal.Save(ctx, clone); err != nil {
		return nil, err
	}

	logger.InfoCtx(ctx, "job created",
		logger.KeyJobID, job.ID,
		logger.KeySourceID, sourceID)
	return clone, nil
}

// Adopt rehydrates a journaled job into the live registry for a resume.
// The journal entry has already been reconciled by Load.
func (r *Registry) Adopt(job *Job) {
	r.mu.Lock()
	if _, exists := r.jobs[job.ID]; !exists {
		r.jobs[job.ID] = job.Clone()
	}
	r.mu.Unlock()
}

// Get returns a deep copy of the job's current state. If the job is not
// resident it falls back to a reconciled read-only journal snapshot.
func (r *Registry) Get(ctx context.Context, jobID string) (*Job, error) {
	r.mu.Lock()
	job, ok := r.jobs[jobID]
	if ok {
		clone := job.Clone()
		r.mu.Unlock()
		return clone, nil
	}
	r.mu.Unlock()

	return r.journal.Load(ctx, jobID)
}

// Transition atomically moves the job to newStatus, applies the optional
// patch under the lock, and journals the result. Illegal transitions are
// rejected with ErrIllegalTransition.
func (r *Registry) Transition(ctx context.Context, jobID string, newStatus Status, patch func(*Job)) (*Job, error) {
	r.mu.Lock()
	job, ok := r.jobs[jobID]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}

	if !job.Status.CanTransitionTo(newStatus) {
		from := job.Status
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, newStatus)
	}

	job.Status = newStatus
	if patch != nil {
		patch(job)
	}
	job.UpdatedAt = r.now()
	if newStatus.IsTerminal() || newStatus == StatusFailed {
		t := r.now()
		job.CompletedAt = &t
	}
	clone := job.Clone()
	r.mu.Unlock()

	if err := r.journal.Save(ctx, clone); err != nil {
		return nil, err
	}

	logger.InfoCtx(ctx, "job status changed",
		logger.KeyJobID, jobID,
		logger.KeyJobState, string(newStatus))
	return clone, nil
}

// Update applies a progress mutation without a status change and journals
// the result. Used by the engine's progress sink.
func (r *Registry) Update(ctx context.Context, jobID string, apply func(*Job)) (*Job, error) {
	r.mu.Lock()
	job, ok := r.jobs[jobID]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	apply(job)
	job.UpdatedAt = r.now()
	clone := job.Clone()
	r.mu.Unlock()

	if err := r.journal.Save(ctx, clone); err != nil {
		return nil, err
	}
	return clone, nil
}

// UpdateEphemeral applies a progress mutation to live state without
// journaling. The engine uses it for per-chunk byte accounting; the
// throttled progress sink persists via Checkpoint.
func (r *Registry) UpdateEphemeral(jobID string, apply func(*Job)) (*Job, error) {
	r.mu.Lock()
	job, ok := r.jobs[jobID]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	apply(job)
	job.UpdatedAt = r.now()
	clone := job.Clone()
	r.mu.Unlock()
	return clone, nil
}

// Checkpoint journals the job's current live state.
func (r *Registry) Checkpoint(ctx context.Context, jobID string) (*Job, error) {
	r.mu.Lock()
	job, ok := r.jobs[jobID]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	clone := job.Clone()
	r.mu.Unlock()

	if err := r.journal.Save(ctx, clone); err != nil {
		return nil, err
	}
	return clone, nil
}

// ResumableSummary is one row of ListResumable.
type ResumableSummary struct {
	JobID           string    `json:"job_id"`
	SourceID        string    `json:"source_id"`
	Status          Status    `json:"status"`
	TotalFiles      int       `json:"total_files"`
	CompletedFiles  int       `json:"completed_files"`
	TotalBytes      int64     `json:"total_bytes"`
	DownloadedBytes int64     `json:"downloaded_bytes"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ListResumable surfaces journaled jobs that can be resumed, deduplicated
// by source: when several candidates target the same source_id, the one
// with the most downloaded bytes wins and the losers' journal entries are
// deleted.
func (r *Registry) ListResumable(ctx context.Context) ([]ResumableSummary, error) {
	entries, err := r.journal.LoadAll(ctx)
	if err != nil {
		return nil, err
	}

	best := make(map[string]*Job)
	var losers []*Job
	for _, job := range entries {
		if !job.IsResumable() {
			continue
		}
		cur, ok := best[job.SourceID]
		if !ok {
			best[job.SourceID] = job
			continue
		}
		if job.DownloadedBytes > cur.DownloadedBytes {
			losers = append(losers, cur)
			best[job.SourceID] = job
		} else {
			losers = append(losers, job)
		}
	}

	for _, loser := range losers {
		if err := r.journal.Delete(ctx, loser.ID); err != nil {
			logger.Warn("failed to remove duplicate resumable entry",
				logger.KeyJobID, loser.ID,
				logger.KeyError, err.Error())
		}
	}

	out := make([]ResumableSummary, 0, len(best))
	for _, job := range best {
		out = append(out, ResumableSummary{
			JobID:           job.ID,
			SourceID:        job.SourceID,
			Status:          job.Status,
			TotalFiles:      len(job.Files),
			CompletedFiles:  job.CompletedFiles(),
			TotalBytes:      job.TotalBytes,
			DownloadedBytes: job.DownloadedBytes,
			UpdatedAt:       job.UpdatedAt,
		})
	}
	return out, nil
}

// Dismiss removes a job's journal entry and in-memory state. With
// deleteFiles it also removes the job's completed files and partials from
// storage, returning how many objects were deleted.
func (r *Registry) Dismiss(ctx context.Context, jobID string, deleteFiles bool) (int, error) {
	job, err := r.Get(ctx, jobID)
	if err != nil {
		return 0, err
	}

	deleted := 0
	if deleteFiles {
		for _, f := range job.Files {
			for _, key := range []string{f.LocalKey, f.PartKey()} {
				if ok, err := r.provider.Exists(ctx, key); err == nil && ok {
					if err := r.provider.Delete(ctx, key); err == nil {
						deleted++
					}
				}
			}
		}
	}

	if err := r.journal.Delete(ctx, jobID); err != nil {
		return deleted, err
	}

	r.mu.Lock()
	delete(r.jobs, jobID)
	r.mu.Unlock()

	logger.InfoCtx(ctx, "job dismissed",
		logger.KeyJobID, jobID,
		"files_deleted", deleted)
	return deleted, nil
}

// AcquireResume marks jobID as being resumed. A second concurrent acquire
// for the same job fails with ErrResumeConflict. The caller must release
// on the download goroutine's exit path.
func (r *Registry) AcquireResume(jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resuming[jobID] {
		return fmt.Errorf("%w: %s", ErrResumeConflict, jobID)
	}
	r.resuming[jobID] = true
	return nil
}

// ReleaseResume clears the concurrent-resume guard for jobID.
func (r *Registry) ReleaseResume(jobID string) {
	r.mu.Lock()
	delete(r.resuming, jobID)
	r.mu.Unlock()
}

// ActiveIDs returns the IDs of jobs currently resident in memory.
func (r *Registry) ActiveIDs() map[string]bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make(map[string]bool, len(r.jobs))
	for id := range r.jobs {
		ids[id] = true
	}
	return ids
}

// pruneCompletedLocked drops terminal in-memory entries older than the
// completed TTL. Caller holds r.mu. Journal entries are untouched;
// housekeeping owns their retention.
func (r *Registry) pruneCompletedLocked() {
	cutoff := r.now().Add(-r.completedTTL)
	for id, job := range r.jobs {
		if job.Status.IsTerminal() && job.UpdatedAt.Before(cutoff) {
			delete(r.jobs, id)
		}
	}
}
