package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/skyforge/fitsflow/internal/logger"
	"github.com/skyforge/fitsflow/pkg/storage"
)

// StateDir is the storage key prefix the journal writes under.
const StateDir = ".download_state"

// Journal persists one JSON file per job through the storage provider.
// Writes are atomic (the provider commits via rename or native put), so a
// crash never leaves a torn journal entry.
type Journal struct {
	provider  storage.Provider
	retention time.Duration
	now       func() time.Time
}

// JournalOption configures a Journal.
type JournalOption func(*Journal)

// WithJournalClock overrides the time source (used in tests).
func WithJournalClock(now func() time.Time) JournalOption {
	return func(j *Journal) { j.now = now }
}

// NewJournal creates a journal over the given provider. retention bounds
// how long terminal entries and orphaned .part files survive housekeeping.
func NewJournal(provider storage.Provider, retention time.Duration, opts ...JournalOption) *Journal {
	j := &Journal{
		provider:  provider,
		retention: retention,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// key maps a job ID to its journal storage key.
func (j *Journal) key(jobID string) string {
	return StateDir + "/" + jobID + ".json"
}

// Save writes the job's journal entry.
func (j *Journal) Save(ctx context.Context, job *Job) error {
	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal job %s: %w", job.ID, err)
	}

	if err := j.provider.WriteFromBytes(ctx, j.key(job.ID), data); err != nil {
		return fmt.Errorf("failed to journal job %s: %w", job.ID, err)
	}
	return nil
}

// Load reads a job's journal entry and reconciles its file entries against
// on-disk evidence. Returns ErrNotFound if no entry exists.
func (j *Journal) Load(ctx context.Context, jobID string) (*Job, error) {
	path, err := j.provider.ReadToTemp(ctx, j.key(jobID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
		}
		return nil, fmt.Errorf("failed to read journal entry %s: %w", jobID, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read journal entry %s: %w", jobID, err)
	}

	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to parse journal entry %s: %w", jobID, err)
	}

	j.reconcile(ctx, &job)
	return &job, nil
}

// LoadAll reads every journal entry. Corrupt entries are logged and
// skipped rather than failing the whole load.
func (j *Journal) LoadAll(ctx context.Context) ([]*Job, error) {
	keys, err := j.provider.List(ctx, StateDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list journal entries: %w", err)
	}

	var out []*Job
	for _, key := range keys {
		if !strings.HasSuffix(key, ".json") {
			continue
		}
		jobID := strings.TrimSuffix(key[strings.LastIndex(key, "/")+1:], ".json")
		job, err := j.Load(ctx, jobID)
		if err != nil {
			logger.Warn("skipping unreadable journal entry",
				logger.KeyJobID, jobID,
				logger.KeyError, err.Error())
			continue
		}
		out = append(out, job)
	}
	return out, nil
}

// Delete removes a job's journal entry. Missing entries are not an error.
func (j *Journal) Delete(ctx context.Context, jobID string) error {
	if err := j.provider.Delete(ctx, j.key(jobID)); err != nil {
		return fmt.Errorf("failed to delete journal entry %s: %w", jobID, err)
	}
	return nil
}

// reconcile aligns file entry statuses with what is actually on storage:
// a final file means complete, a .part means paused at the part's size,
// neither resets the entry to pending. Job totals are recomputed and a job
// journaled mid-download (crashed run) becomes paused.
func (j *Journal) reconcile(ctx context.Context, job *Job) {
	for _, f := range job.Files {
		if info, err := j.provider.Stat(ctx, f.LocalKey); err == nil {
			f.Status = FileStatusComplete
			f.TotalBytes = info.Size
			f.DownloadedBytes = info.Size
			f.Error = ""
			continue
		}
		if info, err := j.provider.Stat(ctx, f.PartKey()); err == nil {
			f.Status = FileStatusPaused
			f.DownloadedBytes = info.Size
			continue
		}
		f.Status = FileStatusPending
		f.DownloadedBytes = 0
	}
	job.RecomputeTotals()

	if job.Status == StatusDownloading || job.Status == StatusFetchingManifest {
		job.Status = StatusPaused
		job.Message = "interrupted; resumable"
	}
	if job.Status != StatusComplete && job.CompletedFiles() == len(job.Files) && len(job.Files) > 0 {
		if job.Status != StatusCancelled {
			job.Status = StatusComplete
		}
	}
}

// Housekeep removes terminal journal entries older than the retention
// window and purges orphaned .part files of the same age. activeIDs names
// jobs currently live in the registry; their entries are never removed.
func (j *Journal) Housekeep(ctx context.Context, activeIDs map[string]bool) {
	cutoff := j.now().Add(-j.retention)

	entries, err := j.LoadAll(ctx)
	if err != nil {
		logger.Warn("journal housekeeping skipped", logger.KeyError, err.Error())
		return
	}

	// Referenced .part keys survive orphan purging
	referenced := make(map[string]bool)
	removed := 0
	for _, job := range entries {
		expired := job.Status.IsTerminal() || job.Status == StatusFailed
		expired = expired && job.UpdatedAt.Before(cutoff) && !activeIDs[job.ID]

		if expired {
			if err := j.Delete(ctx, job.ID); err != nil {
				logger.Warn("failed to remove expired journal entry",
					logger.KeyJobID, job.ID,
					logger.KeyError, err.Error())
				continue
			}
			removed++
			continue
		}
		for _, f := range job.Files {
			referenced[f.PartKey()] = true
		}
	}

	purged := j.purgeOrphanParts(ctx, referenced, cutoff)
	if removed > 0 || purged > 0 {
		logger.Info("journal housekeeping complete",
			"entries_removed", removed,
			"parts_purged", purged)
	}
}

// purgeOrphanParts deletes .part files not referenced by any surviving
// journal entry and older than the cutoff.
func (j *Journal) purgeOrphanParts(ctx context.Context, referenced map[string]bool, cutoff time.Time) int {
	keys, err := j.provider.List(ctx, "")
	if err != nil {
		logger.Warn("orphan .part scan skipped", logger.KeyError, err.Error())
		return 0
	}

	purged := 0
	for _, key := range keys {
		if !strings.HasSuffix(key, ".part") || referenced[key] {
			continue
		}
		info, err := j.provider.Stat(ctx, key)
		if err != nil || !info.ModTime.Before(cutoff) {
			continue
		}
		if err := j.provider.Delete(ctx, key); err != nil {
			logger.Warn("failed to purge orphaned .part file",
				logger.KeyKey, key,
				logger.KeyError, err.Error())
			continue
		}
		purged++
	}
	return purged
}
