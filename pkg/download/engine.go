package download

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/skyforge/fitsflow/internal/logger"
	"github.com/skyforge/fitsflow/pkg/jobs"
	"github.com/skyforge/fitsflow/pkg/storage"
)

// Config holds the engine's transfer tuning.
type Config struct {
	// ChunkSize is the streaming chunk size in bytes
	ChunkSize int64

	// MaxConcurrentFiles caps simultaneous in-flight files per job
	MaxConcurrentFiles int

	// MaxRetries is the per-file transient-failure retry budget
	MaxRetries int

	// RetryBase is the exponential backoff base (base * 2^(attempt-1))
	RetryBase time.Duration

	// ConnectTimeout bounds dial, TLS, and response headers
	ConnectTimeout time.Duration

	// ReadTimeout bounds each chunk read
	ReadTimeout time.Duration

	// S3PartConcurrency is the ranged-GET fan-out for S3 sources
	S3PartConcurrency int

	// SpoolDir holds in-progress partials when the storage provider has
	// no local paths. Defaults to the OS temp dir.
	SpoolDir string

	// ProgressInterval is the minimum spacing between progress
	// emissions. Defaults to 100 ms.
	ProgressInterval time.Duration

	// SpeedWindow is the sliding window for throughput sampling
	SpeedWindow time.Duration
}

// Engine runs download jobs against a storage provider. One Engine is
// shared by all jobs; per-run state (gate, speed window, throttle) is
// created per Run call.
type Engine struct {
	provider   storage.Provider
	registry   *jobs.Registry
	cfg        Config
	httpClient *http.Client
	s3         S3API
	metrics    Metrics
	sink       ProgressSink
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithS3Source provides the client used for s3:// manifest locators.
func WithS3Source(client S3API) EngineOption {
	return func(e *Engine) { e.s3 = client }
}

// WithMetrics attaches transfer instrumentation.
func WithMetrics(m Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithProgressSink attaches the throttled snapshot consumer.
func WithProgressSink(sink ProgressSink) EngineOption {
	return func(e *Engine) { e.sink = sink }
}

// WithHTTPClient overrides the transfer client (used in tests).
func WithHTTPClient(client *http.Client) EngineOption {
	return func(e *Engine) { e.httpClient = client }
}

// NewEngine creates a download engine.
func NewEngine(provider storage.Provider, registry *jobs.Registry, cfg Config, opts ...EngineOption) *Engine {
	if cfg.SpoolDir == "" {
		cfg.SpoolDir = filepath.Join(os.TempDir(), "fitsflow-spool")
	}
	e := &Engine{
		provider:   provider,
		registry:   registry,
		cfg:        cfg,
		httpClient: newHTTPClient(cfg.ConnectTimeout),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes the job's transfers until the job reaches a terminal,
// failed, or cancelled state. The caller owns the gate: Pause blocks all
// workers at the next chunk boundary, Resume releases them, Cancel
// unwinds the whole run. Run blocks while paused.
func (e *Engine) Run(ctx context.Context, jobID string, gate *Gate) error {
	job, err := e.registry.Get(ctx, jobID)
	if err != nil {
		return err
	}

	speed := NewSpeedWindow(e.cfg.SpeedWindow)
	throttle := newProgressThrottle(e.sink, e.cfg.ProgressInterval)
	started := time.Now()

	sem := make(chan struct{}, e.cfg.MaxConcurrentFiles)
	var wg sync.WaitGroup

	for i, f := range job.Files {
		if f.Status == jobs.FileStatusComplete {
			continue
		}

		select {
		case sem <- struct{}{}:
		case <-gate.cancelCh:
		case <-ctx.Done():
		}
		if gate.Cancelled() || ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(idx int) {
			defer func() {
				<-sem
				wg.Done()
			}()
			e.runFile(ctx, gate, jobID, idx, speed, throttle)
		}(i)
	}
	wg.Wait()

	return e.finish(ctx, jobID, gate, speed, throttle, started)
}

// runFile drives one file transfer end to end, including .part
// bookkeeping and terminal file status accounting.
func (e *Engine) runFile(ctx context.Context, gate *Gate, jobID string, idx int,
	speed *SpeedWindow, throttle *progressThrottle) {
	job, err := e.registry.Get(ctx, jobID)
	if err != nil {
		return
	}
	entry := job.Files[idx]

	loc, err := ParseLocator(entry.RemoteLocator)
	if err != nil {
		e.failFile(ctx, jobID, idx, SchemeHTTP, speed, throttle, err)
		return
	}

	pf, err := openPart(ctx, e.provider, entry.LocalKey, e.cfg.SpoolDir)
	if err != nil {
		e.failFile(ctx, jobID, idx, loc.Scheme, speed, throttle, err)
		return
	}

	fileStart := time.Now()
	if clone, uerr := e.registry.UpdateEphemeral(jobID, func(j *jobs.Job) {
		f := j.Files[idx]
		f.Status = jobs.FileStatusDownloading
		if f.StartedAt == nil {
			f.StartedAt = &fileStart
		}
		f.DownloadedBytes = pf.Size()
		f.Error = ""
		j.RecomputeTotals()
	}); uerr == nil {
		throttle.offer(jobs.BuildSnapshot(clone, speed.Speed()))
	}
	if e.metrics != nil {
		e.metrics.FileStarted(loc.Scheme)
	}

	logger.InfoCtx(ctx, "file transfer started",
		logger.KeyJobID, jobID,
		logger.KeyFilename, entry.Filename,
		logger.KeyRemote, loc.String(),
		logger.KeyOffset, pf.Size())

	onTotal := func(total int64) {
		if clone, uerr := e.registry.UpdateEphemeral(jobID, func(j *jobs.Job) {
			j.Files[idx].TotalBytes = total
			j.RecomputeTotals()
		}); uerr == nil {
			throttle.offer(jobs.BuildSnapshot(clone, speed.Speed()))
		}
	}
	onChunk := func(delta int64) {
		if delta > 0 {
			speed.Add(delta)
		}
		if clone, uerr := e.registry.UpdateEphemeral(jobID, func(j *jobs.Job) {
			j.Files[idx].DownloadedBytes += delta
			j.RecomputeTotals()
		}); uerr == nil {
			throttle.offer(jobs.BuildSnapshot(clone, speed.Speed()))
		}
	}

	switch loc.Scheme {
	case SchemeS3:
		err = e.transferS3(ctx, gate, loc, pf, onTotal, onChunk)
	default:
		err = e.transferHTTP(ctx, gate, loc, pf, onTotal, onChunk)
	}

	switch {
	case err == nil:
		if cerr := pf.Commit(ctx); cerr != nil {
			e.stashAndFail(ctx, jobID, idx, loc.Scheme, pf, speed, throttle, cerr)
			return
		}
		now := time.Now()
		size := pf.Size()
		if clone, uerr := e.registry.UpdateEphemeral(jobID, func(j *jobs.Job) {
			f := j.Files[idx]
			f.Status = jobs.FileStatusComplete
			f.DownloadedBytes = size
			f.TotalBytes = size
			f.CompletedAt = &now
			j.RecomputeTotals()
		}); uerr == nil {
			throttle.offer(jobs.BuildSnapshot(clone, speed.Speed()))
		}
		if e.metrics != nil {
			e.metrics.FileCompleted(loc.Scheme, size, time.Since(fileStart))
		}
		logger.InfoCtx(ctx, "file transfer complete",
			logger.KeyJobID, jobID,
			logger.KeyFilename, entry.Filename,
			logger.KeyBytes, size)

	case errors.Is(err, ErrCancelled):
		// Partials are retained on cancel; explicit dismissal deletes them
		if serr := pf.Stash(ctx); serr != nil {
			logger.WarnCtx(ctx, "failed to preserve partial on cancel",
				logger.KeyJobID, jobID,
				logger.KeyFilename, entry.Filename,
				logger.KeyError, serr.Error())
		}
		if _, uerr := e.registry.UpdateEphemeral(jobID, func(j *jobs.Job) {
			j.Files[idx].Status = jobs.FileStatusPaused
		}); uerr != nil && !errors.Is(uerr, jobs.ErrNotFound) {
			logger.WarnCtx(ctx, "failed to record cancelled file state",
				logger.KeyJobID, jobID,
				logger.KeyError, uerr.Error())
		}

	default:
		e.stashAndFail(ctx, jobID, idx, loc.Scheme, pf, speed, throttle, err)
	}
}

// stashAndFail preserves the partial and marks the file failed.
func (e *Engine) stashAndFail(ctx context.Context, jobID string, idx int, scheme LocatorScheme,
	pf *partFile, speed *SpeedWindow, throttle *progressThrottle, cause error) {
	if serr := pf.Stash(ctx); serr != nil {
		logger.WarnCtx(ctx, "failed to preserve partial after failure",
			logger.KeyJobID, jobID,
			logger.KeyError, serr.Error())
	}
	e.failFile(ctx, jobID, idx, scheme, speed, throttle, cause)
}

// failFile records a terminal per-file failure.
func (e *Engine) failFile(ctx context.Context, jobID string, idx int, scheme LocatorScheme,
	speed *SpeedWindow, throttle *progressThrottle, cause error) {
	if clone, uerr := e.registry.UpdateEphemeral(jobID, func(j *jobs.Job) {
		f := j.Files[idx]
		f.Status = jobs.FileStatusFailed
		f.Error = cause.Error()
	}); uerr == nil {
		throttle.offer(jobs.BuildSnapshot(clone, speed.Speed()))
		logger.ErrorCtx(ctx, "file transfer failed",
			logger.KeyJobID, jobID,
			logger.KeyFilename, clone.Files[idx].Filename,
			logger.KeyError, cause.Error())
	}
	if e.metrics != nil {
		e.metrics.FileFailed(scheme)
	}
}

// finish computes and applies the job's end-of-run status.
func (e *Engine) finish(ctx context.Context, jobID string, gate *Gate,
	speed *SpeedWindow, throttle *progressThrottle, started time.Time) error {
	job, err := e.registry.Get(ctx, jobID)
	if err != nil {
		return err
	}

	final := jobs.StatusComplete
	message := "all files downloaded"
	var jobErr string
	switch {
	case gate.Cancelled():
		final = jobs.StatusCancelled
		message = "cancelled"
	default:
		for _, f := range job.Files {
			if f.Status == jobs.FileStatusFailed {
				final = jobs.StatusFailed
				message = "one or more files failed"
				jobErr = f.Error
				break
			}
		}
	}

	if job.Status == final {
		throttle.force(jobs.BuildSnapshot(job, speed.Speed()))
	} else {
		updated, terr := e.registry.Transition(ctx, jobID, final, func(j *jobs.Job) {
			j.Message = message
			j.Error = jobErr
		})
		if terr != nil {
			// The control plane may have moved the job first (e.g. a
			// cancel that raced completion); keep its decision.
			logger.WarnCtx(ctx, "end-of-run status not applied",
				logger.KeyJobID, jobID,
				logger.KeyJobState, string(final),
				logger.KeyError, terr.Error())
			throttle.force(jobs.BuildSnapshot(job, speed.Speed()))
		} else {
			throttle.force(jobs.BuildSnapshot(updated, speed.Speed()))
		}
	}

	if e.metrics != nil {
		e.metrics.JobFinished(string(final))
	}
	logger.InfoCtx(ctx, "download run finished",
		logger.KeyJobID, jobID,
		logger.KeyJobState, string(final),
		logger.KeyDurationMs, time.Since(started).Milliseconds())

	if final == jobs.StatusFailed {
		return fmt.Errorf("download failed: %s", jobErr)
	}
	return nil
}
