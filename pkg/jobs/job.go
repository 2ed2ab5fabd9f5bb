// Package jobs holds live download job state, journals it to storage on
// every meaningful transition, and recovers it on startup. The registry is
// the single owner of Job and FileEntry values while a job is active; the
// download engine mutates them only through registry methods.
package jobs

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"time"
)

// Sentinel errors. Callers match with errors.Is.
var (
	// ErrNotFound indicates no live or journaled job with the given ID
	ErrNotFound = errors.New("jobs: job not found")

	// ErrIllegalTransition indicates a state change the machine forbids
	ErrIllegalTransition = errors.New("jobs: illegal status transition")

	// ErrResumeConflict indicates the job is already being resumed
	ErrResumeConflict = errors.New("jobs: job is already being resumed")

	// ErrInvalidSourceID indicates a source identifier failed validation
	ErrInvalidSourceID = errors.New("jobs: invalid source id")
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending          Status = "pending"
	StatusFetchingManifest Status = "fetching_manifest"
	StatusDownloading      Status = "downloading"
	StatusPaused           Status = "paused"
	StatusCancelled        Status = "cancelled"
	StatusComplete         Status = "complete"
	StatusFailed           Status = "failed"
)

// legalTransitions is the state machine legality table.
//
//	pending -> fetching_manifest -> downloading -> complete
//	                                     |-> paused -> downloading
//	                                     |-> cancelled (terminal)
//	                                     |-> failed -> downloading
//
// complete and cancelled are terminal. paused and failed are resumable.
var legalTransitions = map[Status][]Status{
	StatusPending:          {StatusFetchingManifest, StatusFailed, StatusCancelled},
	StatusFetchingManifest: {StatusDownloading, StatusFailed, StatusCancelled},
	StatusDownloading:      {StatusComplete, StatusPaused, StatusCancelled, StatusFailed},
	StatusPaused:           {StatusDownloading, StatusCancelled},
	StatusFailed:           {StatusDownloading, StatusCancelled},
	StatusComplete:         {},
	StatusCancelled:        {},
}

// CanTransitionTo reports whether the state machine allows s -> next.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range legalTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s is a final state.
func (s Status) IsTerminal() bool {
	return s == StatusComplete || s == StatusCancelled
}

// FileStatus is the lifecycle state of a single file transfer.
type FileStatus string

const (
	FileStatusPending     FileStatus = "pending"
	FileStatusDownloading FileStatus = "downloading"
	FileStatusComplete    FileStatus = "complete"
	FileStatusFailed      FileStatus = "failed"
	FileStatusPaused      FileStatus = "paused"
)

// FileEntry tracks one file within a job. A .part file exists on storage
// iff Status is downloading or paused with DownloadedBytes > 0; completion
// renames it to the final key atomically.
type FileEntry struct {
	// Filename is the sanitized basename
	Filename string `json:"filename"`

	// RemoteLocator is the HTTP URL or S3 locator the file comes from
	RemoteLocator string `json:"remote_locator"`

	// LocalKey is the final storage key the file lands at
	LocalKey string `json:"local_key"`

	// TotalBytes is the expected size (0 until discovered)
	TotalBytes int64 `json:"total_bytes"`

	// DownloadedBytes equals the on-disk partial or final size
	DownloadedBytes int64 `json:"downloaded_bytes"`

	// Status is the file transfer state
	Status FileStatus `json:"status"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error is the last failure message, if any
	Error string `json:"error,omitempty"`
}

// PartKey returns the storage key of the file's in-progress partial.
func (f *FileEntry) PartKey() string {
	return f.LocalKey + ".part"
}

// Job is a download job for one observation.
type Job struct {
	// ID is the opaque 12-char job identifier
	ID string `json:"job_id"`

	// SourceID is the observation identifier the job downloads
	SourceID string `json:"source_id"`

	// TargetDir is the storage key prefix files land under
	TargetDir string `json:"target_dir"`

	// Status is the job lifecycle state
	Status Status `json:"status"`

	// Message is a human-readable progress note
	Message string `json:"message,omitempty"`

	// TotalBytes is the sum of known file sizes
	TotalBytes int64 `json:"total_bytes"`

	// DownloadedBytes is the sum of per-file downloaded bytes
	DownloadedBytes int64 `json:"downloaded_bytes"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// Error is the last job-level failure message, if any
	Error string `json:"error,omitempty"`

	// Files are the job's file entries, in manifest order
	Files []*FileEntry `json:"files"`
}

// RecomputeTotals refreshes TotalBytes and DownloadedBytes from the file
// entries.
func (j *Job) RecomputeTotals() {
	var total, downloaded int64
	for _, f := range j.Files {
		total += f.TotalBytes
		downloaded += f.DownloadedBytes
	}
	j.TotalBytes = total
	j.DownloadedBytes = downloaded
}

// IsResumable reports whether the job can be resumed: paused, failed, or
// downloading (a crashed run) with at least one non-complete file.
func (j *Job) IsResumable() bool {
	switch j.Status {
	case StatusPaused, StatusFailed, StatusDownloading:
	default:
		return false
	}
	for _, f := range j.Files {
		if f.Status != FileStatusComplete {
			return true
		}
	}
	return false
}

// CompletedFiles counts files in the complete state.
func (j *Job) CompletedFiles() int {
	n := 0
	for _, f := range j.Files {
		if f.Status == FileStatusComplete {
			n++
		}
	}
	return n
}

// Clone returns a deep copy safe to hand outside the registry lock.
func (j *Job) Clone() *Job {
	clone := *j
	clone.Files = make([]*FileEntry, len(j.Files))
	for i, f := range j.Files {
		fc := *f
		clone.Files[i] = &fc
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		clone.CompletedAt = &t
	}
	return &clone
}

// Snapshot is the progress view exposed by the control-plane API.
type Snapshot struct {
	JobID           string         `json:"job_id"`
	SourceID        string         `json:"source_id"`
	Status          Status         `json:"status"`
	Message         string         `json:"message,omitempty"`
	TotalFiles      int            `json:"total_files"`
	CompletedFiles  int            `json:"completed_files"`
	TotalBytes      int64          `json:"total_bytes"`
	DownloadedBytes int64          `json:"downloaded_bytes"`
	Percent         float64        `json:"percent"`
	SpeedBytesPerSec float64       `json:"speed_bytes_per_sec"`
	ETASeconds      *float64       `json:"eta_seconds"`
	Files           []FileSnapshot `json:"files"`
	IsResumable     bool           `json:"is_resumable"`
	Error           string         `json:"error,omitempty"`
}

// FileSnapshot is the per-file slice of a Snapshot.
type FileSnapshot struct {
	Filename        string     `json:"filename"`
	TotalBytes      int64      `json:"total_bytes"`
	DownloadedBytes int64      `json:"downloaded_bytes"`
	Status          FileStatus `json:"status"`
}

// BuildSnapshot assembles a self-consistent progress snapshot. speedBps of
// zero yields a null ETA.
func BuildSnapshot(j *Job, speedBps float64) Snapshot {
	s := Snapshot{
		JobID:            j.ID,
		SourceID:         j.SourceID,
		Status:           j.Status,
		Message:          j.Message,
		TotalFiles:       len(j.Files),
		CompletedFiles:   j.CompletedFiles(),
		TotalBytes:       j.TotalBytes,
		DownloadedBytes:  j.DownloadedBytes,
		SpeedBytesPerSec: speedBps,
		IsResumable:      j.IsResumable(),
		Error:            j.Error,
	}

	if j.TotalBytes > 0 {
		s.Percent = float64(j.DownloadedBytes) / float64(j.TotalBytes) * 100
	}
	if speedBps > 0 && j.TotalBytes > j.DownloadedBytes {
		eta := float64(j.TotalBytes-j.DownloadedBytes) / speedBps
		s.ETASeconds = &eta
	}

	s.Files = make([]FileSnapshot, len(j.Files))
	for i, f := range j.Files {
		s.Files[i] = FileSnapshot{
			Filename:        f.Filename,
			TotalBytes:      f.TotalBytes,
			DownloadedBytes: f.DownloadedBytes,
			Status:          f.Status,
		}
	}
	return s
}

// sourceIDRe constrains observation identifiers.
var sourceIDRe = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidateSourceID checks an observation identifier.
func ValidateSourceID(sourceID string) error {
	if sourceID == "" || !sourceIDRe.MatchString(sourceID) {
		return fmt.Errorf("%w: %q", ErrInvalidSourceID, sourceID)
	}
	return nil
}

// newJobID returns a 12-character hex job identifier.
func newJobID() string {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failure means the process is in a bad state
		panic(fmt.Sprintf("jobs: failed to generate job id: %v", err))
	}
	return hex.EncodeToString(b)
}
