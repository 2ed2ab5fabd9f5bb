package download

import "time"

// Metrics is the instrumentation hook for the engine. A nil Metrics
// disables instrumentation; every call site checks for nil.
type Metrics interface {
	// FileStarted is called when a file transfer begins or resumes
	FileStarted(scheme LocatorScheme)

	// FileCompleted is called when a file reaches its final key
	FileCompleted(scheme LocatorScheme, bytes int64, duration time.Duration)

	// FileFailed is called when a file exhausts its retry budget
	FileFailed(scheme LocatorScheme)

	// ChunkTransferred is called after each chunk lands in the .part file
	ChunkTransferred(bytes int64)

	// RetryScheduled is called when a transient failure triggers a retry
	RetryScheduled(attempt int)

	// JobFinished is called once per engine run with the final status
	JobFinished(status string)
}
