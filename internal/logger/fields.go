package logger

import "log/slog"

// Standard field keys for structured logging. Use these keys consistently
// across all log statements so job and transfer events can be aggregated
// and queried by downstream log tooling.
const (
	// Tracing
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// Request handling
	KeyRequestID = "request_id" // HTTP request ID (chi middleware)
	KeyMethod    = "method"     // HTTP method
	KeyPath      = "path"       // HTTP request path
	KeyClientIP  = "client_ip"  // Client IP address
	KeyStatus    = "status"     // HTTP status code

	// Job lifecycle
	KeyJobID    = "job_id"    // Download job identifier
	KeySourceID = "source_id" // Observation/source identifier
	KeyJobState = "job_state" // Job status: pending, downloading, paused, ...

	// Transfers
	KeyFilename   = "filename"    // Sanitized target basename
	KeyRemote     = "remote"      // Remote locator (URL or S3 key)
	KeyOffset     = "offset"      // Resume offset in bytes
	KeyBytes      = "bytes"       // Byte count for the operation
	KeyTotalBytes = "total_bytes" // Total expected bytes
	KeyAttempt    = "attempt"     // Retry attempt number
	KeyMaxRetries = "max_retries" // Maximum retry attempts
	KeySpeed      = "speed_bps"   // Transfer speed in bytes/second

	// Storage
	KeyKey       = "key"        // Storage key (relative, slash-separated)
	KeyProvider  = "provider"   // Storage provider: local, s3
	KeyBucket    = "bucket"     // S3 bucket name
	KeyRegion    = "region"     // S3 region
	KeyLocalPath = "local_path" // Materialized local path

	// Caches
	KeyCacheHit  = "cache_hit"  // Cache hit indicator
	KeyCacheSize = "cache_size" // Current cache size in bytes
	KeyEvicted   = "evicted"    // Number of entries evicted

	// Operation metadata
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
)

// Field constructors for type safety. These mirror the keys above so call
// sites do not spell key strings by hand.

// TraceID returns a slog.Attr for an OpenTelemetry trace ID.
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for an OpenTelemetry span ID.
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// RequestID returns a slog.Attr for an HTTP request ID.
func RequestID(id string) slog.Attr {
	return slog.String(KeyRequestID, id)
}

// JobID returns a slog.Attr for a download job identifier.
func JobID(id string) slog.Attr {
	return slog.String(KeyJobID, id)
}

// SourceID returns a slog.Attr for an observation identifier.
func SourceID(id string) slog.Attr {
	return slog.String(KeySourceID, id)
}

// JobState returns a slog.Attr for a job status value.
func JobState(s string) slog.Attr {
	return slog.String(KeyJobState, s)
}

// Filename returns a slog.Attr for a target basename.
func Filename(name string) slog.Attr {
	return slog.String(KeyFilename, name)
}

// Remote returns a slog.Attr for a remote locator.
func Remote(loc string) slog.Attr {
	return slog.String(KeyRemote, loc)
}

// Offset returns a slog.Attr for a resume offset.
func Offset(off int64) slog.Attr {
	return slog.Int64(KeyOffset, off)
}

// Bytes returns a slog.Attr for a byte count.
func Bytes(n int64) slog.Attr {
	return slog.Int64(KeyBytes, n)
}

// TotalBytes returns a slog.Attr for total expected bytes.
func TotalBytes(n int64) slog.Attr {
	return slog.Int64(KeyTotalBytes, n)
}

// Attempt returns a slog.Attr for a retry attempt number.
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// MaxRetries returns a slog.Attr for the retry budget.
func MaxRetries(n int) slog.Attr {
	return slog.Int(KeyMaxRetries, n)
}

// Key returns a slog.Attr for a storage key.
func Key(k string) slog.Attr {
	return slog.String(KeyKey, k)
}

// Provider returns a slog.Attr for a storage provider name.
func Provider(p string) slog.Attr {
	return slog.String(KeyProvider, p)
}

// Bucket returns a slog.Attr for an S3 bucket name.
func Bucket(name string) slog.Attr {
	return slog.String(KeyBucket, name)
}

// LocalPath returns a slog.Attr for a materialized local path.
func LocalPath(p string) slog.Attr {
	return slog.String(KeyLocalPath, p)
}

// CacheHit returns a slog.Attr for a cache hit indicator.
func CacheHit(hit bool) slog.Attr {
	return slog.Bool(KeyCacheHit, hit)
}

// CacheSize returns a slog.Attr for the current cache size.
func CacheSize(size int64) slog.Attr {
	return slog.Int64(KeyCacheSize, size)
}

// Evicted returns a slog.Attr for the number of entries evicted.
func Evicted(n int) slog.Attr {
	return slog.Int(KeyEvicted, n)
}

// DurationMs returns a slog.Attr for duration in milliseconds.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error. Returns the zero Attr for nil.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
