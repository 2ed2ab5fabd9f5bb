package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for download and storage operations.
// These follow OpenTelemetry semantic conventions where applicable.
const (
	// Client attributes
	AttrClientIP   = "client.ip"
	AttrClientAddr = "client.address"

	// Job lifecycle attributes
	AttrJobID    = "job.id"
	AttrSourceID = "job.source_id"
	AttrJobState = "job.state"

	// Transfer attributes
	AttrFilename   = "transfer.filename"
	AttrRemote     = "transfer.remote"
	AttrOffset     = "transfer.offset"
	AttrBytes      = "transfer.bytes"
	AttrTotalBytes = "transfer.total_bytes"
	AttrAttempt    = "transfer.attempt"

	// Storage attributes
	AttrStorageKey      = "storage.key"
	AttrStorageProvider = "storage.provider"
	AttrS3Bucket        = "storage.s3.bucket"

	// Cache attributes
	AttrCacheHit  = "cache.hit"
	AttrCacheName = "cache.name"
)

// Attribute constructors. These keep span call sites free of raw key strings.

// ClientIP returns a client IP attribute.
func ClientIP(ip string) attribute.KeyValue {
	return attribute.String(AttrClientIP, ip)
}

// JobID returns a job identifier attribute.
func JobID(id string) attribute.KeyValue {
	return attribute.String(AttrJobID, id)
}

// SourceID returns an observation identifier attribute.
func SourceID(id string) attribute.KeyValue {
	return attribute.String(AttrSourceID, id)
}

// JobState returns a job status attribute.
func JobState(s string) attribute.KeyValue {
	return attribute.String(AttrJobState, s)
}

// Filename returns a transfer filename attribute.
func Filename(name string) attribute.KeyValue {
	return attribute.String(AttrFilename, name)
}

// Remote returns a remote locator attribute.
func Remote(loc string) attribute.KeyValue {
	return attribute.String(AttrRemote, loc)
}

// Offset returns a resume offset attribute.
func Offset(off int64) attribute.KeyValue {
	return attribute.Int64(AttrOffset, off)
}

// Bytes returns a byte count attribute.
func Bytes(n int64) attribute.KeyValue {
	return attribute.Int64(AttrBytes, n)
}

// TotalBytes returns a total size attribute.
func TotalBytes(n int64) attribute.KeyValue {
	return attribute.Int64(AttrTotalBytes, n)
}

// Attempt returns a retry attempt attribute.
func Attempt(n int) attribute.KeyValue {
	return attribute.Int(AttrAttempt, n)
}

// StorageKey returns a storage key attribute.
func StorageKey(k string) attribute.KeyValue {
	return attribute.String(AttrStorageKey, k)
}

// StorageProvider returns a storage provider attribute.
func StorageProvider(p string) attribute.KeyValue {
	return attribute.String(AttrStorageProvider, p)
}

// S3Bucket returns an S3 bucket attribute.
func S3Bucket(b string) attribute.KeyValue {
	return attribute.String(AttrS3Bucket, b)
}

// CacheHit returns a cache hit attribute.
func CacheHit(hit bool) attribute.KeyValue {
	return attribute.Bool(AttrCacheHit, hit)
}

// CacheName returns a cache name attribute.
func CacheName(name string) attribute.KeyValue {
	return attribute.String(AttrCacheName, name)
}
