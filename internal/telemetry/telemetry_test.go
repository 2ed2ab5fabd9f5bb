package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "fitsflow", cfg.ServiceName)
	assert.Equal(t, "dev", cfg.ServiceVersion)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, 1.0, cfg.SampleRate)
}

func TestInitDisabled(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Enabled = false

	shutdown, err := Init(ctx, cfg)
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	// Should be able to call shutdown without error
	err = shutdown(ctx)
	assert.NoError(t, err)

	// Should not be enabled
	assert.False(t, IsEnabled())
}

func TestTracerReturnsNoOp(t *testing.T) {
	// Reset state
	tracer = nil
	enabled = false

	// Without initialization, should return no-op tracer
	tr := Tracer()
	require.NotNil(t, tr)
}

func TestStartSpan(t *testing.T) {
	ctx := context.Background()

	// Even without initialization, StartSpan should work (no-op)
	newCtx, span := StartSpan(ctx, "test.operation")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)

	// Should be able to end the span
	span.End()
}

func TestSpanFromContext(t *testing.T) {
	ctx := context.Background()

	// Should return a span even without active span
	span := SpanFromContext(ctx)
	require.NotNil(t, span)
}

func TestAddEvent(t *testing.T) {
	ctx := context.Background()

	// Should not panic with no active span
	require.NotPanics(t, func() {
		AddEvent(ctx, "test.event")
	})
}

func TestRecordError(t *testing.T) {
	ctx := context.Background()

	// Should not panic with nil error
	require.NotPanics(t, func() {
		RecordError(ctx, nil)
	})

	// Should not panic with error
	require.NotPanics(t, func() {
		RecordError(ctx, errors.New("test error"))
	})
}

func TestSetStatus(t *testing.T) {
	ctx := context.Background()

	// Should not panic
	require.NotPanics(t, func() {
		SetStatus(ctx, codes.Ok, "success")
	})

	require.NotPanics(t, func() {
		SetStatus(ctx, codes.Error, "failed")
	})
}

func TestSetAttributes(t *testing.T) {
	ctx := context.Background()

	// Should not panic
	require.NotPanics(t, func() {
		SetAttributes(ctx, ClientIP("192.168.1.1"))
	})
}

func TestTraceID(t *testing.T) {
	ctx := context.Background()

	// Without active span, should return empty string
	traceID := TraceID(ctx)
	assert.Equal(t, "", traceID)
}

func TestSpanID(t *testing.T) {
	ctx := context.Background()

	// Without active span, should return empty string
	spanID := SpanID(ctx)
	assert.Equal(t, "", spanID)
}

func TestAttributeHelpers(t *testing.T) {
	t.Run("ClientIP", func(t *testing.T) {
		attr := ClientIP("192.168.1.100")
		assert.Equal(t, AttrClientIP, string(attr.Key))
		assert.Equal(t, "192.168.1.100", attr.Value.AsString())
	})

	t.Run("JobID", func(t *testing.T) {
		attr := JobID("a1b2c3d4e5f6")
		assert.Equal(t, AttrJobID, string(attr.Key))
		assert.Equal(t, "a1b2c3d4e5f6", attr.Value.AsString())
	})

	t.Run("SourceID", func(t *testing.T) {
		attr := SourceID("jw02733-o001")
		assert.Equal(t, AttrSourceID, string(attr.Key))
		assert.Equal(t, "jw02733-o001", attr.Value.AsString())
	})

	t.Run("JobState", func(t *testing.T) {
		attr := JobState("downloading")
		assert.Equal(t, AttrJobState, string(attr.Key))
		assert.Equal(t, "downloading", attr.Value.AsString())
	})

	t.Run("Filename", func(t *testing.T) {
		attr := Filename("jw02733_nircam_f444w_i2d.fits")
		assert.Equal(t, AttrFilename, string(attr.Key))
		assert.Equal(t, "jw02733_nircam_f444w_i2d.fits", attr.Value.AsString())
	})

	t.Run("Remote", func(t *testing.T) {
		attr := Remote("https://mast.stsci.edu/file.fits")
		assert.Equal(t, AttrRemote, string(attr.Key))
		assert.Equal(t, "https://mast.stsci.edu/file.fits", attr.Value.AsString())
	})

	t.Run("Offset", func(t *testing.T) {
		attr := Offset(1024)
		assert.Equal(t, AttrOffset, string(attr.Key))
		assert.Equal(t, int64(1024), attr.Value.AsInt64())
	})

	t.Run("Bytes", func(t *testing.T) {
		attr := Bytes(4096)
		assert.Equal(t, AttrBytes, string(attr.Key))
		assert.Equal(t, int64(4096), attr.Value.AsInt64())
	})

	t.Run("TotalBytes", func(t *testing.T) {
		attr := TotalBytes(1048576)
		assert.Equal(t, AttrTotalBytes, string(attr.Key))
		assert.Equal(t, int64(1048576), attr.Value.AsInt64())
	})

	t.Run("Attempt", func(t *testing.T) {
		attr := Attempt(3)
		assert.Equal(t, AttrAttempt, string(attr.Key))
		assert.Equal(t, int64(3), attr.Value.AsInt64())
	})

	t.Run("StorageKey", func(t *testing.T) {
		attr := StorageKey("raw/jw02733/file.fits")
		assert.Equal(t, AttrStorageKey, string(attr.Key))
		assert.Equal(t, "raw/jw02733/file.fits", attr.Value.AsString())
	})

	t.Run("StorageProvider", func(t *testing.T) {
		attr := StorageProvider("s3")
		assert.Equal(t, AttrStorageProvider, string(attr.Key))
		assert.Equal(t, "s3", attr.Value.AsString())
	})

	t.Run("S3Bucket", func(t *testing.T) {
		attr := S3Bucket("fits-archive")
		assert.Equal(t, AttrS3Bucket, string(attr.Key))
		assert.Equal(t, "fits-archive", attr.Value.AsString())
	})

	t.Run("CacheHit", func(t *testing.T) {
		attr := CacheHit(true)
		assert.Equal(t, AttrCacheHit, string(attr.Key))
		assert.True(t, attr.Value.AsBool())
	})

	t.Run("CacheName", func(t *testing.T) {
		attr := CacheName("preview")
		assert.Equal(t, AttrCacheName, string(attr.Key))
		assert.Equal(t, "preview", attr.Value.AsString())
	})
}

func TestStartSpanWithAttributes(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartSpan(ctx, "download.chunk",
		trace.WithAttributes(Offset(0), Bytes(5242880)))
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()
}
