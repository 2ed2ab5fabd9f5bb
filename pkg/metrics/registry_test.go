package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyforge/fitsflow/pkg/download"
)

func TestConstructorsReturnNilWhenDisabled(t *testing.T) {
	resetForTesting()

	assert.False(t, IsEnabled())
	assert.Nil(t, NewDownloadMetrics())
	assert.Nil(t, NewTempCacheMetrics())
	assert.Nil(t, NewPreviewCacheMetrics())
	assert.Nil(t, NewS3Metrics())
}

func TestS3MetricsRegisterAndCollect(t *testing.T) {
	resetForTesting()
	InitRegistry()

	m := NewS3Metrics()
	require.NotNil(t, m)
	m.Operation("get_object", nil)
	m.Operation("put_object", assert.AnError)
	m.BytesDownloaded(2048)
	m.BytesUploaded(512)

	families, err := GetRegistry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	for _, want := range []string{
		"fitsflow_s3_operations_total",
		"fitsflow_s3_downloaded_bytes_total",
		"fitsflow_s3_uploaded_bytes_total",
	} {
		assert.True(t, names[want], "expected metric family %s", want)
	}
}

func TestHandlerWhenDisabled(t *testing.T) {
	resetForTesting()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInitRegistryIsIdempotent(t *testing.T) {
	resetForTesting()

	InitRegistry()
	first := GetRegistry()
	InitRegistry()
	assert.Same(t, first, GetRegistry())
	assert.True(t, IsEnabled())
}

func TestDownloadMetricsRegisterAndCollect(t *testing.T) {
	resetForTesting()
	InitRegistry()

	m := NewDownloadMetrics()
	require.NotNil(t, m)

	m.FileStarted(download.SchemeHTTP)
	m.ChunkTransferred(5 << 20)
	m.FileCompleted(download.SchemeHTTP, 5<<20, 3*time.Second)
	m.FileFailed(download.SchemeS3)
	m.RetryScheduled(2)
	m.JobFinished("complete")

	families, err := GetRegistry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	for _, want := range []string{
		"fitsflow_download_files_started_total",
		"fitsflow_download_files_completed_total",
		"fitsflow_download_files_failed_total",
		"fitsflow_download_file_bytes",
		"fitsflow_download_file_duration_seconds",
		"fitsflow_download_bytes_total",
		"fitsflow_download_retries_total",
		"fitsflow_download_jobs_finished_total",
	} {
		assert.True(t, names[want], "expected metric family %s", want)
	}
}

func TestCacheMetricsRegisterAndCollect(t *testing.T) {
	resetForTesting()
	InitRegistry()

	tc := NewTempCacheMetrics()
	require.NotNil(t, tc)
	tc.Hit()
	tc.Miss()
	tc.Evicted(2, 4096)
	tc.SetSize(1 << 20)

	pc := NewPreviewCacheMetrics()
	require.NotNil(t, pc)
	pc.Hit()
	pc.Miss()
	pc.Evicted(1, 1200)
	pc.SetSize(3, 3600)

	families, err := GetRegistry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	for _, want := range []string{
		"fitsflow_tempcache_lookups_total",
		"fitsflow_tempcache_size_bytes",
		"fitsflow_previewcache_lookups_total",
		"fitsflow_previewcache_entries",
		"fitsflow_previewcache_size_bytes",
	} {
		assert.True(t, names[want], "expected metric family %s", want)
	}

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fitsflow_tempcache_lookups_total")
}
