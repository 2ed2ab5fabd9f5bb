package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	s3storage "github.com/skyforge/fitsflow/pkg/storage/s3"
)

// s3Metrics is the Prometheus implementation of the S3 provider's
// Metrics interface.
type s3Metrics struct {
	operations      *prometheus.CounterVec
	downloadedBytes prometheus.Counter
	uploadedBytes   prometheus.Counter
}

// NewS3Metrics creates S3 operation instrumentation, nil when metrics
// are disabled.
func NewS3Metrics() s3storage.Metrics {
	reg := GetRegistry()
	if reg == nil {
		return nil
	}

	return &s3Metrics{
		operations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fitsflow_s3_operations_total",
				Help: "S3 operations by type and outcome",
			},
			[]string{"op", "status"}, // status: "ok", "error"
		),
		downloadedBytes: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "fitsflow_s3_downloaded_bytes_total",
				Help: "Bytes downloaded from S3 object storage",
			},
		),
		uploadedBytes: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "fitsflow_s3_uploaded_bytes_total",
				Help: "Bytes uploaded to S3 object storage",
			},
		),
	}
}

func (m *s3Metrics) Operation(op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.operations.WithLabelValues(op, status).Inc()
}

func (m *s3Metrics) BytesDownloaded(n int64) {
	m.downloadedBytes.Add(float64(n))
}

func (m *s3Metrics) BytesUploaded(n int64) {
	m.uploadedBytes.Add(float64(n))
}
