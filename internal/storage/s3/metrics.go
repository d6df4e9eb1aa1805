package s3

import (
	"sync"
	"time"
)

// StoreMetrics tracks object store request metrics for one Store
type StoreMetrics struct {
	Requests        int64         `json:"requests"`
	Errors          int64         `json:"errors"`
	BytesUploaded   int64         `json:"bytes_uploaded"`
	BytesDownloaded int64         `json:"bytes_downloaded"`
	AverageLatency  time.Duration `json:"average_latency"`
	LastError       string        `json:"last_error"`
	LastErrorTime   time.Time     `json:"last_error_time"`

	BucketsCreated int64 `json:"buckets_created"`
	ObjectsDeleted int64 `json:"objects_deleted"`
}

// Recorder receives per-operation observations, typically a prometheus collector.
type Recorder interface {
	RecordOperation(operation string, duration time.Duration, size int64, success bool)
}

// MetricsCollector aggregates StoreMetrics and forwards observations to an
// optional Recorder.
type MetricsCollector struct {
	mu       sync.RWMutex
	metrics  StoreMetrics
	recorder Recorder
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(recorder Recorder) *MetricsCollector {
	return &MetricsCollector{recorder: recorder}
}

// RecordOperation records one store call with its duration, payload size and outcome
func (mc *MetricsCollector) RecordOperation(operation string, duration time.Duration, size int64, err error) {
	mc.mu.Lock()
	mc.metrics.Requests++
	if err != nil {
		mc.metrics.Errors++
		mc.metrics.LastError = err.Error()
		mc.metrics.LastErrorTime = time.Now()
	}

	// Rolling average latency
	if mc.metrics.Requests == 1 {
		mc.metrics.AverageLatency = duration
	} else {
		mc.metrics.AverageLatency = time.Duration(
			(int64(mc.metrics.AverageLatency)*9 + int64(duration)) / 10,
		)
	}

	if err == nil {
		switch operation {
		case "put":
			mc.metrics.BytesUploaded += size
		case "get":
			mc.metrics.BytesDownloaded += size
		case "create_bucket":
			mc.metrics.BucketsCreated++
		case "clear":
			mc.metrics.ObjectsDeleted += size
		}
	}
	mc.mu.Unlock()

	if mc.recorder != nil {
		mc.recorder.RecordOperation(operation, duration, size, err == nil)
	}
}

// GetMetrics returns current store metrics
func (mc *MetricsCollector) GetMetrics() StoreMetrics {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.metrics
}

// GetErrorRate calculates the current error rate
func (mc *MetricsCollector) GetErrorRate() float64 {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	if mc.metrics.Requests == 0 {
		return 0
	}
	return float64(mc.metrics.Errors) / float64(mc.metrics.Requests)
}

// Reset resets all metrics to zero
func (mc *MetricsCollector) Reset() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.metrics = StoreMetrics{}
}
