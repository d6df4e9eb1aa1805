package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCollector(t *testing.T) *Collector {
	t.Helper()

	c, err := NewCollector(&Config{Enabled: true, Port: 9090}, nil)
	require.NoError(t, err)
	return c
}

// sample returns the value of the series name{labels}: the counter or gauge
// value, or the observation count for histograms.
func sample(t *testing.T, c *Collector, name string, labels map[string]string) float64 {
	t.Helper()

	families, err := c.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
	metrics:
		for _, m := range f.GetMetric() {
			if len(m.GetLabel()) != len(labels) {
				continue
			}
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue metrics
				}
			}
			switch {
			case m.Counter != nil:
				return m.GetCounter().GetValue()
			case m.Gauge != nil:
				return m.GetGauge().GetValue()
			case m.Histogram != nil:
				return float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	t.Fatalf("series %s%v not found", name, labels)
	return 0
}

// series counts the exported series of a metric family.
func series(t *testing.T, c *Collector, name string) int {
	t.Helper()

	families, err := c.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			return len(f.GetMetric())
		}
	}
	return 0
}

func TestNewCollector(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		c, err := NewCollector(nil, nil)
		require.NoError(t, err)
		assert.True(t, c.Enabled())
		assert.Equal(t, "s3harness", c.config.Namespace)
		assert.Equal(t, "/metrics", c.config.Path)
		assert.NotNil(t, c.Registry())
	})

	t.Run("disabled", func(t *testing.T) {
		c, err := NewCollector(&Config{Enabled: false}, nil)
		require.NoError(t, err)
		assert.False(t, c.Enabled())
		assert.Nil(t, c.Registry())

		// recording on a disabled collector is a no-op
		c.RecordOperation("put", time.Millisecond, 10, true)
		c.RecordValidation("b", "success")
		c.RecordRebalance(time.Second, nil)
		c.SetRing(3, map[string]int{"riak@10.0.0.2": 64})
		assert.Empty(t, c.GetMetrics())
		require.NoError(t, c.Start(context.Background()))
		require.NoError(t, c.Stop(context.Background()))
	})
}

func TestCollector_RecordOperation(t *testing.T) {
	t.Parallel()

	c := newTestCollector(t)
	c.RecordOperation("put", 10*time.Millisecond, 1024, true)
	c.RecordOperation("put", 30*time.Millisecond, 2048, false)
	c.RecordOperation("get", 5*time.Millisecond, 0, true)

	ops := c.GetMetrics()
	require.Len(t, ops, 2)
	put := ops["put"]
	assert.Equal(t, int64(2), put.Count)
	assert.Equal(t, int64(1), put.Errors)
	assert.Equal(t, int64(3072), put.TotalSize)
	assert.Equal(t, 20*time.Millisecond, put.AvgDuration)

	const opsTotal = "s3harness_operations_total"
	assert.Equal(t, 1.0, sample(t, c, opsTotal, map[string]string{"operation": "put", "status": "success"}))
	assert.Equal(t, 1.0, sample(t, c, opsTotal, map[string]string{"operation": "put", "status": "error"}))
	assert.Equal(t, 1.0, sample(t, c, opsTotal, map[string]string{"operation": "get", "status": "success"}))
	assert.Equal(t, 2.0, sample(t, c, "s3harness_operation_size_bytes", map[string]string{"operation": "put"}))
	assert.Equal(t, 1, series(t, c, "s3harness_operation_size_bytes"), "zero-size operations are not observed")

	c.ResetMetrics()
	assert.Empty(t, c.GetMetrics())
	assert.Equal(t, 1.0, sample(t, c, opsTotal, map[string]string{"operation": "get", "status": "success"}))
}

func TestCollector_RecordValidation(t *testing.T) {
	t.Parallel()

	c := newTestCollector(t)
	c.RecordValidation("b", "success")
	c.RecordValidation("b", "success")
	c.RecordValidation("b", "mismatch")

	const name = "s3harness_validated_keys_total"
	assert.Equal(t, 2.0, sample(t, c, name, map[string]string{"bucket": "b", "outcome": "success"}))
	assert.Equal(t, 1.0, sample(t, c, name, map[string]string{"bucket": "b", "outcome": "mismatch"}))
}

func TestCollector_RingAndRebalance(t *testing.T) {
	t.Parallel()

	c := newTestCollector(t)
	c.SetRing(3, map[string]int{"riak@10.0.0.2": 22, "riak@10.0.0.3": 21, "riak@10.0.0.4": 21})
	assert.Equal(t, 3.0, sample(t, c, "s3harness_cluster_running_nodes", nil))
	assert.Equal(t, 22.0, sample(t, c, "s3harness_ring_partitions", map[string]string{"node": "riak@10.0.0.2"}))

	// a node leaving the ring drops its series
	c.SetRing(2, map[string]int{"riak@10.0.0.2": 32, "riak@10.0.0.3": 32})
	assert.Equal(t, 2, series(t, c, "s3harness_ring_partitions"))

	c.RecordRebalance(12*time.Second, nil)
	c.RecordRebalance(time.Minute, errors.New("timeout"))
	assert.Equal(t, 1.0, sample(t, c, "s3harness_rebalance_wait_seconds", map[string]string{"status": "success"}))
	assert.Equal(t, 2, series(t, c, "s3harness_rebalance_wait_seconds"))
}

func TestCollector_Handler(t *testing.T) {
	t.Parallel()

	c := newTestCollector(t)
	c.RecordOperation("clear", time.Millisecond, 0, true)
	c.RecordValidation("b", "fs_not_found")

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	body := get(t, srv.URL+"/metrics")
	assert.Contains(t, body, `s3harness_operations_total{operation="clear",status="success"} 1`)
	assert.Contains(t, body, `s3harness_validated_keys_total{bucket="b",outcome="fs_not_found"} 1`)

	assert.Contains(t, get(t, srv.URL+"/health"), `"status":"healthy"`)

	ops := get(t, srv.URL+"/debug/operations")
	assert.Contains(t, ops, "Operations Summary")
	assert.True(t, strings.Contains(ops, "clear"))
}

func get(t *testing.T, url string) string {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}
