package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records harness activity as prometheus metrics and keeps a small
// in-process summary per operation for the debug endpoint and CLI reports.
type Collector struct {
	mu       sync.RWMutex
	config   *Config
	registry *prometheus.Registry
	logger   *slog.Logger

	// Prometheus metrics
	operationCounter  *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	operationSize     *prometheus.HistogramVec
	validationCounter *prometheus.CounterVec
	rebalanceDuration *prometheus.HistogramVec
	runningNodes      prometheus.Gauge
	ringOwnership     *prometheus.GaugeVec

	// Internal tracking
	operations map[string]*OperationMetrics
	lastReset  time.Time

	server *http.Server
}

// Config represents metrics configuration
type Config struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// OperationMetrics tracks metrics for a specific operation type
type OperationMetrics struct {
	Count         int64         `json:"count"`
	TotalDuration time.Duration `json:"total_duration"`
	TotalSize     int64         `json:"total_size"`
	Errors        int64         `json:"errors"`
	LastOperation time.Time     `json:"last_operation"`
	AvgDuration   time.Duration `json:"avg_duration"`
}

// NewCollector creates a new metrics collector. A nil config enables
// collection on :9090/metrics.
func NewCollector(config *Config, logger *slog.Logger) (*Collector, error) {
	if config == nil {
		config = &Config{Enabled: true, Port: 9090, Path: "/metrics"}
	}
	if config.Namespace == "" {
		config.Namespace = "s3harness"
	}
	if config.Path == "" {
		config.Path = "/metrics"
	}
	if logger == nil {
		logger = slog.Default()
	}

	if !config.Enabled {
		return &Collector{config: config, logger: logger}, nil
	}

	c := &Collector{
		config:     config,
		registry:   prometheus.NewRegistry(),
		logger:     logger,
		operations: make(map[string]*OperationMetrics),
		lastReset:  time.Now(),
	}
	c.initMetrics()

	if err := c.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	return c, nil
}

// Enabled reports whether the collector records anything.
func (c *Collector) Enabled() bool {
	return c.config.Enabled
}

// Registry exposes the private registry, nil when disabled.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the metrics endpoint plus /health and /debug/operations.
func (c *Collector) Handler() http.Handler {
	mux := http.NewServeMux()
	if c.config.Enabled {
		mux.Handle(c.config.Path, promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		}))
	}
	mux.HandleFunc("/health", c.healthHandler)
	mux.HandleFunc("/debug/operations", c.debugOperationsHandler)
	return mux
}

// Start serves Handler on the configured port until Stop is called.
func (c *Collector) Start(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	c.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", c.config.Port),
		Handler:           c.Handler(),
		ReadHeaderTimeout: 30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	go func() {
		if err := c.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logger.Error("Metrics server error", "addr", c.server.Addr, "error", err)
		}
	}()

	c.logger.Info("Metrics server started", "addr", c.server.Addr, "path", c.config.Path)
	return nil
}

// Stop stops the metrics server
func (c *Collector) Stop(ctx context.Context) error {
	if c.server != nil {
		return c.server.Shutdown(ctx)
	}
	return nil
}

// RecordOperation records a store operation. Store.Put, Get, Clear and the
// other facade calls report through this method.
func (c *Collector) RecordOperation(operation string, duration time.Duration, size int64, success bool) {
	if !c.config.Enabled {
		return
	}

	c.mu.Lock()
	m, ok := c.operations[operation]
	if !ok {
		m = &OperationMetrics{}
		c.operations[operation] = m
	}
	m.Count++
	m.TotalDuration += duration
	m.TotalSize += size
	if !success {
		m.Errors++
	}
	m.LastOperation = time.Now()
	m.AvgDuration = time.Duration(int64(m.TotalDuration) / m.Count)
	c.mu.Unlock()

	c.operationCounter.With(prometheus.Labels{
		"operation": operation,
		"status":    statusLabel(success),
	}).Inc()
	c.operationDuration.With(prometheus.Labels{"operation": operation}).Observe(duration.Seconds())
	if size > 0 {
		c.operationSize.With(prometheus.Labels{"operation": operation}).Observe(float64(size))
	}
}

// RecordValidation counts one validated key by outcome.
func (c *Collector) RecordValidation(bucket, outcome string) {
	if !c.config.Enabled {
		return
	}

	c.validationCounter.With(prometheus.Labels{
		"bucket":  bucket,
		"outcome": outcome,
	}).Inc()
}

// RecordRebalance observes how long a wait for ring balance took.
func (c *Collector) RecordRebalance(duration time.Duration, err error) {
	if !c.config.Enabled {
		return
	}

	c.rebalanceDuration.With(prometheus.Labels{"status": statusLabel(err == nil)}).Observe(duration.Seconds())
}

// SetRing publishes the latest ring sample: running node count and the
// partitions owned by each node.
func (c *Collector) SetRing(running int, ownership map[string]int) {
	if !c.config.Enabled {
		return
	}

	c.runningNodes.Set(float64(running))
	c.ringOwnership.Reset()
	for node, partitions := range ownership {
		c.ringOwnership.With(prometheus.Labels{"node": node}).Set(float64(partitions))
	}
}

// GetMetrics returns a copy of the per-operation summary
func (c *Collector) GetMetrics() map[string]OperationMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]OperationMetrics, len(c.operations))
	for k, v := range c.operations {
		out[k] = *v
	}
	return out
}

// ResetMetrics resets the per-operation summary. Prometheus series are
// cumulative and left alone.
func (c *Collector) ResetMetrics() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.operations = make(map[string]*OperationMetrics)
	c.lastReset = time.Now()
}

func (c *Collector) initMetrics() {
	ns := c.config.Namespace

	c.operationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "operations_total",
			Help:      "Total number of object store operations",
		},
		[]string{"operation", "status"},
	)

	c.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "operation_duration_seconds",
			Help:      "Duration of object store operations in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~32s
		},
		[]string{"operation"},
	)

	c.operationSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "operation_size_bytes",
			Help:      "Bytes transferred per object store operation",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 12), // 1KB to ~4GB
		},
		[]string{"operation"},
	)

	c.validationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "validated_keys_total",
			Help:      "Mirrored keys checked against the store, by outcome",
		},
		[]string{"bucket", "outcome"},
	)

	c.rebalanceDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "rebalance_wait_seconds",
			Help:      "Time spent waiting for ring ownership to balance",
			Buckets:   prometheus.ExponentialBuckets(5, 2, 10), // 5s to ~43m
		},
		[]string{"status"},
	)

	c.runningNodes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "cluster_running_nodes",
			Help:      "Running cluster node containers",
		},
	)

	c.ringOwnership = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "ring_partitions",
			Help:      "Ring partitions owned per node",
		},
		[]string{"node"},
	)
}

func (c *Collector) registerMetrics() error {
	metrics := []prometheus.Collector{
		c.operationCounter,
		c.operationDuration,
		c.operationSize,
		c.validationCounter,
		c.rebalanceDuration,
		c.runningNodes,
		c.ringOwnership,
	}

	for _, metric := range metrics {
		if err := c.registry.Register(metric); err != nil {
			return err
		}
	}
	return nil
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// HTTP handlers

func (c *Collector) healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy","service":"s3harness-metrics"}`))
}

func (c *Collector) debugOperationsHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	writef := func(format string, args ...interface{}) { _, _ = fmt.Fprintf(w, format, args...) }

	if !c.config.Enabled {
		writef("Metrics collection disabled.\n")
		return
	}

	ops := c.GetMetrics()
	c.mu.RLock()
	lastReset := c.lastReset
	c.mu.RUnlock()

	writef("s3harness Operations Summary\n")
	writef("============================\n\n")
	writef("Uptime: %v\n", time.Since(lastReset).Round(time.Second))
	writef("Last Reset: %v\n\n", lastReset.Format(time.RFC3339))

	if len(ops) == 0 {
		writef("No operations recorded.\n")
		return
	}

	names := make([]string, 0, len(ops))
	for name := range ops {
		names = append(names, name)
	}
	sort.Strings(names)

	writef("%-14s %10s %10s %14s %14s\n", "Operation", "Count", "Errors", "Avg Duration", "Bytes")
	writef("%-14s %10s %10s %14s %14s\n", "---------", "-----", "------", "------------", "-----")
	for _, name := range names {
		op := ops[name]
		writef("%-14s %10d %10d %14v %14d\n", name, op.Count, op.Errors, op.AvgDuration, op.TotalSize)
	}
}
