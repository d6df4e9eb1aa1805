package harness

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/objectfs/s3harness/internal/cluster"
	"github.com/objectfs/s3harness/internal/config"
	"github.com/objectfs/s3harness/internal/metrics"
	"github.com/objectfs/s3harness/internal/storage/s3"
	"github.com/objectfs/s3harness/internal/validate"
	"github.com/objectfs/s3harness/pkg/retry"
)

// Harness wires the store, validator, metrics collector and cluster tooling
// described by one Configuration.
type Harness struct {
	config    *config.Configuration
	logger    *slog.Logger
	store     *s3.Store
	validator *validate.Validator
	metrics   *metrics.Collector

	status      cluster.StatusSource
	nodeCounter cluster.NodeCounter

	mu    sync.Mutex
	nodes *cluster.DockerNodes
}

// Option customizes a Harness.
type Option func(*Harness)

// WithStatusSource replaces the ring status source derived from the config.
func WithStatusSource(s cluster.StatusSource) Option {
	return func(h *Harness) { h.status = s }
}

// WithNodeCounter replaces the Docker node counter used by rebalance waits.
func WithNodeCounter(n cluster.NodeCounter) Option {
	return func(h *Harness) { h.nodeCounter = n }
}

// New validates cfg and builds every component. No network traffic happens
// until a command uses the store or the cluster.
func New(ctx context.Context, cfg *config.Configuration, logger *slog.Logger, opts ...Option) (*Harness, error) {
	if err := validateEndpoint(cfg.Store.Endpoint); err != nil {
		return nil, fmt.Errorf("invalid store endpoint: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled: cfg.Metrics.Enabled,
		Port:    cfg.Metrics.Port,
		Path:    cfg.Metrics.Path,
	}, logger)
	if err != nil {
		return nil, err
	}

	store, err := s3.Open(ctx, &cfg.Store, s3.WithLogger(logger), s3.WithRecorder(collector))
	if err != nil {
		return nil, err
	}

	return newHarness(cfg, logger, store, collector, opts...), nil
}

func newHarness(cfg *config.Configuration, logger *slog.Logger, store *s3.Store, collector *metrics.Collector, opts ...Option) *Harness {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Harness{
		config:  cfg,
		logger:  logger,
		store:   store,
		metrics: collector,
	}
	if store != nil {
		h.validator = validate.New(store, logger, collector)
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Config returns the configuration the harness was built from.
func (h *Harness) Config() *config.Configuration { return h.config }

// Store returns the object store facade.
func (h *Harness) Store() *s3.Store { return h.store }

// Validator returns the consistency validator over Store.
func (h *Harness) Validator() *validate.Validator { return h.validator }

// Metrics returns the metrics collector.
func (h *Harness) Metrics() *metrics.Collector { return h.metrics }

// Start starts the metrics endpoint when enabled.
func (h *Harness) Start(ctx context.Context) error {
	h.logger.Debug("Starting harness",
		"endpoint", h.config.Store.Endpoint,
		"data_dir", h.config.Store.DataDir,
		"metrics", h.config.Metrics.Enabled)
	return h.metrics.Start(ctx)
}

// Stop shuts down the metrics endpoint and the Docker connection.
func (h *Harness) Stop(ctx context.Context) error {
	err := h.metrics.Stop(ctx)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.nodes != nil {
		if cerr := h.nodes.Close(); cerr != nil && err == nil {
			err = cerr
		}
		h.nodes = nil
	}
	return err
}

// Nodes connects to the Docker engine on first use.
func (h *Harness) Nodes() (*cluster.DockerNodes, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.nodes != nil {
		return h.nodes, nil
	}
	c := h.config.Cluster
	nodes, err := cluster.NewDockerNodes(c.DockerHost, c.NodeImage, c.NodeNamePrefix, h.logger)
	if err != nil {
		return nil, err
	}
	nodes.SettleDelay = c.SettleDelay
	h.nodes = nodes
	return nodes, nil
}

// StatusSource returns the ring status source: the configured stats command
// when set, the stats URL otherwise.
func (h *Harness) StatusSource() cluster.StatusSource {
	if h.status != nil {
		return h.status
	}
	c := h.config.Cluster
	if len(c.StatsCommand) > 0 {
		return &cluster.CommandStatus{Path: c.StatsCommand[0], Args: c.StatsCommand[1:]}
	}
	return cluster.NewHTTPStatus(c.StatsURL, c.StatsTimeout)
}

func (h *Harness) runningNodes() (cluster.NodeCounter, error) {
	if h.nodeCounter != nil {
		return h.nodeCounter, nil
	}
	return h.Nodes()
}

// Poller builds a convergence poller from the cluster config. Every sample it
// takes is published to the metrics collector, and failed status reads are
// retried up to cluster.status_attempts times.
func (h *Harness) Poller() (*cluster.Poller, error) {
	counter, err := h.runningNodes()
	if err != nil {
		return nil, err
	}

	p := cluster.NewPoller(h.StatusSource(), counter, h.logger)
	if d := h.config.Cluster.JoinInterval; d > 0 {
		p.JoinInterval = d
	}
	if d := h.config.Cluster.ConvergeInterval; d > 0 {
		p.ConvergeInterval = d
	}
	p.Observe = func(snap cluster.RingSnapshot, total int) {
		h.metrics.SetRing(total, snap.Ownership)
	}
	if attempts := h.config.Cluster.StatusAttempts; attempts > 1 {
		rc := retry.DefaultConfig()
		rc.MaxAttempts = attempts
		rc.OnRetry = func(attempt int, err error, delay time.Duration) {
			h.logger.Warn("Ring status read failed, retrying", "attempt", attempt, "delay", delay, "error", err)
		}
		p.Retry = retry.New(rc)
	}
	return p, nil
}

// WaitForRebalance waits for the ring to balance, bounded by the configured
// rebalance timeout when one is set.
func (h *Harness) WaitForRebalance(ctx context.Context) error {
	p, err := h.Poller()
	if err != nil {
		return err
	}

	if t := h.config.Cluster.RebalanceTimeout; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}

	start := time.Now()
	err = p.WaitForBalance(ctx)
	h.metrics.RecordRebalance(time.Since(start), err)
	return err
}

// AddNodes runs the configured add-node command n times and then waits for
// the ring to rebalance over the grown cluster. progress, if set, is called
// before each node is added with its 1-based position.
func (h *Harness) AddNodes(ctx context.Context, n int, progress func(i int)) error {
	if n < 1 {
		return fmt.Errorf("node count must be positive, got %d", n)
	}

	script := &cluster.Script{Argv: h.config.Cluster.AddNodeCommand}
	for i := 1; i <= n; i++ {
		if progress != nil {
			progress(i)
		}
		if _, err := script.Run(ctx); err != nil {
			return fmt.Errorf("failed to add node %d of %d: %w", i, n, err)
		}
	}
	h.logger.Info("Nodes added", "count", n)
	return h.WaitForRebalance(ctx)
}

// Admin runs the configured admin command with args and returns its output.
// Exit status 1 is accepted; riak-admin exits 1 when it prints usage.
func (h *Harness) Admin(ctx context.Context, args ...string) ([]byte, error) {
	script := &cluster.Script{Argv: h.config.Cluster.AdminCommand, OKCodes: []int{1}}
	return script.Run(ctx, args...)
}

// Reset force-removes every node container, deletes the local mirror and, when
// credentialsFile is set, the credentials issued by the removed cluster.
func (h *Harness) Reset(ctx context.Context, credentialsFile string) (int, error) {
	nodes, err := h.Nodes()
	if err != nil {
		return 0, err
	}
	removed, err := nodes.RemoveAll(ctx)
	if err != nil {
		return removed, err
	}
	if err := h.removeLocalState(credentialsFile); err != nil {
		return removed, err
	}
	h.logger.Info("Harness reset", "nodes_removed", removed, "data_dir", h.config.Store.DataDir)
	return removed, nil
}

func (h *Harness) removeLocalState(credentialsFile string) error {
	if err := os.RemoveAll(h.config.Store.DataDir); err != nil {
		return fmt.Errorf("failed to remove data dir: %w", err)
	}
	if credentialsFile == "" {
		return nil
	}
	if err := os.Remove(credentialsFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove credentials file: %w", err)
	}
	return nil
}

// validateEndpoint checks that the store endpoint is an absolute http(s) URL.
func validateEndpoint(endpoint string) error {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("failed to parse URL: %w", err)
	}

	switch parsed.Scheme {
	case "http", "https":
		if parsed.Host == "" {
			return fmt.Errorf("endpoint %q has no host", endpoint)
		}
	default:
		return fmt.Errorf("unsupported endpoint scheme: %q (only http and https supported)", parsed.Scheme)
	}

	return nil
}
