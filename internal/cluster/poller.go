package cluster

import (
	"context"
	"log/slog"
	"time"

	"github.com/objectfs/s3harness/pkg/errors"
	"github.com/objectfs/s3harness/pkg/retry"
)

const (
	// DefaultJoinInterval is the wait between samples while nodes are missing from the ring.
	DefaultJoinInterval = 10 * time.Second
	// DefaultConvergeInterval is the wait between samples once every node owns partitions.
	DefaultConvergeInterval = 5 * time.Second
)

// Poller waits for partition ownership to spread evenly over the running nodes.
type Poller struct {
	Status           StatusSource
	Nodes            NodeCounter
	JoinInterval     time.Duration
	ConvergeInterval time.Duration

	// Observe, if set, receives every ring sample taken while waiting.
	Observe func(snap RingSnapshot, total int)

	// Retry, if set, retries failed status reads. Stats endpoints go away
	// briefly while a node restarts.
	Retry *retry.Retryer

	logger *slog.Logger
}

// NewPoller creates a poller with the default intervals.
func NewPoller(status StatusSource, nodes NodeCounter, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		Status:           status,
		Nodes:            nodes,
		JoinInterval:     DefaultJoinInterval,
		ConvergeInterval: DefaultConvergeInterval,
		logger:           logger,
	}
}

// Balanced reports whether snap shows all total nodes in the ring with a
// strict majority owning within one partition of an even split.
func Balanced(snap RingSnapshot, total int) bool {
	if total <= 0 {
		return false
	}
	return balanced(snap, total, snap.NumPartitions/total)
}

func balanced(snap RingSnapshot, total, expected int) bool {
	if len(snap.Ownership) != total {
		return false
	}
	near := 0
	for _, n := range snap.Ownership {
		if n >= expected-1 && n <= expected+1 {
			near++
		}
	}
	return near > total/2
}

// WaitForBalance blocks until the ring is balanced over the nodes running when
// the call starts. It has no deadline of its own; cancel ctx to give up.
func (p *Poller) WaitForBalance(ctx context.Context) error {
	total, err := p.Nodes.RunningNodes(ctx)
	if err != nil {
		return err
	}
	if total <= 0 {
		return errors.NewError(errors.ErrCodeInvalidState, "no running nodes").
			WithComponent("cluster").
			WithOperation("wait_for_balance")
	}

	snap, err := p.ringStatus(ctx)
	if err != nil {
		return err
	}
	expected := snap.NumPartitions / total
	p.logger.Info("Rebalancing", "nodes", total, "expected_partitions", expected)

	start := time.Now()
	for polls := 1; ; polls++ {
		snap, err := p.ringStatus(ctx)
		if err != nil {
			return err
		}
		p.logger.Debug("Current partition split", "splits", snap.Splits(), "poll", polls)
		if p.Observe != nil {
			p.Observe(snap, total)
		}

		interval := p.JoinInterval
		if len(snap.Ownership) == total {
			if balanced(snap, total, expected) {
				p.logger.Info("Ring balanced", "nodes", total, "splits", snap.Splits(),
					"polls", polls, "elapsed", time.Since(start))
				return nil
			}
			interval = p.ConvergeInterval
		}

		if err := sleep(ctx, interval); err != nil {
			return err
		}
	}
}

func (p *Poller) ringStatus(ctx context.Context) (RingSnapshot, error) {
	if p.Retry == nil {
		return p.Status.RingStatus(ctx)
	}
	var snap RingSnapshot
	err := p.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		snap, err = p.Status.RingStatus(ctx)
		return err
	})
	return snap, err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
