package healthcheck

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/comeapi/loadbalancer/internal/metrics"
	"github.com/comeapi/loadbalancer/internal/pool"
)

// Checker periodically probes every backend in the registry and updates
// its health state. It is the sole recovery mechanism: a backend marked
// unhealthy stays out of rotation until one of its probes succeeds.
type Checker struct {
	registry  *pool.Registry
	interval  time.Duration
	client    *http.Client
	clock     clockwork.Clock
	logger    *slog.Logger
	collector *metrics.Collector
}

// New creates a Checker probing the registry every interval. Each probe
// is bounded by probeTimeout, which must be well below the interval so
// a full sweep always finishes before the next one starts. Health
// transitions are reported to the collector, which may be nil.
func New(registry *pool.Registry, interval, probeTimeout time.Duration, logger *slog.Logger, collector *metrics.Collector) *Checker {
	return NewWithClock(registry, interval, probeTimeout, logger, collector, clockwork.NewRealClock())
}

// NewWithClock is New with an injected clock for tests.
func NewWithClock(registry *pool.Registry, interval, probeTimeout time.Duration, logger *slog.Logger, collector *metrics.Collector, clock clockwork.Clock) *Checker {
	return &Checker{
		registry: registry,
		interval: interval,
		client: &http.Client{
			Timeout: probeTimeout,
		},
		clock:     clock,
		logger:    logger,
		collector: collector,
	}
}

// Run probes all backends once immediately, then on every interval tick
// until the context is cancelled. The startup sweep means a healthy
// pool becomes routable within one probe timeout instead of waiting a
// full interval.
func (c *Checker) Run(ctx context.Context) {
	c.Sweep(ctx)

	ticker := c.clock.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Health checker stopped")
			return

		case <-ticker.Chan():
			c.Sweep(ctx)
		}
	}
}

// Sweep probes every backend concurrently, one probe per backend, and
// waits for all of them. Probe failures are absorbed into registry
// state, never returned.
func (c *Checker) Sweep(ctx context.Context) {
	var group errgroup.Group

	for i, b := range c.registry.List() {
		i, b := i, b
		group.Go(func() error {
			c.probe(ctx, i, b)
			return nil
		})
	}

	_ = group.Wait()
}

func (c *Checker) probe(ctx context.Context, index int, b *pool.Backend) {
	probeURL := b.URL().ResolveReference(&url.URL{Path: "/"})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL.String(), nil)
	if err != nil {
		return
	}

	healthy := false
	res, err := c.client.Do(req)
	if err == nil {
		res.Body.Close()
		healthy = res.StatusCode >= 200 && res.StatusCode < 300
	}

	changed := c.registry.Mark(index, healthy, c.clock.Now())
	if changed {
		c.collector.Emit(metrics.MetricEvent{
			Type:      metrics.EventHealthChanged,
			Timestamp: c.clock.Now(),
			Backend:   b.URL().String(),
			Healthy:   healthy,
		})

		if healthy {
			c.logger.Info("Backend is up",
				slog.String("backend", b.URL().String()))
		} else {
			c.logger.Warn("Backend is down",
				slog.String("backend", b.URL().String()))
		}
	}
}
