package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/comeapi/loadbalancer/internal/metrics"
	"github.com/comeapi/loadbalancer/internal/pool"
)

// PoolExhaustedError is returned when a request could not be served:
// every backend that was healthy at selection time failed, or no
// backend was healthy to begin with. It is the only dispatch error a
// client-facing layer should ever see.
type PoolExhaustedError struct {
	Attempts int
}

func (e *PoolExhaustedError) Error() string {
	if e.Attempts == 0 {
		return "no healthy backend available"
	}
	return fmt.Sprintf("all backends failed after %d attempts", e.Attempts)
}

// Result carries a backend response verbatim back to the caller.
type Result struct {
	StatusCode  int
	Body        []byte
	ContentType string
}

// Dispatcher forwards client requests to pool backends, retrying a
// failed attempt on the next healthy backend until one succeeds or the
// pool is exhausted. A failed attempt immediately marks the backend
// unhealthy, so the pool reacts faster than the periodic probe cycle.
type Dispatcher struct {
	registry  *pool.Registry
	client    *http.Client
	timeout   time.Duration
	logger    *slog.Logger
	collector *metrics.Collector
}

// New creates a Dispatcher. The timeout bounds each forwarding attempt
// and must exceed worst-case generation latency, which is not bounded
// by the much shorter probe timeout.
func New(registry *pool.Registry, timeout time.Duration, logger *slog.Logger, collector *metrics.Collector) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		// No client-level timeout: each attempt carries its own context
		// deadline so inbound-request cancellation propagates.
		client:    &http.Client{},
		timeout:   timeout,
		logger:    logger,
		collector: collector,
	}
}

// Forward delivers the payload to the backend pool. The body is treated
// as an opaque blob: it is replayed byte-for-byte on every retry and
// the winning backend's response body is returned verbatim.
//
// A 2xx response wins and also counts as a health success. Network
// errors, per-attempt timeouts, and 5xx responses mark the backend
// unhealthy and move on to the next candidate, never revisiting one
// already tried for this request. 4xx responses are terminal: the
// backend rejected this particular payload, which says nothing about
// its health. If the inbound context is cancelled (client disconnect),
// the in-progress backend call is cancelled with it and no backend is
// marked.
func (d *Dispatcher) Forward(ctx context.Context, method, path string, body []byte, contentType string) (*Result, error) {
	tried := make(map[int]bool)

	for {
		idx, ok := d.registry.Select(tried)
		if !ok {
			d.collector.Emit(metrics.MetricEvent{
				Type:      metrics.EventPoolExhausted,
				Timestamp: time.Now(),
			})
			return nil, &PoolExhaustedError{Attempts: len(tried)}
		}

		if len(tried) > 0 {
			d.collector.Emit(metrics.MetricEvent{
				Type:      metrics.EventRetryAttempted,
				Timestamp: time.Now(),
				Backend:   d.registry.Get(idx).URL().String(),
			})
		}

		result, retryable, err := d.attempt(ctx, idx, method, path, body, contentType)
		if err == nil {
			return result, nil
		}
		if !retryable {
			return nil, err
		}

		tried[idx] = true
		changed := d.registry.Mark(idx, false, time.Now())
		if changed {
			d.collector.Emit(metrics.MetricEvent{
				Type:      metrics.EventHealthChanged,
				Timestamp: time.Now(),
				Backend:   d.registry.Get(idx).URL().String(),
				Healthy:   false,
			})
		}

		d.logger.Warn("Backend attempt failed, trying next candidate",
			slog.String("backend", d.registry.Get(idx).URL().String()),
			slog.Int("attempt", len(tried)),
			slog.Any("err", err))
	}
}

func (d *Dispatcher) attempt(ctx context.Context, idx int, method, path string, body []byte, contentType string) (result *Result, retryable bool, err error) {
	backend := d.registry.Get(idx)
	target := backend.URL().ResolveReference(&url.URL{Path: path})

	attemptCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, method, target.String(), bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	backend.IncrementInFlight()
	defer backend.DecrementInFlight()

	d.collector.Emit(metrics.MetricEvent{
		Type:      metrics.EventForwardAttempted,
		Timestamp: time.Now(),
		Backend:   backend.URL().String(),
	})

	start := time.Now()
	res, err := d.client.Do(req)
	duration := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			// The inbound request itself is gone; this is not a backend
			// health signal.
			return nil, false, ctx.Err()
		}
		return nil, true, fmt.Errorf("backend %s unavailable: %w", backend.URL(), err)
	}
	defer res.Body.Close()

	respBody, err := io.ReadAll(res.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, true, fmt.Errorf("backend %s response read failed: %w", backend.URL(), err)
	}

	d.collector.Emit(metrics.MetricEvent{
		Type:       metrics.EventResponseCompleted,
		Timestamp:  time.Now(),
		Backend:    backend.URL().String(),
		Duration:   duration,
		StatusCode: res.StatusCode,
	})

	if res.StatusCode >= http.StatusInternalServerError {
		return nil, true, fmt.Errorf("backend %s returned status %d", backend.URL(), res.StatusCode)
	}

	if res.StatusCode >= 200 && res.StatusCode < 300 {
		backend.RecordResponse(duration)
		d.registry.Mark(idx, true, time.Now())
	}

	return &Result{
		StatusCode:  res.StatusCode,
		Body:        respBody,
		ContentType: res.Header.Get("Content-Type"),
	}, false, nil
}
