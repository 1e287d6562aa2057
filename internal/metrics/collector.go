package metrics

import (
	"context"
	"log/slog"
	"time"
)

type EventType string

const (
	EventForwardAttempted  EventType = "forward_attempted"
	EventRetryAttempted    EventType = "retry_attempted"
	EventResponseCompleted EventType = "response_completed"
	EventHealthChanged     EventType = "health_changed"
	EventPoolExhausted     EventType = "pool_exhausted"
)

type MetricEvent struct {
	Type       EventType
	Timestamp  time.Time
	Backend    string
	Duration   time.Duration
	StatusCode int
	Healthy    bool
}

// Collector consumes metric events off a buffered channel so the
// request path never blocks on bookkeeping.
type Collector struct {
	eventCh chan MetricEvent
	metrics *Metrics
	logger  *slog.Logger
}

func NewCollector(bufferSize int, logger *slog.Logger) *Collector {
	return &Collector{
		eventCh: make(chan MetricEvent, bufferSize),
		metrics: NewMetrics(),
		logger:  logger,
	}
}

// Emit enqueues an event without blocking. Events are dropped when the
// buffer is full; metrics are best effort.
func (c *Collector) Emit(event MetricEvent) {
	if c == nil {
		return
	}

	select {
	case c.eventCh <- event:
	default:
	}
}

func (c *Collector) Snapshot() Snapshot {
	return c.metrics.Snapshot()
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("Metrics collector started")
	defer c.logger.Info("Metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			// Drain remaining events before shutdown
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event MetricEvent) {
	switch event.Type {
	case EventForwardAttempted:
		c.metrics.RecordAttempt(event.Backend)

	case EventRetryAttempted:
		c.metrics.RecordRetry(event.Backend)

	case EventResponseCompleted:
		c.metrics.RecordResponse(event.Backend, event.Duration, event.StatusCode)

	case EventHealthChanged:
		c.metrics.UpdateHealthStatus(event.Backend, event.Healthy)

	case EventPoolExhausted:
		c.metrics.RecordPoolExhausted()
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}
