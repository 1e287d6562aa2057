package pool

import (
	"net/url"
	"sync"
	"time"
)

// Backend represents a single inference backend with health status,
// in-flight request tracking, and response time monitoring.
type Backend struct {
	url                 *url.URL
	mutex               sync.Mutex
	healthy             bool
	consecutiveFailures int
	lastCheckedAt       time.Time
	inFlight            int
	ewmaResponseTime    time.Duration
	hasEWMA             bool
}

const ewmaAlpha = 0.2

// New creates a new Backend for the given URL.
// The backend starts unhealthy and enters rotation only after its
// first successful health probe.
func New(url *url.URL) *Backend {
	return &Backend{
		url: url,
	}
}

// URL returns the backend server URL.
func (b *Backend) URL() *url.URL {
	return b.url
}

// IsHealthy returns true if the backend is currently healthy.
func (b *Backend) IsHealthy() bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.healthy
}

// ConsecutiveFailures returns the current failed-probe streak.
func (b *Backend) ConsecutiveFailures() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.consecutiveFailures
}

// LastCheckedAt returns the timestamp of the most recent probe or
// live-failure marking. Zero if the backend was never checked.
func (b *Backend) LastCheckedAt() time.Time {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.lastCheckedAt
}

// IncrementInFlight increments the in-flight request count.
func (b *Backend) IncrementInFlight() {
	b.mutex.Lock()
	b.inFlight++
	b.mutex.Unlock()
}

// DecrementInFlight decrements the in-flight request count.
func (b *Backend) DecrementInFlight() {
	b.mutex.Lock()
	if b.inFlight > 0 {
		b.inFlight--
	}
	b.mutex.Unlock()
}

// InFlight returns the current number of in-flight requests.
func (b *Backend) InFlight() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.inFlight
}

// RecordResponse updates the exponentially weighted moving average (EWMA)
// response time using the latest request duration.
func (b *Backend) RecordResponse(duration time.Duration) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if !b.hasEWMA {
		b.ewmaResponseTime = duration
		b.hasEWMA = true
		return
	}
	//ewma = (1 - α) * ewma + α * latest
	b.ewmaResponseTime = time.Duration((1-ewmaAlpha)*float64(b.ewmaResponseTime) + ewmaAlpha*float64(duration))
}

// EWMATime returns the exponentially weighted moving average response time.
// Returns 0 if no responses have been recorded yet.
func (b *Backend) EWMATime() time.Duration {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if !b.hasEWMA {
		return 0
	}

	return b.ewmaResponseTime
}

// mark records a probe or forwarding result. On success the failure
// streak resets and the backend becomes healthy; on failure the streak
// grows and the backend becomes unhealthy once it reaches threshold.
// Returns true if the health status changed.
func (b *Backend) mark(success bool, now time.Time, threshold int) (changed bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.lastCheckedAt = now

	if success {
		b.consecutiveFailures = 0
		if !b.healthy {
			b.healthy = true
			return true
		}
		return false
	}

	b.consecutiveFailures++
	if b.consecutiveFailures >= threshold && b.healthy {
		b.healthy = false
		return true
	}
	return false
}
