package pool

import (
	"math"
	"time"
)

// Snapshot is a read-only view of the pool for the status endpoints.
type Snapshot struct {
	TotalBackends   int             `json:"total_backends"`
	HealthyBackends int             `json:"healthy_backends"`
	Backends        []BackendStatus `json:"backends"`
}

// BackendStatus describes one backend inside a Snapshot.
type BackendStatus struct {
	URL                 string     `json:"url"`
	Healthy             bool       `json:"healthy"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	AvgResponseTime     float64    `json:"avg_response_time"`
	LastCheckedAt       *time.Time `json:"last_checked_at"`
	InFlightRequests    int        `json:"in_flight_requests"`
}

// Snapshot reports the current pool state. It reflects the most recent
// completed probe and any live-failure markings, never a cached count.
func (r *Registry) Snapshot() Snapshot {
	snap := Snapshot{
		TotalBackends: len(r.backends),
		Backends:      make([]BackendStatus, 0, len(r.backends)),
	}

	for _, b := range r.backends {
		status := BackendStatus{
			URL:                 b.URL().String(),
			Healthy:             b.IsHealthy(),
			ConsecutiveFailures: b.ConsecutiveFailures(),
			AvgResponseTime:     roundSeconds(b.EWMATime()),
			InFlightRequests:    b.InFlight(),
		}

		if checked := b.LastCheckedAt(); !checked.IsZero() {
			status.LastCheckedAt = &checked
		}

		if status.Healthy {
			snap.HealthyBackends++
		}

		snap.Backends = append(snap.Backends, status)
	}

	return snap
}

func roundSeconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*1000) / 1000
}
