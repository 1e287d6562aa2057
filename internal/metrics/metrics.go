package metrics

import (
	"sort"
	"sync"
	"time"
)

// responseWindow bounds the per-backend response time history used for
// percentile calculation.
const responseWindow = 1000

type Metrics struct {
	mutex         sync.RWMutex
	attempts      map[string]int64
	retries       map[string]int64
	responseTimes map[string][]time.Duration
	statusCodes   map[string]map[int]int64
	healthStatus  map[string]bool
	poolExhausted int64
	startTime     time.Time
}

type Snapshot struct {
	TotalAttempts int64                     `json:"total_attempts"`
	PoolExhausted int64                     `json:"pool_exhausted"`
	Uptime        time.Duration             `json:"uptime"`
	Backends      map[string]BackendMetrics `json:"backends"`
}

type BackendMetrics struct {
	Attempts    int64         `json:"attempts"`
	Retries     int64         `json:"retries"`
	Healthy     bool          `json:"healthy"`
	AvgResponse time.Duration `json:"avg_response"`
	P50Response time.Duration `json:"p50_response"`
	P95Response time.Duration `json:"p95_response"`
	P99Response time.Duration `json:"p99_response"`
	StatusCodes map[int]int64 `json:"status_codes"`
}

func NewMetrics() *Metrics {
	return &Metrics{
		attempts:      make(map[string]int64),
		retries:       make(map[string]int64),
		responseTimes: make(map[string][]time.Duration),
		statusCodes:   make(map[string]map[int]int64),
		healthStatus:  make(map[string]bool),
		startTime:     time.Now(),
	}
}

func (m *Metrics) RecordAttempt(backend string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.attempts[backend]++
}

func (m *Metrics) RecordRetry(backend string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.retries[backend]++
}

func (m *Metrics) RecordResponse(backend string, duration time.Duration, statusCode int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.responseTimes[backend] = append(m.responseTimes[backend], duration)

	if len(m.responseTimes[backend]) > responseWindow {
		m.responseTimes[backend] = m.responseTimes[backend][1:]
	}

	if m.statusCodes[backend] == nil {
		m.statusCodes[backend] = make(map[int]int64)
	}
	m.statusCodes[backend][statusCode]++
}

func (m *Metrics) UpdateHealthStatus(backend string, healthy bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.healthStatus[backend] = healthy
}

func (m *Metrics) RecordPoolExhausted() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.poolExhausted++
}

func (m *Metrics) Snapshot() Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		PoolExhausted: m.poolExhausted,
		Uptime:        time.Since(m.startTime),
		Backends:      make(map[string]BackendMetrics),
	}

	allBackends := make(map[string]bool)
	for backend := range m.attempts {
		allBackends[backend] = true
	}
	for backend := range m.retries {
		allBackends[backend] = true
	}
	for backend := range m.responseTimes {
		allBackends[backend] = true
	}
	for backend := range m.healthStatus {
		allBackends[backend] = true
	}

	for backend := range allBackends {
		snap.TotalAttempts += m.attempts[backend]

		bm := BackendMetrics{
			Attempts: m.attempts[backend],
			Retries:  m.retries[backend],
			Healthy:  m.healthStatus[backend],
		}

		// The snapshot outlives the lock, so the caller must never see
		// the live map the collector keeps mutating.
		if codes := m.statusCodes[backend]; codes != nil {
			bm.StatusCodes = make(map[int]int64, len(codes))
			for code, count := range codes {
				bm.StatusCodes[code] = count
			}
		}

		durations := m.responseTimes[backend]
		if len(durations) > 0 {
			sorted := make([]time.Duration, len(durations))
			copy(sorted, durations)
			sort.Slice(sorted, func(i, j int) bool {
				return sorted[i] < sorted[j]
			})

			bm.AvgResponse = average(sorted)
			bm.P50Response = percentile(sorted, 0.50)
			bm.P95Response = percentile(sorted, 0.95)
			bm.P99Response = percentile(sorted, 0.99)
		}

		snap.Backends[backend] = bm
	}

	return snap
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
