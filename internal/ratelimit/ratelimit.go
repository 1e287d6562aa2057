package ratelimit

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/comeapi/loadbalancer/internal/handler"
)

// Entries idle past idleTTL are dropped so the per-client map does not
// grow with every address ever seen. Sweeps piggyback on Allow calls;
// no background goroutine.
const (
	idleTTL    = 5 * time.Minute
	sweepEvery = time.Minute
)

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter hands out one token bucket per client. Clients are keyed by
// IP; a client seen for the first time (or returning after idleTTL)
// starts with a full bucket.
type Limiter struct {
	mutex     sync.Mutex
	clients   map[string]*client
	rps       rate.Limit
	burst     int
	clock     clockwork.Clock
	lastSweep time.Time
}

func New(rps float64, burst int) *Limiter {
	return NewWithClock(rps, burst, clockwork.NewRealClock())
}

// NewWithClock is New with an injected clock for tests.
func NewWithClock(rps float64, burst int, clock clockwork.Clock) *Limiter {
	return &Limiter{
		clients: make(map[string]*client),
		rps:     rate.Limit(rps),
		burst:   burst,
		clock:   clock,
	}
}

// Allow reports whether the client may proceed and consumes a token if
// so.
func (l *Limiter) Allow(clientID string) bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	now := l.clock.Now()
	l.sweep(now)

	c, ok := l.clients[clientID]
	if !ok {
		c = &client{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.clients[clientID] = c
	}
	c.lastSeen = now

	return c.limiter.Allow()
}

// sweep drops idle entries at most once per sweepEvery. Caller holds
// the mutex.
func (l *Limiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < sweepEvery {
		return
	}
	l.lastSweep = now

	for id, c := range l.clients {
		if now.Sub(c.lastSeen) >= idleTTL {
			delete(l.clients, id)
		}
	}
}

// Middleware rejects over-limit clients with 429 before they reach the
// forwarding path.
func Middleware(limiter *Limiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := handler.ClientIP(r)

			if !limiter.Allow(clientIP) {
				logger.Warn("Rate limit exceeded",
					slog.String("client", clientIP),
					slog.String("path", r.URL.Path))

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]string{"detail": "rate limit exceeded"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
