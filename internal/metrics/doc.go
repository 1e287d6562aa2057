// Package metrics provides real-time metrics collection for the
// balancer.
//
// It uses a channel-based event pipeline to asynchronously collect:
//   - Forwarding attempts and retries per backend
//   - Response times with percentile calculations (P50, P95, P99)
//   - HTTP status code distribution
//   - Health status transitions
//   - Pool exhaustion occurrences
//
// The collector runs in a dedicated goroutine and processes events
// without blocking the request path. Events are sent via buffered
// channels with non-blocking semantics; under sustained overload
// events are dropped rather than slowing down forwarding.
package metrics
