// Package ratelimit provides optional per-client request throttling in
// front of the forwarding path, one token bucket per client IP. Buckets
// idle for several minutes are evicted so the client map stays bounded.
package ratelimit
