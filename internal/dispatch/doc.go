// Package dispatch implements request forwarding with retry across the
// backend pool. Each inbound request walks the round-robin rotation
// through distinct backends until one returns a response or the pool
// is exhausted. Live forwarding failures feed back into the registry
// as health signals.
package dispatch
