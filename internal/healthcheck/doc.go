// Package healthcheck implements the background liveness loop. It
// probes every registered backend's root path on a fixed interval with
// a short per-probe timeout, one concurrent probe per backend, and
// feeds the results into the registry. A failed probe is not retried
// within a cycle; the next cycle is the recovery path.
package healthcheck
