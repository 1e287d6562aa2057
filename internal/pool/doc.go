// Package pool holds the backend registry: the fixed ordered set of
// inference backends, their health state, and the shared rotation
// cursor used for round-robin selection. All health-state mutation and
// selection goes through the Registry; no other package holds backend
// state.
package pool
