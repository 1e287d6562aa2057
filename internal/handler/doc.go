// Package handler implements the inbound HTTP surface of the balancer:
// the generation endpoint, the OpenAI-compatible translation endpoint,
// proxied model listing, and the pool status views. Schema validation
// happens here so the dispatcher can stay payload-agnostic.
package handler
