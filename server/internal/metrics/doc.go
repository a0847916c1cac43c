// Package metrics defines the Prometheus collectors exported by
// jalsense-server on GET /metrics.
//
// Collectors are created on an injected registerer (New) rather than the
// global default registry, so tests can build as many independent sets as
// they like.
package metrics
