// Package ingest is the single entry point through which telemetry changes
// engine state.
//
// Coordinator.Ingest merges a metric delta into the node's snapshot,
// evaluates the node's category rules against the merged snapshot, writes
// the resulting status, and appends one alert per finding, all while holding
// that node's lock. Two ingests for the same node therefore never interleave,
// and the alert ids produced by one call are contiguous and follow rule
// declaration order. Ingests for different nodes run in parallel and only
// meet briefly on the ledger's id counter.
//
// The node status gauge is set under the node lock, so it always matches the
// stored status. Notifiers (WebSocket hub, webhook dispatcher) are called
// after the lock is released: alerts from one call reach them in id order,
// but alerts from concurrent calls for the same node may be delivered out of
// id order.
package ingest
