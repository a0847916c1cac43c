// Package shipper sends telemetry batches to jalsense-server over gRPC
// (jalsense.v1.Telemetry/Ingest, JSON codec).
//
// Shipper.Ship() is non-blocking: batches are converted to types.Telemetry
// and placed in an in-memory channel (default capacity 1000). When the buffer
// is full the oldest entry is evicted so the latest readings are preserved.
//
// Shipper.Run() drains the buffer in a loop, reconnecting with truncated
// exponential backoff (1s→60s, ±25% jitter) on connection or send errors.
// A message that failed transiently is retried first after reconnecting, so
// the server never sees an older reading after a newer one for the same node.
// Permanent gRPC errors (NotFound for an unprovisioned node, InvalidArgument)
// discard the message immediately.
//
// Transport: TLS (optionally mutual) via credentials.NewTLS(), or plaintext
// when server_tls is not enabled.
//
// The dialFn field is injectable for testing (net.Listen loopback).
package shipper
