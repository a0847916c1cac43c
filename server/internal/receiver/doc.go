// Package receiver holds the telemetry transports that feed the ingest
// coordinator.
//
// GRPC implements the jalsense.v1.Telemetry service (see pkg/rpc). A missing
// nodeId is rejected with codes.InvalidArgument and an unprovisioned node
// with codes.NotFound; agents treat both as permanent and do not retry.
//
// Consumer reads types.Telemetry JSON from a Kafka topic. Messages that
// cannot be decoded, or that name an unknown node, are written to the
// dead-letter topic when one is configured and then committed: a rejected
// message is never redelivered.
//
// UnaryInterceptor logs every gRPC call and turns handler panics into
// codes.Internal.
package receiver
