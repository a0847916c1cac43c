// Package types defines the wire types shared by the agent and the server.
// The same JSON shapes travel over the gRPC Ingest call, the Kafka telemetry
// topic, and POST /api/telemetry.
package types
