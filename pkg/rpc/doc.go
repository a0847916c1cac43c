// Package rpc defines the jalsense.v1.Telemetry gRPC service shared by the
// agent (client) and the server (receiver).
//
// Messages are the JSON types from package types, carried with a "json"
// codec registered with grpc's encoding registry on import. Clients select it
// per call with grpc.CallContentSubtype; the server picks it up from the
// request's content-subtype automatically.
//
//	service jalsense.v1.Telemetry {
//	  rpc Ingest(Telemetry) returns (IngestAck);
//	}
package rpc
