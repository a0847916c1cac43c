// Package api implements the HTTP REST API for jalsense-server.
//
// New returns an http.Handler that serves:
//
//	GET  /api/health             status, node count, alert counts
//	GET  /api/nodes              all provisioned nodes with latest metrics and status
//	GET  /api/nodes/{id}         one node; 404 if not provisioned
//	GET  /api/alerts             all alerts in creation order; ?only_open=true filters
//	POST /api/alerts/{id}/ack    acknowledge; 404 if no such alert, idempotent
//	POST /api/telemetry          ingest one reading; 404 for an unknown node
//
// All endpoints respond with Content-Type: application/json and return 405
// for the wrong method. Every request gets an X-Request-ID (the caller's, if
// it sent one) and one structured access-log line.
//
// JSON types are defined in types.go. No external HTTP framework is used.
package api
