// Package ws implements the WebSocket hub for jalsense-server.
//
// Hub manages a set of connected dashboard clients. It pushes the full node
// and open-alert state to every client on a fixed interval, and pushes each
// new alert the moment the ingest coordinator appends it (Hub implements
// alerts.Notifier).
//
// Message format sent to clients:
//
//	{"event": "snapshot", "data": {"nodes": [...], "open_alerts": [...], "generated_at": "..."}}
//	{"event": "alert",    "data": { /* one alert, same schema as GET /api/alerts */ }}
//
// A client may connect with ?node=pump-1,tank-1 to receive only those nodes
// in snapshots and only their alerts.
//
// A client whose outgoing buffer is full is disconnected rather than allowed
// to slow down ingestion. The upgrader accepts all origins; apply CORS at the
// reverse proxy. The endpoint is mounted at /ws/stream by the server.
package ws
