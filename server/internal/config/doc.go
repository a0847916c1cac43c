// Package config loads the server-side configuration from the `server:` section
// of config.yaml (the `agent:` key is ignored by the server binary).
//
// Config fields:
//   - GRPCPort           port for the gRPC telemetry receiver (default 50051)
//   - HTTPPort           port for the REST API, WebSocket hub and /metrics (default 8080)
//   - LogLevel           debug | info | warn | error (default info)
//   - Nodes              the provisioned node catalog; the four demo nodes when omitted
//   - Kafka              optional telemetry topic consumer and dead-letter topic
//   - Alerts.Webhooks    Slack / Teams / HTTP delivery targets, URLs read from env vars
//   - Alerts.RateLimit   webhook deliveries per second (default 2, burst 5)
//   - Broadcast.Interval how often WebSocket clients receive a full snapshot (default 5s)
//
// Load(path) applies defaults before unmarshalling, then validates.
package config
