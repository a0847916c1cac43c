// Package alerts implements the alert ledger and alert delivery for
// jalsense-server.
//
// Ledger is an append-only, in-memory log of alerts for the lifetime of the
// process. Append assigns ids from a single counter (1, 2, 3, ...) under one
// mutex, so ids are unique, gapless, and strictly increasing, and list order
// is creation order. Alerts are never edited except for the acknowledged
// flag, which only moves from false to true, and are never deleted.
//
// Notifier is the hook for anything that wants to hear about new alerts.
// Dispatcher is the webhook notifier: it queues alerts and delivers them to
// Slack, Teams, or generic HTTP targets from a background worker, rate
// limited so a flapping device cannot flood a channel. Delivery problems are
// logged and never reach the ingest path.
package alerts
