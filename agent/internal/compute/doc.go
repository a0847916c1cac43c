// Package compute turns successive scraper Readings into the batches the
// agent ships to the server.
//
// The Engine reports by exception: after the first full reading for a
// source, only keys whose value changed since the last batch are shipped.
// Every ResyncEvery successful cycles, and on the first success after a
// failed scrape, the full reading is shipped again so the server recovers
// from anything it missed.
//
// The Engine also tracks scrape uptime over the last 20 cycles per source.
package compute
