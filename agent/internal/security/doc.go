// Package security inspects the TLS certificates of HTTPS device gateways so
// operators hear about an expiring certificate before scrapes start failing.
package security
