// Package scraper polls device gateways and normalizes what they report into
// a Reading: one flat map of metric key to value for a single node.
//
// Two gateway formats are supported:
//   - prometheus (prometheus.go): a Prometheus text exposition, each family
//     summed across its label sets
//   - json (json.go): a JSON object; nested objects are flattened with "."
//     and booleans become 1 or 0
//
// A source's metrics mapping renames gateway names to the engine's metric
// keys. With a mapping, unmapped names are discarded.
//
// Authentication (mTLS, API key, bearer token, basic) is handled by the
// shared authRoundTripper in base.go; individual scrapers receive a
// pre-configured *http.Client from New().
package scraper
