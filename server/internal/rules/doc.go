// Package rules is the rule catalog for jalsense-server: a fixed set of pure
// threshold checks, one table per node category, that classify a metric
// snapshot and describe every violated limit.
//
// Evaluate(category, snapshot) walks the category's table in declaration
// order. Each triggered rule yields one Finding (kind, severity, message) and
// raises the node status to at least the status implied by the finding's
// severity; a later, milder finding never lowers it. Evaluation holds no
// state and cannot fail: an unknown category evaluates to OK with no findings.
//
// Metric presence matters. Every metric the catalog reads is declared once
// (see metrics.go) as either optional (absent ⇒ the rule does not fire) or
// defaulted (absent ⇒ a declared default is used). Call sites never invent
// their own defaults.
//
// Thresholds follow the BIS drinking-water limits for tap nodes and the
// vendor operating envelopes for pumps, tanks, and valves.
package rules
