package ingest

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jalsense/jalsense/pkg/types"
	"github.com/jalsense/jalsense/server/internal/alerts"
	"github.com/jalsense/jalsense/server/internal/metrics"
	"github.com/jalsense/jalsense/server/internal/rules"
	"github.com/jalsense/jalsense/server/internal/store"
)

// Result describes one accepted ingestion.
type Result struct {
	NodeID           string
	AppliedTimestamp time.Time
	Status           rules.Status
	Alerts           []alerts.Alert
}

// AlertIDs returns the ids of the alerts raised by this ingestion.
func (r Result) AlertIDs() []int64 {
	ids := make([]int64, len(r.Alerts))
	for i, a := range r.Alerts {
		ids[i] = a.ID
	}
	return ids
}

// Ack converts r to the wire acknowledgment returned to telemetry sources.
func (r Result) Ack() *types.IngestAck {
	return &types.IngestAck{
		Status:     "ingested",
		NodeID:     r.NodeID,
		Timestamp:  r.AppliedTimestamp,
		NodeStatus: r.Status.String(),
		AlertIDs:   r.AlertIDs(),
	}
}

// Coordinator owns all writes to the node store and the alert ledger.
type Coordinator struct {
	store   *store.Store
	ledger  *alerts.Ledger
	notify  alerts.Notifier
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithNotifier registers n to hear about every appended alert.
func WithNotifier(n alerts.Notifier) Option {
	return func(c *Coordinator) { c.notify = n }
}

// WithMetrics records alert counts and node status on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// New returns a Coordinator writing to st and ledger.
func New(st *store.Store, ledger *alerts.Ledger, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:  st,
		ledger: ledger,
		notify: alerts.Fanout(nil),
		now:    time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Ingest applies delta to node nodeID. A nil ts means "now". It fails with
// store.ErrUnknownNode, wrapped, for an unprovisioned id, in which case no
// state changes and no alert id is consumed.
func (c *Coordinator) Ingest(nodeID string, delta map[string]float64, ts *time.Time) (Result, error) {
	applied := c.now().UTC()
	if ts != nil {
		applied = *ts
	}

	res := Result{NodeID: nodeID, AppliedTimestamp: applied}

	err := c.store.Update(nodeID, func(tx *store.Tx) {
		node := tx.Merge(delta, applied)

		status, findings := rules.Evaluate(node.Category, node.Metrics)
		tx.SetStatus(status)
		res.Status = status
		if c.metrics != nil {
			c.metrics.NodeStatus.WithLabelValues(nodeID, string(node.Category)).Set(float64(status))
		}

		ref := alerts.NodeRef{ID: node.ID, Name: node.Name}
		for _, f := range findings {
			res.Alerts = append(res.Alerts, c.ledger.Append(ref, f))
		}
	})
	if err != nil {
		return Result{}, fmt.Errorf("ingest %q: %w", nodeID, err)
	}

	slog.Debug("ingest: applied",
		"node", nodeID,
		"keys", len(delta),
		"status", res.Status,
		"alerts", len(res.Alerts),
	)

	if c.metrics != nil {
		for _, a := range res.Alerts {
			c.metrics.AlertsTotal.WithLabelValues(string(a.Kind), a.Severity.String()).Inc()
		}
	}
	for _, a := range res.Alerts {
		c.notify.Notify(a)
	}
	return res, nil
}
