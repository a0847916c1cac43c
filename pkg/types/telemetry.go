package types

import (
	"encoding/json"
	"sort"
	"time"
)

// Telemetry is one device reading: a partial metric delta for a single node.
// Keys the device did not report this cycle are simply absent.
type Telemetry struct {
	NodeID    string             `json:"nodeId" validate:"required"`
	Metrics   map[string]float64 `json:"metrics" validate:"required"`
	Timestamp *time.Time         `json:"timestamp,omitempty"`

	nullMetrics []string
}

// UnmarshalJSON decodes a telemetry message. A metric whose value is null is
// left out of Metrics and reported by NullMetrics instead of decoding as 0.
func (t *Telemetry) UnmarshalJSON(b []byte) error {
	var wire struct {
		NodeID    string              `json:"nodeId"`
		Metrics   map[string]*float64 `json:"metrics"`
		Timestamp *time.Time          `json:"timestamp"`
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}

	*t = Telemetry{NodeID: wire.NodeID, Timestamp: wire.Timestamp}
	if wire.Metrics == nil {
		return nil
	}
	t.Metrics = make(map[string]float64, len(wire.Metrics))
	for k, v := range wire.Metrics {
		if v == nil {
			t.nullMetrics = append(t.nullMetrics, k)
			continue
		}
		t.Metrics[k] = *v
	}
	sort.Strings(t.nullMetrics)
	return nil
}

// NullMetrics returns the sorted metric keys that arrived as JSON null.
// Such a message must be rejected; an absent metric and a zero differ.
func (t *Telemetry) NullMetrics() []string {
	return t.nullMetrics
}

// IngestAck is the reply to an accepted Telemetry message. Status is always
// "ingested"; Timestamp is the applied reading time.
type IngestAck struct {
	Status     string    `json:"status"`
	NodeID     string    `json:"nodeId"`
	Timestamp  time.Time `json:"timestamp"`
	NodeStatus string    `json:"nodeStatus"`
	AlertIDs   []int64   `json:"alertIds"`
}
