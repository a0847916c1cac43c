package alerts

import (
	"errors"
	"sync"
	"time"

	"github.com/jalsense/jalsense/server/internal/rules"
)

// ErrNotFound is returned when acknowledging an alert id that does not exist.
var ErrNotFound = errors.New("alert not found")

// Alert is one persisted finding with its acknowledgment state.
type Alert struct {
	ID           int64          `json:"id"`
	NodeID       string         `json:"node_id"`
	NodeName     string         `json:"node_name"`
	Kind         rules.Kind     `json:"type"`
	Severity     rules.Severity `json:"severity"`
	Message      string         `json:"message"`
	CreatedAt    time.Time      `json:"created_at"`
	Acknowledged bool           `json:"acknowledged"`
}

// NodeRef is the node identity copied onto an alert at creation time.
type NodeRef struct {
	ID   string
	Name string
}

// Filter selects which alerts List returns.
type Filter int

const (
	All Filter = iota
	OpenOnly
)

// Ledger is the process-lifetime alert log. It is safe for concurrent use.
type Ledger struct {
	mu     sync.Mutex
	nextID int64
	alerts []Alert // alerts[i].ID == i+1
	now    func() time.Time
}

// NewLedger returns an empty Ledger whose first alert gets id 1.
func NewLedger() *Ledger {
	return &Ledger{nextID: 1, now: time.Now}
}

// Append records f against node and returns the stored alert. CreatedAt is
// the ingestion wall-clock time, not the device timestamp.
func (l *Ledger) Append(node NodeRef, f rules.Finding) Alert {
	l.mu.Lock()
	defer l.mu.Unlock()

	a := Alert{
		ID:        l.nextID,
		NodeID:    node.ID,
		NodeName:  node.Name,
		Kind:      f.Kind,
		Severity:  f.Severity,
		Message:   f.Message,
		CreatedAt: l.now().UTC(),
	}
	l.nextID++
	l.alerts = append(l.alerts, a)
	return a
}

// List returns copies of the selected alerts in creation order.
func (l *Ledger) List(filter Filter) []Alert {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Alert, 0, len(l.alerts))
	for _, a := range l.alerts {
		if filter == OpenOnly && a.Acknowledged {
			continue
		}
		out = append(out, a)
	}
	return out
}

// Acknowledge marks alert id as acknowledged and returns it. Acknowledging an
// alert twice is not an error.
func (l *Ledger) Acknowledge(id int64) (Alert, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if id < 1 || id > int64(len(l.alerts)) {
		return Alert{}, ErrNotFound
	}
	a := &l.alerts[id-1]
	a.Acknowledged = true
	return *a, nil
}

// Counts reports the total number of alerts and how many are still open.
func (l *Ledger) Counts() (total, open int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, a := range l.alerts {
		if !a.Acknowledged {
			open++
		}
	}
	return len(l.alerts), open
}
