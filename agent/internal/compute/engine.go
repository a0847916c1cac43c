package compute

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jalsense/jalsense/agent/internal/scraper"
)

// uptimeWindow is the number of recent scrape outcomes tracked for uptime %.
const uptimeWindow = 20

// Batch is one telemetry delta ready to be handed to the shipper.
type Batch struct {
	SourceID  string
	NodeID    string
	Timestamp time.Time
	Metrics   map[string]float64

	// Full is true when Metrics carries every key of the reading rather than
	// only the changed ones.
	Full bool

	UptimePct float64
}

// Engine keeps per-source state across scrape cycles.
//
// All exported methods are safe for concurrent use.
type Engine struct {
	mu          sync.Mutex
	resyncEvery int
	states      map[string]*sourceState
}

// NewEngine returns an Engine that ships a full reading every resyncEvery
// successful cycles. Values below 1 are treated as 1 (always full).
func NewEngine(resyncEvery int) *Engine {
	if resyncEvery < 1 {
		resyncEvery = 1
	}
	return &Engine{resyncEvery: resyncEvery, states: make(map[string]*sourceState)}
}

// Process folds r into the source's state and returns the batch to ship, or
// nil when the scrape failed or nothing changed since the last batch.
func (e *Engine) Process(r *scraper.Reading) *Batch {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.stateFor(r.SourceID)
	success := r.Err == nil
	st.recordScrape(success)

	if !success {
		st.dirty = true
		slog.Warn("compute: scrape failed",
			"source", r.SourceID,
			"node", r.NodeID,
			"uptime_pct", st.uptimePct(),
			"err", r.Err,
		)
		return nil
	}

	full := st.sent == nil || st.dirty || st.nodeID != r.NodeID || st.cycles%e.resyncEvery == 0
	st.cycles++

	metrics := make(map[string]float64, len(r.Metrics))
	for k, v := range r.Metrics {
		if prev, ok := st.sent[k]; full || !ok || prev != v {
			metrics[k] = v
		}
	}
	if len(metrics) == 0 {
		return nil
	}

	if full || st.sent == nil {
		st.sent = make(map[string]float64, len(r.Metrics))
	}
	for k, v := range metrics {
		st.sent[k] = v
	}
	st.nodeID = r.NodeID
	st.dirty = false

	return &Batch{
		SourceID:  r.SourceID,
		NodeID:    r.NodeID,
		Timestamp: r.ScrapedAt,
		Metrics:   metrics,
		Full:      full,
		UptimePct: st.uptimePct(),
	}
}

// Uptime returns the percentage of successful scrapes for sourceID over the
// recent window. Sources never seen report 100.
func (e *Engine) Uptime(sourceID string) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.states[sourceID]
	if !ok {
		return 100
	}
	return st.uptimePct()
}

// Forget drops all state for sourceID, typically after a config reload
// removed or replaced the source.
func (e *Engine) Forget(sourceID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.states, sourceID)
}

// sourceState holds the values last shipped for a source and its uptime history.
type sourceState struct {
	nodeID  string
	sent    map[string]float64
	cycles  int
	dirty   bool   // a scrape failed since the last batch
	history []bool // scrape outcomes, newest last
}

func (e *Engine) stateFor(id string) *sourceState {
	if st, ok := e.states[id]; ok {
		return st
	}
	st := &sourceState{}
	e.states[id] = st
	return st
}

func (st *sourceState) recordScrape(success bool) {
	if len(st.history) >= uptimeWindow {
		st.history = st.history[1:]
	}
	st.history = append(st.history, success)
}

func (st *sourceState) uptimePct() float64 {
	if len(st.history) == 0 {
		return 100 // assume up before first observation
	}
	var ok int
	for _, s := range st.history {
		if s {
			ok++
		}
	}
	return float64(ok) / float64(len(st.history)) * 100
}
