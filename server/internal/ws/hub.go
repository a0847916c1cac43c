package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jalsense/jalsense/server/internal/alerts"
	"github.com/jalsense/jalsense/server/internal/metrics"
	"github.com/jalsense/jalsense/server/internal/store"
)

// Event names.
const (
	EventSnapshot = "snapshot"
	EventAlert    = "alert"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Message is the JSON envelope sent to clients.
type Message struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Snapshot is the data of a "snapshot" event.
type Snapshot struct {
	Nodes       []store.Node   `json:"nodes"`
	OpenAlerts  []alerts.Alert `json:"open_alerts"`
	GeneratedAt string         `json:"generated_at"` // RFC3339
}

// filter narrows sn to the given node ids.
func (sn Snapshot) filter(nodes map[string]bool) Snapshot {
	out := Snapshot{
		Nodes:       make([]store.Node, 0, len(nodes)),
		OpenAlerts:  make([]alerts.Alert, 0),
		GeneratedAt: sn.GeneratedAt,
	}
	for _, n := range sn.Nodes {
		if nodes[n.ID] {
			out.Nodes = append(out.Nodes, n)
		}
	}
	for _, a := range sn.OpenAlerts {
		if nodes[a.NodeID] {
			out.OpenAlerts = append(out.OpenAlerts, a)
		}
	}
	return out
}

// Hub fans node state and alerts out to dashboard clients.
type Hub struct {
	store    *store.Store
	ledger   *alerts.Ledger
	interval time.Duration
	metrics  *metrics.Metrics
	now      func() time.Time

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// New creates a Hub that snapshots st and ledger every interval. m may be nil.
func New(st *store.Store, ledger *alerts.Ledger, interval time.Duration, m *metrics.Metrics) *Hub {
	return &Hub{
		store:    st,
		ledger:   ledger,
		interval: interval,
		metrics:  m,
		now:      time.Now,
		clients:  make(map[*client]struct{}),
	}
}

// Run pushes a snapshot to every client each interval. It blocks until ctx is
// cancelled, then closes all active connections.
func (h *Hub) Run(ctx context.Context) {
	t := time.NewTicker(h.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-t.C:
			h.pushSnapshot()
		}
	}
}

// Notify pushes a to every client watching a.NodeID.
func (h *Hub) Notify(a alerts.Alert) {
	data, err := json.Marshal(Message{Event: EventAlert, Data: a})
	if err != nil {
		slog.Error("ws: marshal alert", "alert_id", a.ID, "err", err)
		return
	}
	h.deliver(func(c *client) []byte {
		if !c.watches(a.NodeID) {
			return nil
		}
		return data
	})
}

// ServeHTTP upgrades the request to a WebSocket and serves the client until
// the connection closes. The optional node query parameter
// (?node=pump-1,tank-1) limits the stream to those nodes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	c := newClient(conn, parseNodes(r.URL.Query().Get("node")))
	h.connect(c)
	defer h.unregister(c)

	go c.writePump()
	c.readPump()
}

// Count returns the number of currently connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func parseNodes(raw string) map[string]bool {
	if raw == "" {
		return nil
	}
	nodes := make(map[string]bool)
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			nodes[id] = true
		}
	}
	if len(nodes) == 0 {
		return nil
	}
	return nodes
}

func (h *Hub) snapshot() Snapshot {
	return Snapshot{
		Nodes:       h.store.List(),
		OpenAlerts:  h.ledger.List(alerts.OpenOnly),
		GeneratedAt: h.now().UTC().Format(time.RFC3339),
	}
}

func (h *Hub) snapshotFor(c *client, sn Snapshot) ([]byte, error) {
	if c.nodes != nil {
		sn = sn.filter(c.nodes)
	}
	return json.Marshal(Message{Event: EventSnapshot, Data: sn})
}

func (h *Hub) pushSnapshot() {
	sn := h.snapshot()
	all, err := json.Marshal(Message{Event: EventSnapshot, Data: sn})
	if err != nil {
		slog.Error("ws: marshal snapshot", "err", err)
		return
	}
	h.deliver(func(c *client) []byte {
		if c.nodes == nil {
			return all
		}
		data, err := h.snapshotFor(c, sn)
		if err != nil {
			return nil
		}
		return data
	})
}

// deliver sends the bytes payload returns for each client; nil skips the
// client. Sends happen under the read lock so unregister cannot close a
// channel mid-send. Clients whose buffer is full are disconnected afterwards.
func (h *Hub) deliver(payload func(*client) []byte) {
	var slow []*client

	h.mu.RLock()
	for c := range h.clients {
		data := payload(c)
		if data == nil {
			continue
		}
		if !c.trySend(data) {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		slog.Warn("ws: client too slow, disconnecting", "remote", c.remote())
		h.unregister(c)
	}
}

// connect queues the first snapshot for c and then registers it. Once
// registered, c.send is only written under h.mu.
func (h *Hub) connect(c *client) {
	if data, err := h.snapshotFor(c, h.snapshot()); err == nil {
		c.trySend(data)
	}
	h.register(c)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.setGauge(n)
	slog.Debug("ws: client connected", "remote", c.remote(), "clients", n)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()

	h.setGauge(n)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	h.mu.Unlock()
	h.setGauge(0)
}

func (h *Hub) setGauge(n int) {
	if h.metrics != nil {
		h.metrics.WSClients.Set(float64(n))
	}
}
