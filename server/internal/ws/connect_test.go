package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/jalsense/jalsense/server/internal/alerts"
	"github.com/jalsense/jalsense/server/internal/rules"
	"github.com/jalsense/jalsense/server/internal/store"
)

func newTestHub() *Hub {
	st := store.New([]store.NodeSpec{
		{ID: "pump-1", Name: "Main Borewell Pump", Category: rules.CategoryPump},
	})
	return New(st, alerts.NewLedger(), time.Hour, nil)
}

func nextEvent(t *testing.T, c *client) string {
	t.Helper()
	select {
	case data, ok := <-c.send:
		if !ok {
			t.Fatal("send channel closed")
		}
		var msg struct {
			Event string `json:"event"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return msg.Event
	default:
		t.Fatal("no message queued")
		return ""
	}
}

func TestHub_ConnectQueuesSnapshotBeforeAlerts(t *testing.T) {
	h := newTestHub()
	c := newClient(nil, nil)

	h.connect(c)
	h.Notify(alerts.Alert{ID: 1, NodeID: "pump-1"})

	if got := nextEvent(t, c); got != EventSnapshot {
		t.Errorf("first event: got %q, want %q", got, EventSnapshot)
	}
	if got := nextEvent(t, c); got != EventAlert {
		t.Errorf("second event: got %q, want %q", got, EventAlert)
	}
	if h.Count() != 1 {
		t.Errorf("Count: got %d, want 1", h.Count())
	}
}

func TestHub_CloseAllThenUnregister(t *testing.T) {
	h := newTestHub()
	c := newClient(nil, nil)
	h.connect(c)

	h.closeAll()
	h.unregister(c) // must not close c.send twice

	<-c.send // initial snapshot
	if _, ok := <-c.send; ok {
		t.Error("send channel still open after closeAll")
	}
	if h.Count() != 0 {
		t.Errorf("Count: got %d, want 0", h.Count())
	}
}
