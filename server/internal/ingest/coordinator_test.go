package ingest

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/jalsense/jalsense/server/internal/alerts"
	"github.com/jalsense/jalsense/server/internal/metrics"
	"github.com/jalsense/jalsense/server/internal/rules"
	"github.com/jalsense/jalsense/server/internal/store"
)

func newEngine(t *testing.T, opts ...Option) (*Coordinator, *store.Store, *alerts.Ledger) {
	t.Helper()
	st := store.New([]store.NodeSpec{
		{ID: "pump-1", Name: "Main Borewell Pump", Category: rules.CategoryPump},
		{ID: "tank-1", Name: "Overhead Tank", Category: rules.CategoryTank},
		{ID: "tap-1", Name: "Public Tap", Category: rules.CategoryTap},
		{ID: "valve-1", Name: "Distribution Valve", Category: rules.CategoryValve},
	})
	ledger := alerts.NewLedger()
	return New(st, ledger, opts...), st, ledger
}

func TestIngest_PumpDryRun(t *testing.T) {
	c, st, _ := newEngine(t)
	res, err := c.Ingest("pump-1", map[string]float64{"powerConsumption": 8.0, "pumpDischargeRate": 10}, nil)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.Status != rules.StatusCritical {
		t.Errorf("Status: got %v, want CRITICAL", res.Status)
	}
	if len(res.Alerts) != 1 {
		t.Fatalf("alerts: got %d, want 1", len(res.Alerts))
	}
	a := res.Alerts[0]
	if a.Kind != rules.KindPump || a.Severity != rules.SeverityHigh {
		t.Errorf("alert: got kind=%s severity=%s, want pump/high", a.Kind, a.Severity)
	}
	if !strings.Contains(a.Message, "8.0") || !strings.Contains(a.Message, "10.0") {
		t.Errorf("message %q must mention both values", a.Message)
	}
	if n, _ := st.Get("pump-1"); n.Status != rules.StatusCritical {
		t.Errorf("stored status: got %v, want CRITICAL", n.Status)
	}
}

func TestIngest_TankCriticalThenWarning(t *testing.T) {
	c, _, _ := newEngine(t)

	res, err := c.Ingest("tank-1", map[string]float64{"tankLevel": 10, "tankOverflow": 0}, nil)
	if err != nil {
		t.Fatalf("Ingest #1: %v", err)
	}
	if res.Status != rules.StatusCritical || len(res.Alerts) != 1 {
		t.Fatalf("Ingest #1: got %v with %d alerts, want CRITICAL with 1", res.Status, len(res.Alerts))
	}

	// Status is recomputed from the merged snapshot, never carried over.
	res, _ = c.Ingest("tank-1", map[string]float64{"tankLevel": 20}, nil)
	if res.Status != rules.StatusWarning {
		t.Errorf("Ingest #2: got %v, want WARNING", res.Status)
	}

	res, _ = c.Ingest("tank-1", map[string]float64{"tankLevel": 30}, nil)
	if res.Status != rules.StatusOK || len(res.Alerts) != 0 {
		t.Errorf("Ingest #3: got %v with %d alerts, want OK with none", res.Status, len(res.Alerts))
	}
}

func TestIngest_UnknownNode(t *testing.T) {
	c, _, ledger := newEngine(t)
	_, err := c.Ingest("nonexistent", map[string]float64{"powerConsumption": 9}, nil)
	if !errors.Is(err, store.ErrUnknownNode) {
		t.Fatalf("Ingest: got %v, want ErrUnknownNode", err)
	}
	if total, _ := ledger.Counts(); total != 0 {
		t.Errorf("ledger: got %d alerts, want 0", total)
	}

	// The id counter was not consumed.
	res, _ := c.Ingest("pump-1", map[string]float64{"powerConsumption": 9}, nil)
	if len(res.Alerts) != 1 || res.Alerts[0].ID != 1 {
		t.Errorf("next alert: got %+v, want id 1", res.Alerts)
	}
}

func TestIngest_TapMultiViolation(t *testing.T) {
	c, _, _ := newEngine(t)
	res, err := c.Ingest("tap-1", map[string]float64{"ph": 5.0, "turbidity": 10, "tds": 1200}, nil)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(res.Alerts) != 1 {
		t.Fatalf("alerts: got %d, want 1", len(res.Alerts))
	}
	a := res.Alerts[0]
	if a.Kind != rules.KindQuality || a.Severity != rules.SeverityHigh {
		t.Errorf("alert: got %s/%s, want quality/high", a.Kind, a.Severity)
	}
	ph := strings.Index(a.Message, "pH")
	turb := strings.Index(a.Message, "Turbidity")
	tds := strings.Index(a.Message, "TDS")
	if ph < 0 || turb < 0 || tds < 0 || !(ph < turb && turb < tds) {
		t.Errorf("message %q: want pH, turbidity, TDS in that order", a.Message)
	}
}

func TestIngest_IdempotentStatusDuplicatedAlerts(t *testing.T) {
	c, _, ledger := newEngine(t)
	delta := map[string]float64{"valveLeakage": 8}

	first, _ := c.Ingest("valve-1", delta, nil)
	second, _ := c.Ingest("valve-1", delta, nil)

	if first.Status != second.Status {
		t.Errorf("status: got %v then %v, want equal", first.Status, second.Status)
	}
	if len(first.Alerts) != len(second.Alerts) || len(first.Alerts) == 0 {
		t.Fatalf("alerts: got %d then %d", len(first.Alerts), len(second.Alerts))
	}
	if first.Alerts[0].Message != second.Alerts[0].Message {
		t.Errorf("re-raised alert differs: %q vs %q", first.Alerts[0].Message, second.Alerts[0].Message)
	}
	if total, _ := ledger.Counts(); total != 2 {
		t.Errorf("ledger: got %d alerts, want 2 (no dedup)", total)
	}
}

func TestIngest_AlertIDsFollowDeclarationOrder(t *testing.T) {
	c, _, _ := newEngine(t)
	res, _ := c.Ingest("valve-1", map[string]float64{
		"faultyValveDetection": 1,
		"valveLeakage":         9,
		"valveOperationCount":  50,
	}, nil)

	wantKinds := []rules.Kind{rules.KindPump, rules.KindLeak, rules.KindPump}
	if len(res.Alerts) != len(wantKinds) {
		t.Fatalf("alerts: got %d, want %d", len(res.Alerts), len(wantKinds))
	}
	for i, a := range res.Alerts {
		if a.ID != int64(i+1) {
			t.Errorf("alert[%d].ID: got %d, want %d", i, a.ID, i+1)
		}
		if a.Kind != wantKinds[i] {
			t.Errorf("alert[%d].Kind: got %s, want %s", i, a.Kind, wantKinds[i])
		}
	}
	if got := res.AlertIDs(); len(got) != 3 || got[2] != 3 {
		t.Errorf("AlertIDs: got %v", got)
	}
}

func TestIngest_Timestamp(t *testing.T) {
	fixed := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	c, st, _ := newEngine(t)
	c.now = func() time.Time { return fixed }

	res, _ := c.Ingest("pump-1", map[string]float64{"voltage": 230}, nil)
	if !res.AppliedTimestamp.Equal(fixed) {
		t.Errorf("default timestamp: got %v, want %v", res.AppliedTimestamp, fixed)
	}

	device := fixed.Add(-time.Hour)
	res, _ = c.Ingest("pump-1", map[string]float64{"voltage": 231}, &device)
	if !res.AppliedTimestamp.Equal(device) {
		t.Errorf("device timestamp: got %v, want %v", res.AppliedTimestamp, device)
	}
	if n, _ := st.Get("pump-1"); !n.LastUpdated.Equal(device) {
		t.Errorf("LastUpdated: got %v, want %v", n.LastUpdated, device)
	}
}

func TestIngest_NotifiesAndRecordsMetrics(t *testing.T) {
	var mu sync.Mutex
	var seen []int64
	m := metrics.New(prometheus.NewRegistry())
	c, _, _ := newEngine(t,
		WithNotifier(alerts.NotifierFunc(func(a alerts.Alert) {
			mu.Lock()
			seen = append(seen, a.ID)
			mu.Unlock()
		})),
		WithMetrics(m),
	)

	c.Ingest("tap-1", map[string]float64{"ph": 4, "coliformPresent": 1}, nil) //nolint:errcheck

	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Errorf("notified ids: got %v, want [1 2]", seen)
	}
	if got := testutil.ToFloat64(m.AlertsTotal.WithLabelValues("quality", "high")); got != 2 {
		t.Errorf("alerts_total{quality,high}: got %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.NodeStatus.WithLabelValues("tap-1", "tap")); got != float64(rules.StatusCritical) {
		t.Errorf("node_status{tap-1}: got %v, want 2", got)
	}
}

func TestIngest_ConcurrentSameNode(t *testing.T) {
	c, st, ledger := newEngine(t)
	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Ingest("pump-1", map[string]float64{"pumpRunningHours": 500}, nil) //nolint:errcheck
		}()
	}
	wg.Wait()

	if total, _ := ledger.Counts(); total != n {
		t.Errorf("ledger: got %d alerts, want %d", total, n)
	}
	if node, _ := st.Get("pump-1"); node.Status != rules.StatusWarning {
		t.Errorf("status: got %v, want WARNING", node.Status)
	}
}

func TestIngest_ConcurrentStatusGaugeMatchesStore(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	c, st, _ := newEngine(t, WithMetrics(m))

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		hours := 10.0
		if i%2 == 0 {
			hours = 500
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Ingest("pump-1", map[string]float64{"pumpRunningHours": hours}, nil) //nolint:errcheck
		}()
	}
	wg.Wait()

	node, _ := st.Get("pump-1")
	if got := testutil.ToFloat64(m.NodeStatus.WithLabelValues("pump-1", "pump")); got != float64(node.Status) {
		t.Errorf("node_status{pump-1}: got %v, want %v (stored %v)", got, float64(node.Status), node.Status)
	}
}

func TestIngest_ConcurrentNodesContiguousIDs(t *testing.T) {
	c, _, ledger := newEngine(t)
	var wg sync.WaitGroup
	results := make(chan Result, 200)

	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			res, _ := c.Ingest("valve-1", map[string]float64{"faultyValveDetection": 1, "valveLeakage": 9, "valveOperationCount": 50}, nil)
			results <- res
		}()
		go func() {
			defer wg.Done()
			res, _ := c.Ingest("tap-1", map[string]float64{"ph": 4, "coliformPresent": 1}, nil)
			results <- res
		}()
	}
	wg.Wait()
	close(results)

	// Alerts from one call keep their relative order. Other nodes may take ids
	// in between, but ids within one call must still increase.
	for res := range results {
		for i := 1; i < len(res.Alerts); i++ {
			if res.Alerts[i].ID <= res.Alerts[i-1].ID {
				t.Fatalf("%s: ids not increasing: %v", res.NodeID, res.AlertIDs())
			}
		}
	}
	if total, _ := ledger.Counts(); total != 50*3+50*2 {
		t.Errorf("ledger: got %d alerts, want %d", total, 50*3+50*2)
	}
}
