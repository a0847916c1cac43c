package receiver_test

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/jalsense/jalsense/pkg/rpc"
	"github.com/jalsense/jalsense/pkg/types"
	"github.com/jalsense/jalsense/server/internal/alerts"
	"github.com/jalsense/jalsense/server/internal/ingest"
	"github.com/jalsense/jalsense/server/internal/metrics"
	"github.com/jalsense/jalsense/server/internal/receiver"
	"github.com/jalsense/jalsense/server/internal/rules"
	"github.com/jalsense/jalsense/server/internal/store"
)

func newCoordinator() (*ingest.Coordinator, *store.Store, *alerts.Ledger) {
	st := store.New([]store.NodeSpec{
		{ID: "pump-1", Name: "Main Borewell Pump", Category: rules.CategoryPump},
		{ID: "tank-1", Name: "Overhead Tank", Category: rules.CategoryTank},
	})
	ledger := alerts.NewLedger()
	return ingest.New(st, ledger), st, ledger
}

// startServer starts a gRPC server on a random loopback port and returns a
// connected client.
func startServer(t *testing.T) (rpc.TelemetryClient, *store.Store, *metrics.Metrics) {
	t.Helper()

	coord, st, _ := newCoordinator()
	m := metrics.New(prometheus.NewRegistry())

	srv := grpc.NewServer(grpc.UnaryInterceptor(receiver.UnaryInterceptor()))
	rpc.RegisterTelemetryServer(srv, receiver.NewGRPC(coord, m))

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	go srv.Serve(lis) //nolint:errcheck

	t.Cleanup(func() {
		srv.Stop()
		lis.Close()
	})

	conn, err := grpc.Dial(lis.Addr().String(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	) //nolint:staticcheck
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return rpc.NewTelemetryClient(conn), st, m
}

func TestIngest_StoresAndAcks(t *testing.T) {
	client, st, m := startServer(t)

	ts := time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)
	ack, err := client.Ingest(context.Background(), &types.Telemetry{
		NodeID:    "pump-1",
		Metrics:   map[string]float64{"powerConsumption": 8, "pumpDischargeRate": 10},
		Timestamp: &ts,
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if ack.Status != "ingested" || ack.NodeID != "pump-1" {
		t.Errorf("ack: got %+v", ack)
	}
	if ack.NodeStatus != "CRITICAL" {
		t.Errorf("NodeStatus: got %q, want CRITICAL", ack.NodeStatus)
	}
	if len(ack.AlertIDs) != 1 || ack.AlertIDs[0] != 1 {
		t.Errorf("AlertIDs: got %v, want [1]", ack.AlertIDs)
	}
	if !ack.Timestamp.Equal(ts) {
		t.Errorf("Timestamp: got %v, want %v", ack.Timestamp, ts)
	}

	n, _ := st.Get("pump-1")
	if n.Metrics["powerConsumption"] != 8 {
		t.Errorf("stored powerConsumption: got %v, want 8", n.Metrics["powerConsumption"])
	}
	if got := testutil.ToFloat64(m.IngestTotal.WithLabelValues("grpc", "ok")); got != 1 {
		t.Errorf("ingest_total{grpc,ok}: got %v, want 1", got)
	}
}

func TestIngest_UnknownNodeIsNotFound(t *testing.T) {
	client, _, m := startServer(t)

	_, err := client.Ingest(context.Background(), &types.Telemetry{
		NodeID:  "nonexistent",
		Metrics: map[string]float64{"x": 1},
	})
	if code := status.Code(err); code != codes.NotFound {
		t.Errorf("code: got %v, want NotFound", code)
	}
	if got := testutil.ToFloat64(m.IngestTotal.WithLabelValues("grpc", "unknown_node")); got != 1 {
		t.Errorf("ingest_total{grpc,unknown_node}: got %v, want 1", got)
	}
}

func TestIngest_MissingNodeID(t *testing.T) {
	client, _, _ := startServer(t)

	_, err := client.Ingest(context.Background(), &types.Telemetry{Metrics: map[string]float64{"x": 1}})
	if code := status.Code(err); code != codes.InvalidArgument {
		t.Errorf("code: got %v, want InvalidArgument", code)
	}
}

func TestIngest_NullMetricIsInvalidArgument(t *testing.T) {
	coord, st, ledger := newCoordinator()
	g := receiver.NewGRPC(coord, nil)

	var in types.Telemetry
	if err := json.Unmarshal([]byte(`{"nodeId":"tank-1","metrics":{"tankLevel":null}}`), &in); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	_, err := g.Ingest(context.Background(), &in)
	if code := status.Code(err); code != codes.InvalidArgument {
		t.Errorf("code: got %v, want InvalidArgument", code)
	}
	if n, _ := st.Get("tank-1"); len(n.Metrics) != 0 {
		t.Errorf("tank-1 metrics: got %v, want none", n.Metrics)
	}
	if total, _ := ledger.Counts(); total != 0 {
		t.Errorf("ledger: got %d alerts, want 0", total)
	}
}

func TestUnaryInterceptor_RecoversPanic(t *testing.T) {
	icpt := receiver.UnaryInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: rpc.IngestMethod}

	_, err := icpt(context.Background(), nil, info, func(context.Context, interface{}) (interface{}, error) {
		panic("boom")
	})
	if code := status.Code(err); code != codes.Internal {
		t.Errorf("code: got %v, want Internal", code)
	}
}

func TestUnaryInterceptor_PassesThrough(t *testing.T) {
	icpt := receiver.UnaryInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: rpc.IngestMethod}

	resp, err := icpt(context.Background(), "req", info, func(_ context.Context, req interface{}) (interface{}, error) {
		return req.(string) + "-ok", nil
	})
	if err != nil || resp != "req-ok" {
		t.Errorf("got (%v, %v), want (req-ok, nil)", resp, err)
	}
}
