package receiver

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jalsense/jalsense/pkg/types"
	"github.com/jalsense/jalsense/server/internal/ingest"
	"github.com/jalsense/jalsense/server/internal/metrics"
	"github.com/jalsense/jalsense/server/internal/store"
)

// Ingester is the write side of the engine.
type Ingester interface {
	Ingest(nodeID string, delta map[string]float64, ts *time.Time) (ingest.Result, error)
}

// GRPC implements rpc.TelemetryServer.
type GRPC struct {
	ingest  Ingester
	metrics *metrics.Metrics
}

// NewGRPC creates a receiver that forwards accepted telemetry to ing.
// m may be nil.
func NewGRPC(ing Ingester, m *metrics.Metrics) *GRPC {
	return &GRPC{ingest: ing, metrics: m}
}

// Ingest is the unary RPC handler called by jalsense-agent instances.
func (g *GRPC) Ingest(ctx context.Context, in *types.Telemetry) (*types.IngestAck, error) {
	if in.NodeID == "" {
		g.metrics.ObserveIngest("grpc", "rejected")
		return nil, status.Error(codes.InvalidArgument, "nodeId is required")
	}
	if nulls := in.NullMetrics(); len(nulls) > 0 {
		g.metrics.ObserveIngest("grpc", "rejected")
		return nil, status.Errorf(codes.InvalidArgument, "null metric value: %s", strings.Join(nulls, ", "))
	}

	res, err := g.ingest.Ingest(in.NodeID, in.Metrics, in.Timestamp)
	switch {
	case errors.Is(err, store.ErrUnknownNode):
		g.metrics.ObserveIngest("grpc", "unknown_node")
		return nil, status.Errorf(codes.NotFound, "unknown node %q", in.NodeID)
	case err != nil:
		g.metrics.ObserveIngest("grpc", "error")
		return nil, status.Error(codes.Internal, err.Error())
	}

	g.metrics.ObserveIngest("grpc", "ok")
	slog.Debug("receiver: telemetry ingested",
		"node", in.NodeID,
		"status", res.Status,
		"alerts", len(res.Alerts),
	)
	return res.Ack(), nil
}
