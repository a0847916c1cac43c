package shipper

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/jalsense/jalsense/agent/internal/compute"
	"github.com/jalsense/jalsense/agent/internal/config"
	"github.com/jalsense/jalsense/pkg/rpc"
	"github.com/jalsense/jalsense/pkg/types"
)

const (
	backoffInitial    = 1 * time.Second
	backoffMax        = 60 * time.Second
	backoffMultiplier = 2.0
	sendTimeout       = 10 * time.Second
)

// Shipper buffers telemetry batches and ships them to jalsense-server via gRPC.
// Ship() is non-blocking; when the buffer is full the oldest message is evicted.
// Run() must be called in a goroutine to drain the buffer and handle reconnection.
type Shipper struct {
	cfg    config.AgentConfig
	buf    chan *types.Telemetry
	dialFn dialFunc // injectable for tests

	// pending is a message whose send failed transiently. Only Run's
	// goroutine touches it.
	pending *types.Telemetry
}

// dialFunc is the function signature used to open a gRPC connection.
type dialFunc func(ctx context.Context, endpoint string, cfg config.AgentConfig) (*grpc.ClientConn, error)

// New creates a Shipper using the given agent config.
func New(cfg config.AgentConfig) *Shipper {
	size := cfg.BufferSize
	if size < 1 {
		size = config.DefaultBufferSize
	}
	return &Shipper{
		cfg:    cfg,
		buf:    make(chan *types.Telemetry, size),
		dialFn: defaultDial,
	}
}

// Ship converts b to a telemetry message and enqueues it.
// If the buffer is full the oldest entry is evicted to make room.
func (s *Shipper) Ship(b *compute.Batch) {
	msg := toTelemetry(b)
	for {
		select {
		case s.buf <- msg:
			return
		default:
		}
		select {
		case old := <-s.buf:
			slog.Warn("shipper: buffer full, evicted oldest message",
				"node", old.NodeID, "buffer_cap", cap(s.buf))
		default:
		}
	}
}

// Pending reports how many messages are waiting to be sent.
func (s *Shipper) Pending() int {
	return len(s.buf)
}

func toTelemetry(b *compute.Batch) *types.Telemetry {
	msg := &types.Telemetry{NodeID: b.NodeID, Metrics: b.Metrics}
	if !b.Timestamp.IsZero() {
		ts := b.Timestamp.UTC()
		msg.Timestamp = &ts
	}
	return msg
}

// Run drains the buffer, sending messages to the server.
// It reconnects with exponential backoff when the connection is lost.
// Run blocks until ctx is cancelled.
func (s *Shipper) Run(ctx context.Context) {
	bo := newBackoff()

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := s.dialFn(ctx, s.cfg.ServerEndpoint, s.cfg)
		if err != nil {
			wait := bo.next()
			slog.Error("shipper: dial failed, will retry",
				"endpoint", s.cfg.ServerEndpoint,
				"err", err,
				"retry_in", wait)
			if !sleep(ctx, wait) {
				return
			}
			continue
		}

		slog.Info("shipper: connected", "endpoint", s.cfg.ServerEndpoint)

		err = s.drain(ctx, conn, bo)
		conn.Close()

		if ctx.Err() != nil {
			return
		}

		wait := bo.next()
		slog.Warn("shipper: connection lost, will reconnect",
			"endpoint", s.cfg.ServerEndpoint,
			"err", err,
			"pending", len(s.buf),
			"retry_in", wait)
		if !sleep(ctx, wait) {
			return
		}
	}
}

// drain sends messages until a transient error occurs or ctx is cancelled.
// The backoff is reset after the first successful send on this connection.
func (s *Shipper) drain(ctx context.Context, conn grpc.ClientConnInterface, bo *backoff) error {
	client := rpc.NewTelemetryClient(conn)

	for {
		msg := s.pending
		if msg == nil {
			select {
			case <-ctx.Done():
				return nil
			case msg = <-s.buf:
			}
		}

		if key, ok := nonFinite(msg); ok {
			s.pending = nil
			slog.Error("shipper: message carries a non-finite value, discarding",
				"node", msg.NodeID, "metric", key)
			continue
		}

		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		ack, err := client.Ingest(sendCtx, msg)
		cancel()

		if err != nil {
			if isPermanentError(err) {
				s.pending = nil
				slog.Error("shipper: server rejected message, discarding",
					"node", msg.NodeID,
					"code", status.Code(err).String(),
					"err", err)
				continue
			}
			s.pending = msg
			return fmt.Errorf("send: %w", err)
		}

		s.pending = nil
		bo.reset()
		if len(ack.AlertIDs) > 0 {
			slog.Info("shipper: server raised alerts",
				"node", ack.NodeID,
				"node_status", ack.NodeStatus,
				"alert_ids", ack.AlertIDs)
		} else {
			slog.Debug("shipper: message delivered",
				"node", ack.NodeID,
				"node_status", ack.NodeStatus)
		}
	}
}

// isPermanentError returns true for gRPC errors that indicate the message
// itself will never be accepted and should not be retried. A client-side
// encoding failure surfaces as Internal and is permanent too.
func isPermanentError(err error) bool {
	st := status.Convert(err)
	switch st.Code() {
	case codes.NotFound, codes.InvalidArgument:
		return true
	case codes.Internal:
		return strings.Contains(st.Message(), "error while marshaling")
	}
	return false
}

// nonFinite returns the first metric of msg holding NaN or an infinity.
func nonFinite(msg *types.Telemetry) (string, bool) {
	for k, v := range msg.Metrics {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return k, true
		}
	}
	return "", false
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// defaultDial opens a gRPC connection to endpoint with transport security from cfg.
func defaultDial(ctx context.Context, endpoint string, cfg config.AgentConfig) (*grpc.ClientConn, error) {
	opts, err := dialOptions(cfg.ServerTLS)
	if err != nil {
		return nil, err
	}
	return grpc.DialContext(ctx, endpoint, opts...) //nolint:staticcheck // deprecated in 1.63 but DialContext is used for compat
}

func dialOptions(tlsCfg config.ServerTLSConfig) ([]grpc.DialOption, error) {
	if !tlsCfg.Enabled {
		return []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, nil
	}
	creds, err := buildTLSCreds(tlsCfg)
	if err != nil {
		return nil, fmt.Errorf("shipper: build tls creds: %w", err)
	}
	return []grpc.DialOption{grpc.WithTransportCredentials(creds)}, nil
}

// buildTLSCreds loads the optional CA and client certificate.
func buildTLSCreds(c config.ServerTLSConfig) (credentials.TransportCredentials, error) {
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}

	if c.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client cert: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}

	if c.CAFile != "" {
		caPEM, err := os.ReadFile(c.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("no valid certs in ca file %q", c.CAFile)
		}
		tlsCfg.RootCAs = pool
	}

	return credentials.NewTLS(tlsCfg), nil
}

// backoff implements truncated exponential backoff with jitter.
type backoff struct {
	current time.Duration
}

func newBackoff() *backoff {
	return &backoff{current: backoffInitial}
}

// next returns the current backoff duration and advances the internal state.
func (b *backoff) next() time.Duration {
	d := b.current
	jitter := time.Duration(float64(b.current) * 0.25 * (rand.Float64()*2 - 1)) //nolint:gosec // not crypto
	d += jitter
	if d < 0 {
		d = 0
	}

	b.current = time.Duration(float64(b.current) * backoffMultiplier)
	if b.current > backoffMax {
		b.current = backoffMax
	}
	return d
}

func (b *backoff) reset() {
	b.current = backoffInitial
}
