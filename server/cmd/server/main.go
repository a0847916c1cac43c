package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"

	"github.com/jalsense/jalsense/pkg/rpc"
	"github.com/jalsense/jalsense/server/internal/alerts"
	"github.com/jalsense/jalsense/server/internal/api"
	"github.com/jalsense/jalsense/server/internal/config"
	"github.com/jalsense/jalsense/server/internal/ingest"
	"github.com/jalsense/jalsense/server/internal/metrics"
	"github.com/jalsense/jalsense/server/internal/receiver"
	"github.com/jalsense/jalsense/server/internal/store"
	"github.com/jalsense/jalsense/server/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Server.Level()}))
	slog.SetDefault(logger)

	slog.Info("jalsense-server starting",
		"config", *configPath,
		"grpc_port", cfg.Server.GRPCPort,
		"http_port", cfg.Server.HTTPPort,
		"nodes", len(cfg.Server.Nodes),
		"kafka", cfg.Server.Kafka.Enabled,
		"webhooks", len(cfg.Server.Alerts.Webhooks),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Core engine: fixed node catalog, alert ledger, and the coordinator
	// that is the only writer to either.
	st := store.New(nodeSpecs(cfg.Server.Nodes))
	ledger := alerts.NewLedger()

	dispatcher := alerts.NewDispatcher(cfg.Server.Alerts, alerts.WithDeliveryObserver(m.ObserveDelivery))
	go dispatcher.Run(ctx)

	hub := ws.New(st, ledger, cfg.Server.Broadcast.Interval, m)
	go hub.Run(ctx)

	coord := ingest.New(st, ledger,
		ingest.WithNotifier(alerts.Fanout{hub, dispatcher}),
		ingest.WithMetrics(m),
	)

	// gRPC receiver for jalsense-agent.
	grpcSrv := grpc.NewServer(grpc.UnaryInterceptor(receiver.UnaryInterceptor()))
	rpc.RegisterTelemetryServer(grpcSrv, receiver.NewGRPC(coord, m))

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		slog.Error("failed to listen on gRPC port",
			"port", cfg.Server.GRPCPort, "err", err)
		os.Exit(1)
	}

	go func() {
		slog.Info("gRPC receiver listening", "port", cfg.Server.GRPCPort)
		if err := grpcSrv.Serve(lis); err != nil {
			slog.Error("gRPC server stopped", "err", err)
		}
	}()

	// Optional Kafka telemetry consumer.
	var consumer *receiver.Consumer
	if cfg.Server.Kafka.Enabled {
		consumer = receiver.NewKafkaConsumer(cfg.Server.Kafka, coord, m)
		go func() {
			slog.Info("kafka consumer starting",
				"topic", cfg.Server.Kafka.Topic,
				"group_id", cfg.Server.Kafka.GroupID,
				"dead_letter_topic", cfg.Server.Kafka.DeadLetterTopic,
			)
			if err := consumer.Run(ctx); err != nil {
				slog.Error("kafka consumer stopped", "err", err)
			}
		}()
	}

	// Combined HTTP server: REST API, WebSocket hub and Prometheus metrics.
	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", api.New(st, ledger, coord, m))
	httpMux.Handle("/ws/stream", hub)
	httpMux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: httpMux,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("jalsense-server shutting down")
	grpcSrv.GracefulStop()
	httpSrv.Shutdown(context.Background()) //nolint:errcheck
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			slog.Warn("kafka consumer close", "err", err)
		}
	}
}

// nodeSpecs converts the validated node catalog from config.
func nodeSpecs(nodes []config.NodeConfig) []store.NodeSpec {
	specs := make([]store.NodeSpec, 0, len(nodes))
	for _, n := range nodes {
		name := n.Name
		if name == "" {
			name = n.ID
		}
		specs = append(specs, store.NodeSpec{
			ID:       n.ID,
			Name:     name,
			Category: n.Category(),
			Location: n.Location,
		})
	}
	return specs
}
