package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"reflect"
	"sync"
	"syscall"
	"time"

	"github.com/jalsense/jalsense/agent/internal/compute"
	"github.com/jalsense/jalsense/agent/internal/config"
	"github.com/jalsense/jalsense/agent/internal/scraper"
	"github.com/jalsense/jalsense/agent/internal/security"
	"github.com/jalsense/jalsense/agent/internal/shipper"
)

const certCheckInterval = time.Hour

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	level := new(slog.LevelVar)
	level.Set(cfg.Agent.Level())
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("jalsense-agent starting",
		"config", *configPath,
		"server_endpoint", cfg.Agent.ServerEndpoint,
		"sources", len(cfg.Agent.Sources),
		"scrape_interval", cfg.Agent.ScrapeInterval,
		"resync_every", cfg.Agent.ResyncEvery,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	engine := compute.NewEngine(cfg.Agent.ResyncEvery)
	set := newSourceSet(engine)
	set.apply(cfg.Agent.Sources)
	if set.count() == 0 {
		slog.Warn("no sources configured, agent will idle")
	}

	// The server endpoint, buffer size and resync cadence are fixed for the
	// process lifetime; reloads rebuild sources and adjust the log level.
	reload := make(chan *config.Config, 1)
	go func() {
		if err := config.Watch(ctx, *configPath, func(updated *config.Config) {
			level.Set(updated.Agent.Level())
			set.apply(updated.Agent.Sources)
			select {
			case reload <- updated:
			default:
			}
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	ship := shipper.New(cfg.Agent)
	go ship.Run(ctx)

	go checkCerts(ctx, set)

	ticker := time.NewTicker(cfg.Agent.ScrapeInterval)
	defer ticker.Stop()
	interval := cfg.Agent.ScrapeInterval

	for {
		select {
		case <-ctx.Done():
			slog.Info("jalsense-agent shutting down", "unsent", ship.Pending())
			return

		case updated := <-reload:
			if updated.Agent.ScrapeInterval != interval {
				interval = updated.Agent.ScrapeInterval
				ticker.Reset(interval)
				slog.Info("scrape interval changed", "scrape_interval", interval)
			}

		case <-ticker.C:
			for _, p := range set.snapshot() {
				r, err := p.scraper.Scrape(ctx)
				if err != nil {
					slog.Warn("scrape error", "source", p.src.ID, "err", err)
					continue
				}
				if b := engine.Process(r); b != nil {
					ship.Ship(b)
					slog.Debug("queued telemetry",
						"source", p.src.ID,
						"node", b.NodeID,
						"keys", len(b.Metrics),
						"full", b.Full,
					)
				}
			}
		}
	}
}

// pipeline pairs a configured source with the scraper built for it.
type pipeline struct {
	src     config.Source
	scraper scraper.Scraper
}

// sourceSet is the live set of pipelines, replaced wholesale on reload.
type sourceSet struct {
	mu        sync.Mutex
	engine    *compute.Engine
	pipelines []pipeline
}

func newSourceSet(engine *compute.Engine) *sourceSet {
	return &sourceSet{engine: engine}
}

// apply rebuilds the pipeline list from sources. Unchanged sources keep their
// scraper; removed or changed sources have their engine state dropped.
func (s *sourceSet) apply(sources []config.Source) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := make(map[string]pipeline, len(s.pipelines))
	for _, p := range s.pipelines {
		prev[p.src.ID] = p
	}

	next := make([]pipeline, 0, len(sources))
	for _, src := range sources {
		if old, ok := prev[src.ID]; ok {
			delete(prev, src.ID)
			if reflect.DeepEqual(old.src, src) {
				next = append(next, old)
				continue
			}
			s.engine.Forget(src.ID)
		}
		sc, err := scraper.New(src)
		if err != nil {
			slog.Error("skipping source, could not build scraper", "source", src.ID, "err", err)
			continue
		}
		next = append(next, pipeline{src: src, scraper: sc})
		slog.Info("registered source",
			"id", src.ID,
			"type", src.Type,
			"node", src.NodeID,
			"endpoint", src.Endpoint,
		)
	}
	for id := range prev {
		s.engine.Forget(id)
		slog.Info("removed source", "id", id)
	}
	s.pipelines = next
}

func (s *sourceSet) snapshot() []pipeline {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]pipeline, len(s.pipelines))
	copy(out, s.pipelines)
	return out
}

func (s *sourceSet) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pipelines)
}

func (s *sourceSet) sources() []config.Source {
	p := s.snapshot()
	out := make([]config.Source, len(p))
	for i := range p {
		out[i] = p[i].src
	}
	return out
}

// checkCerts logs the certificate state of every HTTPS gateway at startup
// and then once per certCheckInterval.
func checkCerts(ctx context.Context, set *sourceSet) {
	ticker := time.NewTicker(certCheckInterval)
	defer ticker.Stop()
	for {
		for _, cs := range security.CheckAll(ctx, set.sources()) {
			attrs := []any{
				"source", cs.SourceID,
				"endpoint", cs.Endpoint,
				"status", cs.Status,
			}
			switch cs.Status {
			case security.StatusValid:
				slog.Debug("gateway certificate ok", append(attrs, "days_left", cs.DaysLeft)...)
			case security.StatusUnreachable:
				slog.Warn("gateway certificate check failed", append(attrs, "err", cs.Err)...)
			default:
				slog.Warn("gateway certificate needs renewal",
					append(attrs, "days_left", cs.DaysLeft, "not_after", cs.NotAfter, "issuer", cs.Issuer)...)
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
