package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/jalsense/jalsense/server/internal/config"
	"github.com/jalsense/jalsense/server/internal/rules"
)

// Dispatcher delivers alerts to the configured webhooks from a background
// worker. Notify never blocks; call Run to start delivering.
type Dispatcher struct {
	webhooks []config.WebhookConfig
	client   *http.Client
	limiter  *rate.Limiter
	queue    chan Alert

	// observe is called once per delivery attempt with the webhook type and
	// the attempt's error. Used for metrics.
	observe func(target string, err error)
}

// DispatcherOption customizes a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithHTTPClient replaces the default 10s-timeout client.
func WithHTTPClient(c *http.Client) DispatcherOption {
	return func(d *Dispatcher) { d.client = c }
}

// WithDeliveryObserver registers a callback for every delivery attempt.
func WithDeliveryObserver(fn func(target string, err error)) DispatcherOption {
	return func(d *Dispatcher) { d.observe = fn }
}

// NewDispatcher builds a Dispatcher from cfg. With no webhooks configured it
// is still valid; Notify simply discards.
func NewDispatcher(cfg config.AlertsConfig, opts ...DispatcherOption) *Dispatcher {
	size := cfg.QueueSize
	if size < 1 {
		size = config.DefaultQueueSize
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	d := &Dispatcher{
		webhooks: cfg.Webhooks,
		client:   &http.Client{Timeout: 10 * time.Second},
		limiter:  rate.NewLimiter(rate.Limit(cfg.RateLimit), burst),
		queue:    make(chan Alert, size),
		observe:  func(string, error) {},
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Notify enqueues a for delivery. When the queue is full the alert is dropped
// from delivery and a warning is logged.
func (d *Dispatcher) Notify(a Alert) {
	if len(d.webhooks) == 0 {
		return
	}
	select {
	case d.queue <- a:
	default:
		slog.Warn("alerts: delivery queue full, dropping notification",
			"alert_id", a.ID,
			"node", a.NodeID,
		)
	}
}

// Run delivers queued alerts until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case a := <-d.queue:
			if err := d.limiter.Wait(ctx); err != nil {
				return
			}
			d.deliver(ctx, a)
		}
	}
}

// deliver sends a to every matching target. Errors are logged but do not
// stop delivery to the remaining targets.
func (d *Dispatcher) deliver(ctx context.Context, a Alert) {
	for _, wh := range d.webhooks {
		if a.Severity < wh.Threshold() {
			continue
		}
		url := wh.URL()
		if url == "" {
			continue
		}

		var err error
		switch wh.Type {
		case "slack":
			err = d.sendSlack(ctx, url, a)
		case "teams":
			err = d.sendTeams(ctx, url, a)
		case "http":
			err = d.sendHTTP(ctx, url, a)
		default:
			slog.Warn("alerts: unknown webhook type, skipping", "type", wh.Type)
			continue
		}
		d.observe(wh.Type, err)

		if err != nil {
			slog.Error("alerts: webhook delivery failed",
				"type", wh.Type,
				"alert_id", a.ID,
				"err", err,
			)
		} else {
			slog.Debug("alerts: webhook delivered",
				"type", wh.Type,
				"alert_id", a.ID,
				"node", a.NodeID,
			)
		}
	}
}

func (d *Dispatcher) sendSlack(ctx context.Context, url string, a Alert) error {
	body, _ := json.Marshal(map[string]string{
		"text": fmt.Sprintf("*%s* %s (%s): %s", severityLabel(a.Severity), a.NodeName, a.NodeID, a.Message),
	})
	return d.post(ctx, url, body)
}

func (d *Dispatcher) sendTeams(ctx context.Context, url string, a Alert) error {
	payload := map[string]interface{}{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": severityColor(a.Severity),
		"summary":    string(a.Kind),
		"title":      fmt.Sprintf("JalSense Alert: %s", a.NodeName),
		"text":       a.Message,
	}
	body, _ := json.Marshal(payload)
	return d.post(ctx, url, body)
}

func (d *Dispatcher) sendHTTP(ctx context.Context, url string, a Alert) error {
	body, _ := json.Marshal(map[string]interface{}{"alert": a})
	return d.post(ctx, url, body)
}

func (d *Dispatcher) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func severityLabel(s rules.Severity) string {
	switch s {
	case rules.SeverityHigh:
		return "[CRITICAL]"
	case rules.SeverityMedium:
		return "[WARNING]"
	default:
		return "[INFO]"
	}
}

func severityColor(s rules.Severity) string {
	switch s {
	case rules.SeverityHigh:
		return "FF4F6A"
	case rules.SeverityMedium:
		return "FFAB40"
	default:
		return "00D4FF"
	}
}
