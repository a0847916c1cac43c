package scraper

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/jalsense/jalsense/agent/internal/config"
)

const (
	defaultScrapeTimeout = 10 * time.Second

	// maxBodyBytes bounds how much of a gateway response is read.
	maxBodyBytes = 4 << 20
)

// Reading is the normalized output of one scrape of a single source.
type Reading struct {
	SourceID  string
	NodeID    string
	ScrapedAt time.Time

	// Metrics holds engine metric keys mapped to their current values.
	Metrics map[string]float64

	// Err is non-nil if the scrape itself failed (connectivity, auth, parse).
	// Metrics is empty in that case.
	Err error
}

// Scraper is implemented by every gateway format.
type Scraper interface {
	Scrape(ctx context.Context) (*Reading, error)
}

// New returns the Scraper for src. It builds the HTTP client once and reuses
// it across scrape calls.
func New(src config.Source) (Scraper, error) {
	client, err := buildHTTPClient(src)
	if err != nil {
		return nil, fmt.Errorf("scraper %q: build http client: %w", src.ID, err)
	}
	switch src.Type {
	case "prometheus":
		return &promScraper{src: src, client: client}, nil
	case "json":
		return &jsonScraper{src: src, client: client}, nil
	default:
		return nil, fmt.Errorf("scraper: unsupported type %q", src.Type)
	}
}

// authRoundTripper injects authentication headers into every outgoing request.
type authRoundTripper struct {
	base http.RoundTripper
	auth config.AuthConfig
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	switch t.auth.Mode {
	case "apikey":
		req = req.Clone(req.Context())
		req.Header.Set(t.auth.Header, t.auth.Key())
	case "bearer":
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.auth.Token())
	case "basic":
		req = req.Clone(req.Context())
		req.SetBasicAuth(t.auth.Username, t.auth.Password())
	}
	return t.base.RoundTrip(req)
}

// buildHTTPClient constructs an http.Client for the source's auth and TLS settings.
func buildHTTPClient(src config.Source) (*http.Client, error) {
	tlsCfg := &tls.Config{
		InsecureSkipVerify: src.TLS.InsecureSkipVerify, //nolint:gosec // user-configured
	}

	if src.Auth.Mode == "mtls" {
		cert, err := tls.LoadX509KeyPair(src.Auth.CertFile, src.Auth.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client cert: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}
	if src.Auth.CAFile != "" {
		pool, err := loadCertPool(src.Auth.CAFile)
		if err != nil {
			return nil, err
		}
		tlsCfg.RootCAs = pool
	}

	return &http.Client{
		Transport: &authRoundTripper{
			base: &http.Transport{TLSClientConfig: tlsCfg},
			auth: src.Auth,
		},
		Timeout: defaultScrapeTimeout,
	}, nil
}

func loadCertPool(path string) (*x509.CertPool, error) {
	caPEM, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ca file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("no valid certs found in ca file %q", path)
	}
	return pool, nil
}

// get performs an HTTP GET with the given Accept header and returns the
// response body, capped at maxBodyBytes.
func get(ctx context.Context, client *http.Client, url, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", accept)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// parseMetrics decodes a Prometheus text exposition from r into metric families.
// A partial result with a non-fatal parse warning is still returned successfully.
func parseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}
	return mfs, nil
}

// sumFamily adds up all counter, gauge, or untyped values in a MetricFamily.
// ok is false if mf is nil or carries no scalar samples.
func sumFamily(mf *dto.MetricFamily) (total float64, ok bool) {
	if mf == nil {
		return 0, false
	}
	for _, m := range mf.GetMetric() {
		switch {
		case m.Counter != nil:
			total += m.Counter.GetValue()
		case m.Gauge != nil:
			total += m.Gauge.GetValue()
		case m.Untyped != nil:
			total += m.Untyped.GetValue()
		default:
			continue
		}
		ok = true
	}
	return total, ok
}

// applyMapping renames raw gateway values to engine keys. An empty mapping
// passes raw through unchanged.
func applyMapping(raw map[string]float64, mapping map[string]string) map[string]float64 {
	if len(mapping) == 0 {
		return raw
	}
	out := make(map[string]float64, len(mapping))
	for from, to := range mapping {
		if v, ok := raw[from]; ok {
			out[to] = v
		}
	}
	return out
}

// dropNonFinite removes NaN and infinite values from m. Exporters may expose
// them legitimately, but they cannot be encoded for the server.
func dropNonFinite(sourceID string, m map[string]float64) map[string]float64 {
	for k, v := range m {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			slog.Warn("scraper: dropping non-finite value", "source", sourceID, "metric", k, "value", v)
			delete(m, k)
		}
	}
	return m
}

// newReading initialises an empty Reading for src.
func newReading(src config.Source) *Reading {
	return &Reading{
		SourceID:  src.ID,
		NodeID:    src.NodeID,
		ScrapedAt: time.Now().UTC(),
		Metrics:   make(map[string]float64),
	}
}
