package scraper

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/common/expfmt"

	"github.com/jalsense/jalsense/agent/internal/config"
)

type promScraper struct {
	src    config.Source
	client *http.Client
}

// Scrape fetches a gateway's Prometheus text exposition. Each family is summed
// across its label sets; histograms and summaries are skipped.
func (s *promScraper) Scrape(ctx context.Context) (*Reading, error) {
	res := newReading(s.src)

	body, err := get(ctx, s.client, s.src.Endpoint, string(expfmt.NewFormat(expfmt.TypeTextPlain)))
	if err != nil {
		res.Err = fmt.Errorf("prometheus scrape %q: %w", s.src.ID, err)
		slog.Warn("scraper: prometheus fetch failed", "source", s.src.ID, "err", err)
		return res, nil
	}

	mfs, err := parseMetrics(bytes.NewReader(body))
	if err != nil {
		res.Err = fmt.Errorf("prometheus scrape %q: %w", s.src.ID, err)
		return res, nil
	}

	raw := make(map[string]float64, len(mfs))
	for name, mf := range mfs {
		if v, ok := sumFamily(mf); ok {
			raw[name] = v
		}
	}
	res.Metrics = dropNonFinite(s.src.ID, applyMapping(raw, s.src.Metrics))
	return res, nil
}
