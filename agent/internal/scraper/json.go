package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jalsense/jalsense/agent/internal/config"
)

type jsonScraper struct {
	src    config.Source
	client *http.Client
}

// Scrape fetches a gateway's JSON status document. The top level must be an
// object. Numbers are kept as-is, booleans become 1 or 0, nested objects are
// flattened with "." and everything else (strings, arrays, null) is ignored.
//
// Example: {"pump": {"power_kw": 7.5, "running": true}} yields
// pump.power_kw=7.5 and pump.running=1.
func (s *jsonScraper) Scrape(ctx context.Context) (*Reading, error) {
	res := newReading(s.src)

	body, err := get(ctx, s.client, s.src.Endpoint, "application/json")
	if err != nil {
		res.Err = fmt.Errorf("json scrape %q: %w", s.src.ID, err)
		slog.Warn("scraper: json fetch failed", "source", s.src.ID, "err", err)
		return res, nil
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc map[string]interface{}
	if err := dec.Decode(&doc); err != nil {
		res.Err = fmt.Errorf("json scrape %q: decode JSON: %w", s.src.ID, err)
		return res, nil
	}

	raw := make(map[string]float64)
	flatten("", doc, raw)
	res.Metrics = dropNonFinite(s.src.ID, applyMapping(raw, s.src.Metrics))
	return res, nil
}

func flatten(prefix string, obj map[string]interface{}, out map[string]float64) {
	for k, v := range obj {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case json.Number:
			if f, err := val.Float64(); err == nil {
				out[key] = f
			}
		case bool:
			if val {
				out[key] = 1
			} else {
				out[key] = 0
			}
		case map[string]interface{}:
			flatten(key, val, out)
		}
	}
}
