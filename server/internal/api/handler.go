package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jalsense/jalsense/pkg/types"
	"github.com/jalsense/jalsense/server/internal/alerts"
	"github.com/jalsense/jalsense/server/internal/ingest"
	"github.com/jalsense/jalsense/server/internal/metrics"
	"github.com/jalsense/jalsense/server/internal/store"
)

// maxBodyBytes caps POST /api/telemetry payloads.
const maxBodyBytes = 1 << 20

// Ingester is the write side of the engine.
type Ingester interface {
	Ingest(nodeID string, delta map[string]float64, ts *time.Time) (ingest.Result, error)
}

// Handler is the HTTP handler for all /api/* endpoints.
type Handler struct {
	store    *store.Store
	ledger   *alerts.Ledger
	ingest   Ingester
	metrics  *metrics.Metrics
	validate *validator.Validate
	mux      *http.ServeMux
}

// New creates a Handler and registers all routes. m may be nil.
func New(st *store.Store, ledger *alerts.Ledger, ing Ingester, m *metrics.Metrics) http.Handler {
	h := &Handler{
		store:    st,
		ledger:   ledger,
		ingest:   ing,
		metrics:  m,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		mux:      http.NewServeMux(),
	}

	h.mux.HandleFunc("/api/health", h.health)
	h.mux.HandleFunc("/api/nodes", h.listNodes)
	h.mux.HandleFunc("/api/nodes/", h.getNode) // subtree, extracts {id}
	h.mux.HandleFunc("/api/alerts", h.listAlerts)
	h.mux.HandleFunc("/api/alerts/", h.ackAlert) // subtree, {id}/ack
	h.mux.HandleFunc("/api/telemetry", h.telemetry)

	return requestID(accessLog(m, h.mux))
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	total, open := h.ledger.Counts()
	jsonResp(w, http.StatusOK, HealthResponse{
		Status:     "ok",
		Nodes:      h.store.Count(),
		Alerts:     total,
		OpenAlerts: open,
	})
}

// listNodes returns GET /api/nodes.
func (h *Handler) listNodes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, h.store.List())
}

// getNode returns GET /api/nodes/{id}.
func (h *Handler) getNode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/nodes/")
	if id == "" {
		h.listNodes(w, r)
		return
	}

	n, ok := h.store.Get(id)
	if !ok {
		jsonErr(w, http.StatusNotFound, "node not found")
		return
	}
	jsonResp(w, http.StatusOK, n)
}

// listAlerts returns GET /api/alerts[?only_open=true].
func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	filter := alerts.All
	if v := r.URL.Query().Get("only_open"); v != "" {
		open, err := strconv.ParseBool(v)
		if err != nil {
			jsonErr(w, http.StatusBadRequest, "only_open must be a boolean")
			return
		}
		if open {
			filter = alerts.OpenOnly
		}
	}
	jsonResp(w, http.StatusOK, h.ledger.List(filter))
}

// ackAlert handles POST /api/alerts/{id}/ack.
func (h *Handler) ackAlert(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/alerts/")
	if rest == "" {
		h.listAlerts(w, r)
		return
	}

	idPart, ok := strings.CutSuffix(rest, "/ack")
	if !ok || strings.Contains(idPart, "/") {
		jsonErr(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, "alert id must be an integer")
		return
	}

	a, err := h.ledger.Acknowledge(id)
	if errors.Is(err, alerts.ErrNotFound) {
		jsonErr(w, http.StatusNotFound, "alert not found")
		return
	}
	jsonResp(w, http.StatusOK, AckResponse{Status: "acknowledged", Alert: a})
}

// telemetry handles POST /api/telemetry, the HTTP telemetry source.
func (h *Handler) telemetry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var in types.Telemetry
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&in); err != nil {
		h.metrics.ObserveIngest("http", "rejected")
		jsonErr(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if nulls := in.NullMetrics(); len(nulls) > 0 {
		h.metrics.ObserveIngest("http", "rejected")
		fields := make([]string, 0, len(nulls))
		for _, k := range nulls {
			fields = append(fields, "metrics."+k+": null")
		}
		jsonResp(w, http.StatusUnprocessableEntity, errorResponse{
			Error:  "invalid telemetry",
			Fields: fields,
		})
		return
	}
	if err := h.validate.Struct(in); err != nil {
		h.metrics.ObserveIngest("http", "rejected")
		jsonResp(w, http.StatusUnprocessableEntity, errorResponse{
			Error:  "invalid telemetry",
			Fields: fieldErrors(err),
		})
		return
	}

	res, err := h.ingest.Ingest(in.NodeID, in.Metrics, in.Timestamp)
	switch {
	case errors.Is(err, store.ErrUnknownNode):
		h.metrics.ObserveIngest("http", "unknown_node")
		jsonErr(w, http.StatusNotFound, "unknown node")
		return
	case err != nil:
		h.metrics.ObserveIngest("http", "error")
		jsonErr(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.metrics.ObserveIngest("http", "ok")
	jsonResp(w, http.StatusOK, res.Ack())
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

// fieldErrors flattens validator errors to "Field: tag" strings.
func fieldErrors(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, fe.Field()+": "+fe.Tag())
	}
	return out
}
