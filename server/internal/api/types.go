package api

import (
	"github.com/jalsense/jalsense/server/internal/alerts"
)

// HealthResponse is the payload for GET /api/health.
type HealthResponse struct {
	Status     string `json:"status"`
	Nodes      int    `json:"nodes"`
	Alerts     int    `json:"alerts"`
	OpenAlerts int    `json:"open_alerts"`
}

// AckResponse is the payload for POST /api/alerts/{id}/ack.
type AckResponse struct {
	Status string       `json:"status"`
	Alert  alerts.Alert `json:"alert"`
}

type errorResponse struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields,omitempty"`
}
