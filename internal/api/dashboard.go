package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/Priya8975/trackflow/internal/engine"
	"github.com/Priya8975/trackflow/internal/store"
)

type MetricsStore interface {
	GetTrackingMetrics(ctx context.Context) (*store.TrackingMetrics, error)
}

type QueueDepther interface {
	Depth(ctx context.Context) (int64, error)
}

type ClientCounter interface {
	ClientCount() int
}

// CircuitReporter reads a sink's circuit breaker state.
type CircuitReporter interface {
	Status(ctx context.Context, sink string) (engine.SinkStatus, error)
}

type DashboardHandler struct {
	store   MetricsStore
	queue   QueueDepther
	hub     ClientCounter
	breaker CircuitReporter
	crmSink string
	logger  *slog.Logger
}

type dashboardMetrics struct {
	*store.TrackingMetrics
	CRMCircuit *engine.SinkStatus `json:"crm_circuit,omitempty"`
}

func NewDashboardHandler(s MetricsStore, q QueueDepther, hub ClientCounter, logger *slog.Logger) *DashboardHandler {
	return &DashboardHandler{store: s, queue: q, hub: hub, logger: logger}
}

// ReportCircuit adds the CRM sink's circuit state to the metrics.
func (h *DashboardHandler) ReportCircuit(b CircuitReporter, sink string) {
	h.breaker = b
	h.crmSink = sink
}

// Metrics returns aggregated tracking metrics for the dashboard.
func (h *DashboardHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.store.GetTrackingMetrics(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get metrics")
		return
	}

	// Get queue depth from Redis
	depth, err := h.queue.Depth(r.Context())
	if err != nil {
		h.logger.Warn("failed to read queue depth", "error", err)
		depth = 0
	}
	metrics.QueueDepth = depth
	metrics.LiveClients = h.hub.ClientCount()

	resp := dashboardMetrics{TrackingMetrics: metrics}
	if h.breaker != nil {
		status, err := h.breaker.Status(r.Context(), h.crmSink)
		if err != nil {
			h.logger.Warn("failed to read crm circuit", "error", err)
		} else {
			resp.CRMCircuit = &status
		}
	}

	respondJSON(w, http.StatusOK, resp)
}
