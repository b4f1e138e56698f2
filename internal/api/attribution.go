package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/Priya8975/trackflow/internal/attribution"
)

type Attributor interface {
	Attribute(ctx context.Context, visitorID string, model attribution.Model, value float64, at time.Time) (attribution.Result, error)
}

// AttributionHandler computes attribution for a visitor on demand, without
// storing a conversion.
type AttributionHandler struct {
	attributor   Attributor
	defaultModel attribution.Model
	now          func() time.Time
}

func NewAttributionHandler(a Attributor, defaultModel attribution.Model) *AttributionHandler {
	return &AttributionHandler{attributor: a, defaultModel: defaultModel, now: time.Now}
}

type attributionResponse struct {
	attribution.Result
	Summary attribution.Summary `json:"summary"`
}

func (h *AttributionHandler) Get(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	visitorID := q.Get("visitor_id")
	if visitorID == "" {
		respondError(w, http.StatusBadRequest, "visitor_id is required")
		return
	}

	model := h.defaultModel
	if s := q.Get("model"); s != "" {
		m, err := attribution.ParseModel(s)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		model = m
	}

	value := 0.0
	if s := q.Get("value"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v < 0 {
			respondError(w, http.StatusBadRequest, "value must be a non-negative number")
			return
		}
		value = v
	}

	result, err := h.attributor.Attribute(r.Context(), visitorID, model, value, h.now())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to compute attribution")
		return
	}

	respondJSON(w, http.StatusOK, attributionResponse{
		Result:  result,
		Summary: attribution.Summarize(result),
	})
}
