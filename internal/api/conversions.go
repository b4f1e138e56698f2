package api

import (
	"context"
	"encoding/csv"
	"net/http"
	"strconv"
	"time"

	"github.com/Priya8975/trackflow/internal/domain"
)

type ConversionStore interface {
	ListConversions(ctx context.Context, visitorID string, limit int) ([]domain.Conversion, error)
}

type ConversionHandler struct {
	store ConversionStore
}

func NewConversionHandler(s ConversionStore) *ConversionHandler {
	return &ConversionHandler{store: s}
}

func (h *ConversionHandler) List(w http.ResponseWriter, r *http.Request) {
	conversions, err := h.store.ListConversions(r.Context(), r.URL.Query().Get("visitor_id"), queryLimit(r, 50, 500))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list conversions")
		return
	}

	respondJSON(w, http.StatusOK, conversions)
}

var exportHeader = []string{
	"conversion_id", "visitor_id", "conversion_type", "value", "model", "occurred_at",
	"source", "medium", "campaign", "credit", "credited_value",
}

// Export writes conversions as CSV, one row per credited touchpoint.
// Conversions without credits get a single row with empty credit columns.
func (h *ConversionHandler) Export(w http.ResponseWriter, r *http.Request) {
	conversions, err := h.store.ListConversions(r.Context(), r.URL.Query().Get("visitor_id"), queryLimit(r, 10000, 100000))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list conversions")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="conversions.csv"`)
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	cw.Write(exportHeader)
	for _, c := range conversions {
		base := []string{
			c.ID, c.VisitorID, c.ConversionType, formatFloat(c.Value), c.Model,
			c.OccurredAt.UTC().Format(time.RFC3339),
		}
		if len(c.Credits) == 0 {
			cw.Write(append(base, "", "", "", "", ""))
			continue
		}
		for _, cr := range c.Credits {
			row := append(append([]string{}, base...),
				cr.Source, cr.Medium, cr.Campaign, formatFloat(cr.Credit), formatFloat(cr.Value))
			cw.Write(row)
		}
	}
	cw.Flush()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}
