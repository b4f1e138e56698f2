package api

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"strings"

	"github.com/Priya8975/trackflow/internal/attribution"
	"github.com/Priya8975/trackflow/internal/domain"
)

type CampaignStore interface {
	CreateCampaign(ctx context.Context, req domain.CreateCampaignRequest) (*domain.Campaign, error)
	ListCampaigns(ctx context.Context) ([]domain.Campaign, error)
	CampaignReport(ctx context.Context) ([]domain.CampaignStats, error)
}

type CampaignHandler struct {
	store CampaignStore
}

func NewCampaignHandler(s CampaignStore) *CampaignHandler {
	return &CampaignHandler{store: s}
}

func (h *CampaignHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Cost < 0 {
		respondError(w, http.StatusBadRequest, "cost must not be negative")
		return
	}

	campaign, err := h.store.CreateCampaign(r.Context(), req)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create campaign")
		return
	}

	respondJSON(w, http.StatusCreated, campaign)
}

func (h *CampaignHandler) List(w http.ResponseWriter, r *http.Request) {
	campaigns, err := h.store.ListCampaigns(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list campaigns")
		return
	}

	respondJSON(w, http.StatusOK, campaigns)
}

// Report returns per-campaign performance with conversion rate and ROI.
func (h *CampaignHandler) Report(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.CampaignReport(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to build campaign report")
		return
	}

	for i := range stats {
		s := &stats[i]
		if s.UniqueVisitors > 0 {
			s.ConversionRate = math.Round(float64(s.Conversions)/float64(s.UniqueVisitors)*10000) / 100
		}
		s.ROI = attribution.ROI(s.AttributedRevenue, s.Cost)
	}

	respondJSON(w, http.StatusOK, stats)
}
