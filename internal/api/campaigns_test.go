package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Priya8975/trackflow/internal/domain"
)

func TestCampaigns_Create(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"valid", `{"name":" spring ","cost":250}`, http.StatusCreated},
		{"blank name", `{"name":"  "}`, http.StatusBadRequest},
		{"negative cost", `{"name":"spring","cost":-1}`, http.StatusBadRequest},
		{"malformed", `[`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			rec := ts.do(http.MethodPost, "/api/v1/campaigns", tt.body)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}
			if tt.want == http.StatusCreated && ts.store.campaigns[0].Name != "spring" {
				t.Errorf("name should be trimmed, got %q", ts.store.campaigns[0].Name)
			}
		})
	}
}

func TestCampaigns_Report(t *testing.T) {
	ts := newTestServer(t)
	ts.store.stats = []domain.CampaignStats{
		{Campaign: "spring", Clicks: 40, UniqueVisitors: 30, Conversions: 4, AttributedRevenue: 500, Cost: 200},
		{Campaign: "organic", Clicks: 5, UniqueVisitors: 0, Conversions: 1, AttributedRevenue: 80},
	}

	rec := ts.do(http.MethodGet, "/api/v1/campaigns/report", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var got []domain.CampaignStats
	json.NewDecoder(rec.Body).Decode(&got)

	want := []domain.CampaignStats{
		{Campaign: "spring", Clicks: 40, UniqueVisitors: 30, Conversions: 4, AttributedRevenue: 500, Cost: 200, ConversionRate: 13.33, ROI: 150},
		{Campaign: "organic", Clicks: 5, UniqueVisitors: 0, Conversions: 1, AttributedRevenue: 80},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}
}

func TestCampaigns_ReportError(t *testing.T) {
	ts := newTestServer(t)
	ts.store.err = errBoom
	if rec := ts.do(http.MethodGet, "/api/v1/campaigns/report", ""); rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}
