package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/Priya8975/trackflow/internal/domain"
	"github.com/Priya8975/trackflow/internal/engine"
	"github.com/Priya8975/trackflow/internal/store"
)

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got HealthResponse
	json.NewDecoder(rec.Body).Decode(&got)
	if got.Status != "healthy" || got.Service != "trackflow" {
		t.Errorf("unexpected health %+v", got)
	}

	if rec := ts.do(http.MethodGet, "/ping", ""); rec.Code != http.StatusOK {
		t.Errorf("heartbeat: expected 200, got %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodOptions, "/api/v1/track", "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected wildcard origin, got %q", got)
	}
}

func TestEvents_List(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/v1/events?event_type=conversion&visitor_id=tf_v1&limit=5000", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	want := domain.EventFilter{EventType: domain.EventConversion, VisitorID: "tf_v1", Limit: 500}
	if ts.store.lastFilter != want {
		t.Errorf("filter = %+v, want %+v", ts.store.lastFilter, want)
	}

	if rec := ts.do(http.MethodGet, "/api/v1/events?event_type=hover", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown type, got %d", rec.Code)
	}
}

func TestMetrics(t *testing.T) {
	ts := newTestServer(t)
	ts.store.metrics = store.TrackingMetrics{TotalVisitors: 12, TotalConversions: 3}
	ts.queue.depth = 7
	ts.hub.clients = 2

	rec := ts.do(http.MethodGet, "/api/v1/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got store.TrackingMetrics
	json.NewDecoder(rec.Body).Decode(&got)
	if got.TotalVisitors != 12 || got.QueueDepth != 7 || got.LiveClients != 2 {
		t.Errorf("unexpected metrics %+v", got)
	}
}

func TestMetrics_CRMCircuit(t *testing.T) {
	const sink = "crm:https://crm.example.com/hook"
	retry := time.Date(2024, 3, 1, 12, 0, 30, 0, time.UTC)

	tests := []struct {
		name    string
		breaker *fakeBreaker
		sink    string
		want    *engine.SinkStatus
	}{
		{"forwarding disabled", nil, "", nil},
		{
			"open circuit",
			&fakeBreaker{status: engine.SinkStatus{State: engine.StateOpen, Failures: 5, Threshold: 5, RetryAt: &retry}},
			sink,
			&engine.SinkStatus{Sink: sink, State: engine.StateOpen, Failures: 5, Threshold: 5, RetryAt: &retry},
		},
		{"redis unavailable", &fakeBreaker{err: errBoom}, sink, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			deps := ts.deps
			if tt.breaker != nil {
				deps.Breaker = tt.breaker
			}
			deps.CRMSink = tt.sink
			handler := NewRouter(deps)

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/metrics", nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rec.Code)
			}

			var got struct {
				TotalVisitors int                `json:"total_visitors"`
				CRMCircuit    *engine.SinkStatus `json:"crm_circuit"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if diff := cmp.Diff(tt.want, got.CRMCircuit); diff != "" {
				t.Errorf("crm circuit mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
