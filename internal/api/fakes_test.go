package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Priya8975/trackflow/internal/attribution"
	"github.com/Priya8975/trackflow/internal/domain"
	"github.com/Priya8975/trackflow/internal/engine"
	"github.com/Priya8975/trackflow/internal/store"
)

type fakeStore struct {
	mu          sync.Mutex
	links       map[string]*domain.TrackedLink
	clicks      []domain.LinkClick
	campaigns   []domain.Campaign
	stats       []domain.CampaignStats
	visitors    map[string]*domain.Visitor
	sessions    map[string][]domain.Session
	events      []domain.Event
	conversions []domain.Conversion
	metrics     store.TrackingMetrics

	lastFilter domain.EventFilter
	lastSince  time.Time
	err        error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		links:    make(map[string]*domain.TrackedLink),
		visitors: make(map[string]*domain.Visitor),
		sessions: make(map[string][]domain.Session),
	}
}

func (s *fakeStore) CreateLink(_ context.Context, code string, req domain.CreateLinkRequest) (*domain.TrackedLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	l := &domain.TrackedLink{
		ID:        "link-" + code,
		ShortCode: code,
		Name:      req.Name,
		TargetURL: req.TargetURL,
		Campaign:  req.Campaign,
		UTM:       req.UTM,
		Status:    domain.LinkActive,
		ExpiresAt: req.ExpiresAt,
	}
	s.links[code] = l
	return l, nil
}

func (s *fakeStore) ShortCodeExists(_ context.Context, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.links[code]
	return ok, nil
}

func (s *fakeStore) GetLinkByCode(_ context.Context, code string) (*domain.TrackedLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.links[code], nil
}

func (s *fakeStore) ListLinks(_ context.Context, campaign string) ([]domain.TrackedLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.TrackedLink{}
	for _, l := range s.links {
		if campaign == "" || l.Campaign == campaign {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (s *fakeStore) SetLinkStatus(_ context.Context, code, status string) (*domain.TrackedLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	l, ok := s.links[code]
	if !ok {
		return nil, nil
	}
	l.Status = status
	cp := *l
	return &cp, nil
}

func (s *fakeStore) RecordClick(_ context.Context, c domain.LinkClick) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clicks = append(s.clicks, c)
	return nil
}

func (s *fakeStore) CreateCampaign(_ context.Context, req domain.CreateCampaignRequest) (*domain.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := domain.Campaign{ID: "camp-1", Name: req.Name, Cost: req.Cost}
	s.campaigns = append(s.campaigns, c)
	return &c, nil
}

func (s *fakeStore) ListCampaigns(context.Context) ([]domain.Campaign, error) {
	return s.campaigns, nil
}

func (s *fakeStore) CampaignReport(context.Context) ([]domain.CampaignStats, error) {
	return append([]domain.CampaignStats(nil), s.stats...), s.err
}

func (s *fakeStore) GetVisitor(_ context.Context, id string) (*domain.Visitor, error) {
	return s.visitors[id], s.err
}

func (s *fakeStore) ListSessions(_ context.Context, id string) ([]domain.Session, error) {
	return s.sessions[id], nil
}

func (s *fakeStore) VisitorJourney(_ context.Context, id string, since time.Time) ([]domain.Event, error) {
	s.lastSince = since
	var out []domain.Event
	for _, e := range s.events {
		if e.VisitorID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeStore) ListConversions(_ context.Context, visitorID string, _ int) ([]domain.Conversion, error) {
	var out []domain.Conversion
	for _, c := range s.conversions {
		if visitorID == "" || c.VisitorID == visitorID {
			out = append(out, c)
		}
	}
	return out, s.err
}

func (s *fakeStore) ListEvents(_ context.Context, f domain.EventFilter) ([]domain.Event, error) {
	s.lastFilter = f
	return s.events, nil
}

func (s *fakeStore) GetTrackingMetrics(context.Context) (*store.TrackingMetrics, error) {
	m := s.metrics
	return &m, s.err
}

type fakeQueue struct {
	mu    sync.Mutex
	jobs  []engine.Job
	depth int64
	err   error
}

func (q *fakeQueue) Enqueue(_ context.Context, job engine.Job, _ time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeQueue) Depth(context.Context) (int64, error) {
	return q.depth, nil
}

type fakeBreaker struct {
	status engine.SinkStatus
	err    error
	sinks  []string
}

func (b *fakeBreaker) Status(_ context.Context, sink string) (engine.SinkStatus, error) {
	b.sinks = append(b.sinks, sink)
	b.status.Sink = sink
	return b.status, b.err
}

type fakeLimiter struct {
	allowed int
	keys    []string
}

func (l *fakeLimiter) Allow(_ context.Context, key string, limit int) engine.Decision {
	l.keys = append(l.keys, key)
	if l.allowed <= 0 {
		return engine.Decision{Limit: limit, RetryAfter: 300 * time.Millisecond}
	}
	l.allowed--
	return engine.Decision{Allowed: true, Limit: limit, Remaining: l.allowed}
}

type fakeAttributor struct {
	model attribution.Model
	value float64
	err   error
}

func (a *fakeAttributor) Attribute(_ context.Context, _ string, model attribution.Model, value float64, _ time.Time) (attribution.Result, error) {
	a.model, a.value = model, value
	if a.err != nil {
		return attribution.Result{}, a.err
	}
	return attribution.Result{
		Model: model,
		Touchpoints: []attribution.Touchpoint{
			{ID: "e1", Source: "google", Credit: 50, Value: value / 2},
			{ID: "e2", Source: "newsletter", Campaign: "spring", Credit: 50, Value: value / 2},
		},
		TotalCredit:     100,
		ConversionValue: value,
	}, nil
}

type fakeHub struct{ clients int }

func (h *fakeHub) ClientCount() int { return h.clients }

func (h *fakeHub) HandleWebSocket(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusSwitchingProtocols)
}

var errBoom = errors.New("boom")

type testServer struct {
	store   *fakeStore
	queue   *fakeQueue
	limiter *fakeLimiter
	attr    *fakeAttributor
	hub     *fakeHub
	deps    Deps
	handler http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		store:   newFakeStore(),
		queue:   &fakeQueue{},
		limiter: &fakeLimiter{allowed: 1000},
		attr:    &fakeAttributor{},
		hub:     &fakeHub{},
	}
	ts.deps = Deps{
		Store:           ts.store,
		Queue:           ts.queue,
		Limiter:         ts.limiter,
		Attributor:      ts.attr,
		Hub:             ts.hub,
		Logger:          slog.New(slog.NewJSONHandler(io.Discard, nil)),
		PublicBaseURL:   "https://t.example.com/",
		ShortCodeLength: 6,
		TrackRateLimit:  10,
		DefaultModel:    attribution.LastTouch,
	}
	ts.handler = NewRouter(ts.deps)
	return ts
}

func (ts *testServer) do(method, target, body string, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	req.RemoteAddr = "192.0.2.10:5555"
	for _, m := range mutate {
		m(req)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}
