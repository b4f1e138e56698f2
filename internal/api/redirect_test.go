package api

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/Priya8975/trackflow/internal/domain"
)

func seedLink(ts *testServer, mutate func(*domain.TrackedLink)) *domain.TrackedLink {
	l := &domain.TrackedLink{
		ID:        "link-1",
		ShortCode: "Ab3xYz",
		TargetURL: "https://shop.example.com/sale?ref=x#top",
		Campaign:  "spring",
		UTM:       map[string]string{"utm_source": "newsletter", "utm_medium": "email"},
		Status:    domain.LinkActive,
	}
	if mutate != nil {
		mutate(l)
	}
	ts.store.links[l.ShortCode] = l
	return l
}

func TestRedirect_Found(t *testing.T) {
	ts := newTestServer(t)
	seedLink(ts, nil)

	rec := ts.do(http.MethodGet, "/r/Ab3xYz", "", func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: VisitorCookie, Value: "tf_cookie"})
		r.Header.Set("User-Agent", "Mozilla/5.0 (iPhone) Mobile Safari/604.1")
	})

	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}

	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("bad location: %v", err)
	}
	q := loc.Query()
	if loc.Host != "shop.example.com" || loc.Fragment != "top" {
		t.Errorf("unexpected destination %s", loc)
	}
	for k, want := range map[string]string{
		"ref":                "x",
		"utm_source":         "newsletter",
		"utm_medium":         "email",
		domain.LinkParam:     "Ab3xYz",
		domain.CampaignParam: "spring",
	} {
		if got := q.Get(k); got != want {
			t.Errorf("query %s = %q, want %q", k, got, want)
		}
	}

	if len(ts.store.clicks) != 1 {
		t.Fatalf("expected 1 click, got %d", len(ts.store.clicks))
	}
	click := ts.store.clicks[0]
	if click.VisitorID != "tf_cookie" || click.LinkID != "link-1" || click.Device != "Mobile" {
		t.Errorf("unexpected click %+v", click)
	}

	if len(ts.queue.jobs) != 1 {
		t.Fatalf("expected a tracked_link_click job, got %d", len(ts.queue.jobs))
	}
	env := ts.queue.jobs[0].Envelope
	if env.EventType != domain.EventTrackedLinkClick || env.VisitorID != "tf_cookie" {
		t.Errorf("unexpected envelope %+v", env)
	}
	if env.Page.UTM["utm_source"] != "newsletter" {
		t.Errorf("link UTM should travel with the click, got %v", env.Page.UTM)
	}
}

func TestRedirect_VisitorFromQuery(t *testing.T) {
	ts := newTestServer(t)
	seedLink(ts, nil)

	ts.do(http.MethodGet, "/r/Ab3xYz?v=tf_query", "")
	if ts.store.clicks[0].VisitorID != "tf_query" {
		t.Errorf("expected visitor from query, got %q", ts.store.clicks[0].VisitorID)
	}
}

func TestRedirect_AnonymousClickNotQueued(t *testing.T) {
	ts := newTestServer(t)
	seedLink(ts, nil)

	rec := ts.do(http.MethodGet, "/r/Ab3xYz", "")
	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}
	if len(ts.store.clicks) != 1 {
		t.Error("anonymous clicks still count")
	}
	if len(ts.queue.jobs) != 0 {
		t.Error("no visitor event without a visitor id")
	}
}

func TestRedirect_Unavailable(t *testing.T) {
	past := time.Now().Add(-time.Hour)

	tests := []struct {
		name   string
		code   string
		mutate func(*domain.TrackedLink)
		want   int
	}{
		{"unknown", "nope", nil, http.StatusNotFound},
		{"paused", "Ab3xYz", func(l *domain.TrackedLink) { l.Status = domain.LinkPaused }, http.StatusGone},
		{"expired", "Ab3xYz", func(l *domain.TrackedLink) { l.ExpiresAt = &past }, http.StatusGone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			seedLink(ts, tt.mutate)

			rec := ts.do(http.MethodGet, "/r/"+tt.code, "")
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
			if len(ts.store.clicks) != 0 || len(ts.queue.jobs) != 0 {
				t.Error("unavailable links must not record clicks")
			}
		})
	}
}
