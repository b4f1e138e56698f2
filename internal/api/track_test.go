package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/Priya8975/trackflow/internal/domain"
	"github.com/Priya8975/trackflow/internal/engine"
)

const validEnvelope = `{
	"event_type": "page_view",
	"event_data": {"source": {"utm_source": "google"}},
	"visitor_id": "tf_v1",
	"session_id": "tf_s1",
	"timestamp": "2024-03-01T12:00:00.000Z",
	"page_info": {"url": "https://shop.example.com/?utm_source=google", "utm": {"utm_source": "google"}},
	"browser_info": {"user_agent": "Mozilla/5.0"}
}`

func TestTrack_Accepted(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/api/v1/track", validEnvelope, func(r *http.Request) {
		r.Header.Set("User-Agent", "test-agent")
	})

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp trackResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if !resp.Success {
		t.Error("expected success true")
	}

	if len(ts.queue.jobs) != 1 {
		t.Fatalf("expected 1 queued job, got %d", len(ts.queue.jobs))
	}
	job := ts.queue.jobs[0]
	if job.Kind != engine.JobIngest || job.Envelope.VisitorID != "tf_v1" {
		t.Errorf("unexpected job %+v", job)
	}
	if job.IPAddress != "192.0.2.10" || job.UserAgent != "test-agent" {
		t.Errorf("request metadata not captured: ip=%q ua=%q", job.IPAddress, job.UserAgent)
	}
	if job.Envelope.Timestamp != "2024-03-01T12:00:00.000Z" {
		t.Errorf("client timestamp must be kept, got %q", job.Envelope.Timestamp)
	}
	if len(ts.limiter.keys) != 1 || ts.limiter.keys[0] != "visitor:tf_v1" {
		t.Errorf("expected per-visitor rate limit key, got %v", ts.limiter.keys)
	}
}

func TestTrack_ForwardedIP(t *testing.T) {
	ts := newTestServer(t)
	ts.do(http.MethodPost, "/api/v1/track", validEnvelope, func(r *http.Request) {
		r.Header.Set("X-Forwarded-For", "198.51.100.7")
	})
	if got := ts.queue.jobs[0].IPAddress; got != "198.51.100.7" {
		t.Errorf("expected forwarded ip, got %q", got)
	}
}

func TestTrack_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"event_type":`},
		{"unknown type", `{"event_type":"hover","visitor_id":"v","session_id":"s"}`},
		{"missing visitor", `{"event_type":"click","session_id":"s"}`},
		{"missing session", `{"event_type":"click","visitor_id":"v"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			rec := ts.do(http.MethodPost, "/api/v1/track", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
			var resp errorResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil || resp.Error == "" {
				t.Errorf("expected an error body, got %q", rec.Body.String())
			}
			if len(ts.queue.jobs) != 0 {
				t.Error("invalid events must not be queued")
			}
		})
	}
}

func TestTrack_BodyTooLarge(t *testing.T) {
	ts := newTestServer(t)
	big := `{"event_type":"click","visitor_id":"v","session_id":"s","event_data":{"x":"` +
		string(bytes.Repeat([]byte("a"), maxEnvelopeBytes)) + `"}}`

	if rec := ts.do(http.MethodPost, "/api/v1/track", big); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for oversized body, got %d", rec.Code)
	}
}

func TestTrack_ServerTimeSubstituted(t *testing.T) {
	ts := newTestServer(t)
	before := time.Now().Add(-time.Second)

	rec := ts.do(http.MethodPost, "/api/v1/track",
		`{"event_type":"click","visitor_id":"v","session_id":"s","timestamp":"not a time"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}

	at := ts.queue.jobs[0].Envelope.OccurredAt()
	if at.Before(before) || at.After(time.Now().Add(time.Second)) {
		t.Errorf("expected server time, got %v", at)
	}
}

func TestTrack_RateLimited(t *testing.T) {
	ts := newTestServer(t)
	ts.limiter.allowed = 1

	rec := ts.do(http.MethodPost, "/api/v1/track", validEnvelope)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("first request: expected 202, got %d", rec.Code)
	}
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "10" {
		t.Errorf("X-RateLimit-Limit = %q, want 10", got)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("X-RateLimit-Remaining = %q, want 0", got)
	}
	if rec.Header().Get("Retry-After") != "" {
		t.Error("an admitted request must not carry Retry-After")
	}

	rec = ts.do(http.MethodPost, "/api/v1/track", validEnvelope)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("second request: expected 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "1" {
		t.Errorf("Retry-After = %q, want sub-second waits rounded up to 1", got)
	}
	if len(ts.queue.jobs) != 1 {
		t.Errorf("expected 1 queued job, got %d", len(ts.queue.jobs))
	}
}

func TestTrack_QueueUnavailable(t *testing.T) {
	ts := newTestServer(t)
	ts.queue.err = errBoom

	if rec := ts.do(http.MethodPost, "/api/v1/track", validEnvelope); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestPixel(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		wantJobs int
	}{
		{"with visitor", "/api/v1/pixel.gif?v=tf_v1&s=tf_s1&c=spring", 1},
		{"anonymous", "/api/v1/pixel.gif", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			rec := ts.do(http.MethodGet, tt.target, "", func(r *http.Request) {
				r.Header.Set("Referer", "https://mail.example.com/")
			})

			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "image/gif" {
				t.Errorf("expected image/gif, got %q", ct)
			}
			if cc := rec.Header().Get("Cache-Control"); cc != "no-cache, no-store, must-revalidate" {
				t.Errorf("unexpected Cache-Control %q", cc)
			}
			if !bytes.Equal(rec.Body.Bytes(), transparentGIF) {
				t.Error("body is not the transparent gif")
			}
			if len(ts.queue.jobs) != tt.wantJobs {
				t.Fatalf("expected %d jobs, got %d", tt.wantJobs, len(ts.queue.jobs))
			}
			if tt.wantJobs == 0 {
				return
			}

			env := ts.queue.jobs[0].Envelope
			if env.EventType != domain.EventPixelView || env.VisitorID != "tf_v1" || env.SessionID != "tf_s1" {
				t.Errorf("unexpected envelope %+v", env)
			}
			if env.EventData["campaign"] != "spring" || env.Page.Referrer != "https://mail.example.com/" {
				t.Errorf("pixel context not captured: %+v", env)
			}
		})
	}
}

func TestPixel_QueueFailureStillServesImage(t *testing.T) {
	ts := newTestServer(t)
	ts.queue.err = errBoom

	rec := ts.do(http.MethodGet, "/api/v1/pixel.gif?v=tf_v1", "")
	if rec.Code != http.StatusOK || !bytes.Equal(rec.Body.Bytes(), transparentGIF) {
		t.Errorf("expected the pixel despite queue failure, got %d", rec.Code)
	}
}

func TestTrack_RateLimitKeyFallsBackToIP(t *testing.T) {
	ts := newTestServer(t)
	ts.do(http.MethodPost, "/api/v1/track", `{"event_type":"click","session_id":"s"}`)
	if len(ts.limiter.keys) != 1 || ts.limiter.keys[0] != "ip:192.0.2.10" {
		t.Errorf("expected ip rate limit key, got %v", ts.limiter.keys)
	}
}
