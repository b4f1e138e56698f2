package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/Priya8975/trackflow/internal/domain"
	"github.com/Priya8975/trackflow/internal/engine"
)

const maxEnvelopeBytes = 64 << 10

// transparentGIF is a 1x1 transparent GIF89a.
var transparentGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

// JobQueue accepts jobs for the background workers.
type JobQueue interface {
	Enqueue(ctx context.Context, job engine.Job, at time.Time) error
}

type Limiter interface {
	Allow(ctx context.Context, key string, limit int) engine.Decision
}

// TrackHandler receives events from tracking clients and the pixel. Events
// are only validated and queued here; the workers store them.
type TrackHandler struct {
	queue   JobQueue
	limiter Limiter
	limit   int
	logger  *slog.Logger
	now     func() time.Time
}

// NewTrackHandler creates a handler allowing limit events per visitor per
// second. A limit of zero disables rate limiting.
func NewTrackHandler(q JobQueue, l Limiter, limit int, logger *slog.Logger) *TrackHandler {
	return &TrackHandler{queue: q, limiter: l, limit: limit, logger: logger, now: time.Now}
}

type trackResponse struct {
	Success bool `json:"success"`
}

func (h *TrackHandler) Track(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxEnvelopeBytes)

	var env domain.Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	d := h.allow(r, env.VisitorID)
	if d.Limit > 0 {
		setRateLimitHeaders(w, d)
	}
	if !d.Allowed {
		respondError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	if !env.EventType.Valid() {
		respondError(w, http.StatusBadRequest, "unknown event_type")
		return
	}
	if env.VisitorID == "" || env.SessionID == "" {
		respondError(w, http.StatusBadRequest, "visitor_id and session_id are required")
		return
	}

	now := h.now()
	if env.OccurredAt().IsZero() {
		env.Timestamp = now.UTC().Format(domain.TimestampLayout)
	}

	if err := h.enqueue(r, &env, now); err != nil {
		respondError(w, http.StatusServiceUnavailable, "failed to queue event")
		return
	}

	respondJSON(w, http.StatusAccepted, trackResponse{Success: true})
}

// Pixel serves the tracking pixel. A pixel_view is queued when the request
// names a visitor; the image is returned either way.
func (h *TrackHandler) Pixel(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if visitor := q.Get("v"); visitor != "" {
		now := h.now()
		env := &domain.Envelope{
			EventType: domain.EventPixelView,
			EventData: map[string]any{
				"campaign": q.Get("c"),
				"referer":  r.Referer(),
			},
			VisitorID: visitor,
			SessionID: q.Get("s"),
			Timestamp: now.UTC().Format(domain.TimestampLayout),
			Page:      domain.PageContext{Referrer: r.Referer()},
		}
		if h.allow(r, visitor).Allowed {
			if err := h.enqueue(r, env, now); err != nil {
				h.logger.Error("pixel tracking failed", "visitor_id", visitor, "error", err)
			}
		}
	}

	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.WriteHeader(http.StatusOK)
	w.Write(transparentGIF)
}

// allow applies the rate limit per visitor, or per client IP for requests
// that carry no visitor id.
func (h *TrackHandler) allow(r *http.Request, visitor string) engine.Decision {
	if h.limit <= 0 {
		return engine.Decision{Allowed: true}
	}
	key := "visitor:" + visitor
	if visitor == "" {
		key = "ip:" + clientIP(r)
	}
	return h.limiter.Allow(r.Context(), key, h.limit)
}

func setRateLimitHeaders(w http.ResponseWriter, d engine.Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	if !d.Allowed {
		secs := int(math.Ceil(d.RetryAfter.Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
	}
}

func (h *TrackHandler) enqueue(r *http.Request, env *domain.Envelope, now time.Time) error {
	job := engine.Job{
		Kind:       engine.JobIngest,
		Envelope:   env,
		IPAddress:  clientIP(r),
		UserAgent:  r.UserAgent(),
		ReceivedAt: now,
	}
	if err := h.queue.Enqueue(r.Context(), job, now); err != nil {
		h.logger.Error("failed to enqueue event", "event_type", env.EventType, "visitor_id", env.VisitorID, "error", err)
		return err
	}
	return nil
}
