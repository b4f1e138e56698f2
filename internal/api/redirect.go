package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Priya8975/trackflow/internal/domain"
	"github.com/Priya8975/trackflow/internal/engine"
	"github.com/Priya8975/trackflow/internal/links"
	"github.com/Priya8975/trackflow/internal/tracker"
)

// VisitorCookie carries the visitor id on the collector's own domain.
const VisitorCookie = "tf_visitor"

type LinkResolver interface {
	GetLinkByCode(ctx context.Context, code string) (*domain.TrackedLink, error)
	RecordClick(ctx context.Context, c domain.LinkClick) error
}

// RedirectHandler serves tracked short links.
type RedirectHandler struct {
	links  LinkResolver
	queue  JobQueue
	logger *slog.Logger
	now    func() time.Time
}

func NewRedirectHandler(l LinkResolver, q JobQueue, logger *slog.Logger) *RedirectHandler {
	return &RedirectHandler{links: l, queue: q, logger: logger, now: time.Now}
}

func (h *RedirectHandler) Redirect(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	link, err := h.links.GetLinkByCode(r.Context(), code)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get link")
		return
	}
	if link == nil {
		respondError(w, http.StatusNotFound, "link not found")
		return
	}

	now := h.now()
	if link.EffectiveStatus(now) != domain.LinkActive {
		respondError(w, http.StatusGone, "link is no longer active")
		return
	}

	destination, err := links.BuildDestination(link.TargetURL, link.UTM, link.ShortCode, link.Campaign)
	if err != nil {
		h.logger.Error("bad link target", "short_code", code, "error", err)
		respondError(w, http.StatusInternalServerError, "invalid link target")
		return
	}

	visitor := r.URL.Query().Get("v")
	if c, err := r.Cookie(VisitorCookie); err == nil && c.Value != "" {
		visitor = c.Value
	}

	// a failed click record must not break the redirect
	click := domain.LinkClick{
		LinkID:    link.ID,
		VisitorID: visitor,
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
		Referrer:  r.Referer(),
		Browser:   tracker.BrowserFamily(r.UserAgent()),
		Device:    domain.DeviceType(r.UserAgent()),
		ClickedAt: now,
	}
	if err := h.links.RecordClick(r.Context(), click); err != nil {
		h.logger.Error("failed to record click", "short_code", code, "error", err)
	}

	if visitor != "" {
		h.enqueueClick(r, link, visitor, destination, now)
	}

	http.Redirect(w, r, destination, http.StatusFound)
}

func (h *RedirectHandler) enqueueClick(r *http.Request, link *domain.TrackedLink, visitor, destination string, now time.Time) {
	env := &domain.Envelope{
		EventType: domain.EventTrackedLinkClick,
		EventData: map[string]any{
			"link_id":     link.ShortCode,
			"campaign":    link.Campaign,
			"destination": destination,
		},
		VisitorID: visitor,
		Timestamp: now.UTC().Format(domain.TimestampLayout),
		Page: domain.PageContext{
			URL:      destination,
			Referrer: r.Referer(),
			UTM:      link.UTM,
		},
	}
	job := engine.Job{
		Kind:       engine.JobIngest,
		Envelope:   env,
		IPAddress:  clientIP(r),
		UserAgent:  r.UserAgent(),
		ReceivedAt: now,
	}
	if err := h.queue.Enqueue(r.Context(), job, now); err != nil {
		h.logger.Error("failed to enqueue link click", "short_code", link.ShortCode, "error", err)
	}
}
