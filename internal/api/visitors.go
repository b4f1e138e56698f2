package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Priya8975/trackflow/internal/domain"
)

type VisitorStore interface {
	GetVisitor(ctx context.Context, id string) (*domain.Visitor, error)
	ListSessions(ctx context.Context, visitorID string) ([]domain.Session, error)
	VisitorJourney(ctx context.Context, visitorID string, since time.Time) ([]domain.Event, error)
}

type VisitorHandler struct {
	store VisitorStore
	now   func() time.Time
}

func NewVisitorHandler(s VisitorStore) *VisitorHandler {
	return &VisitorHandler{store: s, now: time.Now}
}

type visitorDetail struct {
	domain.Visitor
	Sessions []domain.Session `json:"sessions"`
}

func (h *VisitorHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	visitor, err := h.store.GetVisitor(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get visitor")
		return
	}
	if visitor == nil {
		respondError(w, http.StatusNotFound, "visitor not found")
		return
	}

	sessions, err := h.store.ListSessions(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get sessions")
		return
	}

	respondJSON(w, http.StatusOK, visitorDetail{Visitor: *visitor, Sessions: sessions})
}

// Journey returns the visitor's events in order. The optional days query
// parameter limits how far back to look.
func (h *VisitorHandler) Journey(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var since time.Time
	if s := r.URL.Query().Get("days"); s != "" {
		days, err := strconv.Atoi(s)
		if err != nil || days <= 0 {
			respondError(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		since = h.now().AddDate(0, 0, -days)
	}

	events, err := h.store.VisitorJourney(r.Context(), id, since)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get journey")
		return
	}

	respondJSON(w, http.StatusOK, events)
}
