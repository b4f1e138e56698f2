package api

import (
	"context"
	"net/http"

	"github.com/Priya8975/trackflow/internal/domain"
)

type EventLister interface {
	ListEvents(ctx context.Context, f domain.EventFilter) ([]domain.Event, error)
}

type EventHandler struct {
	store EventLister
}

func NewEventHandler(s EventLister) *EventHandler {
	return &EventHandler{store: s}
}

func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := domain.EventFilter{
		EventType: domain.EventType(q.Get("event_type")),
		VisitorID: q.Get("visitor_id"),
		Limit:     queryLimit(r, 50, 500),
	}
	if filter.EventType != "" && !filter.EventType.Valid() {
		respondError(w, http.StatusBadRequest, "unknown event_type")
		return
	}

	events, err := h.store.ListEvents(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	respondJSON(w, http.StatusOK, events)
}
