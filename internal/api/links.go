package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Priya8975/trackflow/internal/domain"
	"github.com/Priya8975/trackflow/internal/links"
)

type LinkStore interface {
	CreateLink(ctx context.Context, shortCode string, req domain.CreateLinkRequest) (*domain.TrackedLink, error)
	ShortCodeExists(ctx context.Context, code string) (bool, error)
	GetLinkByCode(ctx context.Context, code string) (*domain.TrackedLink, error)
	ListLinks(ctx context.Context, campaign string) ([]domain.TrackedLink, error)
	SetLinkStatus(ctx context.Context, code, status string) (*domain.TrackedLink, error)
}

type LinkHandler struct {
	store      LinkStore
	baseURL    string
	codeLength int
}

func NewLinkHandler(s LinkStore, baseURL string, codeLength int) *LinkHandler {
	return &LinkHandler{store: s, baseURL: baseURL, codeLength: codeLength}
}

func (h *LinkHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.TargetURL == "" {
		respondError(w, http.StatusBadRequest, "target_url is required")
		return
	}
	if err := links.ValidateTarget(req.TargetURL); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	code, err := links.UniqueShortCode(r.Context(), h.codeLength, h.store.ShortCodeExists)
	if err != nil {
		if errors.Is(err, links.ErrCodeExhausted) {
			respondError(w, http.StatusServiceUnavailable, "could not allocate a short code")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to generate short code")
		return
	}

	link, err := h.store.CreateLink(r.Context(), code, req)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create link")
		return
	}

	respondJSON(w, http.StatusCreated, domain.CreateLinkResponse{
		ID:        link.ID,
		ShortCode: link.ShortCode,
		ShortURL:  links.ShortURL(h.baseURL, link.ShortCode),
	})
}

func (h *LinkHandler) List(w http.ResponseWriter, r *http.Request) {
	result, err := h.store.ListLinks(r.Context(), r.URL.Query().Get("campaign"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list links")
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (h *LinkHandler) Get(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	link, err := h.store.GetLinkByCode(r.Context(), code)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get link")
		return
	}
	if link == nil {
		respondError(w, http.StatusNotFound, "link not found")
		return
	}

	respondJSON(w, http.StatusOK, link)
}

type updateLinkRequest struct {
	Status string `json:"status"`
}

// Update pauses or reactivates a link. Expired is derived from expires_at
// and cannot be set.
func (h *LinkHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var status string
	switch strings.ToLower(strings.TrimSpace(req.Status)) {
	case "active":
		status = domain.LinkActive
	case "paused":
		status = domain.LinkPaused
	default:
		respondError(w, http.StatusBadRequest, "status must be Active or Paused")
		return
	}

	link, err := h.store.SetLinkStatus(r.Context(), chi.URLParam(r, "code"), status)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update link")
		return
	}
	if link == nil {
		respondError(w, http.StatusNotFound, "link not found")
		return
	}

	respondJSON(w, http.StatusOK, link)
}

// QRCode serves a PNG QR code pointing at the link's short URL. The optional
// size parameter is the image side in pixels.
func (h *LinkHandler) QRCode(w http.ResponseWriter, r *http.Request) {
	size := 0
	if raw := r.URL.Query().Get("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "size must be a positive integer")
			return
		}
		size = n
	}

	code := chi.URLParam(r, "code")
	link, err := h.store.GetLinkByCode(r.Context(), code)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get link")
		return
	}
	if link == nil {
		respondError(w, http.StatusNotFound, "link not found")
		return
	}

	png, err := links.QRCode(links.ShortURL(h.baseURL, link.ShortCode), size)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to render qr code")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}
