// internal/server/handlers/shout.go

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"geochat/internal/domain/geo"
	"geochat/internal/domain/world"
)

// ShoutStore is the persistence the shout handler works against.
type ShoutStore interface {
	SaveShout(ctx context.Context, s world.Shout) error
	GetShout(ctx context.Context, id string) (*world.Shout, error)
	Like(ctx context.Context, id, userID string) error
	Unlike(ctx context.Context, id, userID string) error
	DeleteShout(ctx context.Context, id string) error
}

// ShoutHandler handles shout-related HTTP requests
type ShoutHandler struct {
	shouts   ShoutStore
	lifetime time.Duration
	notify   func(subject string)
}

// NewShoutHandler creates a new shout handler. lifetime is the implicit
// TTL stamped on shouts that carry no explicit expiry.
func NewShoutHandler(shouts ShoutStore, lifetime time.Duration, notify func(subject string)) *ShoutHandler {
	return &ShoutHandler{
		shouts:   shouts,
		lifetime: lifetime,
		notify:   notify,
	}
}

// CreateShout publishes a shout anchored at the caller's position
func (h *ShoutHandler) CreateShout(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	type createShoutRequest struct {
		Text       string    `json:"text"`
		Position   geo.Point `json:"position"`
		EmojiStyle string    `json:"emoji_style"`
		IsPinned   bool      `json:"is_pinned"`
	}

	var req createShoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Text == "" {
		respondWithError(w, http.StatusBadRequest, "Missing shout text", nil)
		return
	}

	now := time.Now()
	sh := world.Shout{
		ID:         uuid.New().String(),
		Text:       req.Text,
		Position:   req.Position,
		Geohash:    geo.EncodeHash(req.Position),
		UserID:     userID,
		UserName:   userName(r),
		EmojiStyle: req.EmojiStyle,
		IsPinned:   req.IsPinned,
		Likes:      []string{},
		CreatedAt:  now,
	}
	if !sh.IsPinned && h.lifetime > 0 {
		expiry := now.Add(h.lifetime)
		sh.ExpiresAt = &expiry
	}

	if err := h.shouts.SaveShout(r.Context(), sh); err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to create shout", err)
		return
	}

	h.notify("geo.shouts.changed")
	respondWithJSON(w, http.StatusCreated, sh)
}

// LikeShout records a like, once per user
func (h *ShoutHandler) LikeShout(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		respondWithError(w, http.StatusBadRequest, "Missing shout ID", nil)
		return
	}

	if err := h.shouts.Like(r.Context(), id, userID); err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to like shout", err)
		return
	}

	h.notify("geo.shouts.changed")
	respondWithJSON(w, http.StatusOK, map[string]string{"liked": id})
}

// UnlikeShout removes a like
func (h *ShoutHandler) UnlikeShout(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		respondWithError(w, http.StatusBadRequest, "Missing shout ID", nil)
		return
	}

	if err := h.shouts.Unlike(r.Context(), id, userID); err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to unlike shout", err)
		return
	}

	h.notify("geo.shouts.changed")
	respondWithJSON(w, http.StatusOK, map[string]string{"unliked": id})
}

// DeleteShout removes a shout. Only the author may delete.
func (h *ShoutHandler) DeleteShout(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		respondWithError(w, http.StatusBadRequest, "Missing shout ID", nil)
		return
	}

	sh, err := h.shouts.GetShout(r.Context(), id)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get shout", err)
		return
	}
	if sh == nil {
		respondWithError(w, http.StatusNotFound, "Shout not found", nil)
		return
	}
	if sh.UserID != userID {
		respondWithError(w, http.StatusForbidden, "Only the author can delete a shout", nil)
		return
	}

	if err := h.shouts.DeleteShout(r.Context(), id); err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to delete shout", err)
		return
	}

	h.notify("geo.shouts.changed")
	respondWithJSON(w, http.StatusOK, map[string]string{"deleted": id})
}
