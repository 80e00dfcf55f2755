// internal/server/handlers/zone.go

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

// ZoneStore is the persistence the zone handler works against.
type ZoneStore interface {
	SaveZone(ctx context.Context, z world.Zone) error
	GetZone(ctx context.Context, id string) (*world.Zone, error)
	DeleteZone(ctx context.Context, id string) error
}

// ZoneFeedCleaner removes a deleted zone's feed.
type ZoneFeedCleaner interface {
	DeleteFeed(ctx context.Context, feedID string) error
}

// ZoneHandler handles zone-related HTTP requests
type ZoneHandler struct {
	zones    ZoneStore
	feeds    ZoneFeedCleaner
	lifetime time.Duration
	notify   func(subject string)
}

// NewZoneHandler creates a new zone handler. lifetime is the expiry stamped
// on zones created without an explicit one.
func NewZoneHandler(zones ZoneStore, feeds ZoneFeedCleaner, lifetime time.Duration, notify func(subject string)) *ZoneHandler {
	return &ZoneHandler{
		zones:    zones,
		feeds:    feeds,
		lifetime: lifetime,
		notify:   notify,
	}
}

// CreateZone creates a new chat zone
func (h *ZoneHandler) CreateZone(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	type createZoneRequest struct {
		Name         string     `json:"name"`
		Center       geo.Point  `json:"center"`
		RadiusMeters float64    `json:"radius_meters"`
		ExpiresAt    *time.Time `json:"expires_at"`
	}

	var req createZoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" || req.RadiusMeters <= 0 {
		respondWithError(w, http.StatusBadRequest, "Missing zone name or radius", nil)
		return
	}

	now := time.Now()
	expiresAt := req.ExpiresAt
	if expiresAt == nil {
		// Zones are ephemeral: without an explicit expiry the default
		// lifetime applies, so every zone is eventually reclaimed.
		t := now.Add(h.lifetime)
		expiresAt = &t
	}

	z := world.Zone{
		ID:           uuid.New().String(),
		Name:         req.Name,
		Center:       req.Center,
		RadiusMeters: req.RadiusMeters,
		Geohash:      geo.EncodeHash(req.Center),
		CreatorID:    userID,
		CreatedAt:    now,
		ExpiresAt:    expiresAt,
	}

	if err := h.zones.SaveZone(r.Context(), z); err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to create zone", err)
		return
	}

	h.notify("geo.zones.changed")
	respondWithJSON(w, http.StatusCreated, z)
}

// GetZone returns a specific zone by ID
func (h *ZoneHandler) GetZone(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondWithError(w, http.StatusBadRequest, "Missing zone ID", nil)
		return
	}

	z, err := h.zones.GetZone(r.Context(), id)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get zone", err)
		return
	}
	if z == nil {
		respondWithError(w, http.StatusNotFound, "Zone not found", nil)
		return
	}

	respondWithJSON(w, http.StatusOK, z)
}

// DeleteZone removes a zone and its feed. Only the creator may delete.
func (h *ZoneHandler) DeleteZone(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		respondWithError(w, http.StatusBadRequest, "Missing zone ID", nil)
		return
	}

	z, err := h.zones.GetZone(r.Context(), id)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get zone", err)
		return
	}
	if z == nil {
		respondWithError(w, http.StatusNotFound, "Zone not found", nil)
		return
	}
	if z.CreatorID != userID {
		respondWithError(w, http.StatusForbidden, "Only the creator can delete a zone", nil)
		return
	}

	if err := h.zones.DeleteZone(r.Context(), id); err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to delete zone", err)
		return
	}
	if err := h.feeds.DeleteFeed(r.Context(), id); err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to delete zone feed", err)
		return
	}

	h.notify("geo.zones.changed")
	respondWithJSON(w, http.StatusOK, map[string]string{"deleted": id})
}
