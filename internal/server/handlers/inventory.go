// internal/server/handlers/inventory.go

package handlers

import (
	"context"
	"net/http"
)

// InventoryReader returns a user's per-kind collection totals.
type InventoryReader interface {
	Counts(ctx context.Context, userID string) (map[string]int, error)
}

// InventoryHandler handles collected item HTTP requests
type InventoryHandler struct {
	inventory InventoryReader
}

// NewInventoryHandler creates a new inventory handler
func NewInventoryHandler(inventory InventoryReader) *InventoryHandler {
	return &InventoryHandler{inventory: inventory}
}

// GetInventory returns the caller's collection totals
func (h *InventoryHandler) GetInventory(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	counts, err := h.inventory.Counts(r.Context(), userID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to load inventory", err)
		return
	}

	respondWithJSON(w, http.StatusOK, counts)
}
