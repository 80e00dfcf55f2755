package item

import (
	"time"

	"geochat/internal/domain/geo"
)

// Rarity tiers for roaming collectibles.
type Rarity string

const (
	RarityCommon Rarity = "common"
	RarityRare   Rarity = "rare"
	RarityUltra  Rarity = "ultra"
)

// Motion is the interpolation state of a roaming item. Position is lerped
// between From and To over Duration while Moving is set.
type Motion struct {
	Moving     bool          `json:"moving"`
	From       geo.Point     `json:"from"`
	To         geo.Point     `json:"to"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	NextMoveAt time.Time     `json:"next_move_at"`
}

// RoamingItem is a client-local collectible entity. It lives in the
// simulator's memory and a best-effort local cache, never the shared store.
type RoamingItem struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Rarity    Rarity    `json:"rarity"`
	Position  geo.Point `json:"position"`
	DespawnAt time.Time `json:"despawn_at"`
	Motion    Motion    `json:"motion"`
}
