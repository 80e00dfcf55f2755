package world

import (
	"time"

	"geochat/internal/domain/geo"
)

// Zone is a circular chat geofence. Immutable once created; removed only by
// explicit deletion or the cleanup pass.
type Zone struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Center       geo.Point  `json:"center"`
	RadiusMeters float64    `json:"radius_meters"`
	Geohash      string     `json:"geohash"`
	CreatorID    string     `json:"creator_id"`
	CreatedAt    time.Time  `json:"created_at"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// Contains reports whether p is inside the zone, extended by bufferMeters.
// The exit buffer keeps users on the boundary from flapping in and out.
func (z Zone) Contains(p geo.Point, bufferMeters float64) bool {
	return geo.DistanceMeters(p, z.Center) <= z.RadiusMeters+bufferMeters
}

// DocID implements livequery.Document.
func (z Zone) DocID() string { return z.ID }

// Location implements livequery.Document.
func (z Zone) Location() geo.Point { return z.Center }

// CreatedTime implements livequery.Document.
func (z Zone) CreatedTime() time.Time { return z.CreatedAt }

// ExpiryTime implements livequery.Document.
func (z Zone) ExpiryTime() *time.Time { return z.ExpiresAt }
