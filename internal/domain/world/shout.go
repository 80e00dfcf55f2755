package world

import (
	"time"

	"geochat/internal/domain/geo"
)

// Shout is a broadcast post anchored to the position it was shouted from.
type Shout struct {
	ID         string     `json:"id"`
	Text       string     `json:"text"`
	Position   geo.Point  `json:"position"`
	Geohash    string     `json:"geohash"`
	UserID     string     `json:"user_id"`
	UserName   string     `json:"user_name"`
	EmojiStyle string     `json:"emoji_style,omitempty"`
	IsPinned   bool       `json:"is_pinned"`
	Likes      []string   `json:"likes"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// DocID implements livequery.Document.
func (s Shout) DocID() string { return s.ID }

// Location implements livequery.Document.
func (s Shout) Location() geo.Point { return s.Position }

// CreatedTime implements livequery.Document.
func (s Shout) CreatedTime() time.Time { return s.CreatedAt }

// ExpiryTime implements livequery.Document.
func (s Shout) ExpiryTime() *time.Time { return s.ExpiresAt }
