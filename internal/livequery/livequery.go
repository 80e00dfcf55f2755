package livequery

import (
	"context"
	"time"

	"geochat/internal/domain/geo"
)

// Document is any store-resident record that participates in proximity
// queries. Its geohash is computed once at write time from Location.
type Document interface {
	DocID() string
	Location() geo.Point
	CreatedTime() time.Time
	ExpiryTime() *time.Time
}

// RangeQuerier runs a snapshot query over a contiguous geohash key range,
// in store-assigned order.
type RangeQuerier interface {
	QueryRange(ctx context.Context, start, end string) ([]Document, error)
}

// Subscription is a live change-feed registration.
type Subscription interface {
	Unsubscribe() error
}

// ChangeFeed delivers coarse invalidation signals for a subject. A signal
// means "re-run your query", not "here is the delta" — the snapshot query is
// the source of truth.
type ChangeFeed interface {
	Subscribe(subject string, fn func()) (Subscription, error)
}
