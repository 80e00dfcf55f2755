package livequery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"geochat/internal/domain/geo"
)

const defaultQueryTimeout = 10 * time.Second

// ViewConfig describes one live covering query.
type ViewConfig struct {
	// Subject is the change-feed subject invalidating this collection.
	Subject string

	Center       geo.Point
	RadiusMeters float64

	// Lifetime is the implicit TTL for documents without an explicit expiry.
	Lifetime time.Duration

	QueryTimeout time.Duration
}

// View maintains one live subscription per covering range and republishes
// the merged, filtered result whenever any constituent snapshot changes.
type View struct {
	querier  RangeQuerier
	feed     ChangeFeed
	cfg      ViewConfig
	onUpdate func([]Document)
	log      *logrus.Entry
	now      func() time.Time

	mu        sync.Mutex
	snapshots map[int][]Document
	subs      []Subscription
	closed    bool
}

// OpenView establishes the covering-range subscriptions for cfg and begins
// delivering merged snapshots to onUpdate. A failed initial query on one
// range does not fail the view: the merger serves whatever ranges it has.
func OpenView(
	querier RangeQuerier,
	feed ChangeFeed,
	cfg ViewConfig,
	onUpdate func([]Document),
	log *logrus.Entry,
) (*View, error) {
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = defaultQueryTimeout
	}

	v := &View{
		querier:   querier,
		feed:      feed,
		cfg:       cfg,
		onUpdate:  onUpdate,
		log:       log,
		now:       time.Now,
		snapshots: make(map[int][]Document),
	}

	ranges := geo.CoveringRanges(cfg.Center, cfg.RadiusMeters)
	for i, r := range ranges {
		index, rng := i, r

		sub, err := feed.Subscribe(cfg.Subject, func() {
			v.refresh(index, rng)
		})
		if err != nil {
			v.Close()
			return nil, fmt.Errorf("error subscribing to %s: %w", cfg.Subject, err)
		}

		v.mu.Lock()
		v.subs = append(v.subs, sub)
		v.mu.Unlock()

		go v.refresh(index, rng)
	}

	return v, nil
}

// Current returns the merged view as of now.
func (v *View) Current() []Document {
	v.mu.Lock()
	defer v.mu.Unlock()
	return Merge(v.snapshots, v.cfg.Center, v.cfg.RadiusMeters, v.cfg.Lifetime, v.now())
}

// Close synchronously unsubscribes every covering-range subscription. No
// update is delivered after Close returns, so a replacement view cannot race
// stale snapshots from this one.
func (v *View) Close() {
	v.mu.Lock()
	v.closed = true
	subs := v.subs
	v.subs = nil
	v.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			v.log.WithError(err).Warn("error unsubscribing range listener")
		}
	}
}

// refresh re-runs the snapshot query for one covering range and republishes
// the merged view. Query errors are logged and the range's previous snapshot
// keeps serving: partial availability beats total failure.
func (v *View) refresh(index int, rng geo.HashRange) {
	ctx, cancel := context.WithTimeout(context.Background(), v.cfg.QueryTimeout)
	defer cancel()

	docs, err := v.querier.QueryRange(ctx, rng.Start, rng.End)
	if err != nil {
		v.log.WithError(err).WithFields(logrus.Fields{
			"subject": v.cfg.Subject,
			"start":   rng.Start,
			"end":     rng.End,
		}).Warn("covering-range query failed")
		return
	}

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.snapshots[index] = docs
	merged := Merge(v.snapshots, v.cfg.Center, v.cfg.RadiusMeters, v.cfg.Lifetime, v.now())
	v.mu.Unlock()

	v.onUpdate(merged)
}
