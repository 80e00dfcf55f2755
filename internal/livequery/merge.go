package livequery

import (
	"sort"
	"time"

	"geochat/internal/domain/geo"
)

// Merge reduces the per-range snapshots of a covering query into a single
// view: deduplicated by id, filtered by exact distance (covering ranges are
// over-inclusive) and by TTL, sorted newest-first.
//
// lifetime is the implicit TTL applied when a document carries no explicit
// expiry; zero means documents without an expiry never age out. Expiry here
// only filters the view — physical deletion is the cleanup pass's job.
func Merge(
	snapshots map[int][]Document,
	center geo.Point,
	radiusMeters float64,
	lifetime time.Duration,
	now time.Time,
) []Document {
	seen := make(map[string]struct{})
	var merged []Document

	for _, docs := range snapshots {
		for _, doc := range docs {
			if _, ok := seen[doc.DocID()]; ok {
				continue
			}
			if geo.DistanceMeters(doc.Location(), center) > radiusMeters {
				continue
			}
			if expired(doc, lifetime, now) {
				continue
			}
			seen[doc.DocID()] = struct{}{}
			merged = append(merged, doc)
		}
	}

	sort.Slice(merged, func(i, j int) bool {
		return merged[i].CreatedTime().After(merged[j].CreatedTime())
	})

	return merged
}

func expired(doc Document, lifetime time.Duration, now time.Time) bool {
	if exp := doc.ExpiryTime(); exp != nil {
		return now.After(*exp)
	}
	if lifetime > 0 {
		return now.After(doc.CreatedTime().Add(lifetime))
	}
	return false
}
