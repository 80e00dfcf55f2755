package livequery

import (
	"testing"
	"time"

	"github.com/pixil98/go-testutil"

	"geochat/internal/domain/geo"
)

type fakeDoc struct {
	id      string
	loc     geo.Point
	created time.Time
	expires *time.Time
}

func (d fakeDoc) DocID() string          { return d.id }
func (d fakeDoc) Location() geo.Point    { return d.loc }
func (d fakeDoc) CreatedTime() time.Time { return d.created }
func (d fakeDoc) ExpiryTime() *time.Time { return d.expires }

var mergeCenter = geo.Point{Lat: 37.7749, Lng: -122.4194}

func TestMergeDeduplicatesAcrossRanges(t *testing.T) {
	now := time.Now()
	doc := fakeDoc{id: "a", loc: mergeCenter, created: now}

	merged := Merge(map[int][]Document{
		0: {doc},
		1: {doc},
	}, mergeCenter, 1000, 0, now)

	testutil.AssertEqual(t, "merged count", len(merged), 1)
}

func TestMergeFiltersByExactDistance(t *testing.T) {
	now := time.Now()
	inside := fakeDoc{id: "in", loc: geo.PointAtBearing(mergeCenter, 500, 1), created: now}
	outside := fakeDoc{id: "out", loc: geo.PointAtBearing(mergeCenter, 1500, 1), created: now}

	merged := Merge(map[int][]Document{
		0: {inside, outside},
	}, mergeCenter, 1000, 0, now)

	testutil.AssertEqual(t, "merged count", len(merged), 1)
	testutil.AssertEqual(t, "survivor", merged[0].DocID(), "in")
}

func TestMergeFiltersExplicitExpiry(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	merged := Merge(map[int][]Document{
		0: {
			fakeDoc{id: "dead", loc: mergeCenter, created: now.Add(-time.Hour), expires: &past},
			fakeDoc{id: "live", loc: mergeCenter, created: now.Add(-time.Hour), expires: &future},
		},
	}, mergeCenter, 1000, 0, now)

	testutil.AssertEqual(t, "merged count", len(merged), 1)
	testutil.AssertEqual(t, "survivor", merged[0].DocID(), "live")
}

func TestMergeAppliesImplicitLifetime(t *testing.T) {
	now := time.Now()

	merged := Merge(map[int][]Document{
		0: {
			fakeDoc{id: "old", loc: mergeCenter, created: now.Add(-2 * time.Hour)},
			fakeDoc{id: "fresh", loc: mergeCenter, created: now.Add(-30 * time.Minute)},
		},
	}, mergeCenter, 1000, time.Hour, now)

	testutil.AssertEqual(t, "merged count", len(merged), 1)
	testutil.AssertEqual(t, "survivor", merged[0].DocID(), "fresh")
}

// A document with no expiry and no configured lifetime never ages out. An
// explicit expiry always wins over the implicit lifetime.
func TestMergeExpiryPrecedence(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Minute)

	merged := Merge(map[int][]Document{
		0: {
			// Older than the lifetime but explicitly still valid.
			fakeDoc{id: "explicit", loc: mergeCenter, created: now.Add(-3 * time.Hour), expires: &future},
			fakeDoc{id: "aged-out", loc: mergeCenter, created: now.Add(-3 * time.Hour)},
		},
	}, mergeCenter, 1000, time.Hour, now)

	testutil.AssertEqual(t, "merged count", len(merged), 1)
	testutil.AssertEqual(t, "survivor", merged[0].DocID(), "explicit")

	merged = Merge(map[int][]Document{
		0: {fakeDoc{id: "eternal", loc: mergeCenter, created: now.Add(-1000 * time.Hour)}},
	}, mergeCenter, 1000, 0, now)
	testutil.AssertEqual(t, "no lifetime", len(merged), 1)
}

func TestMergeSortsNewestFirst(t *testing.T) {
	now := time.Now()

	merged := Merge(map[int][]Document{
		0: {fakeDoc{id: "mid", loc: mergeCenter, created: now.Add(-2 * time.Minute)}},
		1: {fakeDoc{id: "new", loc: mergeCenter, created: now.Add(-time.Minute)}},
		2: {fakeDoc{id: "old", loc: mergeCenter, created: now.Add(-3 * time.Minute)}},
	}, mergeCenter, 1000, 0, now)

	testutil.AssertEqual(t, "merged count", len(merged), 3)
	testutil.AssertEqual(t, "first", merged[0].DocID(), "new")
	testutil.AssertEqual(t, "second", merged[1].DocID(), "mid")
	testutil.AssertEqual(t, "third", merged[2].DocID(), "old")
}
