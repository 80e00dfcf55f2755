package feedcap

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/pixil98/go-testutil"
	"github.com/sirupsen/logrus"

	"geochat/internal/domain/feed"
)

func testLog() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

type memFeedStore struct {
	mu    sync.Mutex
	posts map[string][]feed.Post
}

func newMemFeedStore() *memFeedStore {
	return &memFeedStore{posts: make(map[string][]feed.Post)}
}

func (s *memFeedStore) Insert(_ context.Context, p feed.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts[p.FeedID] = append(s.posts[p.FeedID], p)
	return nil
}

func (s *memFeedStore) Count(_ context.Context, feedID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.posts[feedID]), nil
}

func (s *memFeedStore) Oldest(_ context.Context, feedID string) (*feed.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var oldest *feed.Post
	for i := range s.posts[feedID] {
		p := s.posts[feedID][i]
		if oldest == nil || p.CreatedAt.Before(oldest.CreatedAt) {
			oldest = &p
		}
	}
	return oldest, nil
}

func (s *memFeedStore) DeletePostAndComments(_ context.Context, feedID, postID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	posts := s.posts[feedID]
	for i, p := range posts {
		if p.ID == postID {
			s.posts[feedID] = append(posts[:i], posts[i+1:]...)
			break
		}
	}
	return nil
}

func (s *memFeedStore) ids(feedID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, p := range s.posts[feedID] {
		out = append(out, p.ID)
	}
	return out
}

func post(id string, at time.Time) feed.Post {
	return feed.Post{ID: id, FeedID: "zone-1", AuthorID: "alice", Text: "p", CreatedAt: at}
}

func TestEnforceCapEvictsOldest(t *testing.T) {
	store := newMemFeedStore()
	evictor := NewEvictor(store, 3, testLog())
	ctx := context.Background()
	base := time.Now()

	for i := 1; i <= 4; i++ {
		store.Insert(ctx, post(fmt.Sprintf("p%d", i), base.Add(time.Duration(i)*time.Second)))
	}

	if err := evictor.EnforceCap(ctx, "zone-1"); err != nil {
		t.Fatalf("EnforceCap failed: %v", err)
	}

	ids := store.ids("zone-1")
	testutil.AssertEqual(t, "remaining count", len(ids), 3)
	for _, id := range ids {
		if id == "p1" {
			t.Fatal("oldest post should have been evicted")
		}
	}
}

func TestEnforceCapUnderCapIsNoop(t *testing.T) {
	store := newMemFeedStore()
	evictor := NewEvictor(store, 3, testLog())
	ctx := context.Background()

	store.Insert(ctx, post("p1", time.Now()))

	if err := evictor.EnforceCap(ctx, "zone-1"); err != nil {
		t.Fatalf("EnforceCap failed: %v", err)
	}
	testutil.AssertEqual(t, "nothing evicted", len(store.ids("zone-1")), 1)
}

// One admission evicts at most one post, even when the feed is far over
// its cap; sustained overflow drains across later admissions.
func TestEnforceCapEvictsExactlyOne(t *testing.T) {
	store := newMemFeedStore()
	evictor := NewEvictor(store, 2, testLog())
	ctx := context.Background()
	base := time.Now()

	for i := 1; i <= 5; i++ {
		store.Insert(ctx, post(fmt.Sprintf("p%d", i), base.Add(time.Duration(i)*time.Second)))
	}

	if err := evictor.EnforceCap(ctx, "zone-1"); err != nil {
		t.Fatalf("EnforceCap failed: %v", err)
	}
	testutil.AssertEqual(t, "single eviction", len(store.ids("zone-1")), 4)
}

func TestAdmitKeepsFeedAtCap(t *testing.T) {
	store := newMemFeedStore()
	evictor := NewEvictor(store, 3, testLog())
	ctx := context.Background()
	base := time.Now()

	for i := 1; i <= 4; i++ {
		if err := evictor.Admit(ctx, post(fmt.Sprintf("p%d", i), base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("Admit failed: %v", err)
		}
	}

	// Eviction trails the admission asynchronously.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(store.ids("zone-1")) == 3 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	ids := store.ids("zone-1")
	testutil.AssertEqual(t, "capped", len(ids), 3)
	expected := map[string]bool{"p2": true, "p3": true, "p4": true}
	for _, id := range ids {
		if !expected[id] {
			t.Fatalf("unexpected survivor %s", id)
		}
	}
}
