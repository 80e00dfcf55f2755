package feedcap

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"geochat/internal/domain/feed"
)

// Store is the post persistence the evictor works against.
type Store interface {
	Insert(ctx context.Context, post feed.Post) error
	Count(ctx context.Context, feedID string) (int, error)
	Oldest(ctx context.Context, feedID string) (*feed.Post, error)
	DeletePostAndComments(ctx context.Context, feedID, postID string) error
}

// Evictor keeps each zone feed at a bounded size by removing the single
// oldest post, together with its comments, whenever an admission pushes
// the feed over its cap.
type Evictor struct {
	store Store
	cap   int
	log   *logrus.Entry
}

// NewEvictor creates an evictor with the given cap per feed.
func NewEvictor(store Store, cap int, log *logrus.Entry) *Evictor {
	return &Evictor{store: store, cap: cap, log: log}
}

// Admit inserts the post and then enforces the cap in the background. The
// new post is admitted unconditionally; eviction is cleanup that trails
// the admission rather than a gate in front of it.
func (e *Evictor) Admit(ctx context.Context, post feed.Post) error {
	if err := e.store.Insert(ctx, post); err != nil {
		return fmt.Errorf("error inserting post: %w", err)
	}

	go func() {
		evictCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.EnforceCap(evictCtx, post.FeedID); err != nil {
			e.log.WithError(err).WithField("feed", post.FeedID).
				Warn("error enforcing feed cap")
		}
	}()

	return nil
}

// EnforceCap removes the single oldest post when the feed is over its cap.
// One admission triggers at most one eviction; sustained overflow drains
// across subsequent admissions.
func (e *Evictor) EnforceCap(ctx context.Context, feedID string) error {
	count, err := e.store.Count(ctx, feedID)
	if err != nil {
		return fmt.Errorf("error counting posts: %w", err)
	}
	if count <= e.cap {
		return nil
	}

	oldest, err := e.store.Oldest(ctx, feedID)
	if err != nil {
		return fmt.Errorf("error finding oldest post: %w", err)
	}
	if oldest == nil {
		return nil
	}

	if err := e.store.DeletePostAndComments(ctx, feedID, oldest.ID); err != nil {
		return fmt.Errorf("error evicting post: %w", err)
	}

	e.log.WithFields(logrus.Fields{
		"feed": feedID,
		"post": oldest.ID,
	}).Debug("evicted oldest post")
	return nil
}
