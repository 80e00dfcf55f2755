// internal/adapter/storage/feed_store.go

package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"geochat/internal/domain/feed"
)

// FeedStore implements storage for zone feed posts and comments.
type FeedStore struct {
	db *pgxpool.Pool
}

// NewFeedStore creates a new feed store.
func NewFeedStore(db *pgxpool.Pool) *FeedStore {
	return &FeedStore{db: db}
}

// Insert adds a post to its feed.
func (s *FeedStore) Insert(ctx context.Context, p feed.Post) error {
	query := `
		INSERT INTO posts (id, feed_id, author_id, author_name, text, likes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.db.Exec(ctx, query, p.ID, p.FeedID, p.AuthorID, p.AuthorName, p.Text, p.Likes, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("error executing query: %w", err)
	}
	return nil
}

// List returns a feed's posts, newest first.
func (s *FeedStore) List(ctx context.Context, feedID string) ([]feed.Post, error) {
	query := `
		SELECT id, feed_id, author_id, author_name, text, likes, created_at
		FROM posts
		WHERE feed_id = $1
		ORDER BY created_at DESC, id DESC
	`

	rows, err := s.db.Query(ctx, query, feedID)
	if err != nil {
		return nil, fmt.Errorf("error executing query: %w", err)
	}
	defer rows.Close()

	var posts []feed.Post
	for rows.Next() {
		var p feed.Post
		if err := rows.Scan(&p.ID, &p.FeedID, &p.AuthorID, &p.AuthorName, &p.Text, &p.Likes, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning post: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating posts: %w", err)
	}

	return posts, nil
}

// Count returns the number of posts currently in the feed.
func (s *FeedStore) Count(ctx context.Context, feedID string) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM posts WHERE feed_id = $1`, feedID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("error counting posts: %w", err)
	}
	return count, nil
}

// Oldest returns the feed's oldest post, or nil for an empty feed. Ties on
// timestamp break on id so eviction is deterministic.
func (s *FeedStore) Oldest(ctx context.Context, feedID string) (*feed.Post, error) {
	query := `
		SELECT id, feed_id, author_id, author_name, text, likes, created_at
		FROM posts
		WHERE feed_id = $1
		ORDER BY created_at ASC, id ASC
		LIMIT 1
	`

	var p feed.Post
	err := s.db.QueryRow(ctx, query, feedID).Scan(
		&p.ID, &p.FeedID, &p.AuthorID, &p.AuthorName, &p.Text, &p.Likes, &p.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying oldest post: %w", err)
	}

	return &p, nil
}

// DeletePostAndComments removes a post together with its comment thread.
func (s *FeedStore) DeletePostAndComments(ctx context.Context, feedID, postID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM comments WHERE post_id = $1`, postID); err != nil {
		return fmt.Errorf("error deleting comments: %w", err)
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM posts WHERE feed_id = $1 AND id = $2`, feedID, postID); err != nil {
		return fmt.Errorf("error deleting post: %w", err)
	}
	return nil
}

// DeleteFeed removes every post and comment belonging to a feed.
func (s *FeedStore) DeleteFeed(ctx context.Context, feedID string) error {
	query := `
		DELETE FROM comments
		WHERE post_id IN (SELECT id FROM posts WHERE feed_id = $1)
	`
	if _, err := s.db.Exec(ctx, query, feedID); err != nil {
		return fmt.Errorf("error deleting comments: %w", err)
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM posts WHERE feed_id = $1`, feedID); err != nil {
		return fmt.Errorf("error deleting posts: %w", err)
	}
	return nil
}

// LikePost appends a user to a post's like list, once per user.
func (s *FeedStore) LikePost(ctx context.Context, postID, userID string) error {
	query := `
		UPDATE posts
		SET likes = array_append(likes, $2)
		WHERE id = $1 AND NOT ($2 = ANY(likes))
	`

	if _, err := s.db.Exec(ctx, query, postID, userID); err != nil {
		return fmt.Errorf("error liking post: %w", err)
	}
	return nil
}

// InsertComment adds a comment to a post.
func (s *FeedStore) InsertComment(ctx context.Context, c feed.Comment) error {
	query := `
		INSERT INTO comments (id, post_id, author_id, author_name, text, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.db.Exec(ctx, query, c.ID, c.PostID, c.AuthorID, c.AuthorName, c.Text, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("error executing query: %w", err)
	}
	return nil
}

// ListComments returns a post's comments, oldest first.
func (s *FeedStore) ListComments(ctx context.Context, postID string) ([]feed.Comment, error) {
	query := `
		SELECT id, post_id, author_id, author_name, text, created_at
		FROM comments
		WHERE post_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.db.Query(ctx, query, postID)
	if err != nil {
		return nil, fmt.Errorf("error executing query: %w", err)
	}
	defer rows.Close()

	var comments []feed.Comment
	for rows.Next() {
		var c feed.Comment
		if err := rows.Scan(&c.ID, &c.PostID, &c.AuthorID, &c.AuthorName, &c.Text, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning comment: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating comments: %w", err)
	}

	return comments, nil
}
