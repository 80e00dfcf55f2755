// internal/adapter/storage/shout_store.go

package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"geochat/internal/domain/world"
	"geochat/internal/livequery"
)

// ShoutStore implements storage for public shouts.
type ShoutStore struct {
	db *pgxpool.Pool
}

// NewShoutStore creates a new shout store.
func NewShoutStore(db *pgxpool.Pool) *ShoutStore {
	return &ShoutStore{db: db}
}

// SaveShout inserts a shout.
func (s *ShoutStore) SaveShout(ctx context.Context, sh world.Shout) error {
	query := `
		INSERT INTO shouts (
			id, text, lat, lng, geohash, user_id, user_name, emoji_style,
			is_pinned, likes, created_at, expires_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		)
	`

	_, err := s.db.Exec(
		ctx,
		query,
		sh.ID,
		sh.Text,
		sh.Position.Lat,
		sh.Position.Lng,
		sh.Geohash,
		sh.UserID,
		sh.UserName,
		sh.EmojiStyle,
		sh.IsPinned,
		sh.Likes,
		sh.CreatedAt,
		sh.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("error executing query: %w", err)
	}

	return nil
}

// GetShout retrieves a shout by ID, or nil when it does not exist.
func (s *ShoutStore) GetShout(ctx context.Context, id string) (*world.Shout, error) {
	query := `
		SELECT id, text, lat, lng, geohash, user_id, user_name, emoji_style,
			is_pinned, likes, created_at, expires_at
		FROM shouts
		WHERE id = $1
	`

	var sh world.Shout
	err := s.db.QueryRow(ctx, query, id).Scan(
		&sh.ID,
		&sh.Text,
		&sh.Position.Lat,
		&sh.Position.Lng,
		&sh.Geohash,
		&sh.UserID,
		&sh.UserName,
		&sh.EmojiStyle,
		&sh.IsPinned,
		&sh.Likes,
		&sh.CreatedAt,
		&sh.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying shout: %w", err)
	}

	return &sh, nil
}

// Like appends a user to the shout's like list, once per user.
func (s *ShoutStore) Like(ctx context.Context, id, userID string) error {
	query := `
		UPDATE shouts
		SET likes = array_append(likes, $2)
		WHERE id = $1 AND NOT ($2 = ANY(likes))
	`

	if _, err := s.db.Exec(ctx, query, id, userID); err != nil {
		return fmt.Errorf("error liking shout: %w", err)
	}
	return nil
}

// Unlike removes a user from the shout's like list.
func (s *ShoutStore) Unlike(ctx context.Context, id, userID string) error {
	query := `
		UPDATE shouts
		SET likes = array_remove(likes, $2)
		WHERE id = $1
	`

	if _, err := s.db.Exec(ctx, query, id, userID); err != nil {
		return fmt.Errorf("error unliking shout: %w", err)
	}
	return nil
}

// DeleteShout removes a shout.
func (s *ShoutStore) DeleteShout(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM shouts WHERE id = $1`, id); err != nil {
		return fmt.Errorf("error deleting shout: %w", err)
	}
	return nil
}

// DeleteExpired removes shouts past their expiry and returns how many
// rows were removed.
func (s *ShoutStore) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM shouts
		WHERE expires_at IS NOT NULL AND expires_at < NOW()
	`)
	if err != nil {
		return 0, fmt.Errorf("error deleting expired shouts: %w", err)
	}
	return tag.RowsAffected(), nil
}

// QueryRange returns the shouts whose geohash falls inside [start, end).
func (s *ShoutStore) QueryRange(ctx context.Context, start, end string) ([]livequery.Document, error) {
	query := `
		SELECT id, text, lat, lng, geohash, user_id, user_name, emoji_style,
			is_pinned, likes, created_at, expires_at
		FROM shouts
		WHERE geohash >= $1 AND geohash < $2
		ORDER BY geohash
	`

	rows, err := s.db.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("error executing query: %w", err)
	}
	defer rows.Close()

	var docs []livequery.Document
	for rows.Next() {
		var sh world.Shout
		err := rows.Scan(
			&sh.ID,
			&sh.Text,
			&sh.Position.Lat,
			&sh.Position.Lng,
			&sh.Geohash,
			&sh.UserID,
			&sh.UserName,
			&sh.EmojiStyle,
			&sh.IsPinned,
			&sh.Likes,
			&sh.CreatedAt,
			&sh.ExpiresAt,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning shout: %w", err)
		}
		docs = append(docs, sh)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating shouts: %w", err)
	}

	return docs, nil
}
