// internal/adapter/storage/zone_store.go

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

// ZoneStore implements storage for chat zones.
type ZoneStore struct {
	db *pgxpool.Pool
}

// NewZoneStore creates a new zone store.
func NewZoneStore(db *pgxpool.Pool) *ZoneStore {
	return &ZoneStore{db: db}
}

// SaveZone inserts or replaces a zone.
func (s *ZoneStore) SaveZone(ctx context.Context, z world.Zone) error {
	query := `
		INSERT INTO zones (
			id, name, lat, lng, radius_meters, geohash, creator_id, created_at, expires_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
		ON CONFLICT (id) DO UPDATE
		SET
			name = $2,
			lat = $3,
			lng = $4,
			radius_meters = $5,
			geohash = $6,
			expires_at = $9
	`

	_, err := s.db.Exec(
		ctx,
		query,
		z.ID,
		z.Name,
		z.Center.Lat,
		z.Center.Lng,
		z.RadiusMeters,
		z.Geohash,
		z.CreatorID,
		z.CreatedAt,
		z.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("error executing query: %w", err)
	}

	return nil
}

// GetZone retrieves a zone by ID, or nil when it does not exist.
func (s *ZoneStore) GetZone(ctx context.Context, id string) (*world.Zone, error) {
	query := `
		SELECT id, name, lat, lng, radius_meters, geohash, creator_id, created_at, expires_at
		FROM zones
		WHERE id = $1
	`

	var z world.Zone
	err := s.db.QueryRow(ctx, query, id).Scan(
		&z.ID,
		&z.Name,
		&z.Center.Lat,
		&z.Center.Lng,
		&z.RadiusMeters,
		&z.Geohash,
		&z.CreatorID,
		&z.CreatedAt,
		&z.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying zone: %w", err)
	}

	return &z, nil
}

// DeleteZone removes a zone.
func (s *ZoneStore) DeleteZone(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM zones WHERE id = $1`, id); err != nil {
		return fmt.Errorf("error deleting zone: %w", err)
	}
	return nil
}

// DeleteExpired removes zones past their expiry and returns their ids so
// the caller can clean up sub-resources.
func (s *ZoneStore) DeleteExpired(ctx context.Context) ([]string, error) {
	query := `
		DELETE FROM zones
		WHERE expires_at IS NOT NULL AND expires_at < NOW()
		RETURNING id
	`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error deleting expired zones: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("error scanning zone id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating zones: %w", err)
	}

	return ids, nil
}

// QueryRange returns the zones whose geohash falls inside [start, end).
func (s *ZoneStore) QueryRange(ctx context.Context, start, end string) ([]livequery.Document, error) {
	query := `
		SELECT id, name, lat, lng, radius_meters, geohash, creator_id, created_at, expires_at
		FROM zones
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
		var z world.Zone
		err := rows.Scan(
			&z.ID,
			&z.Name,
			&z.Center.Lat,
			&z.Center.Lng,
			&z.RadiusMeters,
			&z.Geohash,
			&z.CreatorID,
			&z.CreatedAt,
			&z.ExpiresAt,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning zone: %w", err)
		}
		docs = append(docs, z)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating zones: %w", err)
	}

	return docs, nil
}
