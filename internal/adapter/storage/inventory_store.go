// internal/adapter/storage/inventory_store.go

package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
)

// InventoryStore implements durable per-user collectible counts.
type InventoryStore struct {
	db *pgxpool.Pool
}

// NewInventoryStore creates a new inventory store.
func NewInventoryStore(db *pgxpool.Pool) *InventoryStore {
	return &InventoryStore{db: db}
}

// Increment adds one collected item of the given kind to the user's
// inventory. The write must land before a collection is acknowledged.
func (s *InventoryStore) Increment(ctx context.Context, userID, kind string) error {
	query := `
		INSERT INTO inventory (user_id, kind, count)
		VALUES ($1, $2, 1)
		ON CONFLICT (user_id, kind) DO UPDATE
		SET count = inventory.count + 1
	`

	if _, err := s.db.Exec(ctx, query, userID, kind); err != nil {
		return fmt.Errorf("error incrementing inventory: %w", err)
	}
	return nil
}

// Counts returns the user's per-kind collection totals.
func (s *InventoryStore) Counts(ctx context.Context, userID string) (map[string]int, error) {
	rows, err := s.db.Query(ctx, `SELECT kind, count FROM inventory WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("error querying inventory: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var kind string
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("error scanning inventory row: %w", err)
		}
		counts[kind] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating inventory: %w", err)
	}

	return counts, nil
}
