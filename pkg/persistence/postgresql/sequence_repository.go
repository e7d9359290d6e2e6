package postgresql

import (
	"context"
	"database/sql"
	"fmt"
)

// SequenceRepository hands out monotonically increasing values per key using
// an upsert, so concurrent callers never observe the same value twice.
type SequenceRepository struct {
	db *sql.DB
}

func (r *SequenceRepository) Next(ctx context.Context, key string) (int64, error) {
	query := `
		INSERT INTO workflow_sequences (key, value)
		VALUES ($1, 1)
		ON CONFLICT (key) DO UPDATE SET value = workflow_sequences.value + 1
		RETURNING value
	`

	var value int64

	err := r.db.QueryRowContext(ctx, query, key).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("failed to advance sequence %q: %w", key, err)
	}

	return value, nil
}
