package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/caseflow-io/caseflow/pkg/models"
	"github.com/caseflow-io/caseflow/pkg/persistence"
)

// ActivityRepository handles the append-only instance activity trail.
type ActivityRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *ActivityRepository) Append(ctx context.Context, entry *models.ActivityEntry) error {
	detailsJSON, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal activity details: %w", err)
	}

	query := `
		INSERT INTO workflow_activity (id, instance_id, action, description, details, step_number, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = r.db.ExecContext(ctx, query,
		entry.ID,
		entry.InstanceID,
		entry.Action,
		entry.Description,
		detailsJSON,
		entry.StepNumber,
		entry.ActorID,
		entry.CreatedAt,
	)
	if err != nil {
		return persistence.NewStoreError("Activity.Append", entry.ID, err)
	}

	return nil
}

// ListRecent returns up to limit entries, newest first.
func (r *ActivityRepository) ListRecent(ctx context.Context, instanceID string, limit int) ([]*models.ActivityEntry, error) {
	query := `
		SELECT id, instance_id, action, description, details, step_number, actor_id, created_at
		FROM workflow_activity
		WHERE instance_id = $1
		ORDER BY created_at DESC, id DESC
	`

	args := []any{instanceID}

	if limit > 0 {
		args = append(args, limit)
		query += " LIMIT $2"
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	entries := make([]*models.ActivityEntry, 0)

	for rows.Next() {
		var (
			entry       models.ActivityEntry
			detailsJSON []byte
		)

		err := rows.Scan(
			&entry.ID,
			&entry.InstanceID,
			&entry.Action,
			&entry.Description,
			&detailsJSON,
			&entry.StepNumber,
			&entry.ActorID,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity entry: %w", err)
		}

		if detailsJSON != nil {
			err := json.Unmarshal(detailsJSON, &entry.Details)
			if err != nil {
				return nil, fmt.Errorf("failed to unmarshal activity details: %w", err)
			}
		}

		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activity: %w", err)
	}

	return entries, nil
}
