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

// CommentRepository handles workflow comment database operations.
type CommentRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *CommentRepository) Create(ctx context.Context, comment *models.WorkflowComment) error {
	mentionsJSON, err := json.Marshal(comment.Mentions)
	if err != nil {
		return fmt.Errorf("failed to marshal mentions: %w", err)
	}

	query := `
		INSERT INTO workflow_comments (id, instance_id, author_id, body, mentions, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err = r.db.ExecContext(ctx, query,
		comment.ID,
		comment.InstanceID,
		comment.AuthorID,
		comment.Body,
		mentionsJSON,
		comment.CreatedAt,
	)
	if err != nil {
		return persistence.NewStoreError("Comments.Create", comment.ID, err)
	}

	return nil
}

func (r *CommentRepository) ListByInstance(ctx context.Context, instanceID string) ([]*models.WorkflowComment, error) {
	query := `
		SELECT id, instance_id, author_id, body, mentions, created_at
		FROM workflow_comments
		WHERE instance_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query comments: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	comments := make([]*models.WorkflowComment, 0)

	for rows.Next() {
		var (
			comment      models.WorkflowComment
			mentionsJSON []byte
		)

		err := rows.Scan(
			&comment.ID,
			&comment.InstanceID,
			&comment.AuthorID,
			&comment.Body,
			&mentionsJSON,
			&comment.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}

		if mentionsJSON != nil {
			err := json.Unmarshal(mentionsJSON, &comment.Mentions)
			if err != nil {
				return nil, fmt.Errorf("failed to unmarshal mentions: %w", err)
			}
		}

		comments = append(comments, &comment)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating comments: %w", err)
	}

	return comments, nil
}
