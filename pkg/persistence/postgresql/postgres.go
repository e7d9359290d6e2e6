// Package postgresql provides the PostgreSQL persistence implementation for
// the workflow case engine.
package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/caseflow-io/caseflow/pkg/persistence"
	"github.com/caseflow-io/caseflow/pkg/persistence/sqlbase"
)

// Persistence implements persistence.Persistence for PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger

	templateRepo  *TemplateRepository
	stepRepo      *StepRepository
	instanceRepo  *InstanceRepository
	executionRepo *ExecutionRepository
	approvalRepo  *ApprovalRepository
	commentRepo   *CommentRepository
	activityRepo  *ActivityRepository
	sequenceRepo  *SequenceRepository
}

// NewPersistence opens a connection, runs pending migrations and returns the
// ready persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:            database,
		logger:        logger,
		templateRepo:  &TemplateRepository{db: database, logger: logger},
		stepRepo:      &StepRepository{db: database, logger: logger},
		instanceRepo:  &InstanceRepository{db: database, logger: logger},
		executionRepo: &ExecutionRepository{db: database, logger: logger},
		approvalRepo:  &ApprovalRepository{db: database, logger: logger},
		commentRepo:   &CommentRepository{db: database, logger: logger},
		activityRepo:  &ActivityRepository{db: database, logger: logger},
		sequenceRepo:  &SequenceRepository{db: database},
	}, nil
}

func (p *Persistence) Templates() persistence.TemplateRepository   { return p.templateRepo }
func (p *Persistence) Steps() persistence.StepRepository           { return p.stepRepo }
func (p *Persistence) Instances() persistence.InstanceRepository   { return p.instanceRepo }
func (p *Persistence) Executions() persistence.ExecutionRepository { return p.executionRepo }
func (p *Persistence) Approvals() persistence.ApprovalRepository   { return p.approvalRepo }
func (p *Persistence) Comments() persistence.CommentRepository     { return p.commentRepo }
func (p *Persistence) Activity() persistence.ActivityRepository    { return p.activityRepo }
func (p *Persistence) Sequences() persistence.SequenceRepository   { return p.sequenceRepo }

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

const pqUniqueViolation = "23505"

// mapUniqueViolation translates a pq unique-violation into the matching
// sentinel, keyed by constraint name. Other errors pass through unchanged.
func mapUniqueViolation(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != pqUniqueViolation {
		return err
	}

	switch pqErr.Constraint {
	case "workflow_templates_code_key":
		return persistence.ErrDuplicateTemplateCode
	case "workflow_steps_template_id_step_number_key":
		return persistence.ErrDuplicateStepNumber
	case "workflow_approvals_instance_id_step_number_approver_id_key":
		return persistence.ErrDuplicateApproval
	default:
		return err
	}
}
