//go:build integration
// +build integration

package postgresql

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/caseflow-io/caseflow/pkg/models"
	"github.com/caseflow-io/caseflow/pkg/persistence"
)

var postgresContainer *postgres.PostgresContainer

func TestMain(m *testing.M) {
	code := m.Run()

	if postgresContainer != nil {
		_ = postgresContainer.Terminate(context.Background())
	}

	os.Exit(code)
}

func setupTestDB(t *testing.T) *Persistence {
	t.Helper()

	ctx := context.Background()

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error
		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("caseflow_test"),
			postgres.WithUsername("caseflow"),
			postgres.WithPassword("caseflow"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	store, err := NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	cleanupDB(t, databaseURL)

	t.Cleanup(func() {
		_ = store.Close(context.Background())
	})

	return store
}

func cleanupDB(t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		_ = db.Close()
	}()

	_, err = db.ExecContext(context.Background(),
		`TRUNCATE TABLE workflow_templates, workflow_steps, workflow_instances,
		 step_executions, workflow_approvals, workflow_comments,
		 workflow_activity, workflow_sequences`)
	require.NoError(t, err)
}

func seedTemplate(t *testing.T, store *Persistence) *models.WorkflowTemplate {
	t.Helper()

	now := time.Now().UTC()
	template := &models.WorkflowTemplate{
		ID:        uuid.New().String(),
		Code:      "PROC",
		Name:      "Test process",
		Category:  "test",
		IsActive:  true,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := store.Templates().Create(context.Background(), template)
	require.NoError(t, err)

	return template
}

func TestPostgres_HealthCheck(t *testing.T) {
	store := setupTestDB(t)

	assert.NoError(t, store.HealthCheck(context.Background()))
}

func TestPostgres_TemplateRoundTrip(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	template := seedTemplate(t, store)

	err := store.Steps().Create(ctx, &models.WorkflowStep{
		ID:         uuid.New().String(),
		TemplateID: template.ID,
		StepNumber: 1,
		Name:       "Submit",
		StepType:   models.StepTypeForm,
		Config:     map[string]any{"fields": []any{}},
		IsRequired: true,
		IsActive:   true,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	})
	require.NoError(t, err)

	loaded, err := store.Templates().GetByCode(ctx, "PROC")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, template.ID, loaded.ID)
	require.Len(t, loaded.Steps, 1)
	assert.Equal(t, models.StepTypeForm, loaded.Steps[0].StepType)

	// Duplicate codes surface the sentinel.
	err = store.Templates().Create(ctx, &models.WorkflowTemplate{
		ID:        uuid.New().String(),
		Code:      "PROC",
		Name:      "Duplicate",
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	})
	assert.ErrorIs(t, err, persistence.ErrDuplicateTemplateCode)
}

func TestPostgres_InstanceCompareAndSwap(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	template := seedTemplate(t, store)

	now := time.Now().UTC()
	instance := &models.WorkflowInstance{
		ID:                uuid.New().String(),
		TemplateID:        template.ID,
		InstanceCode:      "PROC-2026-0001",
		Title:             "CAS test",
		Status:            models.InstanceStatusPending,
		CurrentStepNumber: 1,
		FormData:          map[string]any{},
		Metadata:          map[string]any{},
		InitiatedBy:       "hr-1",
		StartedAt:         now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err := store.Instances().Create(ctx, instance)
	require.NoError(t, err)

	instance.Status = models.InstanceStatusInProgress
	instance.CurrentStepNumber = 2

	err = store.Instances().Update(ctx, instance, models.InstanceStatusInProgress, 9)
	assert.ErrorIs(t, err, persistence.ErrStaleInstance)

	err = store.Instances().Update(ctx, instance, models.InstanceStatusPending, 1)
	require.NoError(t, err)

	stored, err := store.Instances().GetByID(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusInProgress, stored.Status)
	assert.Equal(t, 2, stored.CurrentStepNumber)
}

func TestPostgres_ApprovalsAndActivity(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	instanceID := uuid.New().String()

	err := store.Approvals().CreateBatch(ctx, []*models.WorkflowApproval{
		{ID: uuid.New().String(), InstanceID: instanceID, StepNumber: 2, ApproverID: "alice", Status: models.ApprovalStatusPending, RequestedAt: time.Now().UTC()},
		{ID: uuid.New().String(), InstanceID: instanceID, StepNumber: 2, ApproverID: "bob", Status: models.ApprovalStatusPending, RequestedAt: time.Now().UTC()},
	})
	require.NoError(t, err)

	err = store.Approvals().CreateBatch(ctx, []*models.WorkflowApproval{
		{ID: uuid.New().String(), InstanceID: instanceID, StepNumber: 2, ApproverID: "alice", Status: models.ApprovalStatusPending, RequestedAt: time.Now().UTC()},
	})
	assert.ErrorIs(t, err, persistence.ErrDuplicateApproval)

	approvals, err := store.Approvals().ListByStep(ctx, instanceID, 2)
	require.NoError(t, err)
	assert.Len(t, approvals, 2)

	for i := range 3 {
		err := store.Activity().Append(ctx, &models.ActivityEntry{
			ID:          uuid.New().String(),
			InstanceID:  instanceID,
			Action:      models.ActivityStepStarted,
			Description: "step started",
			StepNumber:  i + 1,
			ActorID:     "system",
			CreatedAt:   time.Now().UTC().Add(time.Duration(i) * time.Millisecond),
		})
		require.NoError(t, err)
	}

	entries, err := store.Activity().ListRecent(ctx, instanceID, 2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestPostgres_SequenceNext(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := store.Sequences().Next(ctx, "instance_code:PROC:2026")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}
