// Package memory provides an in-memory persistence implementation used by
// tests and local development. All operations are guarded by a single mutex,
// which also gives the compare-and-swap instance update its atomicity.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/caseflow-io/caseflow/pkg/models"
	"github.com/caseflow-io/caseflow/pkg/persistence"
)

// Persistence implements persistence.Persistence backed by maps.
type Persistence struct {
	mu sync.RWMutex

	templates  map[string]*models.WorkflowTemplate
	steps      map[string]*models.WorkflowStep
	instances  map[string]*models.WorkflowInstance
	executions map[string]*models.StepExecution
	approvals  map[string]*models.WorkflowApproval
	comments   map[string][]*models.WorkflowComment
	activity   map[string][]*models.ActivityEntry
	sequences  map[string]int64
}

// NewPersistence creates an empty in-memory store.
func NewPersistence() *Persistence {
	return &Persistence{
		templates:  make(map[string]*models.WorkflowTemplate),
		steps:      make(map[string]*models.WorkflowStep),
		instances:  make(map[string]*models.WorkflowInstance),
		executions: make(map[string]*models.StepExecution),
		approvals:  make(map[string]*models.WorkflowApproval),
		comments:   make(map[string][]*models.WorkflowComment),
		activity:   make(map[string][]*models.ActivityEntry),
		sequences:  make(map[string]int64),
	}
}

func (p *Persistence) Templates() persistence.TemplateRepository   { return &templateRepo{p} }
func (p *Persistence) Steps() persistence.StepRepository           { return &stepRepo{p} }
func (p *Persistence) Instances() persistence.InstanceRepository   { return &instanceRepo{p} }
func (p *Persistence) Executions() persistence.ExecutionRepository { return &executionRepo{p} }
func (p *Persistence) Approvals() persistence.ApprovalRepository   { return &approvalRepo{p} }
func (p *Persistence) Comments() persistence.CommentRepository     { return &commentRepo{p} }
func (p *Persistence) Activity() persistence.ActivityRepository    { return &activityRepo{p} }
func (p *Persistence) Sequences() persistence.SequenceRepository   { return &sequenceRepo{p} }

// HealthCheck always succeeds for the in-memory store.
func (p *Persistence) HealthCheck(_ context.Context) error { return nil }

// Close is a no-op for the in-memory store.
func (p *Persistence) Close(_ context.Context) error { return nil }

type templateRepo struct{ p *Persistence }

func (r *templateRepo) Create(_ context.Context, template *models.WorkflowTemplate) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	for _, existing := range r.p.templates {
		if existing.Code == template.Code {
			return persistence.NewStoreError("Templates.Create", template.Code, persistence.ErrDuplicateTemplateCode)
		}
	}

	r.p.templates[template.ID] = cloneTemplate(template)

	return nil
}

func (r *templateRepo) Update(_ context.Context, template *models.WorkflowTemplate) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if _, ok := r.p.templates[template.ID]; !ok {
		return persistence.NewStoreError("Templates.Update", template.ID, persistence.ErrTemplateNotFound)
	}

	for _, existing := range r.p.templates {
		if existing.ID != template.ID && existing.Code == template.Code {
			return persistence.NewStoreError("Templates.Update", template.Code, persistence.ErrDuplicateTemplateCode)
		}
	}

	r.p.templates[template.ID] = cloneTemplate(template)

	return nil
}

func (r *templateRepo) GetByID(_ context.Context, id string) (*models.WorkflowTemplate, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	template, ok := r.p.templates[id]
	if !ok {
		return nil, nil
	}

	return r.hydrate(template), nil
}

func (r *templateRepo) GetByCode(_ context.Context, code string) (*models.WorkflowTemplate, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	for _, template := range r.p.templates {
		if template.Code == code {
			return r.hydrate(template), nil
		}
	}

	return nil, nil
}

func (r *templateRepo) List(_ context.Context, opts persistence.ListTemplatesOptions) (*persistence.ListTemplatesResult, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	matched := make([]*models.WorkflowTemplate, 0)

	for _, template := range r.p.templates {
		if opts.Category != "" && template.Category != opts.Category {
			continue
		}

		if opts.IsActive != nil && template.IsActive != *opts.IsActive {
			continue
		}

		matched = append(matched, r.hydrate(template))
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	matched = page(matched, opts.Offset, opts.Limit)

	return &persistence.ListTemplatesResult{Templates: matched, TotalCount: total}, nil
}

func (r *templateRepo) Delete(_ context.Context, id string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	delete(r.p.templates, id)

	for stepID, step := range r.p.steps {
		if step.TemplateID == id {
			delete(r.p.steps, stepID)
		}
	}

	return nil
}

// hydrate attaches a template's steps ordered by step number. Callers hold
// the lock.
func (r *templateRepo) hydrate(template *models.WorkflowTemplate) *models.WorkflowTemplate {
	out := cloneTemplate(template)
	out.Steps = r.p.stepsForTemplate(template.ID)

	return out
}

type stepRepo struct{ p *Persistence }

func (r *stepRepo) Create(_ context.Context, step *models.WorkflowStep) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	for _, existing := range r.p.steps {
		if existing.TemplateID == step.TemplateID && existing.StepNumber == step.StepNumber {
			return persistence.NewStoreError("Steps.Create", step.ID, persistence.ErrDuplicateStepNumber)
		}
	}

	r.p.steps[step.ID] = cloneStep(step)

	return nil
}

func (r *stepRepo) Update(_ context.Context, step *models.WorkflowStep) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if _, ok := r.p.steps[step.ID]; !ok {
		return persistence.NewStoreError("Steps.Update", step.ID, persistence.ErrStepNotFound)
	}

	for _, existing := range r.p.steps {
		if existing.ID != step.ID && existing.TemplateID == step.TemplateID && existing.StepNumber == step.StepNumber {
			return persistence.NewStoreError("Steps.Update", step.ID, persistence.ErrDuplicateStepNumber)
		}
	}

	r.p.steps[step.ID] = cloneStep(step)

	return nil
}

func (r *stepRepo) Delete(_ context.Context, id string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	delete(r.p.steps, id)

	return nil
}

func (r *stepRepo) GetByID(_ context.Context, id string) (*models.WorkflowStep, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	step, ok := r.p.steps[id]
	if !ok {
		return nil, nil
	}

	return cloneStep(step), nil
}

func (r *stepRepo) ListByTemplate(_ context.Context, templateID string) ([]*models.WorkflowStep, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	return r.p.stepsForTemplate(templateID), nil
}

// stepsForTemplate returns cloned steps ordered by step number. Callers hold
// the lock.
func (p *Persistence) stepsForTemplate(templateID string) []*models.WorkflowStep {
	steps := make([]*models.WorkflowStep, 0)

	for _, step := range p.steps {
		if step.TemplateID == templateID {
			steps = append(steps, cloneStep(step))
		}
	}

	sort.Slice(steps, func(i, j int) bool {
		return steps[i].StepNumber < steps[j].StepNumber
	})

	return steps
}

type instanceRepo struct{ p *Persistence }

func (r *instanceRepo) Create(_ context.Context, instance *models.WorkflowInstance) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	r.p.instances[instance.ID] = cloneInstance(instance)

	return nil
}

func (r *instanceRepo) GetByID(_ context.Context, id string) (*models.WorkflowInstance, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	instance, ok := r.p.instances[id]
	if !ok {
		return nil, nil
	}

	return cloneInstance(instance), nil
}

func (r *instanceRepo) Update(_ context.Context, instance *models.WorkflowInstance, expectedStatus models.InstanceStatus, expectedStep int) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	stored, ok := r.p.instances[instance.ID]
	if !ok {
		return persistence.NewStoreError("Instances.Update", instance.ID, persistence.ErrInstanceNotFound)
	}

	if stored.Status != expectedStatus || stored.CurrentStepNumber != expectedStep {
		return persistence.NewStoreError("Instances.Update", instance.ID, persistence.ErrStaleInstance)
	}

	r.p.instances[instance.ID] = cloneInstance(instance)

	return nil
}

func (r *instanceRepo) List(_ context.Context, opts persistence.ListInstancesOptions) (*persistence.ListInstancesResult, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	matched := make([]*models.WorkflowInstance, 0)

	for _, instance := range r.p.instances {
		if opts.TemplateID != "" && instance.TemplateID != opts.TemplateID {
			continue
		}

		if opts.Status != nil && instance.Status != *opts.Status {
			continue
		}

		if opts.InitiatedBy != "" && instance.InitiatedBy != opts.InitiatedBy {
			continue
		}

		if opts.AssignedTo != "" && instance.AssignedTo != opts.AssignedTo {
			continue
		}

		matched = append(matched, cloneInstance(instance))
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	matched = page(matched, opts.Offset, opts.Limit)

	return &persistence.ListInstancesResult{Instances: matched, TotalCount: total}, nil
}

func (r *instanceRepo) CountByTemplate(_ context.Context, templateID string) (int64, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	var count int64

	for _, instance := range r.p.instances {
		if instance.TemplateID == templateID {
			count++
		}
	}

	return count, nil
}

type executionRepo struct{ p *Persistence }

func (r *executionRepo) Create(_ context.Context, execution *models.StepExecution) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	r.p.executions[execution.ID] = cloneExecution(execution)

	return nil
}

func (r *executionRepo) GetByID(_ context.Context, id string) (*models.StepExecution, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	execution, ok := r.p.executions[id]
	if !ok {
		return nil, nil
	}

	return cloneExecution(execution), nil
}

func (r *executionRepo) GetOpen(_ context.Context, instanceID string, stepNumber int) (*models.StepExecution, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	for _, execution := range r.p.executions {
		if execution.InstanceID == instanceID && execution.StepNumber == stepNumber && execution.Open() {
			return cloneExecution(execution), nil
		}
	}

	return nil, nil
}

func (r *executionRepo) Update(_ context.Context, execution *models.StepExecution) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if _, ok := r.p.executions[execution.ID]; !ok {
		return persistence.NewStoreError("Executions.Update", execution.ID, persistence.ErrExecutionNotFound)
	}

	r.p.executions[execution.ID] = cloneExecution(execution)

	return nil
}

func (r *executionRepo) ListByInstance(_ context.Context, instanceID string) ([]*models.StepExecution, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	executions := make([]*models.StepExecution, 0)

	for _, execution := range r.p.executions {
		if execution.InstanceID == instanceID {
			executions = append(executions, cloneExecution(execution))
		}
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].StepNumber < executions[j].StepNumber
	})

	return executions, nil
}

type approvalRepo struct{ p *Persistence }

func (r *approvalRepo) CreateBatch(_ context.Context, approvals []*models.WorkflowApproval) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	for _, approval := range approvals {
		for _, existing := range r.p.approvals {
			if existing.InstanceID == approval.InstanceID &&
				existing.StepNumber == approval.StepNumber &&
				existing.ApproverID == approval.ApproverID {
				return persistence.NewStoreError("Approvals.CreateBatch", approval.ID, persistence.ErrDuplicateApproval)
			}
		}
	}

	for _, approval := range approvals {
		r.p.approvals[approval.ID] = cloneApproval(approval)
	}

	return nil
}

func (r *approvalRepo) GetByID(_ context.Context, id string) (*models.WorkflowApproval, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	approval, ok := r.p.approvals[id]
	if !ok {
		return nil, nil
	}

	return cloneApproval(approval), nil
}

func (r *approvalRepo) Update(_ context.Context, approval *models.WorkflowApproval) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if _, ok := r.p.approvals[approval.ID]; !ok {
		return persistence.NewStoreError("Approvals.Update", approval.ID, persistence.ErrApprovalNotFound)
	}

	r.p.approvals[approval.ID] = cloneApproval(approval)

	return nil
}

func (r *approvalRepo) ListByStep(_ context.Context, instanceID string, stepNumber int) ([]*models.WorkflowApproval, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	approvals := make([]*models.WorkflowApproval, 0)

	for _, approval := range r.p.approvals {
		if approval.InstanceID == instanceID && approval.StepNumber == stepNumber {
			approvals = append(approvals, cloneApproval(approval))
		}
	}

	sort.Slice(approvals, func(i, j int) bool {
		return approvals[i].RequestedAt.Before(approvals[j].RequestedAt)
	})

	return approvals, nil
}

func (r *approvalRepo) ListByInstance(_ context.Context, instanceID string) ([]*models.WorkflowApproval, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	approvals := make([]*models.WorkflowApproval, 0)

	for _, approval := range r.p.approvals {
		if approval.InstanceID == instanceID {
			approvals = append(approvals, cloneApproval(approval))
		}
	}

	sort.Slice(approvals, func(i, j int) bool {
		if approvals[i].StepNumber != approvals[j].StepNumber {
			return approvals[i].StepNumber < approvals[j].StepNumber
		}

		return approvals[i].RequestedAt.Before(approvals[j].RequestedAt)
	})

	return approvals, nil
}

type commentRepo struct{ p *Persistence }

func (r *commentRepo) Create(_ context.Context, comment *models.WorkflowComment) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	copied := *comment
	r.p.comments[comment.InstanceID] = append(r.p.comments[comment.InstanceID], &copied)

	return nil
}

func (r *commentRepo) ListByInstance(_ context.Context, instanceID string) ([]*models.WorkflowComment, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	comments := make([]*models.WorkflowComment, 0, len(r.p.comments[instanceID]))

	for _, comment := range r.p.comments[instanceID] {
		copied := *comment
		comments = append(comments, &copied)
	}

	return comments, nil
}

type activityRepo struct{ p *Persistence }

func (r *activityRepo) Append(_ context.Context, entry *models.ActivityEntry) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	copied := *entry
	copied.Details = cloneMap(entry.Details)
	r.p.activity[entry.InstanceID] = append(r.p.activity[entry.InstanceID], &copied)

	return nil
}

func (r *activityRepo) ListRecent(_ context.Context, instanceID string, limit int) ([]*models.ActivityEntry, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	entries := r.p.activity[instanceID]

	count := len(entries)
	if limit > 0 && count > limit {
		count = limit
	}

	out := make([]*models.ActivityEntry, 0, count)

	// Newest first, like the SQL implementation.
	for i := len(entries) - 1; i >= len(entries)-count; i-- {
		copied := *entries[i]
		copied.Details = cloneMap(entries[i].Details)
		out = append(out, &copied)
	}

	return out, nil
}

type sequenceRepo struct{ p *Persistence }

func (r *sequenceRepo) Next(_ context.Context, key string) (int64, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	r.p.sequences[key]++

	return r.p.sequences[key], nil
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}

	items = items[offset:]

	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}

	return items
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}

	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}

	return out
}

func cloneTemplate(t *models.WorkflowTemplate) *models.WorkflowTemplate {
	copied := *t
	copied.Steps = nil

	return &copied
}

func cloneStep(s *models.WorkflowStep) *models.WorkflowStep {
	copied := *s
	copied.Config = cloneMap(s.Config)

	return &copied
}

func cloneInstance(i *models.WorkflowInstance) *models.WorkflowInstance {
	copied := *i
	copied.FormData = cloneMap(i.FormData)
	copied.Metadata = cloneMap(i.Metadata)

	return &copied
}

func cloneExecution(e *models.StepExecution) *models.StepExecution {
	copied := *e
	copied.InputData = cloneMap(e.InputData)
	copied.OutputData = cloneMap(e.OutputData)

	return &copied
}

func cloneApproval(a *models.WorkflowApproval) *models.WorkflowApproval {
	copied := *a
	copied.AttachmentIDs = append([]string(nil), a.AttachmentIDs...)

	return &copied
}
