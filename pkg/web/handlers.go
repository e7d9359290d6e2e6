// Package web provides the HTTP handlers and REST endpoints for the case
// engine.
package web

import (
	"strconv"

	"github.com/gofiber/fiber/v3"

	"github.com/caseflow-io/caseflow/pkg/models"
	"github.com/caseflow-io/caseflow/pkg/onboarding"
	"github.com/caseflow-io/caseflow/pkg/persistence"
	"github.com/caseflow-io/caseflow/pkg/workflow"
)

// ActorHeader carries the already-authenticated acting user. Identity is
// external; the engine never authenticates.
const ActorHeader = "X-Actor-ID"

type APIHandlers struct {
	templates *workflow.Templates
	engine    *workflow.Engine
	process   *onboarding.Process
}

func NewAPIHandlers(templates *workflow.Templates, engine *workflow.Engine, process *onboarding.Process) *APIHandlers {
	return &APIHandlers{
		templates: templates,
		engine:    engine,
		process:   process,
	}
}

func actor(c fiber.Ctx) string {
	return c.Get(ActorHeader)
}

func requireActor(c fiber.Ctx) (string, error) {
	id := actor(c)
	if id == "" {
		return "", badRequest(c, ActorHeader+" header is required")
	}

	return id, nil
}

// Templates

func (h *APIHandlers) ListTemplates(c fiber.Ctx) error {
	opts := persistence.ListTemplatesOptions{Category: c.Query("category")}

	if activeStr := c.Query("is_active"); activeStr != "" {
		active, err := strconv.ParseBool(activeStr)
		if err != nil {
			return badRequest(c, "invalid is_active: "+err.Error())
		}

		opts.IsActive = &active
	}

	var err error

	opts.Limit, opts.Offset, err = parsePage(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.templates.ListTemplates(c.Context(), opts)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(fiber.Map{
		"templates":   result.Templates,
		"total_count": result.TotalCount,
	})
}

func (h *APIHandlers) CreateTemplate(c fiber.Ctx) error {
	var req workflow.CreateTemplateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid request body: "+err.Error())
	}

	template, err := h.templates.CreateTemplate(c.Context(), req)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(template)
}

func (h *APIHandlers) GetTemplate(c fiber.Ctx) error {
	template, err := h.templates.GetTemplate(c.Context(), c.Params("id"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(template)
}

func (h *APIHandlers) UpdateTemplate(c fiber.Ctx) error {
	var req workflow.UpdateTemplateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid request body: "+err.Error())
	}

	template, err := h.templates.UpdateTemplate(c.Context(), c.Params("id"), req)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(template)
}

func (h *APIHandlers) DeleteTemplate(c fiber.Ctx) error {
	err := h.templates.DeleteTemplate(c.Context(), c.Params("id"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) CreateStep(c fiber.Ctx) error {
	var req workflow.CreateStepRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid request body: "+err.Error())
	}

	req.TemplateID = c.Params("id")

	step, err := h.templates.CreateStep(c.Context(), req)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(step)
}

func (h *APIHandlers) UpdateStep(c fiber.Ctx) error {
	var req workflow.UpdateStepRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid request body: "+err.Error())
	}

	step, err := h.templates.UpdateStep(c.Context(), c.Params("id"), c.Params("stepId"), req)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(step)
}

func (h *APIHandlers) DeleteStep(c fiber.Ctx) error {
	err := h.templates.DeleteStep(c.Context(), c.Params("id"), c.Params("stepId"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// Instances

func (h *APIHandlers) ListInstances(c fiber.Ctx) error {
	opts := persistence.ListInstancesOptions{
		TemplateID:  c.Query("template_id"),
		InitiatedBy: c.Query("initiated_by"),
		AssignedTo:  c.Query("assigned_to"),
	}

	if statusStr := c.Query("status"); statusStr != "" {
		status := models.InstanceStatus(statusStr)
		opts.Status = &status
	}

	var err error

	opts.Limit, opts.Offset, err = parsePage(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.engine.ListInstances(c.Context(), opts)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(fiber.Map{
		"instances":   result.Instances,
		"total_count": result.TotalCount,
	})
}

func (h *APIHandlers) CreateInstance(c fiber.Ctx) error {
	actorID, err := requireActor(c)
	if err != nil {
		return err
	}

	var req workflow.CreateInstanceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid request body: "+err.Error())
	}

	req.InitiatedBy = actorID

	detail, err := h.engine.CreateInstance(c.Context(), req)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(detail)
}

func (h *APIHandlers) GetInstance(c fiber.Ctx) error {
	detail, err := h.engine.GetInstance(c.Context(), c.Params("id"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(detail)
}

func (h *APIHandlers) UpdateInstance(c fiber.Ctx) error {
	var req workflow.UpdateInstanceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid request body: "+err.Error())
	}

	instance, err := h.engine.UpdateInstance(c.Context(), c.Params("id"), req)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(instance)
}

type cancelInstanceRequest struct {
	Reason string `json:"reason"`
}

func (h *APIHandlers) CancelInstance(c fiber.Ctx) error {
	actorID, err := requireActor(c)
	if err != nil {
		return err
	}

	var req cancelInstanceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid request body: "+err.Error())
	}

	instance, err := h.engine.CancelInstance(c.Context(), c.Params("id"), req.Reason, actorID)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(instance)
}

type completeStepRequest struct {
	OutputData map[string]any `json:"output_data"`
}

func (h *APIHandlers) CompleteStep(c fiber.Ctx) error {
	actorID, err := requireActor(c)
	if err != nil {
		return err
	}

	stepNumber, err := strconv.Atoi(c.Params("stepNumber"))
	if err != nil {
		return badRequest(c, "invalid step number: "+err.Error())
	}

	var req completeStepRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid request body: "+err.Error())
	}

	result, err := h.engine.CompleteStep(c.Context(), c.Params("id"), stepNumber, req.OutputData, actorID)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(result)
}

// Approvals

type respondToApprovalRequest struct {
	Decision    models.ApprovalDecision `json:"decision"`
	Comment     string                  `json:"comment"`
	Attachments []string                `json:"attachments"`
}

func (h *APIHandlers) RespondToApproval(c fiber.Ctx) error {
	actorID, err := requireActor(c)
	if err != nil {
		return err
	}

	var req respondToApprovalRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid request body: "+err.Error())
	}

	result, err := h.engine.RespondToApproval(c.Context(), c.Params("id"), req.Decision, req.Comment, req.Attachments, actorID)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(result)
}

type assignApproverRequest struct {
	ApproverID string `json:"approver_id"`
}

func (h *APIHandlers) AssignApprover(c fiber.Ctx) error {
	actorID, err := requireActor(c)
	if err != nil {
		return err
	}

	var req assignApproverRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid request body: "+err.Error())
	}

	approval, err := h.engine.AssignApprover(c.Context(), c.Params("id"), req.ApproverID, actorID)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(approval)
}

// Comments

type addCommentRequest struct {
	Body     string   `json:"body"`
	Mentions []string `json:"mentions"`
}

func (h *APIHandlers) AddComment(c fiber.Ctx) error {
	actorID, err := requireActor(c)
	if err != nil {
		return err
	}

	var req addCommentRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid request body: "+err.Error())
	}

	comment, err := h.engine.AddComment(c.Context(), c.Params("id"), actorID, req.Body, req.Mentions)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(comment)
}

// Onboarding

type startOnboardingRequest struct {
	FormData map[string]any `json:"form_data"`
}

func (h *APIHandlers) StartOnboarding(c fiber.Ctx) error {
	actorID, err := requireActor(c)
	if err != nil {
		return err
	}

	var req startOnboardingRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid request body: "+err.Error())
	}

	detail, err := h.process.StartOnboarding(c.Context(), req.FormData, actorID)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(detail)
}

func (h *APIHandlers) CompleteEmployeeDetails(c fiber.Ctx) error {
	actorID, err := requireActor(c)
	if err != nil {
		return err
	}

	result, err := h.process.CompleteEmployeeDetails(c.Context(), c.Params("id"), actorID)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(result)
}

type thirdPartyAccountsRequest struct {
	Accounts []onboarding.ThirdPartyAccountInput `json:"accounts"`
}

func (h *APIHandlers) AddThirdPartyAccounts(c fiber.Ctx) error {
	actorID, err := requireActor(c)
	if err != nil {
		return err
	}

	var req thirdPartyAccountsRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid request body: "+err.Error())
	}

	result, err := h.process.AddThirdPartyAccounts(c.Context(), c.Params("id"), req.Accounts, actorID)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(result)
}

type assignManagerRequest struct {
	ManagerID string `json:"manager_id"`
}

func (h *APIHandlers) AssignManagerApproval(c fiber.Ctx) error {
	actorID, err := requireActor(c)
	if err != nil {
		return err
	}

	var req assignManagerRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid request body: "+err.Error())
	}

	approval, err := h.process.AssignManagerApproval(c.Context(), c.Params("id"), req.ManagerID, actorID)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(approval)
}

func parsePage(c fiber.Ctx) (limit, offset int, err error) {
	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			return 0, 0, err
		}
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err = strconv.Atoi(offsetStr)
		if err != nil {
			return 0, 0, err
		}
	}

	return limit, offset, nil
}
