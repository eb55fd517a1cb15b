package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"apply_server/core/domain"
	"apply_server/core/port/in"
	"apply_server/pkg/apperr"
)

// ApplicationHandler exposes the lifecycle operations.
type ApplicationHandler struct {
	apps in.ApplicationService
}

func NewApplicationHandler(apps in.ApplicationService) *ApplicationHandler {
	return &ApplicationHandler{apps: apps}
}

func (h *ApplicationHandler) Register(router fiber.Router) {
	apps := router.Group("/applications")
	apps.Get("/", h.List)
	apps.Post("/", h.Create)
	apps.Get("/stats", h.Stats)
	apps.Get("/follow-ups", h.FollowUpsNeeded)
	apps.Get("/interviews", h.UpcomingInterviews)
	apps.Get("/:id", h.Get)
	apps.Delete("/:id", h.Delete)
	apps.Patch("/:id/status", h.UpdateStatus)
	apps.Patch("/:id/notes", h.UpdateNotes)
	apps.Patch("/:id/priority", h.UpdatePriority)
	apps.Post("/:id/interviews", h.ScheduleInterview)
	apps.Post("/:id/follow-up", h.SetFollowUp)
	apps.Post("/:id/communications", h.AddCommunication)
	apps.Post("/:id/documents", h.AddDocument)
	apps.Post("/:id/tasks", h.AddTask)
	apps.Post("/:id/tasks/:index/complete", h.CompleteTask)
}

// idemKey reads the caller's idempotency key, minting one when absent.
func idemKey(c *fiber.Ctx) string {
	if key := c.Get("Idempotency-Key"); key != "" {
		return key
	}
	return uuid.New().String()
}

func (h *ApplicationHandler) List(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}

	filter := &domain.ApplicationFilter{
		Company: c.Query("company"),
		Search:  c.Query("search"),
	}
	if v := c.Query("status"); v != "" {
		status := domain.ApplicationStatus(v)
		if !status.IsValid() {
			return apperr.InvalidInput("status", "unknown status")
		}
		filter.Status = &status
	}
	if v := c.Query("priority"); v != "" {
		priority := domain.ApplicationPriority(v)
		filter.Priority = &priority
	}
	if v := c.Query("has_response"); v != "" {
		has := v == "true"
		filter.HasResponse = &has
	}
	if v := c.Query("has_interviews"); v != "" {
		has := v == "true"
		filter.HasInterviews = &has
	}
	if v := c.Query("needs_follow_up"); v != "" {
		needs := v == "true"
		filter.NeedsFollowUp = &needs
	}
	if v := c.Query("applied_after"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return apperr.InvalidInput("applied_after", "expected RFC3339 timestamp")
		}
		filter.AppliedAfter = &t
	}
	if v := c.Query("applied_before"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return apperr.InvalidInput("applied_before", "expected RFC3339 timestamp")
		}
		filter.AppliedBefore = &t
	}

	page := c.QueryInt("page", 1)
	pageSize := c.QueryInt("page_size", 20)
	sort := domain.ApplicationSort(c.Query("sort", string(domain.SortCreatedDesc)))

	result, err := h.apps.List(c.Context(), userID, filter, page, pageSize, sort)
	if err != nil {
		return err
	}
	return OK(c, result)
}

func (h *ApplicationHandler) Get(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	app, err := h.apps.Get(c.Context(), userID, c.Params("id"))
	if err != nil {
		return err
	}
	return OK(c, app)
}

func (h *ApplicationHandler) Create(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	var req in.CreateApplicationRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("malformed request body")
	}
	if req.JobID == "" {
		return apperr.MissingField("job_id")
	}
	app, err := h.apps.Create(c.Context(), userID, &req)
	if err != nil {
		return err
	}
	return Created(c, app)
}

func (h *ApplicationHandler) Delete(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	if err := h.apps.SoftDelete(c.Context(), userID, c.Params("id"), idemKey(c)); err != nil {
		return err
	}
	return OK(c, fiber.Map{"deleted": true})
}

type updateStatusRequest struct {
	Status domain.ApplicationStatus `json:"status"`
	Reason string                   `json:"reason,omitempty"`
}

func (h *ApplicationHandler) UpdateStatus(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	var req updateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("malformed request body")
	}
	app, err := h.apps.UpdateStatus(c.Context(), userID, c.Params("id"), req.Status, req.Reason, idemKey(c))
	if err != nil {
		return err
	}
	return OK(c, app)
}

func (h *ApplicationHandler) UpdateNotes(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	var req struct {
		Notes string `json:"notes"`
	}
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("malformed request body")
	}
	if err := h.apps.UpdateNotes(c.Context(), userID, c.Params("id"), req.Notes, idemKey(c)); err != nil {
		return err
	}
	return OK(c, fiber.Map{"updated": true})
}

func (h *ApplicationHandler) UpdatePriority(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	var req struct {
		Priority domain.ApplicationPriority `json:"priority"`
	}
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("malformed request body")
	}
	if err := h.apps.UpdatePriority(c.Context(), userID, c.Params("id"), req.Priority, idemKey(c)); err != nil {
		return err
	}
	return OK(c, fiber.Map{"updated": true})
}

func (h *ApplicationHandler) ScheduleInterview(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	var iv domain.Interview
	if err := c.BodyParser(&iv); err != nil {
		return apperr.BadRequest("malformed request body")
	}
	if iv.ScheduledAt.IsZero() {
		return apperr.MissingField("scheduled_at")
	}
	if err := h.apps.ScheduleInterview(c.Context(), userID, c.Params("id"), &iv, idemKey(c)); err != nil {
		return err
	}
	return Created(c, iv)
}

func (h *ApplicationHandler) SetFollowUp(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	var req struct {
		At time.Time `json:"at"`
	}
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("malformed request body")
	}
	if req.At.IsZero() {
		return apperr.MissingField("at")
	}
	if err := h.apps.SetFollowUp(c.Context(), userID, c.Params("id"), req.At, idemKey(c)); err != nil {
		return err
	}
	return OK(c, fiber.Map{"follow_up": req.At})
}

func (h *ApplicationHandler) AddCommunication(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	var comm domain.Communication
	if err := c.BodyParser(&comm); err != nil {
		return apperr.BadRequest("malformed request body")
	}
	if err := h.apps.AddCommunication(c.Context(), userID, c.Params("id"), &comm, idemKey(c)); err != nil {
		return err
	}
	return Created(c, comm)
}

func (h *ApplicationHandler) AddDocument(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	var doc domain.Document
	if err := c.BodyParser(&doc); err != nil {
		return apperr.BadRequest("malformed request body")
	}
	if doc.FileID == "" {
		return apperr.MissingField("file_id")
	}
	if err := h.apps.AddDocument(c.Context(), userID, c.Params("id"), &doc, idemKey(c)); err != nil {
		return err
	}
	return Created(c, doc)
}

func (h *ApplicationHandler) AddTask(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	var task domain.Task
	if err := c.BodyParser(&task); err != nil {
		return apperr.BadRequest("malformed request body")
	}
	if task.Title == "" {
		return apperr.MissingField("title")
	}
	if err := h.apps.AddTask(c.Context(), userID, c.Params("id"), &task, idemKey(c)); err != nil {
		return err
	}
	return Created(c, task)
}

func (h *ApplicationHandler) CompleteTask(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	index, err := c.ParamsInt("index")
	if err != nil || index < 0 {
		return apperr.InvalidInput("index", "expected a non-negative task index")
	}
	if err := h.apps.CompleteTask(c.Context(), userID, c.Params("id"), index, idemKey(c)); err != nil {
		return err
	}
	return OK(c, fiber.Map{"completed": true})
}

func (h *ApplicationHandler) Stats(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	stats, err := h.apps.Stats(c.Context(), userID)
	if err != nil {
		return err
	}
	return OK(c, stats)
}

func (h *ApplicationHandler) FollowUpsNeeded(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	apps, err := h.apps.FollowUpsNeeded(c.Context(), userID)
	if err != nil {
		return err
	}
	return OK(c, apps)
}

func (h *ApplicationHandler) UpcomingInterviews(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	apps, err := h.apps.UpcomingInterviews(c.Context(), userID, c.QueryInt("days", 7))
	if err != nil {
		return err
	}
	return OK(c, apps)
}
