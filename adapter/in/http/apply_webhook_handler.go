package http

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"apply_server/core/domain"
	"apply_server/core/port/in"
	"apply_server/core/port/out"
	"apply_server/pkg/apperr"
	"apply_server/pkg/logger"
)

// WebhookHandler receives asynchronous callbacks from the automation worker.
// Deliveries are idempotent by session id: replays return 200 without
// reprocessing.
type WebhookHandler struct {
	submissions in.SubmissionService
	events      out.WebhookEventRepository
	log         *logger.Logger
}

func NewWebhookHandler(submissions in.SubmissionService, events out.WebhookEventRepository) *WebhookHandler {
	return &WebhookHandler{
		submissions: submissions,
		events:      events,
		log:         logger.WithComponent("webhook"),
	}
}

func (h *WebhookHandler) Register(router fiber.Router) {
	router.Post("/webhooks/automation", h.AutomationCallback)
}

type automationCallbackRequest struct {
	SessionID string         `json:"session_id"`
	Status    string         `json:"status"`
	Payload   map[string]any `json:"payload,omitempty"`
}

func (h *WebhookHandler) AutomationCallback(c *fiber.Ctx) error {
	var req automationCallbackRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("malformed callback body")
	}
	if req.SessionID == "" || req.Status == "" {
		return apperr.MissingField("session_id")
	}

	err := h.events.Insert(c.Context(), &domain.WebhookEvent{
		SessionID: req.SessionID,
		Source:    "browser-worker",
		Payload:   req.Payload,
		CreatedAt: time.Now(),
	})
	if apperr.IsConflict(err) {
		h.log.Debug("duplicate automation callback: session=%s", req.SessionID)
		return OK(c, fiber.Map{"status": "already_processed"})
	}
	if err != nil {
		return err
	}

	if err := h.submissions.HandleWorkerCallback(c.Context(), req.SessionID, req.Status, req.Payload); err != nil {
		return err
	}
	return OK(c, fiber.Map{"status": "processed"})
}
