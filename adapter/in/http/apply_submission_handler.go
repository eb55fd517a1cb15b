package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"apply_server/core/domain"
	"apply_server/core/port/in"
	"apply_server/core/port/out"
	"apply_server/pkg/apperr"
)

// SubmissionHandler starts submissions and polls browser sessions. Submissions
// default to asynchronous dispatch through the queue; sync=true runs them
// inline, which is mainly useful for the email channel.
type SubmissionHandler struct {
	submissions in.SubmissionService
	producer    out.MessageProducer
}

func NewSubmissionHandler(submissions in.SubmissionService, producer out.MessageProducer) *SubmissionHandler {
	return &SubmissionHandler{
		submissions: submissions,
		producer:    producer,
	}
}

func (h *SubmissionHandler) Register(router fiber.Router) {
	router.Post("/applications/:id/submit", h.Submit)
	router.Get("/applications/:id/sessions/:session_id", h.PollSession)
}

type submitRequest struct {
	CVID          string `json:"cv_id,omitempty"`
	CoverLetterID string `json:"cover_letter_id,omitempty"`
	UsageType     string `json:"usage_type,omitempty"`
}

func (h *SubmissionHandler) Submit(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	var req submitRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperr.BadRequest("malformed request body")
		}
	}
	appID := c.Params("id")

	if c.QueryBool("sync", false) {
		result, err := h.submissions.Submit(c.Context(), &in.SubmitRequest{
			UserID:         userID,
			ApplicationID:  appID,
			CVID:           req.CVID,
			CoverLetterID:  req.CoverLetterID,
			UsageType:      domain.UsageEventType(req.UsageType),
			IdempotencyKey: idemKey(c),
		})
		if err != nil {
			return err
		}
		return OK(c, result)
	}

	job := &out.SubmissionJob{
		IdempotencyKey: idemKey(c),
		UserID:         userID,
		ApplicationID:  appID,
		CVID:           req.CVID,
		CoverLetterID:  req.CoverLetterID,
		UsageType:      req.UsageType,
	}
	if job.IdempotencyKey == "" {
		job.IdempotencyKey = uuid.New().String()
	}
	if err := h.producer.PublishSubmission(c.Context(), job); err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(APIResponse{
		Success: true,
		Data:    fiber.Map{"status": "queued", "application_id": appID},
	})
}

func (h *SubmissionHandler) PollSession(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	sessionID := c.Params("session_id")
	if sessionID == "" {
		return apperr.MissingField("session_id")
	}
	result, err := h.submissions.PollSession(c.Context(), userID, c.Params("id"), sessionID)
	if err != nil {
		return err
	}
	return OK(c, result)
}
