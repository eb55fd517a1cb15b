package http

import (
	"github.com/gofiber/fiber/v2"

	"apply_server/core/port/in"
	"apply_server/pkg/apperr"
)

// TailoringHandler drives CV tailoring and message analysis.
type TailoringHandler struct {
	tailoring  in.TailoringService
	classifier in.ClassificationService
}

func NewTailoringHandler(tailoring in.TailoringService, classifier in.ClassificationService) *TailoringHandler {
	return &TailoringHandler{
		tailoring:  tailoring,
		classifier: classifier,
	}
}

func (h *TailoringHandler) Register(router fiber.Router) {
	router.Post("/tailor", h.Tailor)
	router.Post("/analyze", h.Analyze)
}

func (h *TailoringHandler) Tailor(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	var req in.TailorRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("malformed request body")
	}
	if req.CVID == "" {
		return apperr.MissingField("cv_id")
	}
	if req.JobID == "" {
		return apperr.MissingField("job_id")
	}
	req.UserID = userID

	result, err := h.tailoring.Tailor(c.Context(), &req)
	if err != nil {
		return err
	}
	return OK(c, result)
}

func (h *TailoringHandler) Analyze(c *fiber.Ctx) error {
	if _, err := GetUserID(c); err != nil {
		return err
	}
	var req in.AnalyzeRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("malformed request body")
	}
	if req.Subject == "" && req.Body == "" {
		return apperr.MissingField("subject")
	}

	result, err := h.classifier.Analyze(c.Context(), &req)
	if err != nil {
		return err
	}
	return OK(c, result)
}
