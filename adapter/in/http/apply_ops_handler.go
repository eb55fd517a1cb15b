package http

import (
	"github.com/gofiber/fiber/v2"

	"apply_server/core/port/out"
	"apply_server/pkg/apperr"
)

// OpsHandler exposes operator endpoints: dead-letter inspection and worker
// metrics. It is mounted behind the service-auth middleware, not user JWT.
type OpsHandler struct {
	deadLetters out.DeadLetterRepository
	metrics     func() any
}

// NewOpsHandler wires the operator surface. metrics may be nil when the
// process runs without a worker pool.
func NewOpsHandler(deadLetters out.DeadLetterRepository, metrics func() any) *OpsHandler {
	return &OpsHandler{
		deadLetters: deadLetters,
		metrics:     metrics,
	}
}

func (h *OpsHandler) Register(router fiber.Router) {
	ops := router.Group("/ops")
	ops.Get("/dead-letters", h.ListDeadLetters)
	ops.Delete("/dead-letters/:id", h.DeleteDeadLetter)
	ops.Get("/metrics", h.Metrics)
}

func (h *OpsHandler) ListDeadLetters(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	if limit < 1 || limit > 500 {
		limit = 50
	}
	items, err := h.deadLetters.List(c.Context(), c.Query("topic"), limit)
	if err != nil {
		return err
	}
	total, err := h.deadLetters.Count(c.Context())
	if err != nil {
		return err
	}
	return OK(c, fiber.Map{
		"items": items,
		"total": total,
	})
}

func (h *OpsHandler) DeleteDeadLetter(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return apperr.MissingField("id")
	}
	if err := h.deadLetters.Delete(c.Context(), id); err != nil {
		return err
	}
	return OK(c, fiber.Map{"deleted": true})
}

func (h *OpsHandler) Metrics(c *fiber.Ctx) error {
	if h.metrics == nil {
		return OK(c, fiber.Map{"worker": "not running"})
	}
	return OK(c, h.metrics())
}
