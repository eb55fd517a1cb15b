package http

import (
	"github.com/gofiber/fiber/v2"

	"apply_server/core/port/in"
)

// NotificationHandler exposes the in-app notification feed.
type NotificationHandler struct {
	notifications in.NotificationService
}

func NewNotificationHandler(notifications in.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

func (h *NotificationHandler) Register(router fiber.Router) {
	n := router.Group("/notifications")
	n.Get("/", h.List)
	n.Get("/unread-count", h.CountUnread)
	n.Post("/read-all", h.MarkAllRead)
	n.Post("/:id/read", h.MarkRead)
}

func (h *NotificationHandler) List(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	limit := c.QueryInt("limit", 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}
	items, err := h.notifications.List(c.Context(), userID, c.QueryBool("unread", false), limit)
	if err != nil {
		return err
	}
	return OK(c, items)
}

func (h *NotificationHandler) CountUnread(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	count, err := h.notifications.CountUnread(c.Context(), userID)
	if err != nil {
		return err
	}
	return OK(c, fiber.Map{"unread": count})
}

func (h *NotificationHandler) MarkRead(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	if err := h.notifications.MarkRead(c.Context(), userID, c.Params("id")); err != nil {
		return err
	}
	return OK(c, fiber.Map{"read": true})
}

func (h *NotificationHandler) MarkAllRead(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	count, err := h.notifications.MarkAllRead(c.Context(), userID)
	if err != nil {
		return err
	}
	return OK(c, fiber.Map{"marked": count})
}
