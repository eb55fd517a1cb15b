// Package http holds the Fiber handlers for the API surface.
package http

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"apply_server/pkg/apperr"
)

// APIResponse is the standard success envelope.
type APIResponse struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Timestamp string `json:"timestamp"`
}

// GetUserID extracts the authenticated user id from fiber locals.
func GetUserID(c *fiber.Ctx) (string, error) {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return "", apperr.Unauthorized("not authenticated")
	}
	return userID, nil
}

// OK writes a 200 envelope.
func OK(c *fiber.Ctx, data any) error {
	return envelope(c, fiber.StatusOK, data)
}

// Created writes a 201 envelope.
func Created(c *fiber.Ctx, data any) error {
	return envelope(c, fiber.StatusCreated, data)
}

func envelope(c *fiber.Ctx, status int, data any) error {
	requestID, _ := c.Locals("request_id").(string)
	return c.Status(status).JSON(APIResponse{
		Success:   true,
		Data:      data,
		RequestID: requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
