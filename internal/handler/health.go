package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jobdeck/api/internal/store"
)

type HealthHandler struct {
	store     *store.JobStore
	startedAt time.Time
}

func NewHealthHandler(s *store.JobStore) *HealthHandler {
	return &HealthHandler{
		store:     s,
		startedAt: time.Now(),
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	status := "OK"
	if err := h.store.Ping(c.Context()); err != nil {
		status = "DEGRADED"
	}

	return c.JSON(fiber.Map{
		"status": status,
		"uptime": time.Since(h.startedAt).Seconds(),
	})
}
