package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"eddo_server/core/port/out"
)

// HealthHandler serves liveness and readiness probes. Readiness checks the
// document store.
type HealthHandler struct {
	store out.DocumentStore
}

func NewHealthHandler(store out.DocumentStore) *HealthHandler {
	return &HealthHandler{store: store}
}

func (h *HealthHandler) Register(app *fiber.App) {
	app.Get("/health", h.Health)
	app.Get("/ready", h.Ready)
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{}
	status := "ready"
	code := fiber.StatusOK

	if err := h.store.Ping(ctx); err != nil {
		checks["couchdb"] = "unhealthy: " + err.Error()
		status = "not ready"
		code = fiber.StatusServiceUnavailable
	} else {
		checks["couchdb"] = "healthy"
	}

	return c.Status(code).JSON(fiber.Map{
		"status": status,
		"checks": checks,
	})
}
