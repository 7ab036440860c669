package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type HealthHandler struct {
	provider interface{ IsConfigured() bool }
	database Pinger
	redis    Pinger
}

func NewHealthHandler(provider interface{ IsConfigured() bool }, database, redis Pinger) *HealthHandler {
	return &HealthHandler{
		provider: provider,
		database: database,
		redis:    redis,
	}
}

// Root handles GET /
func (h *HealthHandler) Root(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"timestamp": time.Now().Unix()})
}

// Health handles GET /health and GET /api/health
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	services := fiber.Map{
		"gemini":   h.provider != nil && h.provider.IsConfigured(),
		"database": ping(ctx, h.database),
		"redis":    ping(ctx, h.redis),
	}

	status := "ok"
	if !services["database"].(bool) {
		status = "degraded"
	}

	return c.JSON(fiber.Map{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"services":  services,
	})
}

func ping(ctx context.Context, p Pinger) bool {
	return p != nil && p.Ping(ctx) == nil
}
