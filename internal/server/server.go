// Package server assembles the fiber application.
package server

import (
	"errors"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/imgtranslate/api/internal/handler"
	ws "github.com/imgtranslate/api/internal/websocket"
	"github.com/imgtranslate/api/pkg/response"
)

// Options configures the app shell.
type Options struct {
	BodyLimitMB int
	// AccessLog enables the request logger middleware
	AccessLog bool
}

// Routes bundles the handlers mounted by New.
type Routes struct {
	Translate *handler.TranslateHandler
	History   *handler.HistoryHandler
	Jobs      *handler.JobHandler
	Health    *handler.HealthHandler
	Hub       *ws.Hub
}

// New builds the fiber app with middleware and every route registered.
func New(opts Options, r Routes) *fiber.App {
	bodyLimit := opts.BodyLimitMB
	if bodyLimit <= 0 {
		bodyLimit = 50
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
		BodyLimit:    bodyLimit * 1024 * 1024,
	})

	// Global middleware
	app.Use(recover.New())
	if opts.AccessLog {
		app.Use(logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
		}))
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	app.Get("/", r.Health.Root)
	app.Get("/health", r.Health.Health)

	api := app.Group("/api")
	api.Get("/health", r.Health.Health)

	// Translation routes
	translate := api.Group("/translate")
	translate.Post("/", r.Translate.Translate)
	translate.Post("/batch", r.Translate.Batch)
	translate.Post("/batch/async", r.Translate.BatchAsync)

	// History routes
	history := api.Group("/history")
	history.Get("/", r.History.List)
	history.Delete("/", r.History.Clear)
	history.Get("/:id", r.History.Get)
	history.Delete("/:id", r.History.Delete)

	// Async job routes
	jobs := api.Group("/jobs")
	jobs.Get("/:jobId", r.Jobs.Status)
	jobs.Get("/:jobId/result", r.Jobs.Result)
	jobs.Post("/:jobId/cancel", r.Jobs.Cancel)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		r.Hub.HandleConnection(c, c.Params("jobId"))
	}))

	return app
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	}

	errCode := response.CodeServiceError
	switch code {
	case fiber.StatusNotFound:
		errCode = response.CodeNotFound
	case fiber.StatusRequestEntityTooLarge, fiber.StatusBadRequest:
		errCode = response.CodeValidationError
	}

	return response.Error(c, code, errCode, message, nil)
}
