package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/imgtranslate/api/internal/service"
	"github.com/imgtranslate/api/internal/storage"
	"github.com/imgtranslate/api/pkg/response"
)

type HistoryHandler struct {
	service *service.HistoryService
}

func NewHistoryHandler(svc *service.HistoryService) *HistoryHandler {
	return &HistoryHandler{service: svc}
}

// List handles GET /api/history
func (h *HistoryHandler) List(c *fiber.Ctx) error {
	// Unparseable values fall back to the defaults
	limit := c.QueryInt("limit", storage.DefaultListLimit)
	offset := c.QueryInt("offset", 0)

	records, err := h.service.List(c.UserContext(), limit, offset)
	if err != nil {
		return writeError(c, err)
	}

	return response.OK(c, records)
}

// Get handles GET /api/history/:id
func (h *HistoryHandler) Get(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return response.ValidationError(c, "Invalid ID", nil)
	}

	record, err := h.service.Get(c.UserContext(), id)
	if err != nil {
		return writeError(c, err)
	}

	return response.OK(c, record)
}

// Delete handles DELETE /api/history/:id
func (h *HistoryHandler) Delete(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return response.ValidationError(c, "Invalid ID", nil)
	}

	result, err := h.service.Delete(c.UserContext(), id)
	if err != nil {
		return writeError(c, err)
	}
	if !result.Deleted {
		return response.NotFound(c, "Translation not found")
	}

	return response.OK(c, result)
}

// Clear handles DELETE /api/history
func (h *HistoryHandler) Clear(c *fiber.Ctx) error {
	result, err := h.service.Clear(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}

	return response.OK(c, result)
}

func parseID(c *fiber.Ctx) (int64, error) {
	return strconv.ParseInt(c.Params("id"), 10, 64)
}
