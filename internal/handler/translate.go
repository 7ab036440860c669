package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/imgtranslate/api/internal/model"
	"github.com/imgtranslate/api/internal/service"
	"github.com/imgtranslate/api/pkg/response"
)

type TranslateHandler struct {
	translator *service.TranslateService
	jobs       *service.JobService
	validator  *validator.Validate
}

func NewTranslateHandler(translator *service.TranslateService, jobs *service.JobService, v *validator.Validate) *TranslateHandler {
	return &TranslateHandler{
		translator: translator,
		jobs:       jobs,
		validator:  v,
	}
}

// Translate handles POST /api/translate
func (h *TranslateHandler) Translate(c *fiber.Ctx) error {
	var req model.TranslateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if req.Image == "" {
		return response.ValidationError(c, "Image is required", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	item, err := req.ToItem()
	if err != nil {
		return writeError(c, err)
	}

	record, err := h.translator.Translate(c.UserContext(), item)
	if err != nil {
		return writeError(c, err)
	}

	return response.OK(c, record)
}

// Batch handles POST /api/translate/batch
func (h *TranslateHandler) Batch(c *fiber.Ctx) error {
	items, err := h.decodeBatch(c)
	if err != nil {
		return writeError(c, err)
	}

	report, err := h.translator.TranslateBatch(c.UserContext(), items, nil)
	if err != nil {
		return writeError(c, err)
	}

	// Item failures are reported in the body, never through the status
	return response.OK(c, report)
}

// BatchAsync handles POST /api/translate/batch/async
func (h *TranslateHandler) BatchAsync(c *fiber.Ctx) error {
	items, err := h.decodeBatch(c)
	if err != nil {
		return writeError(c, err)
	}

	result, err := h.jobs.StartBatch(c.UserContext(), items)
	if err != nil {
		return writeError(c, err)
	}

	return response.Accepted(c, result)
}

func (h *TranslateHandler) decodeBatch(c *fiber.Ctx) ([]model.BatchItem, error) {
	var req model.BatchTranslateRequest
	if err := c.BodyParser(&req); err != nil {
		return nil, &badRequest{message: "Invalid request body"}
	}

	if len(req.Images) == 0 {
		return nil, model.ErrEmptyBatch
	}
	if err := h.validator.Struct(&req); err != nil {
		return nil, &badRequest{message: "Validation failed", details: formatValidationErrors(err)}
	}

	return req.ToItems()
}
