package handler

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/imgtranslate/api/internal/client"
	"github.com/imgtranslate/api/internal/model"
	"github.com/imgtranslate/api/internal/service"
	"github.com/imgtranslate/api/internal/storage"
	"github.com/imgtranslate/api/pkg/response"
)

// badRequest is a request the handler rejected before any service call.
type badRequest struct {
	message string
	details interface{}
}

func (e *badRequest) Error() string {
	return e.message
}

func formatValidationErrors(err error) interface{} {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		errs := make(map[string]string)
		for _, e := range validationErrors {
			errs[fieldPath(e.Namespace())] = e.Tag()
		}
		return errs
	}
	return nil
}

// fieldPath drops the struct name: "BatchTranslateRequest.Images[0].Image" -> "Images[0].Image".
func fieldPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}

// writeError maps domain errors onto the response envelope.
func writeError(c *fiber.Ctx, err error) error {
	var br *badRequest
	if errors.As(err, &br) {
		return response.ValidationError(c, br.message, br.details)
	}
	if model.IsInputError(err) {
		return response.ValidationError(c, inputMessage(err), nil)
	}

	if pe, ok := client.AsProviderError(err); ok {
		if pe.Kind == client.KindConfiguration {
			return response.ProviderUnavailable(c, pe.Message)
		}
		details := fiber.Map{"kind": pe.Kind}
		if pe.Code != 0 {
			details["code"] = pe.Code
		}
		return response.AIError(c, pe.Message, details)
	}

	switch {
	case errors.Is(err, storage.ErrNotFound):
		return response.NotFound(c, "Translation not found")
	case errors.Is(err, service.ErrJobNotFound):
		return response.NotFound(c, "Job not found")
	case errors.Is(err, service.ErrJobFinished):
		return response.Conflict(c, "Job already finished")
	case errors.Is(err, service.ErrJobNotFinished):
		return response.Conflict(c, "Job not finished yet")
	}

	return response.ServiceError(c, err.Error())
}

func inputMessage(err error) string {
	switch {
	case errors.Is(err, model.ErrImageRequired):
		return "Image is required"
	case errors.Is(err, model.ErrEmptyBatch):
		return "Images array is required"
	case errors.Is(err, model.ErrInvalidImageEncoding):
		return "Image must be base64 encoded"
	case errors.Is(err, model.ErrUnsupportedMimeType):
		return "Image must have an image/* MIME type"
	}
	return err.Error()
}
