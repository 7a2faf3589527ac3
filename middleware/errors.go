package middleware

import (
	"context"
	"errors"
	"log"

	"coursehub/services/apperr"

	"github.com/gofiber/fiber/v2"
)

// ErrorResponse writes an engine error as the JSON envelope. The data field
// carries the error code and its metadata.
func ErrorResponse(c *fiber.Ctx, err error) error {
	code := apperr.GetCode(err)
	if code == apperr.CodeUnknown {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return JsonResponse(c, fiber.StatusServiceUnavailable, false, "Request timed out, try again!", nil)
		}
		log.Printf("[API] %s %s: %v", c.Method(), c.Path(), err)
		return JsonResponse(c, fiber.StatusInternalServerError, false, "Something went wrong!", nil)
	}

	data := fiber.Map{"code": code}
	var appErr *apperr.Error
	if errors.As(err, &appErr) && len(appErr.Metadata) > 0 {
		data["details"] = appErr.Metadata
	}
	if code == apperr.CodeStorageUnavailable {
		log.Printf("[API] %s %s: %v", c.Method(), c.Path(), err)
	}
	return JsonResponse(c, code.HTTPStatus(), false, apperr.Message(err), data)
}
