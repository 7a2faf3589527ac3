package controllers

import (
	"coursehub/middleware"

	"github.com/gofiber/fiber/v2"
)

// RunReconcile re-evaluates completion of incomplete enrollments on demand;
// limit is the page size of the sweep.
func RunReconcile(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 500)
	if limit < 1 {
		return middleware.ValidationErrorResponse(c, map[string]string{"limit": "Limit must be greater than 0!"})
	}

	completed, err := engine.SweepIncomplete(c.UserContext(), limit)
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Reconciliation finished!", fiber.Map{"completed": completed})
}
