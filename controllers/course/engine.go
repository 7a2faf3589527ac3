package controllers

import (
	"coursehub/middleware"
	"coursehub/services/enrollment"

	"github.com/gofiber/fiber/v2"
)

var engine *enrollment.Service

// SetEngine installs the enrollment engine used by the course handlers
func SetEngine(s *enrollment.Service) {
	engine = s
}

func currentUser(c *fiber.Ctx) (uint, bool) {
	userID, ok := c.Locals("userId").(uint)
	return userID, ok && userID != 0
}

func unauthorized(c *fiber.Ctx) error {
	return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Unauthorized!", nil)
}
