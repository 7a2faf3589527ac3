package controllers

import (
	"coursehub/middleware"
	"coursehub/services/apperr"

	"github.com/gofiber/fiber/v2"
)

func EnrollInCourse(c *fiber.Ctx) error {
	userID, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	courseID := c.Locals("courseID").(uint)

	enrollment, err := engine.Enroll(c.UserContext(), userID, courseID)
	if apperr.IsCode(err, apperr.CodeAlreadyEnrolled) {
		return middleware.JsonResponse(c, fiber.StatusConflict, false, "User already enrolled in this course!", fiber.Map{
			"code":       apperr.CodeAlreadyEnrolled,
			"enrollment": enrollment,
		})
	}
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}

	return middleware.JsonResponse(c, fiber.StatusCreated, true, "Enrolled in course successfully!", enrollment)
}

func GetEnrollments(c *fiber.Ctx) error {
	userID, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}

	enrollments, err := engine.ListEnrollments(c.UserContext(), userID)
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Enrollments fetched successfully!", fiber.Map{
		"enrollments": enrollments,
		"total":       len(enrollments),
	})
}

func GetProgress(c *fiber.Ctx) error {
	userID, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	courseID := c.Locals("courseID").(uint)

	enrollment, err := engine.GetProgress(c.UserContext(), userID, courseID)
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Progress fetched successfully!", enrollment)
}
