package controllers

import (
	"coursehub/middleware"
	courseValidator "coursehub/validators/course"

	"github.com/gofiber/fiber/v2"
)

// GradeAnswers applies a grader's marks to a student's quiz entry
func GradeAnswers(c *fiber.Ctx) error {
	graderID, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	courseID := c.Locals("courseID").(uint)
	contentID := c.Locals("contentID").(uint)
	req := c.Locals("validatedGrades").(*courseValidator.GradeRequest)

	entry, err := engine.GradeAnswers(c.UserContext(), graderID, req.StudentID, courseID, contentID, req.Grades)
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Answers graded successfully!", entry)
}

func ListPendingGrading(c *fiber.Ctx) error {
	graderID, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	courseID := c.Locals("courseID").(uint)

	pending, err := engine.ListPendingGrading(c.UserContext(), graderID, courseID)
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Pending submissions fetched successfully!", fiber.Map{
		"pending": pending,
		"total":   len(pending),
	})
}
