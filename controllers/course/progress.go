package controllers

import (
	"time"

	"coursehub/middleware"
	"coursehub/services/grading"
	courseValidator "coursehub/validators/course"

	"github.com/gofiber/fiber/v2"
)

func SubmitQuiz(c *fiber.Ctx) error {
	userID, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	courseID := c.Locals("courseID").(uint)
	contentID := c.Locals("contentID").(uint)
	submission := c.Locals("submission").(grading.Submission)

	outcome, err := engine.SubmitQuiz(c.UserContext(), userID, courseID, contentID, submission)
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Quiz submitted successfully!", outcome)
}

func RecordProgress(c *fiber.Ctx) error {
	userID, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	courseID := c.Locals("courseID").(uint)
	contentID := c.Locals("contentID").(uint)
	req := c.Locals("validatedProgress").(*courseValidator.ProgressRequest)

	entry, err := engine.RecordProgress(c.UserContext(), userID, courseID, contentID,
		*req.Progress, time.Duration(req.TimeSpent)*time.Second, req.Action)
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Progress recorded successfully!", entry)
}
