package courseValidator

import (
	"strings"

	"coursehub/middleware"
	"coursehub/models/course"
	"coursehub/services/completion"
	"coursehub/services/grading"

	"github.com/gofiber/fiber/v2"
)

// CourseParam validates :course_id and stores it as Locals("courseID")
func CourseParam() fiber.Handler {
	return func(c *fiber.Ctx) error {
		courseID, ok := parseID(c, "course_id")
		if !ok {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid Course ID!", nil)
		}
		c.Locals("courseID", courseID)
		return c.Next()
	}
}

// ContentParam validates :course_id and :content_id
func ContentParam() fiber.Handler {
	return func(c *fiber.Ctx) error {
		courseID, ok := parseID(c, "course_id")
		if !ok {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid Course ID!", nil)
		}
		contentID, ok := parseID(c, "content_id")
		if !ok {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid Content ID!", nil)
		}
		c.Locals("courseID", courseID)
		c.Locals("contentID", contentID)
		return c.Next()
	}
}

// SubmitQuizRequest is the body of a quiz submission
type SubmitQuizRequest struct {
	Answers map[uint]course.AnswerValue `json:"answers" validate:"required"`
}

// SubmitQuiz validates a quiz submission body and stores the grading.Submission
func SubmitQuiz() fiber.Handler {
	return func(c *fiber.Ctx) error {
		req := new(SubmitQuizRequest)
		if ok, err := bind(c, req); !ok {
			return err
		}
		c.Locals("submission", grading.Submission(req.Answers))
		return c.Next()
	}
}

// ProgressRequest is a player progress report for a tutorial or live session
type ProgressRequest struct {
	Progress  *float64 `json:"progress" validate:"required,gte=0,lte=100"`
	TimeSpent int64    `json:"time_spent" validate:"gte=0"` // seconds since the last report
	Action    string   `json:"action" validate:"omitempty,oneof=view resume complete"`
}

// RecordProgress validates a progress report
func RecordProgress() fiber.Handler {
	return func(c *fiber.Ctx) error {
		req := new(ProgressRequest)
		if ok, err := bind(c, req); !ok {
			return err
		}
		if req.Action == "" {
			req.Action = completion.ActionView
		}
		c.Locals("validatedProgress", req)
		return c.Next()
	}
}

// GradeRequest carries a grader's marks for one student's quiz entry
type GradeRequest struct {
	StudentID uint                  `json:"student_id" validate:"required"`
	Grades    []grading.ManualGrade `json:"grades" validate:"required,min=1,dive"`
}

// GradeAnswers validates a manual grading request
func GradeAnswers() fiber.Handler {
	return func(c *fiber.Ctx) error {
		req := new(GradeRequest)
		if ok, err := bind(c, req); !ok {
			return err
		}
		c.Locals("validatedGrades", req)
		return c.Next()
	}
}

// VerificationCode validates the :code parameter of the public certificate lookup
func VerificationCode() fiber.Handler {
	return func(c *fiber.Ctx) error {
		code := strings.ToLower(strings.TrimSpace(c.Params("code")))
		if err := validate.Var(code, "required,alphanum,max=64"); err != nil {
			return middleware.ValidationErrorResponse(c, map[string]string{"code": "Verification code is invalid!"})
		}
		c.Locals("verificationCode", code)
		return c.Next()
	}
}
