package courseRoutes

import (
	controllers "coursehub/controllers/course"
	"coursehub/middleware"
	validators "coursehub/validators/course"

	"github.com/gofiber/fiber/v2"
)

// SetupCourseRoutes sets up the enrollment, progress, grading and certificate routes
func SetupCourseRoutes(app *fiber.App) {
	courseGroup := app.Group("/course", middleware.JWTMiddleware)

	// Enrollment and progress views
	courseGroup.Post("/:course_id/enroll", validators.CourseParam(), controllers.EnrollInCourse)
	courseGroup.Get("/:course_id/progress", validators.CourseParam(), controllers.GetProgress)

	// Content progress and quiz submission
	courseGroup.Post("/:course_id/content/:content_id/progress", validators.ContentParam(), validators.RecordProgress(), controllers.RecordProgress)
	courseGroup.Post("/:course_id/content/:content_id/quiz/submit", validators.ContentParam(), validators.SubmitQuiz(), controllers.SubmitQuiz)

	// Manual grading (course owner and assistants)
	courseGroup.Get("/:course_id/grading/pending", validators.CourseParam(), controllers.ListPendingGrading)
	courseGroup.Post("/:course_id/content/:content_id/grade", validators.ContentParam(), validators.GradeAnswers(), controllers.GradeAnswers)

	// Certificates
	courseGroup.Get("/:course_id/certificate", validators.CourseParam(), controllers.GetCertificate)
	courseGroup.Post("/:course_id/certificate", validators.CourseParam(), controllers.IssueCertificate)

	userGroup := app.Group("/user", middleware.JWTMiddleware)
	userGroup.Get("/enrollments", controllers.GetEnrollments)

	// Public certificate verification
	app.Get("/certificate/verify/:code", validators.VerificationCode(), controllers.VerifyCertificate)
}
