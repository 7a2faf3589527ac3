package courseRoutes

import (
	controllers "coursehub/controllers/course"
	"coursehub/middleware"
	"coursehub/models"

	"github.com/gofiber/fiber/v2"
)

// SetupAdminCourseRoutes sets up the operator routes
func SetupAdminCourseRoutes(app *fiber.App) {
	adminGroup := app.Group("/admin/course", middleware.JWTMiddleware, middleware.RequireRole(models.RoleAdmin))

	adminGroup.Post("/reconcile", controllers.RunReconcile)
}
