package progressRoutes

import (
	progressController "lms/controllers/progress"
	"lms/middleware"
	progressValidator "lms/validators/progress"

	"github.com/gofiber/fiber/v2"
)

func SetupProgressRoutes(app *fiber.App) {
	progressGroup := app.Group("/progress", middleware.JWTMiddleware)

	progressGroup.Post("/update", progressValidator.UpdateProgress(), progressController.UpdateContentProgress)
	progressGroup.Get("/overall", progressController.GetOverallProgress)
	progressGroup.Get("/module/:moduleId", progressController.GetModuleProgress)
	progressGroup.Post("/module/:moduleId/access", progressController.TrackModuleAccess)
	progressGroup.Get("/content/:contentId", progressController.GetContentProgress)
	progressGroup.Get("/content/:contentId/access", progressController.CheckContentAccess)

	progressGroup.Post("/recalculate", middleware.AdminOnly, progressController.RecalculateProgress)
}
