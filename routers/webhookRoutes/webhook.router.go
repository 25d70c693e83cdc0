package webhookRoutes

import (
	webhookController "lms/controllers/webhook"
	"lms/middleware"

	"github.com/gofiber/fiber/v2"
)

func SetupWebhookRoutes(app *fiber.App) {
	webhookGroup := app.Group("/webhooks")

	// Provider-facing: authenticated by the raw-body HMAC, not a JWT
	webhookGroup.Post("/formbuilder", webhookController.FormBuilderWebhook)

	webhookGroup.Post("/formbuilder/test", middleware.JWTMiddleware, middleware.AdminOnly, webhookController.TestWebhook)
	webhookGroup.Get("/diagnostics/form/:formId", middleware.JWTMiddleware, middleware.AdminOnly, webhookController.FormDiagnostics)
	webhookGroup.Get("/diagnostics/user/:email", middleware.JWTMiddleware, middleware.AdminOnly, webhookController.UserDiagnostics)
}
