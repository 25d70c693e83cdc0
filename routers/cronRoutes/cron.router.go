package cronRoutes

import (
	cronController "lms/controllers/cron"

	"github.com/gofiber/fiber/v2"
)

func SetupCronRoutes(app *fiber.App) {
	cronGroup := app.Group("/cron", cronController.VerifyCronAuth)

	cronGroup.Post("/expire-payments", cronController.ExpirePayments)
	cronGroup.Post("/retry-webhooks", cronController.RetryWebhooks)
}
