package cron

import (
	"crypto/subtle"
	"strings"

	"lms/config"
	"lms/middleware"
	"lms/utils"

	"github.com/gofiber/fiber/v2"
)

// cronSecret returns the shared secret guarding the cron endpoints. Falls
// back to the JWT key so the endpoints are never left open by default.
func cronSecret() string {
	if config.AppConfig.CronSecret != "" {
		return config.AppConfig.CronSecret
	}
	return config.AppConfig.JWTKey
}

// VerifyCronAuth accepts either an X-Cron-Secret header or a bearer token
// matching the cron secret. External schedulers hit these endpoints, so
// normal user JWTs are not accepted.
func VerifyCronAuth(c *fiber.Ctx) error {
	provided := c.Get("X-Cron-Secret")
	if provided == "" {
		provided = strings.TrimPrefix(c.Get("Authorization"), "Bearer ")
	}
	if subtle.ConstantTimeCompare([]byte(provided), []byte(cronSecret())) != 1 {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Invalid cron credentials!", nil)
	}
	return c.Next()
}

// ExpirePayments triggers the payment expiry sweep on demand. The same sweep
// runs on the in-process schedule; this endpoint exists for external
// schedulers and operational re-runs.
func ExpirePayments(c *fiber.Ctx) error {
	expired := utils.ExpireOldPayments()
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Expiry sweep completed!", fiber.Map{
		"payments_expired": expired,
	})
}

// RetryWebhooks triggers the webhook retry sweep on demand
func RetryWebhooks(c *fiber.Ctx) error {
	eligible := utils.RetryFailedWebhooks()
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Retry sweep completed!", fiber.Map{
		"payments_eligible": eligible,
	})
}
