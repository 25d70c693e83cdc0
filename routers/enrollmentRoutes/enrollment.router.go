package enrollmentRoutes

import (
	enrollmentController "lms/controllers/enrollment"
	"lms/middleware"
	enrollmentValidator "lms/validators/enrollment"

	"github.com/gofiber/fiber/v2"
)

func SetupEnrollmentRoutes(app *fiber.App) {
	enrollmentGroup := app.Group("/enrollment")

	// Gateway callback: unauthenticated, the signature is the credential.
	// iPay redirects the browser here, so both verbs are accepted.
	enrollmentGroup.Get("/callback", enrollmentController.PaymentCallback)
	enrollmentGroup.Post("/callback", enrollmentController.PaymentCallback)

	enrollmentGroup.Post("/initiate", middleware.JWTMiddleware, enrollmentController.InitiateEnrollment)
	enrollmentGroup.Get("/status", middleware.JWTMiddleware, enrollmentController.GetEnrollmentStatus)
	enrollmentGroup.Post("/signature", middleware.JWTMiddleware, enrollmentValidator.SubmitSignature(), enrollmentController.SubmitSignature)

	enrollmentGroup.Post("/refund", middleware.JWTMiddleware, middleware.AdminOnly, enrollmentValidator.RefundPayment(), enrollmentController.RefundPayment)
	enrollmentGroup.Get("/test-callback", middleware.JWTMiddleware, middleware.AdminOnly, enrollmentController.TestCallback)
}
