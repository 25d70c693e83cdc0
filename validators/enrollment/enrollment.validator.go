package enrollmentValidator

import (
	"strings"

	enrollmentController "lms/controllers/enrollment"
	"lms/middleware"

	"github.com/gofiber/fiber/v2"
)

// SubmitSignature validates the signature submission body
func SubmitSignature() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqData := new(enrollmentController.SignatureRequest)
		if err := c.BodyParser(reqData); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
		}

		errors := make(map[string]string)

		data := strings.TrimSpace(reqData.SignatureData)
		if data == "" {
			errors["signature_data"] = "Signature data is required!"
		} else if len(data) > 2*1024*1024 {
			errors["signature_data"] = "Signature image is too large!"
		}

		if len(errors) > 0 {
			return middleware.ValidationErrorResponse(c, errors)
		}

		c.Locals("validatedSignature", reqData)
		return c.Next()
	}
}

// RefundPayment validates the admin refund body
func RefundPayment() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqData := new(enrollmentController.RefundRequest)
		if err := c.BodyParser(reqData); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
		}

		errors := make(map[string]string)

		if reqData.PaymentID == 0 {
			errors["payment_id"] = "Payment id is required!"
		}
		if len(strings.TrimSpace(reqData.Reason)) < 5 {
			errors["reason"] = "Refund reason must be at least 5 characters long!"
		}

		if len(errors) > 0 {
			return middleware.ValidationErrorResponse(c, errors)
		}

		c.Locals("validatedRefund", reqData)
		return c.Next()
	}
}
