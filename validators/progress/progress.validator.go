package progressValidator

import (
	progressController "lms/controllers/progress"
	"lms/middleware"

	"github.com/gofiber/fiber/v2"
)

// UpdateProgress validates the progress update body
func UpdateProgress() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqData := new(progressController.ProgressUpdateRequest)
		if err := c.BodyParser(reqData); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
		}

		errors := make(map[string]string)

		if reqData.ContentID == 0 {
			errors["content_id"] = "Content id is required!"
		}
		if reqData.TimeSpent != nil && *reqData.TimeSpent < 0 {
			errors["time_spent"] = "Time spent cannot be negative!"
		}
		if reqData.LastPosition != nil && *reqData.LastPosition < 0 {
			errors["last_position"] = "Last position cannot be negative!"
		}
		if reqData.IsCompleted == nil && reqData.TimeSpent == nil && reqData.LastPosition == nil {
			errors["body"] = "At least one progress field is required!"
		}

		if len(errors) > 0 {
			return middleware.ValidationErrorResponse(c, errors)
		}

		c.Locals("validatedProgress", reqData)
		return c.Next()
	}
}
