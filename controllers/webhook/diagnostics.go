package webhook

import (
	"lms/database"
	"lms/middleware"
	"lms/models"
	"lms/models/course"

	"github.com/gofiber/fiber/v2"
)

// FormDiagnostics reports how a form id maps into the system: the linked
// exercise, its content item, and submission counts. Admin tooling for
// debugging webhook deliveries that land in the wrong place.
func FormDiagnostics(c *fiber.Ctx) error {
	db := database.Database.Db
	formID := c.Params("formId")

	var exercise course.Exercise
	if err := db.Where("form_id = ? AND is_deleted = ?", formID, false).
		First(&exercise).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusNotFound, false, "Form is not linked to any exercise!", fiber.Map{
			"form_id": formID,
		})
	}

	data := fiber.Map{
		"form_id":                    formID,
		"exercise_id":                exercise.ID,
		"content_id":                 exercise.ContentID,
		"form_title":                 exercise.FormTitle,
		"allow_multiple_submissions": exercise.AllowMultipleSubmissions,
	}

	var content course.Content
	if err := db.First(&content, exercise.ContentID).Error; err == nil {
		data["content_title"] = content.Title
		data["content_published"] = content.IsPublished
		data["module_id"] = content.ModuleID
	}

	var submissionCount int64
	db.Model(&course.ExerciseSubmission{}).
		Where("exercise_id = ?", exercise.ID).
		Count(&submissionCount)
	data["submission_count"] = submissionCount

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Form diagnostics fetched!", data)
}

// UserDiagnostics reports a student's webhook-relevant state by email:
// enrollment, last accessed module, and recorded submissions. Used to debug
// why a delivery for this student failed to match.
func UserDiagnostics(c *fiber.Ctx) error {
	db := database.Database.Db
	email := c.Params("email")

	var user models.User
	if err := db.Where("email = ? AND is_deleted = ?", email, false).
		First(&user).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusNotFound, false, "No user with that email!", nil)
	}

	data := fiber.Map{
		"user_id":     user.ID,
		"email":       user.Email,
		"is_enrolled": user.IsEnrolled,
	}

	var enrollment course.Enrollment
	if err := db.Where("user_id = ? AND is_deleted = ?", user.ID, false).
		First(&enrollment).Error; err == nil {
		data["enrollment"] = fiber.Map{
			"enrolled_at":             enrollment.EnrolledAt,
			"progress_percentage":     enrollment.ProgressPercentage,
			"completed_at":            enrollment.CompletedAt,
			"last_accessed_module_id": enrollment.LastAccessedModule,
		}
	}

	var submissions []course.ExerciseSubmission
	db.Where("user_id = ?", user.ID).
		Order("webhook_received_at DESC").Limit(20).
		Find(&submissions)
	data["submissions"] = submissions

	return middleware.JsonResponse(c, fiber.StatusOK, true, "User diagnostics fetched!", data)
}
