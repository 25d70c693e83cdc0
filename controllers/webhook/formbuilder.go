package webhook

import (
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"lms/config"
	"lms/controllers/progress"
	"lms/database"
	"lms/middleware"
	"lms/models"
	"lms/models/course"
	"lms/utils"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var validate = validator.New()

// Sentinel errors for exercise resolution. Telling these apart matters for
// diagnostics: "not found" means the form id was never linked, "ambiguous"
// means the fallback heuristic matched more than one exercise.
var (
	errExerciseNotFound  = errors.New("no exercise matches this form submission")
	errExerciseAmbiguous = errors.New("multiple exercises match this form submission")
)

// FormBuilderPayload is the parsed 123FormBuilder webhook body
type FormBuilderPayload struct {
	FormID       string                 `json:"form_id"`
	SubmissionID string                 `json:"submission_id" validate:"required"`
	Email        string                 `json:"email" validate:"required,email"`
	SubmittedAt  string                 `json:"submitted_at"`
	Fields       map[string]interface{} `json:"fields"`
}

// resolveExercise maps a webhook to its exercise row. Primary key is the
// form id; when the form was never linked, fall back to the single published
// EXERCISE content in the module the student last opened.
func resolveExercise(db *gorm.DB, formID string, userID uint) (*course.Exercise, error) {
	if formID != "" {
		var exercise course.Exercise
		err := db.Where("form_id = ? AND is_deleted = ?", formID, false).First(&exercise).Error
		if err == nil {
			return &exercise, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		log.Printf("Form %s not linked to any exercise, trying last-accessed fallback", formID)
	}

	var enrollment course.Enrollment
	if err := db.Where("user_id = ? AND is_deleted = ?", userID, false).
		First(&enrollment).Error; err != nil {
		return nil, errExerciseNotFound
	}
	if enrollment.LastAccessedModule == nil {
		return nil, errExerciseNotFound
	}

	var contents []course.Content
	if err := db.Where("module_id = ? AND content_type = ? AND is_published = ? AND is_deleted = ?",
		*enrollment.LastAccessedModule, course.ContentTypeExercise, true, false).
		Find(&contents).Error; err != nil {
		return nil, err
	}

	switch len(contents) {
	case 0:
		return nil, errExerciseNotFound
	case 1:
		var exercise course.Exercise
		err := db.Where("content_id = ? AND is_deleted = ?", contents[0].ID, false).
			First(&exercise).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errExerciseNotFound
		}
		if err != nil {
			return nil, err
		}
		log.Printf("Exercise %d resolved via last-accessed module %d for user %d",
			exercise.ID, *enrollment.LastAccessedModule, userID)
		return &exercise, nil
	default:
		return nil, errExerciseAmbiguous
	}
}

// recordSubmission upserts the (user, exercise) submission row. A duplicate
// delivery for a single-submission exercise is kept as-is; exercises that
// allow multiple submissions overwrite the row in place.
func recordSubmission(db *gorm.DB, exercise *course.Exercise, userID uint, payload *FormBuilderPayload, submittedAt time.Time) (*course.ExerciseSubmission, bool, error) {
	data, err := json.Marshal(payload.Fields)
	if err != nil {
		data = []byte("{}")
	}

	var existing course.ExerciseSubmission
	err = db.Where("exercise_id = ? AND user_id = ?", exercise.ID, userID).
		First(&existing).Error
	if err == nil {
		if !exercise.AllowMultipleSubmissions {
			log.Printf("Duplicate submission %s for exercise %d user %d ignored",
				payload.SubmissionID, exercise.ID, userID)
			return &existing, false, nil
		}
		updateErr := db.Model(&existing).Updates(map[string]interface{}{
			"form_submission_id":  payload.SubmissionID,
			"submission_data":     datatypes.JSON(data),
			"submitted_at":        submittedAt,
			"webhook_received_at": time.Now().UTC(),
		}).Error
		if updateErr != nil {
			return nil, false, updateErr
		}
		return &existing, true, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	submission := course.ExerciseSubmission{
		ExerciseID:        exercise.ID,
		UserID:            userID,
		FormSubmissionID:  payload.SubmissionID,
		SubmissionData:    datatypes.JSON(data),
		SubmittedAt:       submittedAt,
		WebhookReceivedAt: time.Now().UTC(),
	}
	if err := db.Create(&submission).Error; err != nil {
		return nil, false, err
	}
	return &submission, true, nil
}

// parseSubmittedAt reads the provider's submission timestamp. The provider
// sends both RFC3339 and timezone-less ISO-8601 (treated as UTC); anything
// else falls back to receipt time.
func parseSubmittedAt(raw string) time.Time {
	if raw != "" {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			return parsed.UTC()
		}
		if parsed, err := time.Parse("2006-01-02T15:04:05", raw); err == nil {
			return parsed.UTC()
		}
		log.Printf("Unparseable submitted_at %q, using receipt time", raw)
	}
	return time.Now().UTC()
}

// FormBuilderWebhook ingests a 123FormBuilder submission webhook, records the
// submission and advances the student's progress on the linked content.
func FormBuilderWebhook(c *fiber.Ctx) error {
	body := c.Body()

	secret := config.AppConfig.FormBuilderWebhookSecret
	if secret != "" {
		signature := c.Get("X-123FormBuilder-Signature")
		if !utils.VerifyFormBuilderSignature(body, signature, secret) {
			log.Printf("Form webhook rejected: invalid signature")
			return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Invalid webhook signature!", nil)
		}
	} else {
		log.Printf("Warning: form webhook signature verification disabled (no secret configured)")
	}

	var payload FormBuilderPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid webhook payload!", nil)
	}
	if payload.FormID == "" {
		payload.FormID = c.Query("form_id")
	}
	if err := validate.Struct(&payload); err != nil {
		log.Printf("Form webhook payload invalid: %v", err)
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Webhook payload failed validation!", nil)
	}

	return processSubmission(c, &payload)
}

// processSubmission runs the post-verification webhook pipeline: resolve the
// user, enrollment and exercise, store the submission and advance progress.
func processSubmission(c *fiber.Ctx, payload *FormBuilderPayload) error {
	db := database.Database.Db

	submittedAt := parseSubmittedAt(payload.SubmittedAt)

	var user models.User
	if err := db.Where("email = ? AND is_deleted = ?",
		strings.ToLower(strings.TrimSpace(payload.Email)), false).
		First(&user).Error; err != nil {
		log.Printf("Form webhook for unknown email %s", payload.Email)
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "No user matches the submission email!", nil)
	}

	var enrollment course.Enrollment
	if err := db.Where("user_id = ? AND is_deleted = ?", user.ID, false).
		First(&enrollment).Error; err != nil {
		log.Printf("Form webhook for unenrolled user %d", user.ID)
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "User is not enrolled!", nil)
	}

	exercise, err := resolveExercise(db, payload.FormID, user.ID)
	if err != nil {
		switch {
		case errors.Is(err, errExerciseAmbiguous):
			log.Printf("Form webhook ambiguous for form %s user %d", payload.FormID, user.ID)
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Submission matches multiple exercises!", nil)
		case errors.Is(err, errExerciseNotFound):
			log.Printf("Form webhook unmatched for form %s user %d", payload.FormID, user.ID)
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Submission matches no exercise!", nil)
		default:
			log.Printf("Form webhook exercise lookup failed: %v", err)
			return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to resolve exercise!", nil)
		}
	}

	submission, recorded, err := recordSubmission(db, exercise, user.ID, payload, submittedAt)
	if err != nil {
		log.Printf("Failed to record submission for exercise %d user %d: %v", exercise.ID, user.ID, err)
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to record submission!", nil)
	}

	// Completing the content and its downstream effects must not fail the
	// webhook: the submission is already stored and the provider would
	// otherwise redeliver.
	completed := true
	if _, err := progress.UpdateProgress(user.ID, exercise.ContentID, &completed, nil, nil); err != nil {
		log.Printf("Failed to mark exercise content %d complete for user %d: %v",
			exercise.ContentID, user.ID, err)
	} else {
		progress.ApplyCompletionSideEffects(user.ID)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Submission processed!", fiber.Map{
		"submission_id": submission.FormSubmissionID,
		"exercise_id":   exercise.ID,
		"recorded":      recorded,
	})
}

// TestWebhook lets an admin exercise the webhook pipeline with a synthetic
// payload, bypassing signature verification.
func TestWebhook(c *fiber.Ctx) error {
	var payload FormBuilderPayload
	if err := c.BodyParser(&payload); err != nil {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
	}
	if err := validate.Struct(&payload); err != nil {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Payload failed validation!", nil)
	}

	log.Printf("Admin test webhook for form %s", payload.FormID)
	return processSubmission(c, &payload)
}
