package progress

import (
	"errors"
	"log"
	"strconv"

	"lms/config"
	"lms/database"
	"lms/middleware"
	"lms/models"
	"lms/models/course"
	"lms/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// ProgressUpdateRequest is the validated body for progress updates
type ProgressUpdateRequest struct {
	ContentID    uint  `json:"content_id"`
	IsCompleted  *bool `json:"is_completed"`
	TimeSpent    *int  `json:"time_spent"`
	LastPosition *int  `json:"last_position"`
}

// ApplyCompletionSideEffects runs after a content item is completed: refresh
// the percentage, and when the whole course is done, stamp the enrollment,
// issue the certificate and notify the student. Each step logs and moves on;
// the progress write already succeeded.
func ApplyCompletionSideEffects(userID uint) float64 {
	pct, err := RecalculateEnrollmentProgress(userID)
	if err != nil {
		log.Printf("Progress recalculation failed for user %d: %v", userID, err)
		return 0
	}

	done, err := CheckCourseCompletion(userID)
	if err != nil || !done {
		return pct
	}

	if err := MarkCourseCompleted(userID); err != nil {
		log.Printf("Failed to mark course completed for user %d: %v", userID, err)
		return pct
	}

	// A certificate row means this completion was already announced; later
	// updates on a completed course must not re-issue or re-notify. A failed
	// issuance leaves no row, so the next completion check retries it here.
	db := database.Database.Db
	var existing course.Certificate
	if err := db.Where("user_id = ? AND is_deleted = ?", userID, false).
		First(&existing).Error; err == nil {
		return 100.00
	}

	cert, err := utils.IssueCertificate(userID)
	if err != nil {
		log.Printf("Certificate issuance failed for user %d: %v", userID, err)
		return 100.00
	}

	var user models.User
	if err := db.First(&user, userID).Error; err == nil {
		utils.SendCourseCompletionEmail(user.Email, user.Name, cert.CertificateURL, cert.CertificateNumber)
	}
	return 100.00
}

// UpdateContentProgress records progress on a content item, enforcing the
// sequential-access gate
func UpdateContentProgress(c *fiber.Ctx) error {
	userID, _ := c.Locals("userId").(uint)
	req, ok := c.Locals("validatedProgress").(*ProgressUpdateRequest)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
	}

	allowed, reason := CanAccessContent(userID, req.ContentID)
	if !allowed {
		return middleware.JsonResponse(c, fiber.StatusForbidden, false, reason, nil)
	}

	prog, err := UpdateProgress(userID, req.ContentID, req.IsCompleted, req.TimeSpent, req.LastPosition)
	if err != nil {
		log.Printf("Failed to update progress for user %d content %d: %v", userID, req.ContentID, err)
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to update progress!", nil)
	}

	// Every update moves the last-accessed pointer to this content's module
	var content course.Content
	if err := database.Database.Db.First(&content, req.ContentID).Error; err == nil {
		if err := UpdateLastAccessed(userID, content.ModuleID); err != nil {
			log.Printf("Failed to track last accessed module for user %d: %v", userID, err)
		}
	}

	pct := ApplyCompletionSideEffects(userID)

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Progress updated!", fiber.Map{
		"progress":            prog,
		"progress_percentage": pct,
	})
}

func findEnrollment(userID uint) (*course.Enrollment, error) {
	var enrollment course.Enrollment
	err := database.Database.Db.
		Where("user_id = ? AND is_deleted = ?", userID, false).
		First(&enrollment).Error
	if err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// CheckContentAccess reports whether the caller may open a content item
func CheckContentAccess(c *fiber.Ctx) error {
	userID, _ := c.Locals("userId").(uint)
	contentID, err := strconv.ParseUint(c.Params("contentId"), 10, 64)
	if err != nil {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid content id!", nil)
	}

	allowed, reason := CanAccessContent(userID, uint(contentID))
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Access evaluated!", fiber.Map{
		"content_id": contentID,
		"allowed":    allowed,
		"reason":     reason,
	})
}

// GetContentProgress returns the caller's progress row for one content item
func GetContentProgress(c *fiber.Ctx) error {
	userID, _ := c.Locals("userId").(uint)
	contentID, err := strconv.ParseUint(c.Params("contentId"), 10, 64)
	if err != nil {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid content id!", nil)
	}

	var prog course.UserProgress
	err = database.Database.Db.
		Where("user_id = ? AND content_id = ?", userID, uint(contentID)).
		First(&prog).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return middleware.JsonResponse(c, fiber.StatusOK, true, "No progress yet!", nil)
	}
	if err != nil {
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to fetch progress!", nil)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Progress fetched!", prog)
}

// GetModuleProgress lists the module's published contents with the caller's
// progress and access status for each
func GetModuleProgress(c *fiber.Ctx) error {
	userID, _ := c.Locals("userId").(uint)
	moduleID, err := strconv.ParseUint(c.Params("moduleId"), 10, 64)
	if err != nil {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid module id!", nil)
	}

	db := database.Database.Db
	var contents []course.Content
	if err := db.Where("module_id = ? AND is_published = ? AND is_deleted = ?",
		uint(moduleID), true, false).
		Order("order_index ASC").Find(&contents).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to fetch module contents!", nil)
	}

	items := make([]fiber.Map, 0, len(contents))
	for i := range contents {
		var prog course.UserProgress
		completed := false
		if err := db.Where("user_id = ? AND content_id = ?", userID, contents[i].ID).
			First(&prog).Error; err == nil {
			completed = prog.IsCompleted
		}
		allowed, _ := CanAccessContent(userID, contents[i].ID)
		items = append(items, fiber.Map{
			"content_id":   contents[i].ID,
			"title":        contents[i].Title,
			"content_type": contents[i].ContentType,
			"order_index":  contents[i].OrderIndex,
			"is_completed": completed,
			"is_accessible": allowed,
		})
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Module progress fetched!", fiber.Map{
		"module_id": moduleID,
		"contents":  items,
	})
}

// GetOverallProgress returns the caller's enrollment summary: percentage,
// completion counts, completion timestamp and certificate if issued
func GetOverallProgress(c *fiber.Ctx) error {
	userID, _ := c.Locals("userId").(uint)

	enrollment, err := findEnrollment(userID)
	if err != nil {
		return middleware.JsonResponse(c, fiber.StatusNotFound, false, "Enrollment not found!", nil)
	}

	db := database.Database.Db
	data := fiber.Map{
		"progress_percentage":     enrollment.ProgressPercentage,
		"enrolled_at":             enrollment.EnrolledAt,
		"completed_at":            enrollment.CompletedAt,
		"last_accessed_module_id": enrollment.LastAccessedModule,
		"last_accessed_at":        enrollment.LastAccessedAt,
	}

	var cert course.Certificate
	if err := db.Where("user_id = ? AND is_deleted = ?", userID, false).
		First(&cert).Error; err == nil {
		data["certificate"] = fiber.Map{
			"certificate_number": cert.CertificateNumber,
			"certificate_url":    cert.CertificateURL,
			"verify_url":         utils.CreateShortURL(config.AppConfig.FrontendURL, cert.CertificateNumber),
			"issued_at":          cert.IssuedAt,
		}
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Progress fetched!", data)
}

// TrackModuleAccess records the module the caller just opened
func TrackModuleAccess(c *fiber.Ctx) error {
	userID, _ := c.Locals("userId").(uint)
	moduleID, err := strconv.ParseUint(c.Params("moduleId"), 10, 64)
	if err != nil {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid module id!", nil)
	}

	var module course.Module
	if err := database.Database.Db.
		Where("id = ? AND is_deleted = ?", uint(moduleID), false).
		First(&module).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusNotFound, false, "Module not found!", nil)
	}

	if err := UpdateLastAccessed(userID, uint(moduleID)); err != nil {
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to track module access!", nil)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Module access recorded!", nil)
}

// RecalculateProgress recomputes every enrollment's percentage. Admin only,
// used after publishing or unpublishing content.
func RecalculateProgress(c *fiber.Ctx) error {
	updated, err := RecalculateAllEnrollments()
	if err != nil {
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Recalculation failed!", nil)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Progress recalculated!", fiber.Map{
		"enrollments_updated": updated,
	})
}
