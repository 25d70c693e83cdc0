package progress

import (
	"errors"
	"log"
	"math"
	"time"

	"lms/database"
	"lms/models/course"

	"gorm.io/gorm"
)

// round2 rounds to 2 decimal places, the precision stored on enrollments
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func isCompletedBy(db *gorm.DB, userID uint, contentID uint) bool {
	var p course.UserProgress
	err := db.Where("user_id = ? AND content_id = ? AND is_completed = ?",
		userID, contentID, true).First(&p).Error
	return err == nil
}

// CanAccessContent evaluates the sequential-access gate for one content item.
//
// Rules: the first item of the first published module is always open; any
// other item requires its predecessor in module order to be completed; the
// first item of a later module requires the LAST published item of the
// previous published module (an empty previous module gates nothing).
// Content the user already completed stays accessible for review.
func CanAccessContent(userID uint, contentID uint) (bool, string) {
	db := database.Database.Db

	var content course.Content
	if err := db.Where("id = ? AND is_published = ? AND is_deleted = ?",
		contentID, true, false).First(&content).Error; err != nil {
		return false, "Content not found or not published"
	}

	if isCompletedBy(db, userID, contentID) {
		return true, "Content already completed"
	}

	var module course.Module
	if err := db.Where("id = ? AND is_published = ? AND is_deleted = ?",
		content.ModuleID, true, false).First(&module).Error; err != nil {
		return false, "Module not found or not published"
	}

	// Predecessor within the same module, if any
	var prevContent course.Content
	err := db.Where("module_id = ? AND order_index < ? AND is_published = ? AND is_deleted = ?",
		content.ModuleID, content.OrderIndex, true, false).
		Order("order_index DESC").First(&prevContent).Error

	if err == nil {
		if isCompletedBy(db, userID, prevContent.ID) {
			return true, "Previous content completed"
		}
		return false, "Complete the previous content first"
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, "Unable to evaluate content access"
	}

	// First item of its module: gate on the previous published module
	var prevModule course.Module
	err = db.Where("course_id = ? AND order_index < ? AND is_published = ? AND is_deleted = ?",
		module.CourseID, module.OrderIndex, true, false).
		Order("order_index DESC").First(&prevModule).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return true, "First content of the course"
	}
	if err != nil {
		return false, "Unable to evaluate content access"
	}

	var lastContent course.Content
	err = db.Where("module_id = ? AND is_published = ? AND is_deleted = ?",
		prevModule.ID, true, false).
		Order("order_index DESC").First(&lastContent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Previous module has nothing published, nothing to gate on
		return true, "Previous module has no published content"
	}
	if err != nil {
		return false, "Unable to evaluate content access"
	}

	if isCompletedBy(db, userID, lastContent.ID) {
		return true, "Previous module completed"
	}
	return false, "Complete the previous module first"
}

// UpdateProgress upserts the user's progress row for a content item.
//
// TimeSpent accumulates across calls. IsCompleted may flip in either
// direction, but CompletedAt is only stamped on the first completion and is
// retained if the item is later marked incomplete.
func UpdateProgress(userID uint, contentID uint, isCompleted *bool, timeSpent *int, lastPosition *int) (*course.UserProgress, error) {
	db := database.Database.Db

	var prog course.UserProgress
	err := db.Where("user_id = ? AND content_id = ?", userID, contentID).First(&prog).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		prog = course.UserProgress{UserID: userID, ContentID: contentID}
	} else if err != nil {
		return nil, err
	}

	if timeSpent != nil && *timeSpent > 0 {
		prog.TimeSpent += *timeSpent
	}
	if lastPosition != nil {
		prog.LastPosition = lastPosition
	}
	if isCompleted != nil {
		prog.IsCompleted = *isCompleted
		if *isCompleted && prog.CompletedAt == nil {
			now := time.Now().UTC()
			prog.CompletedAt = &now
		}
	}

	if err := db.Save(&prog).Error; err != nil {
		return nil, err
	}
	return &prog, nil
}

// publishedContentQuery selects the ids of published content in published
// modules. Built fresh per use: a gorm builder must not be reused after it
// has executed.
func publishedContentQuery(db *gorm.DB) *gorm.DB {
	return db.Model(&course.Content{}).
		Select("contents.id").
		Joins("JOIN modules ON modules.id = contents.module_id").
		Where("contents.is_published = ? AND contents.is_deleted = ?", true, false).
		Where("modules.is_published = ? AND modules.is_deleted = ?", true, false)
}

// publishedContentCounts returns (completed by user, total) over all published
// content of published modules
func publishedContentCounts(db *gorm.DB, userID uint) (int64, int64, error) {
	var total int64
	if err := publishedContentQuery(db).Count(&total).Error; err != nil {
		return 0, 0, err
	}

	var completed int64
	err := db.Model(&course.UserProgress{}).
		Where("user_id = ? AND is_completed = ?", userID, true).
		Where("content_id IN (?)", publishedContentQuery(db)).
		Count(&completed).Error
	if err != nil {
		return 0, 0, err
	}
	return completed, total, nil
}

// RecalculateEnrollmentProgress recomputes and persists the enrollment's
// progress percentage from published content only. Returns the new value.
func RecalculateEnrollmentProgress(userID uint) (float64, error) {
	db := database.Database.Db

	var enrollment course.Enrollment
	if err := db.Where("user_id = ? AND is_deleted = ?", userID, false).
		First(&enrollment).Error; err != nil {
		return 0, err
	}

	completed, total, err := publishedContentCounts(db, userID)
	if err != nil {
		return 0, err
	}

	pct := 0.0
	if total > 0 {
		pct = round2(float64(completed) / float64(total) * 100)
	}

	if err := db.Model(&enrollment).Update("progress_percentage", pct).Error; err != nil {
		return 0, err
	}
	return pct, nil
}

// CheckCourseCompletion reports whether the user has completed every published
// content item. A course with no published content is never complete.
func CheckCourseCompletion(userID uint) (bool, error) {
	completed, total, err := publishedContentCounts(database.Database.Db, userID)
	if err != nil {
		return false, err
	}
	return total > 0 && completed >= total, nil
}

// MarkCourseCompleted stamps the enrollment as completed. One-way: an already
// stamped CompletedAt is never overwritten.
func MarkCourseCompleted(userID uint) error {
	db := database.Database.Db

	var enrollment course.Enrollment
	if err := db.Where("user_id = ? AND is_deleted = ?", userID, false).
		First(&enrollment).Error; err != nil {
		return err
	}
	if enrollment.CompletedAt != nil {
		return nil
	}

	now := time.Now().UTC()
	return db.Model(&enrollment).Updates(map[string]interface{}{
		"completed_at":        now,
		"progress_percentage": 100.00,
	}).Error
}

// UpdateLastAccessed records which module the user most recently opened
func UpdateLastAccessed(userID uint, moduleID uint) error {
	db := database.Database.Db
	now := time.Now().UTC()
	return db.Model(&course.Enrollment{}).
		Where("user_id = ? AND is_deleted = ?", userID, false).
		Updates(map[string]interface{}{
			"last_accessed_module_id": moduleID,
			"last_accessed_at":        now,
		}).Error
}

// RecalculateAllEnrollments recomputes every active enrollment's percentage,
// typically after content is published or unpublished. CompletedAt is never
// cleared even when a recalculation lowers the percentage below 100.
func RecalculateAllEnrollments() (int, error) {
	db := database.Database.Db

	var enrollments []course.Enrollment
	if err := db.Where("is_deleted = ?", false).Find(&enrollments).Error; err != nil {
		return 0, err
	}

	updated := 0
	for i := range enrollments {
		if _, err := RecalculateEnrollmentProgress(enrollments[i].UserID); err != nil {
			log.Printf("Failed to recalculate progress for user %d: %v", enrollments[i].UserID, err)
			continue
		}
		if done, err := CheckCourseCompletion(enrollments[i].UserID); err == nil && done {
			if err := MarkCourseCompleted(enrollments[i].UserID); err != nil {
				log.Printf("Failed to mark completion for user %d: %v", enrollments[i].UserID, err)
			}
		}
		updated++
	}
	return updated, nil
}
