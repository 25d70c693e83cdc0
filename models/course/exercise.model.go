package course

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Exercise links a content item of type EXERCISE to a 123FormBuilder form
type Exercise struct {
	gorm.Model
	ContentID                uint   `json:"content_id" gorm:"uniqueIndex;not null"`
	FormID                   string `json:"form_id" gorm:"size:255;index;not null"`
	EmbedCode                string `json:"embed_code" gorm:"type:text"`
	FormTitle                string `json:"form_title" gorm:"size:255"`
	AllowMultipleSubmissions bool   `json:"allow_multiple_submissions" gorm:"default:false"`
	IsDeleted                bool   `gorm:"default:false"`
}

// ExerciseSubmission records a student's form submission delivered by webhook.
// One row per (user, exercise); when the exercise allows multiple submissions
// later deliveries overwrite this row in place.
type ExerciseSubmission struct {
	gorm.Model
	ExerciseID        uint           `json:"exercise_id" gorm:"not null;uniqueIndex:uq_user_exercise"`
	UserID            uint           `json:"user_id" gorm:"not null;uniqueIndex:uq_user_exercise"`
	FormSubmissionID  string         `json:"form_submission_id" gorm:"size:255;not null"`
	SubmissionData    datatypes.JSON `json:"submission_data"`
	SubmittedAt       time.Time      `json:"submitted_at"`
	WebhookReceivedAt time.Time      `json:"webhook_received_at"`
}
