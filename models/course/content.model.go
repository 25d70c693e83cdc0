package course

import (
	"time"

	"gorm.io/gorm"
)

// Content types
const (
	ContentTypeVideo    = "VIDEO"
	ContentTypePDF      = "PDF"
	ContentTypeRichText = "RICH_TEXT"
	ContentTypeExercise = "EXERCISE"
)

// Content represents a single content item within a module
type Content struct {
	gorm.Model
	ModuleID    uint   `json:"module_id" gorm:"index;not null;uniqueIndex:uq_content_module_order"`
	ContentType string `json:"content_type" gorm:"size:20;index;not null"`
	Title       string `json:"title"`
	OrderIndex  int    `json:"order_index" gorm:"uniqueIndex:uq_content_module_order"` // Order within module

	// Video specific fields
	VideoURL      string `json:"video_url"`
	VideoDuration int    `json:"video_duration"` // seconds

	// PDF specific fields
	PdfURL string `json:"pdf_url"`

	// Rich text specific fields
	RichTextContent string `json:"rich_text_content" gorm:"type:text"`

	IsPublished bool `json:"is_published" gorm:"default:false"`
	IsDeleted   bool `gorm:"default:false"`
}

// UserProgress tracks a user's progress on a single content item.
// One row per (user, content) pair.
type UserProgress struct {
	gorm.Model
	UserID       uint       `json:"user_id" gorm:"not null;uniqueIndex:uq_user_content"`
	ContentID    uint       `json:"content_id" gorm:"not null;uniqueIndex:uq_user_content"`
	IsCompleted  bool       `json:"is_completed" gorm:"index;default:false"`
	TimeSpent    int        `json:"time_spent" gorm:"default:0"` // seconds
	LastPosition *int       `json:"last_position"`               // videos: seconds, PDFs: page number
	CompletedAt  *time.Time `json:"completed_at"`
}
