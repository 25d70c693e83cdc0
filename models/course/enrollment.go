package course

import (
	"time"

	"gorm.io/gorm"
)

// Enrollment tracks a user's enrollment in the course. Created at most once
// per user, after a completed payment. CompletedAt is one-way: once stamped
// it is never cleared, even if a recalculation lowers the percentage.
type Enrollment struct {
	gorm.Model
	UserID             uint       `json:"user_id" gorm:"uniqueIndex;not null"`
	PaymentID          uint       `json:"payment_id" gorm:"index"`
	SignatureURL       string     `json:"signature_url"`
	SignatureCreatedAt *time.Time `json:"signature_created_at"`
	EnrolledAt         time.Time  `json:"enrolled_at"`
	CompletedAt        *time.Time `json:"completed_at" gorm:"index"`
	ProgressPercentage float64    `json:"progress_percentage" gorm:"default:0"` // 0-100, 2 decimals
	LastAccessedModule *uint      `json:"last_accessed_module_id" gorm:"column:last_accessed_module_id"`
	LastAccessedAt     *time.Time `json:"last_accessed_at"`
	IsDeleted          bool       `gorm:"default:false"`
}
