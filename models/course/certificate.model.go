package course

import (
	"time"

	"gorm.io/gorm"
)

// Certificate represents an issued completion certificate. At most one per
// user; immutable once created.
type Certificate struct {
	gorm.Model
	UserID            uint      `json:"user_id" gorm:"uniqueIndex;not null"`
	CertificateNumber string    `json:"certificate_number" gorm:"size:50;uniqueIndex;not null"` // public-facing ID
	CertificateURL    string    `json:"certificate_url"`
	StudentName       string    `json:"student_name" gorm:"size:255"`
	CourseTitle       string    `json:"course_title" gorm:"size:255"`
	IssuedAt          time.Time `json:"issued_at"`
	IsDeleted         bool      `gorm:"default:false"`
}
