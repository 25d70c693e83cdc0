package models

import "gorm.io/gorm"

// User represents a registered student or admin
type User struct {
	gorm.Model
	Name       string `json:"name"`
	Email      string `json:"email" gorm:"uniqueIndex;not null"`
	Mobile     string `json:"mobile"`
	Password   string `json:"-"`
	Role       string `json:"role" gorm:"default:'STUDENT'"` // STUDENT, ADMIN
	IsVerified bool   `json:"is_verified" gorm:"default:false"`
	IsEnrolled bool   `json:"is_enrolled" gorm:"default:false"`
	IsDeleted  bool   `gorm:"default:false"`
}
