package course

import "gorm.io/gorm"

// Course represents a learning course
type Course struct {
	gorm.Model
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Author      string  `json:"author"`
	Price       float64 `json:"price" gorm:"default:0"`
	Currency    string  `json:"currency" gorm:"size:3;default:'KES'"`
	IsPublished bool    `json:"is_published" gorm:"default:false"`
	IsDeleted   bool    `gorm:"default:false"`
}
