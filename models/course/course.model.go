package course

import "gorm.io/gorm"

// Course status values
const (
	CourseStatusDraft    = "DRAFT"
	CourseStatusActive   = "ACTIVE"
	CourseStatusInactive = "INACTIVE"
)

// Course represents a learning course
type Course struct {
	gorm.Model
	Title        string `json:"title"`
	Description  string `json:"description"`
	Author       string `json:"author"`
	OwnerID      uint   `json:"owner_id" gorm:"index"`         // instructor who owns the course and grades it
	Duration     int64  `json:"duration" gorm:"default:0"`     // duration in hours
	Status       string `json:"status" gorm:"default:'DRAFT'"` // DRAFT, ACTIVE, INACTIVE
	ThumbnailURL string `json:"thumbnail_url"`
	IsPublished  bool   `json:"is_published" gorm:"default:false"`
	IsDeleted    bool   `gorm:"default:false"`
}

// CourseAssistant grants a user grading rights on a course
type CourseAssistant struct {
	gorm.Model
	CourseID  uint `json:"course_id" gorm:"uniqueIndex:idx_course_assistant;not null"`
	UserID    uint `json:"user_id" gorm:"uniqueIndex:idx_course_assistant;not null"`
	IsDeleted bool `gorm:"default:false"`
}
