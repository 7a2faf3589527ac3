package models

import (
	"time"

	"gorm.io/gorm"
)

// User roles
const (
	RoleStudent    = "USER"
	RoleInstructor = "INSTRUCTOR"
	RoleAdmin      = "ADMIN"
)

// User is the identity referenced by enrollments, course owners and graders.
// Accounts are managed by the identity service; rows here mirror its ids.
type User struct {
	gorm.Model
	ProfileImage string     `gorm:"default:''"`
	Name         string     `gorm:"default:''"`
	Email        string     `gorm:"unique;not null"`
	Role         string     `gorm:"default:'USER'"` // USER, INSTRUCTOR, ADMIN
	LastLogin    *time.Time `json:"last_login"`
	IsBlocked    bool       `gorm:"default:false"`
	IsDeleted    bool       `gorm:"default:false"`
}
