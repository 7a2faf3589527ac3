package course

import (
	"time"

	"gorm.io/gorm"
)

// Certificate is issued once per completed enrollment
type Certificate struct {
	gorm.Model
	EnrollmentID     uint      `json:"enrollment_id" gorm:"uniqueIndex;not null"`
	UserID           uint      `json:"user_id" gorm:"index;not null"`
	CourseID         uint      `json:"course_id" gorm:"index;not null"`
	CertificateID    string    `json:"certificate_id" gorm:"type:varchar(64);uniqueIndex;not null"`
	VerificationCode string    `json:"verification_code" gorm:"type:varchar(64);uniqueIndex;not null"`
	IssuedAt         time.Time `json:"issued_at"`
	IssuedBy         uint      `json:"issued_by"`
	DownloadURL      string    `json:"download_url"`
	IsDeleted        bool      `gorm:"default:false"`
}
