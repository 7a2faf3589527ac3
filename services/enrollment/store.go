package enrollment

import (
	"context"
	"errors"

	"coursehub/models/course"
)

// Storage sentinels. Store implementations wrap or return these so the
// service can tell expected outcomes from I/O failures.
var (
	ErrNotFound        = errors.New("record not found")
	ErrDuplicate       = errors.New("record already exists")
	ErrVersionConflict = errors.New("enrollment was modified concurrently")
	ErrTransient       = errors.New("transient storage failure")
)

// Store persists enrollment aggregates. SaveEnrollment writes the enrollment, its
// progress entries, new access records and certificate atomically, and only if the
// stored version still equals e.Version; on success it increments e.Version.
type Store interface {
	CreateEnrollment(ctx context.Context, e *course.Enrollment) error
	GetEnrollment(ctx context.Context, userID, courseID uint) (*course.Enrollment, error)
	SaveEnrollment(ctx context.Context, e *course.Enrollment) error
	ListEnrollments(ctx context.Context, userID uint) ([]course.Enrollment, error)
	// ListIncomplete pages incomplete enrollments in id order, starting after afterID.
	ListIncomplete(ctx context.Context, afterID uint, limit int) ([]Ref, error)
	ListPendingGrading(ctx context.Context, courseID uint) ([]PendingGrading, error)
	FindCertificateByCode(ctx context.Context, code string) (*course.Certificate, error)
	ListCertificatesWithoutDownload(ctx context.Context, afterID uint, limit int) ([]course.Certificate, error)
}

// Catalog is the read-only course definition store.
type Catalog interface {
	GetCourse(ctx context.Context, courseID uint) (*course.Course, error)
	GetCourseContent(ctx context.Context, courseID uint) ([]course.CourseContent, error)
	GetQuiz(ctx context.Context, courseID, quizID uint) (course.Quiz, error)
	IsGrader(ctx context.Context, courseID, userID uint) (bool, error)
}

// Key identifies one enrollment.
type Key struct {
	UserID   uint `json:"user_id"`
	CourseID uint `json:"course_id"`
}

// Ref is a Key with the enrollment row id, used as a paging cursor.
type Ref struct {
	EnrollmentID uint `json:"enrollment_id"`
	Key
}

// PendingGrading is a quiz entry waiting for manual grading.
type PendingGrading struct {
	UserID       uint                 `json:"user_id"`
	CourseID     uint                 `json:"course_id"`
	EnrollmentID uint                 `json:"enrollment_id"`
	Entry        course.ProgressEntry `json:"entry"`
}
