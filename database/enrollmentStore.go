package database

import (
	"context"
	"errors"
	"time"

	"coursehub/models/course"
	"coursehub/services/enrollment"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EnrollmentStore persists enrollment aggregates with gorm.
type EnrollmentStore struct {
	db *gorm.DB
}

// NewEnrollmentStore returns a Store backed by db
func NewEnrollmentStore(db *gorm.DB) *EnrollmentStore {
	return &EnrollmentStore{db: db}
}

var _ enrollment.Store = (*EnrollmentStore)(nil)

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return enrollment.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return enrollment.ErrDuplicate
	default:
		return err
	}
}

func (s *EnrollmentStore) withAggregate(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Preload("ProgressEntries", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Certificate")
}

func (s *EnrollmentStore) CreateEnrollment(ctx context.Context, e *course.Enrollment) error {
	return translate(s.db.WithContext(ctx).Omit(clause.Associations).Create(e).Error)
}

func (s *EnrollmentStore) GetEnrollment(ctx context.Context, userID, courseID uint) (*course.Enrollment, error) {
	var e course.Enrollment
	err := s.withAggregate(ctx).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		First(&e).Error
	if err != nil {
		return nil, translate(err)
	}
	return &e, nil
}

// SaveEnrollment writes the aggregate in one transaction. The enrollment row is
// updated only while its version matches, which makes concurrent writers from
// other processes lose with ErrVersionConflict.
func (s *EnrollmentStore) SaveEnrollment(ctx context.Context, e *course.Enrollment) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&course.Enrollment{}).
			Where("id = ? AND version = ?", e.ID, e.Version).
			Updates(map[string]interface{}{
				"status":             e.Status,
				"progress":           e.Progress,
				"completed_contents": e.CompletedContents,
				"total_contents":     e.TotalContents,
				"completed":          e.Completed,
				"completed_at":       e.CompletedAt,
				"last_accessed_at":   e.LastAccessedAt,
				"total_time_spent":   e.TotalTimeSpent,
				"last_mutation":      e.LastMutation,
				"version":            e.Version + 1,
				"updated_at":         time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return enrollment.ErrVersionConflict
		}

		for i := range e.ProgressEntries {
			entry := &e.ProgressEntries[i]
			entry.EnrollmentID = e.ID
			if err := tx.Omit(clause.Associations).Save(entry).Error; err != nil {
				return err
			}
		}

		if len(e.NewAccessRecords) > 0 {
			if err := tx.Create(&e.NewAccessRecords).Error; err != nil {
				return err
			}
		}

		if e.Certificate != nil {
			e.Certificate.EnrollmentID = e.ID
			if err := tx.Save(e.Certificate).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return translate(err)
	}

	e.Version++
	e.NewAccessRecords = nil
	return nil
}

func (s *EnrollmentStore) ListEnrollments(ctx context.Context, userID uint) ([]course.Enrollment, error) {
	var out []course.Enrollment
	err := s.withAggregate(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Find(&out).Error
	return out, translate(err)
}

func (s *EnrollmentStore) ListIncomplete(ctx context.Context, afterID uint, limit int) ([]enrollment.Ref, error) {
	var rows []struct {
		ID       uint
		UserID   uint
		CourseID uint
	}
	q := s.db.WithContext(ctx).Model(&course.Enrollment{}).
		Select("id, user_id, course_id").
		Where("completed = ? AND id > ?", false, afterID).
		Order("id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(&rows).Error; err != nil {
		return nil, translate(err)
	}
	refs := make([]enrollment.Ref, 0, len(rows))
	for _, r := range rows {
		refs = append(refs, enrollment.Ref{EnrollmentID: r.ID, Key: enrollment.Key{UserID: r.UserID, CourseID: r.CourseID}})
	}
	return refs, nil
}

func (s *EnrollmentStore) ListPendingGrading(ctx context.Context, courseID uint) ([]enrollment.PendingGrading, error) {
	var rows []course.Enrollment
	err := s.db.WithContext(ctx).
		Preload("ProgressEntries", "grading_status = ?", course.GradingPartiallyGraded).
		Where("course_id = ?", courseID).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, translate(err)
	}

	var out []enrollment.PendingGrading
	for _, e := range rows {
		for _, entry := range e.ProgressEntries {
			out = append(out, enrollment.PendingGrading{
				UserID:       e.UserID,
				CourseID:     e.CourseID,
				EnrollmentID: e.ID,
				Entry:        entry,
			})
		}
	}
	return out, nil
}

func (s *EnrollmentStore) FindCertificateByCode(ctx context.Context, code string) (*course.Certificate, error) {
	var cert course.Certificate
	err := s.db.WithContext(ctx).
		Where("verification_code = ? AND is_deleted = ?", code, false).
		First(&cert).Error
	if err != nil {
		return nil, translate(err)
	}
	return &cert, nil
}

func (s *EnrollmentStore) ListCertificatesWithoutDownload(ctx context.Context, afterID uint, limit int) ([]course.Certificate, error) {
	var out []course.Certificate
	q := s.db.WithContext(ctx).
		Where("download_url = ? AND is_deleted = ? AND id > ?", "", false, afterID).
		Order("id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, translate(err)
}
