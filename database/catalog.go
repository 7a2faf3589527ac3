package database

import (
	"context"

	"coursehub/models/course"
	"coursehub/services/enrollment"

	"gorm.io/gorm"
)

// Catalog reads published course definitions.
type Catalog struct {
	db *gorm.DB
}

// NewCatalog returns a Catalog backed by db
func NewCatalog(db *gorm.DB) *Catalog {
	return &Catalog{db: db}
}

var _ enrollment.Catalog = (*Catalog)(nil)

func activeQuestions(db *gorm.DB) *gorm.DB {
	return db.Where("is_deleted = ?", false).Order("order_index, id")
}

func (c *Catalog) GetCourse(ctx context.Context, courseID uint) (*course.Course, error) {
	var crs course.Course
	err := c.db.WithContext(ctx).
		Where("id = ? AND is_deleted = ?", courseID, false).
		First(&crs).Error
	if err != nil {
		return nil, translate(err)
	}
	return &crs, nil
}

// GetCourseContent returns the published items of a course in module order, then item order.
func (c *Catalog) GetCourseContent(ctx context.Context, courseID uint) ([]course.CourseContent, error) {
	var items []course.CourseContent
	err := c.db.WithContext(ctx).
		Select("course_contents.*").
		Joins("LEFT JOIN modules ON modules.id = course_contents.module_id").
		Preload("Questions", activeQuestions).
		Where("course_contents.course_id = ? AND course_contents.is_published = ? AND course_contents.is_deleted = ?", courseID, true, false).
		Order("COALESCE(modules.order_index, 0), course_contents.order_index, course_contents.id").
		Find(&items).Error
	return items, translate(err)
}

func (c *Catalog) GetQuiz(ctx context.Context, courseID, quizID uint) (course.Quiz, error) {
	var item course.CourseContent
	err := c.db.WithContext(ctx).
		Preload("Questions", activeQuestions).
		Where("id = ? AND course_id = ? AND content_type = ? AND is_published = ? AND is_deleted = ?",
			quizID, courseID, course.ContentQuiz, true, false).
		First(&item).Error
	if err != nil {
		return course.Quiz{}, translate(err)
	}
	return item.AsQuiz(), nil
}

// IsGrader reports whether userID is an assistant of the course. Owners are checked by the caller.
func (c *Catalog) IsGrader(ctx context.Context, courseID, userID uint) (bool, error) {
	var n int64
	err := c.db.WithContext(ctx).Model(&course.CourseAssistant{}).
		Where("course_id = ? AND user_id = ? AND is_deleted = ?", courseID, userID, false).
		Count(&n).Error
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
