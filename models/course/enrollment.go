package course

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Enrollment status values
const (
	EnrollmentEnrolled   = "enrolled"
	EnrollmentInProgress = "in-progress"
	EnrollmentCompleted  = "completed"
)

// Progress entry status values
const (
	ProgressNotStarted = "not-started"
	ProgressInProgress = "in-progress"
	ProgressCompleted  = "completed"
)

// GradingStatus is the scoring lifecycle of one progress entry
type GradingStatus string

const (
	GradingNotGraded       GradingStatus = "not-graded"
	GradingAutoGraded      GradingStatus = "auto-graded"
	GradingPartiallyGraded GradingStatus = "partially-graded"
	GradingManuallyGraded  GradingStatus = "manually-graded"
)

// Answer record status values
const (
	AnswerAnswered      = "answered"
	AnswerNotAnswered   = "not-answered"
	AnswerPendingReview = "pending-review"
	AnswerGraded        = "graded"
)

// Enrollment is the root per-student-per-course record. Version guards
// read-modify-write cycles against concurrent writers.
type Enrollment struct {
	gorm.Model
	UserID            uint            `json:"user_id" gorm:"uniqueIndex:idx_enrollment_user_course;not null"`
	CourseID          uint            `json:"course_id" gorm:"uniqueIndex:idx_enrollment_user_course;not null"`
	Status            string          `json:"status" gorm:"type:varchar(16);default:'enrolled'"`
	Progress          float64         `json:"progress" gorm:"default:0"` // Completion percentage (0-100)
	CompletedContents int             `json:"completed_contents" gorm:"default:0"`
	TotalContents     int             `json:"total_contents" gorm:"default:0"`
	EnrolledAt        time.Time       `json:"enrolled_at"`
	Completed         bool            `json:"completed" gorm:"default:false"`
	CompletedAt       *time.Time      `json:"completed_at"`
	LastAccessedAt    *time.Time      `json:"last_accessed_at"`
	TotalTimeSpent    int64           `json:"total_time_spent" gorm:"default:0"` // seconds
	Version           int64           `json:"version" gorm:"not null;default:0"`
	LastMutation      string          `json:"-" gorm:"type:varchar(36)"` // token of the last committed write
	ProgressEntries   []ProgressEntry `json:"progress_entries" gorm:"foreignKey:EnrollmentID"`
	AccessHistory     []AccessRecord  `json:"-" gorm:"foreignKey:EnrollmentID"`
	Certificate       *Certificate    `json:"certificate,omitempty" gorm:"foreignKey:EnrollmentID"`
	NewAccessRecords  []AccessRecord  `json:"-" gorm:"-"` // appended during the current mutation, flushed on save
}

// Entry returns the progress entry for a content item, or nil
func (e *Enrollment) Entry(contentID uint) *ProgressEntry {
	for i := range e.ProgressEntries {
		if e.ProgressEntries[i].ContentID == contentID {
			return &e.ProgressEntries[i]
		}
	}
	return nil
}

// EnsureEntry returns the progress entry for a content item, creating it lazily
func (e *Enrollment) EnsureEntry(contentID uint, contentType ContentType) *ProgressEntry {
	if entry := e.Entry(contentID); entry != nil {
		return entry
	}
	e.ProgressEntries = append(e.ProgressEntries, ProgressEntry{
		EnrollmentID:  e.ID,
		ContentID:     contentID,
		ContentType:   contentType,
		Status:        ProgressNotStarted,
		GradingStatus: GradingNotGraded,
	})
	return &e.ProgressEntries[len(e.ProgressEntries)-1]
}

// AppendAccess records one access-history event
func (e *Enrollment) AppendAccess(rec AccessRecord) {
	rec.EnrollmentID = e.ID
	e.NewAccessRecords = append(e.NewAccessRecords, rec)
	at := rec.AccessedAt
	e.LastAccessedAt = &at
}

// ProgressEntry is the per-content-item state of one enrollment
type ProgressEntry struct {
	gorm.Model
	EnrollmentID      uint                              `json:"enrollment_id" gorm:"uniqueIndex:idx_progress_enrollment_content;not null"`
	ContentID         uint                              `json:"content_id" gorm:"uniqueIndex:idx_progress_enrollment_content;not null"`
	ContentType       ContentType                       `json:"content_type" gorm:"type:varchar(32)"`
	Status            string                            `json:"status" gorm:"type:varchar(16);default:'not-started'"`
	Progress          float64                           `json:"progress" gorm:"default:0"`
	Completed         bool                              `json:"completed" gorm:"default:false"`
	CompletedAt       *time.Time                        `json:"completed_at"`
	Score             float64                           `json:"score"`
	MaxScore          float64                           `json:"max_score"`
	Percentage        int                               `json:"percentage"`
	Passed            bool                              `json:"passed"`
	ProvisionalPassed bool                              `json:"provisional_passed"`
	Attempts          int                               `json:"attempts" gorm:"default:0"`
	BestScore         float64                           `json:"best_score"`
	BestAttempt       int                               `json:"best_attempt"`
	GradingStatus     GradingStatus                     `json:"grading_status" gorm:"type:varchar(24);default:'not-graded'"`
	TimeSpent         int64                             `json:"time_spent"` // seconds
	LastAccessedAt    *time.Time                        `json:"last_accessed_at"`
	Answers           datatypes.JSONSlice[AnswerRecord] `json:"answers,omitempty"`
}

// AnswerRecord is the graded answer to one quiz question. NeedsManualGrading is
// fixed at submission time.
type AnswerRecord struct {
	QuestionID         uint        `json:"question_id"`
	Answer             AnswerValue `json:"answer"`
	Status             string      `json:"status"`
	IsCorrect          bool        `json:"is_correct"`
	CorrectAnswer      AnswerValue `json:"correct_answer,omitempty"`
	MarksObtained      float64     `json:"marks_obtained"`
	MaxMarks           float64     `json:"max_marks"`
	NeedsManualGrading bool        `json:"needs_manual_grading"`
	GradedBy           *uint       `json:"graded_by,omitempty"`
	GradedAt           *time.Time  `json:"graded_at,omitempty"`
	TeacherFeedback    string      `json:"teacher_feedback,omitempty"`
}

// Graded reports whether a grader has marked the answer
func (a *AnswerRecord) Graded() bool {
	return a.GradedBy != nil && a.GradedAt != nil
}

// AccessRecord is one append-only access-history event
type AccessRecord struct {
	gorm.Model
	EnrollmentID uint      `json:"enrollment_id" gorm:"index;not null"`
	ContentID    uint      `json:"content_id" gorm:"index"`
	Action       string    `json:"action" gorm:"type:varchar(32)"`
	Progress     float64   `json:"progress"`
	TimeSpent    int64     `json:"time_spent"` // seconds
	AccessedAt   time.Time `json:"accessed_at"`
}
