package course

import "gorm.io/gorm"

// ContentType is the kind of a content item
type ContentType string

const (
	ContentTutorial    ContentType = "tutorial"
	ContentQuiz        ContentType = "quiz"
	ContentLiveSession ContentType = "live-session"
)

// Valid reports whether t is one of the known content types
func (t ContentType) Valid() bool {
	switch t {
	case ContentTutorial, ContentQuiz, ContentLiveSession:
		return true
	}
	return false
}

// CourseContent is one content item of a course. Quiz items carry their questions and scoring rules.
type CourseContent struct {
	gorm.Model
	CourseID     uint           `json:"course_id" gorm:"index;not null"`
	ModuleID     uint           `json:"module_id" gorm:"index"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	ContentType  ContentType    `json:"content_type" gorm:"type:varchar(32);default:'tutorial'"`
	TextContent  string         `json:"text_content" gorm:"type:text"`
	VideoURL     string         `json:"video_url"`
	OrderIndex   int            `json:"order_index" gorm:"default:0"`   // Order within module
	PassingScore int            `json:"passing_score" gorm:"default:0"` // percentage, quiz only
	MaxAttempts  int            `json:"max_attempts" gorm:"default:1"`  // quiz only
	IsPublished  bool           `json:"is_published" gorm:"default:false"`
	IsDeleted    bool           `gorm:"default:false"`
	Questions    []QuizQuestion `json:"questions,omitempty" gorm:"foreignKey:ContentID"`
}

// IsQuiz reports whether the item is graded
func (c *CourseContent) IsQuiz() bool {
	return c.ContentType == ContentQuiz
}
