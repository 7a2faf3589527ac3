package course

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// QuestionType is the closed set of quiz question kinds
type QuestionType string

const (
	QuestionSingleChoice QuestionType = "single-choice"
	QuestionMultiChoice  QuestionType = "multi-choice"
	QuestionShortAnswer  QuestionType = "short-answer"
	QuestionBroadAnswer  QuestionType = "broad-answer"
)

// Valid reports whether t is one of the known question types
func (t QuestionType) Valid() bool {
	switch t {
	case QuestionSingleChoice, QuestionMultiChoice, QuestionShortAnswer, QuestionBroadAnswer:
		return true
	}
	return false
}

// NeedsManualGrading is true for the subjective question types
func (t QuestionType) NeedsManualGrading() bool {
	return t == QuestionShortAnswer || t == QuestionBroadAnswer
}

// QuizQuestion belongs to a quiz content item
type QuizQuestion struct {
	gorm.Model
	ContentID     uint                        `json:"content_id" gorm:"index;not null"`
	Text          string                      `json:"text" gorm:"type:text"`
	Type          QuestionType                `json:"type" gorm:"type:varchar(32);not null"`
	Options       datatypes.JSONSlice[string] `json:"options,omitempty"`
	CorrectAnswer datatypes.JSONSlice[string] `json:"correct_answer,omitempty"` // choice types only
	Marks         float64                     `json:"marks" gorm:"default:1"`
	OrderIndex    int                         `json:"order_index" gorm:"default:0"`
	IsDeleted     bool                        `gorm:"default:false"`
}

// Quiz is the grading view of a quiz content item
type Quiz struct {
	ContentID    uint           `json:"content_id"`
	PassingScore int            `json:"passing_score"`
	MaxAttempts  int            `json:"max_attempts"`
	Questions    []QuizQuestion `json:"questions"`
}

// AsQuiz builds the grading view of a quiz item
func (c *CourseContent) AsQuiz() Quiz {
	return Quiz{
		ContentID:    c.ID,
		PassingScore: c.PassingScore,
		MaxAttempts:  c.MaxAttempts,
		Questions:    c.Questions,
	}
}

// AnswerValue is a submitted (or expected) answer. Single-choice and text answers
// hold one element, multi-choice answers hold the selected set. In JSON it accepts
// either a string or an array of strings.
type AnswerValue []string

// UnmarshalJSON accepts "A" as well as ["A","C"]
func (v *AnswerValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = AnswerValue{s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("answer must be a string or a list of strings: %w", err)
	}
	*v = list
	return nil
}

// Empty reports whether nothing was submitted
func (v AnswerValue) Empty() bool {
	for _, s := range v {
		if s != "" {
			return false
		}
	}
	return true
}
