package main

import (
	"fmt"

	"coursehub/models/course"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// Definition is the YAML course file produced by the authoring tool
type Definition struct {
	Course struct {
		Title        string `yaml:"title"`
		Description  string `yaml:"description"`
		Author       string `yaml:"author"`
		OwnerID      uint   `yaml:"owner_id"`
		Duration     int64  `yaml:"duration"`
		Status       string `yaml:"status"`
		ThumbnailURL string `yaml:"thumbnail_url"`
		Published    bool   `yaml:"published"`
	} `yaml:"course"`
	Assistants []uint             `yaml:"assistants"`
	Modules    []ModuleDefinition `yaml:"modules"`
}

type ModuleDefinition struct {
	Title       string           `yaml:"title"`
	Description string           `yaml:"description"`
	Items       []ItemDefinition `yaml:"items"`
}

type ItemDefinition struct {
	Title        string               `yaml:"title"`
	Description  string               `yaml:"description"`
	Type         course.ContentType   `yaml:"type"`
	Text         string               `yaml:"text"`
	VideoURL     string               `yaml:"video_url"`
	Published    *bool                `yaml:"published"` // defaults to true
	PassingScore int                  `yaml:"passing_score"`
	MaxAttempts  int                  `yaml:"max_attempts"`
	Questions    []QuestionDefinition `yaml:"questions"`
}

type QuestionDefinition struct {
	Text    string              `yaml:"text"`
	Type    course.QuestionType `yaml:"type"`
	Marks   float64             `yaml:"marks"`
	Options []string            `yaml:"options"`
	Correct []string            `yaml:"correct"`
}

// ParseDefinition decodes and checks a course file
func ParseDefinition(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse course definition: %w", err)
	}
	if def.Course.Status == "" {
		def.Course.Status = course.CourseStatusDraft
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Validate checks the rules the grading engine relies on
func (d *Definition) Validate() error {
	if d.Course.Title == "" {
		return fmt.Errorf("course title is required")
	}
	switch d.Course.Status {
	case course.CourseStatusDraft, course.CourseStatusActive, course.CourseStatusInactive:
	default:
		return fmt.Errorf("unknown course status %q", d.Course.Status)
	}
	for mi, m := range d.Modules {
		for ii, it := range m.Items {
			where := fmt.Sprintf("module %d item %d", mi+1, ii+1)
			if !it.Type.Valid() {
				return fmt.Errorf("%s: unknown content type %q", where, it.Type)
			}
			if it.Type != course.ContentQuiz {
				if len(it.Questions) > 0 {
					return fmt.Errorf("%s: only quizzes have questions", where)
				}
				continue
			}
			if it.MaxAttempts < 1 {
				return fmt.Errorf("%s: max_attempts must be at least 1", where)
			}
			if it.PassingScore < 0 || it.PassingScore > 100 {
				return fmt.Errorf("%s: passing_score must be between 0 and 100", where)
			}
			if len(it.Questions) == 0 {
				return fmt.Errorf("%s: quiz has no questions", where)
			}
			for qi, q := range it.Questions {
				if err := q.validate(); err != nil {
					return fmt.Errorf("%s question %d: %w", where, qi+1, err)
				}
			}
		}
	}
	return nil
}

func (q QuestionDefinition) validate() error {
	if !q.Type.Valid() {
		return fmt.Errorf("unknown question type %q", q.Type)
	}
	if q.Marks <= 0 {
		return fmt.Errorf("marks must be positive")
	}
	if q.Type.NeedsManualGrading() {
		if len(q.Correct) > 0 {
			return fmt.Errorf("%s questions are graded manually and take no correct answer", q.Type)
		}
		return nil
	}

	options := make(map[string]bool, len(q.Options))
	for _, o := range q.Options {
		options[o] = true
	}
	if len(q.Correct) == 0 {
		return fmt.Errorf("correct answer is required")
	}
	if q.Type == course.QuestionSingleChoice && len(q.Correct) != 1 {
		return fmt.Errorf("single-choice questions have exactly one correct answer")
	}
	for _, c := range q.Correct {
		if !options[c] {
			return fmt.Errorf("correct answer %q is not an option", c)
		}
	}
	return nil
}

// Import writes the definition in one transaction and returns the course with
// the ids of its quizzes
func Import(db *gorm.DB, def *Definition) (*course.Course, []uint, error) {
	crs := course.Course{
		Title:        def.Course.Title,
		Description:  def.Course.Description,
		Author:       def.Course.Author,
		OwnerID:      def.Course.OwnerID,
		Duration:     def.Course.Duration,
		Status:       def.Course.Status,
		ThumbnailURL: def.Course.ThumbnailURL,
		IsPublished:  def.Course.Published,
	}
	var quizIDs []uint

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&crs).Error; err != nil {
			return err
		}
		for _, userID := range def.Assistants {
			if err := tx.Create(&course.CourseAssistant{CourseID: crs.ID, UserID: userID}).Error; err != nil {
				return err
			}
		}

		for mi, m := range def.Modules {
			mod := course.Module{CourseID: crs.ID, Title: m.Title, Description: m.Description, OrderIndex: mi + 1}
			if err := tx.Create(&mod).Error; err != nil {
				return err
			}
			for ii, it := range m.Items {
				item := course.CourseContent{
					CourseID:     crs.ID,
					ModuleID:     mod.ID,
					Title:        it.Title,
					Description:  it.Description,
					ContentType:  it.Type,
					TextContent:  it.Text,
					VideoURL:     it.VideoURL,
					OrderIndex:   ii + 1,
					PassingScore: it.PassingScore,
					MaxAttempts:  it.MaxAttempts,
					IsPublished:  it.Published == nil || *it.Published,
				}
				if item.MaxAttempts == 0 {
					item.MaxAttempts = 1
				}
				for qi, q := range it.Questions {
					item.Questions = append(item.Questions, course.QuizQuestion{
						Text:          q.Text,
						Type:          q.Type,
						Marks:         q.Marks,
						Options:       q.Options,
						CorrectAnswer: q.Correct,
						OrderIndex:    qi + 1,
					})
				}
				if err := tx.Create(&item).Error; err != nil {
					return err
				}
				if item.IsQuiz() {
					quizIDs = append(quizIDs, item.ID)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("import course %q: %w", def.Course.Title, err)
	}
	return &crs, quizIDs, nil
}
