package grading

import (
	"fmt"
	"math"
	"time"

	"coursehub/models/course"
	"coursehub/services/apperr"
)

// ManualGrade is one grader-supplied mark. IsCorrect overrides the derived
// correctness (marks >= half of max marks) when set.
type ManualGrade struct {
	QuestionID uint    `json:"question_id" validate:"required"`
	Marks      float64 `json:"marks"`
	Feedback   string  `json:"feedback" validate:"max=5000"`
	IsCorrect  *bool   `json:"is_correct,omitempty"`
}

// ApplyManualGrades applies grades to the answers recorded in entry and returns the
// updated entry. Either every grade is applied or, on error, none is.
func ApplyManualGrades(entry course.ProgressEntry, quiz course.Quiz, grades []ManualGrade, graderID uint, now time.Time) (course.ProgressEntry, error) {
	answers := make([]course.AnswerRecord, len(entry.Answers))
	copy(answers, entry.Answers)

	index := make(map[uint]int, len(answers))
	for i, a := range answers {
		index[a.QuestionID] = i
	}

	for _, g := range grades {
		i, ok := index[g.QuestionID]
		if !ok {
			return entry, apperr.Newf(apperr.CodeAnswerNotFound, "no recorded answer for question %d", g.QuestionID).
				With("question_id", fmt.Sprint(g.QuestionID))
		}
		maxMarks := answers[i].MaxMarks
		if math.IsNaN(g.Marks) || g.Marks < 0 || g.Marks > maxMarks {
			return entry, apperr.Newf(apperr.CodeInvalidMarks, "marks for question %d must be between 0 and %g", g.QuestionID, maxMarks).
				With("question_id", fmt.Sprint(g.QuestionID))
		}
	}

	for _, g := range grades {
		rec := &answers[index[g.QuestionID]]
		rec.MarksObtained = g.Marks
		rec.TeacherFeedback = g.Feedback
		grader := graderID
		gradedAt := now
		rec.GradedBy = &grader
		rec.GradedAt = &gradedAt
		rec.Status = course.AnswerGraded
		if g.IsCorrect != nil {
			rec.IsCorrect = *g.IsCorrect
		} else {
			rec.IsCorrect = rec.MarksObtained >= 0.5*rec.MaxMarks
		}
	}

	var score, maxScore, settledScore, settledMax float64
	needsManual, allGraded := false, true
	for _, a := range answers {
		score += a.MarksObtained
		maxScore += a.MaxMarks
		if a.NeedsManualGrading {
			needsManual = true
			if !a.Graded() {
				allGraded = false
				continue
			}
		}
		settledScore += a.MarksObtained
		settledMax += a.MaxMarks
	}

	entry.Answers = answers
	entry.Score = score
	entry.MaxScore = maxScore
	entry.Percentage = Percentage(score, maxScore)
	switch {
	case !needsManual:
		// objective overrides keep the entry auto-graded
		if entry.GradingStatus == course.GradingNotGraded {
			entry.GradingStatus = course.GradingAutoGraded
		}
	case allGraded:
		entry.GradingStatus = course.GradingManuallyGraded
	default:
		entry.GradingStatus = course.GradingPartiallyGraded
	}

	if entry.GradingStatus == course.GradingPartiallyGraded {
		entry.Passed = false
		entry.ProvisionalPassed = settledMax > 0 && Percentage(settledScore, settledMax) >= quiz.PassingScore
	} else {
		entry.Passed = entry.Percentage >= quiz.PassingScore
		entry.ProvisionalPassed = entry.Passed
	}
	updateBest(&entry)
	return entry, nil
}

// Pending lists the answers still waiting for a grader.
func Pending(entry *course.ProgressEntry) []course.AnswerRecord {
	var out []course.AnswerRecord
	for _, a := range entry.Answers {
		if a.NeedsManualGrading && !a.Graded() {
			out = append(out, a)
		}
	}
	return out
}
