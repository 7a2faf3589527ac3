// Package grading scores quiz submissions and applies manual grades to
// subjective answers. Everything here is pure: callers own persistence and
// the per-enrollment serialization.
package grading

import (
	"fmt"
	"math"
	"time"

	"coursehub/models/course"
	"coursehub/services/apperr"
)

// Submission maps question ids to the submitted answers.
type Submission map[uint]course.AnswerValue

// Result is the outcome of auto-grading one quiz attempt. When manual grading
// is pending, Passed is computed from the auto-gradable subset only.
type Result struct {
	Score              float64               `json:"score"`
	MaxScore           float64               `json:"max_score"`
	Percentage         int                   `json:"percentage"`
	Passed             bool                  `json:"passed"`
	Answers            []course.AnswerRecord `json:"answers"`
	GradingStatus      course.GradingStatus  `json:"grading_status"`
	NeedsManualGrading bool                  `json:"needs_manual_grading"`
	AutoScore          float64               `json:"-"`
	AutoMaxScore       float64               `json:"-"`
}

// Grade scores a submission against a quiz, in question order.
func Grade(quiz course.Quiz, answers Submission) (Result, error) {
	known := make(map[uint]struct{}, len(quiz.Questions))
	for _, q := range quiz.Questions {
		known[q.ID] = struct{}{}
	}
	for qid := range answers {
		if _, ok := known[qid]; !ok {
			return Result{}, apperr.Newf(apperr.CodeInvalidAnswer, "question %d is not part of this quiz", qid).
				With("question_id", fmt.Sprint(qid))
		}
	}

	res := Result{Answers: make([]course.AnswerRecord, 0, len(quiz.Questions))}
	for _, q := range quiz.Questions {
		res.MaxScore += q.Marks

		rec := course.AnswerRecord{
			QuestionID: q.ID,
			MaxMarks:   q.Marks,
		}
		if !q.Type.NeedsManualGrading() {
			rec.CorrectAnswer = course.AnswerValue(q.CorrectAnswer)
		}

		submitted, ok := answers[q.ID]
		if !ok || submitted.Empty() {
			rec.Status = course.AnswerNotAnswered
			if !q.Type.NeedsManualGrading() {
				res.AutoMaxScore += q.Marks
			}
			res.Answers = append(res.Answers, rec)
			continue
		}
		rec.Answer = submitted

		switch q.Type {
		case course.QuestionSingleChoice:
			rec.IsCorrect = gradeSingleChoice(q, submitted)
		case course.QuestionMultiChoice:
			rec.IsCorrect = gradeMultiChoice(q, submitted)
		case course.QuestionShortAnswer, course.QuestionBroadAnswer:
			rec.Status = course.AnswerPendingReview
			rec.NeedsManualGrading = true
			res.NeedsManualGrading = true
			res.Answers = append(res.Answers, rec)
			continue
		default:
			return Result{}, fmt.Errorf("question %d has unknown type %q", q.ID, q.Type)
		}

		rec.Status = course.AnswerAnswered
		if rec.IsCorrect {
			rec.MarksObtained = q.Marks
		}
		res.Score += rec.MarksObtained
		res.AutoScore += rec.MarksObtained
		res.AutoMaxScore += q.Marks
		res.Answers = append(res.Answers, rec)
	}

	res.Percentage = Percentage(res.Score, res.MaxScore)
	if res.NeedsManualGrading {
		res.GradingStatus = course.GradingPartiallyGraded
		res.Passed = res.AutoMaxScore > 0 && Percentage(res.AutoScore, res.AutoMaxScore) >= quiz.PassingScore
	} else {
		res.GradingStatus = course.GradingAutoGraded
		res.Passed = res.Percentage >= quiz.PassingScore
	}
	return res, nil
}

// gradeSingleChoice: full marks iff the one submitted value equals the correct answer.
func gradeSingleChoice(q course.QuizQuestion, submitted course.AnswerValue) bool {
	if len(submitted) != 1 || len(q.CorrectAnswer) != 1 {
		return false
	}
	return submitted[0] == q.CorrectAnswer[0]
}

// gradeMultiChoice: full marks iff the submitted set equals the correct set.
func gradeMultiChoice(q course.QuizQuestion, submitted course.AnswerValue) bool {
	correct := make(map[string]struct{}, len(q.CorrectAnswer))
	for _, c := range q.CorrectAnswer {
		correct[c] = struct{}{}
	}
	chosen := make(map[string]struct{}, len(submitted))
	for _, s := range submitted {
		chosen[s] = struct{}{}
	}
	if len(chosen) != len(correct) {
		return false
	}
	for s := range chosen {
		if _, ok := correct[s]; !ok {
			return false
		}
	}
	return true
}

// Percentage rounds score/max to a whole percent; 0 when max is 0.
func Percentage(score, maxScore float64) int {
	if maxScore <= 0 {
		return 0
	}
	return int(math.Round(score / maxScore * 100))
}

// CheckAttempts rejects a submission once the attempts cap is reached.
func CheckAttempts(entry *course.ProgressEntry, quiz course.Quiz) error {
	if entry != nil && quiz.MaxAttempts > 0 && entry.Attempts >= quiz.MaxAttempts {
		return apperr.Newf(apperr.CodeAttemptsExhausted, "maximum of %d attempts reached", quiz.MaxAttempts).
			With("attempts", fmt.Sprint(entry.Attempts))
	}
	return nil
}

// Merge folds an attempt result into its progress entry. The entry is completed by
// its first submission; its answers, score and grading status track the latest attempt.
func Merge(entry *course.ProgressEntry, res Result, now time.Time) {
	entry.Attempts++
	entry.Answers = res.Answers
	entry.Score = res.Score
	entry.MaxScore = res.MaxScore
	entry.Percentage = res.Percentage
	entry.GradingStatus = res.GradingStatus
	entry.ProvisionalPassed = res.Passed
	entry.Passed = res.Passed && !res.NeedsManualGrading
	entry.Progress = 100
	entry.Status = course.ProgressCompleted
	entry.LastAccessedAt = &now
	if !entry.Completed {
		entry.Completed = true
		entry.CompletedAt = &now
	}
	updateBest(entry)
}

func updateBest(entry *course.ProgressEntry) {
	if entry.BestAttempt == 0 || entry.Score > entry.BestScore {
		entry.BestScore = entry.Score
		entry.BestAttempt = entry.Attempts
	}
}
