// Package completion tracks progress on non-quiz items, reconciles enrollment
// completion and issues certificates.
package completion

import (
	"math"
	"time"

	"coursehub/models/course"
)

// CompletionThreshold is the observed percentage at which a tutorial or live
// session counts as completed.
const CompletionThreshold = 95

// Access actions recorded in the history log
const (
	ActionView       = "view"
	ActionResume     = "resume"
	ActionComplete   = "complete"
	ActionQuizSubmit = "quiz-submit"
)

// Observation is one progress report from the player for a content item.
type Observation struct {
	Percent float64
	Elapsed time.Duration
	Action  string
}

// RecordProgress applies an observation to the item's progress entry, creating the
// entry on first access, and appends one access-history record. Progress and
// completion only move forward.
func RecordProgress(e *course.Enrollment, item course.CourseContent, obs Observation, now time.Time) *course.ProgressEntry {
	entry := e.EnsureEntry(item.ID, item.ContentType)

	observed := obs.Percent
	if math.IsNaN(observed) {
		observed = 0
	}
	observed = math.Min(100, math.Max(0, observed))
	entry.Progress = math.Max(entry.Progress, observed)

	if observed >= CompletionThreshold && !entry.Completed {
		entry.Completed = true
		entry.CompletedAt = &now
	}
	if entry.Completed {
		entry.Status = course.ProgressCompleted
	} else {
		entry.Status = course.ProgressInProgress
	}

	secs := int64(obs.Elapsed / time.Second)
	if secs < 0 {
		secs = 0
	}
	entry.TimeSpent += secs
	entry.LastAccessedAt = &now
	e.TotalTimeSpent += secs

	action := obs.Action
	if action == "" {
		action = ActionView
	}
	e.AppendAccess(course.AccessRecord{
		ContentID:  item.ID,
		Action:     action,
		Progress:   observed,
		TimeSpent:  secs,
		AccessedAt: now,
	})
	return entry
}
