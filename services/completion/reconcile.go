package completion

import (
	"math"
	"time"

	"coursehub/models/course"
)

// Settled reports whether an entry counts towards course completion.
func Settled(entry *course.ProgressEntry) bool {
	return entry != nil && entry.Completed && entry.GradingStatus != course.GradingPartiallyGraded
}

// Reconcile recomputes the enrollment counters and completion from its progress
// entries. It returns true when this call moved the enrollment to completed.
// Completion is never reverted here.
func Reconcile(e *course.Enrollment, contentIDs []uint, now time.Time) bool {
	settled, touched := 0, 0
	for _, id := range contentIDs {
		entry := e.Entry(id)
		if entry == nil {
			continue
		}
		touched++
		if Settled(entry) {
			settled++
		}
	}

	e.TotalContents = len(contentIDs)
	e.CompletedContents = settled
	if len(contentIDs) > 0 {
		e.Progress = math.Round(float64(settled)/float64(len(contentIDs))*10000) / 100
	} else {
		e.Progress = 0
	}

	transitioned := false
	if !e.Completed && len(contentIDs) > 0 && settled == len(contentIDs) {
		e.Completed = true
		e.CompletedAt = &now
		transitioned = true
	}

	switch {
	case e.Completed:
		e.Status = course.EnrollmentCompleted
		e.Progress = 100
	case touched > 0:
		e.Status = course.EnrollmentInProgress
	default:
		e.Status = course.EnrollmentEnrolled
	}
	return transitioned
}
