package utils

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

const sweepBatch = 500

// Reconciler re-evaluates completion of incomplete enrollments
type Reconciler interface {
	SweepIncomplete(ctx context.Context, limit int) (int, error)
}

// InitializeCourseScheduler schedules the reconcile sweep and, when docs is set,
// the certificate document sweep. The caller stops the returned cron.
func InitializeCourseScheduler(spec string, engine Reconciler, docs *CertificateDocuments) (*cron.Cron, error) {
	log.Println("[RECONCILE-SCHEDULER] Initializing course scheduler...")

	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		RunCourseSweep(ctx, engine, docs)
	})
	if err != nil {
		return nil, err
	}

	c.Start()
	log.Printf("[RECONCILE-SCHEDULER] Course scheduler started - runs at %q", spec)
	return c, nil
}

// RunCourseSweep runs one pass of both sweeps
func RunCourseSweep(ctx context.Context, engine Reconciler, docs *CertificateDocuments) {
	completed, err := engine.SweepIncomplete(ctx, sweepBatch)
	if err != nil {
		log.Printf("[RECONCILE-SCHEDULER] Error reconciling enrollments: %v", err)
	} else if completed > 0 {
		log.Printf("[RECONCILE-SCHEDULER] Completed %d enrollments", completed)
	}

	if docs == nil {
		return
	}
	if n := docs.SweepMissing(ctx, sweepBatch); n > 0 {
		log.Printf("[RECONCILE-SCHEDULER] Attached %d certificate documents", n)
	}
}
