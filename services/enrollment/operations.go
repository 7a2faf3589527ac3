package enrollment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"coursehub/models/course"
	"coursehub/services/apperr"
	"coursehub/services/completion"
	"coursehub/services/grading"

	"github.com/google/uuid"
)

// QuizOutcome is returned by SubmitQuiz.
type QuizOutcome struct {
	grading.Result
	Attempts            int  `json:"attempts"`
	MaxAttempts         int  `json:"max_attempts"`
	AttemptsLeft        int  `json:"attempts_left"`
	EnrollmentCompleted bool `json:"enrollment_completed"`
}

// courseContext is the catalog data an operation needs, read before taking the lock.
type courseContext struct {
	course     *course.Course
	items      []course.CourseContent
	contentIDs []uint
}

func (c *courseContext) item(contentID uint) (course.CourseContent, error) {
	for _, it := range c.items {
		if it.ID == contentID {
			return it, nil
		}
	}
	return course.CourseContent{}, apperr.Newf(apperr.CodeContentItemNotFound, "content item %d not found in course %d", contentID, c.course.ID).
		With("content_id", fmt.Sprint(contentID))
}

func (c *courseContext) issuer(fallback uint) uint {
	if c.course.OwnerID != 0 {
		return c.course.OwnerID
	}
	return fallback
}

func (s *Service) loadCourse(ctx context.Context, courseID uint) (*courseContext, error) {
	crs, err := s.catalog.GetCourse(ctx, courseID)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.Newf(apperr.CodeCourseNotFound, "course %d not found", courseID)
	}
	if err != nil {
		return nil, storageError(err)
	}
	items, err := s.catalog.GetCourseContent(ctx, courseID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, storageError(err)
	}
	cc := &courseContext{course: crs, items: items, contentIDs: make([]uint, 0, len(items))}
	for _, it := range items {
		cc.contentIDs = append(cc.contentIDs, it.ID)
	}
	return cc, nil
}

// settle reconciles completion and issues the certificate once the enrollment is complete.
func (s *Service) settle(e *course.Enrollment, cc *courseContext, now time.Time) error {
	if completion.Reconcile(e, cc.contentIDs, now) {
		log.Printf("[ENROLLMENT] user %d completed course %d", e.UserID, e.CourseID)
	}
	if e.Completed && e.Certificate == nil {
		if _, _, err := completion.IssueCertificate(e, cc.issuer(s.opts.DefaultIssuerID), now); err != nil {
			return err
		}
	}
	return nil
}

// Enroll creates the enrollment for (studentID, courseID). A second call returns the
// existing enrollment together with an ALREADY_ENROLLED error.
func (s *Service) Enroll(ctx context.Context, studentID, courseID uint) (*course.Enrollment, error) {
	cc, err := s.loadCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if cc.course.Status != course.CourseStatusActive || !cc.course.IsPublished {
		return nil, apperr.Newf(apperr.CodeCourseNotFound, "course %d is not open for enrollment", courseID)
	}

	unlock, err := s.lock(ctx, studentID, courseID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	existing, err := s.load(ctx, studentID, courseID)
	if err == nil {
		return existing, apperr.New(apperr.CodeAlreadyEnrolled, "user already enrolled in this course")
	}
	if !apperr.IsCode(err, apperr.CodeNotEnrolled) {
		return nil, err
	}

	e := &course.Enrollment{
		UserID:        studentID,
		CourseID:      courseID,
		Status:        course.EnrollmentEnrolled,
		EnrolledAt:    s.opts.Now(),
		TotalContents: len(cc.contentIDs),
		LastMutation:  uuid.NewString(),
	}
	err = s.withStorageRetry(ctx, func() error { return s.store.CreateEnrollment(ctx, e) })
	if errors.Is(err, ErrDuplicate) {
		// another instance won the race, or our first insert landed unacknowledged
		existing, lerr := s.load(ctx, studentID, courseID)
		if lerr != nil {
			return nil, lerr
		}
		if existing.LastMutation == e.LastMutation {
			log.Printf("[ENROLLMENT] user %d enrolled in course %d", studentID, courseID)
			return existing, nil
		}
		return existing, apperr.New(apperr.CodeAlreadyEnrolled, "user already enrolled in this course")
	}
	if err != nil {
		return nil, storageError(err)
	}
	log.Printf("[ENROLLMENT] user %d enrolled in course %d", studentID, courseID)
	return e, nil
}

// SubmitQuiz grades one quiz attempt and merges it into the student's progress.
func (s *Service) SubmitQuiz(ctx context.Context, studentID, courseID, contentID uint, answers grading.Submission) (*QuizOutcome, error) {
	cc, err := s.loadCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	item, err := cc.item(contentID)
	if err != nil {
		return nil, err
	}
	if !item.IsQuiz() {
		return nil, apperr.Newf(apperr.CodeWrongContentType, "content item %d is not a quiz", contentID)
	}
	quiz, err := s.catalog.GetQuiz(ctx, courseID, contentID)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.Newf(apperr.CodeContentItemNotFound, "quiz %d not found", contentID)
	}
	if err != nil {
		return nil, storageError(err)
	}

	var out QuizOutcome
	_, err = s.mutate(ctx, studentID, courseID, func(e *course.Enrollment) error {
		now := s.opts.Now()
		if err := grading.CheckAttempts(e.Entry(contentID), quiz); err != nil {
			return err
		}
		res, err := grading.Grade(quiz, answers)
		if err != nil {
			return err
		}
		entry := e.EnsureEntry(contentID, course.ContentQuiz)
		grading.Merge(entry, res, now)
		e.AppendAccess(course.AccessRecord{
			ContentID:  contentID,
			Action:     completion.ActionQuizSubmit,
			Progress:   100,
			AccessedAt: now,
		})

		out = QuizOutcome{
			Result:      res,
			Attempts:    entry.Attempts,
			MaxAttempts: quiz.MaxAttempts,
		}
		if quiz.MaxAttempts > 0 {
			out.AttemptsLeft = quiz.MaxAttempts - entry.Attempts
		}
		if err := s.settle(e, cc, now); err != nil {
			return err
		}
		out.EnrollmentCompleted = e.Completed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// RecordProgress records viewing progress on a tutorial or live session.
func (s *Service) RecordProgress(ctx context.Context, studentID, courseID, contentID uint, percent float64, elapsed time.Duration, action string) (*course.ProgressEntry, error) {
	cc, err := s.loadCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	item, err := cc.item(contentID)
	if err != nil {
		return nil, err
	}
	if item.IsQuiz() {
		return nil, apperr.Newf(apperr.CodeWrongContentType, "content item %d is a quiz, submit answers instead", contentID)
	}

	var out course.ProgressEntry
	_, err = s.mutate(ctx, studentID, courseID, func(e *course.Enrollment) error {
		now := s.opts.Now()
		completion.RecordProgress(e, item, completion.Observation{Percent: percent, Elapsed: elapsed, Action: action}, now)
		if err := s.settle(e, cc, now); err != nil {
			return err
		}
		out = *e.Entry(contentID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// authorizeGrader checks that graderID owns or assists the course.
func (s *Service) authorizeGrader(ctx context.Context, cc *courseContext, graderID uint) error {
	if cc.course.OwnerID == graderID {
		return nil
	}
	ok, err := s.catalog.IsGrader(ctx, cc.course.ID, graderID)
	if err != nil {
		return storageError(err)
	}
	if !ok {
		return apperr.Newf(apperr.CodeNotAuthorized, "user %d cannot grade course %d", graderID, cc.course.ID)
	}
	return nil
}

// GradeAnswers applies manual grades to a student's recorded quiz answers.
func (s *Service) GradeAnswers(ctx context.Context, graderID, studentID, courseID, contentID uint, grades []grading.ManualGrade) (*course.ProgressEntry, error) {
	cc, err := s.loadCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeGrader(ctx, cc, graderID); err != nil {
		return nil, err
	}
	item, err := cc.item(contentID)
	if err != nil {
		return nil, err
	}
	if !item.IsQuiz() {
		return nil, apperr.Newf(apperr.CodeWrongContentType, "content item %d is not a quiz", contentID)
	}
	quiz, err := s.catalog.GetQuiz(ctx, courseID, contentID)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.Newf(apperr.CodeContentItemNotFound, "quiz %d not found", contentID)
	}
	if err != nil {
		return nil, storageError(err)
	}

	var out course.ProgressEntry
	_, err = s.mutate(ctx, studentID, courseID, func(e *course.Enrollment) error {
		now := s.opts.Now()
		entry := e.Entry(contentID)
		if entry == nil || len(entry.Answers) == 0 {
			return apperr.Newf(apperr.CodeAnswerNotFound, "no submission recorded for quiz %d", contentID)
		}
		updated, err := grading.ApplyManualGrades(*entry, quiz, grades, graderID, now)
		if err != nil {
			return err
		}
		*entry = updated
		if err := s.settle(e, cc, now); err != nil {
			return err
		}
		out = *e.Entry(contentID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[ENROLLMENT] grader %d graded quiz %d of user %d (%s)", graderID, contentID, studentID, out.GradingStatus)
	return &out, nil
}

// ListPendingGrading returns quiz entries of the course awaiting manual grading.
func (s *Service) ListPendingGrading(ctx context.Context, graderID, courseID uint) ([]PendingGrading, error) {
	cc, err := s.loadCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeGrader(ctx, cc, graderID); err != nil {
		return nil, err
	}
	var out []PendingGrading
	err = s.withStorageRetry(ctx, func() error {
		var err error
		out, err = s.store.ListPendingGrading(ctx, courseID)
		return err
	})
	if err != nil {
		return nil, storageError(err)
	}
	return out, nil
}

// GetCertificate returns the issued certificate of an enrollment.
func (s *Service) GetCertificate(ctx context.Context, studentID, courseID uint) (*course.Certificate, error) {
	e, err := s.load(ctx, studentID, courseID)
	if err != nil {
		return nil, err
	}
	if e.Certificate != nil {
		return e.Certificate, nil
	}
	if !e.Completed {
		return nil, apperr.New(apperr.CodeCourseNotCompleted, "course is not completed yet")
	}
	return nil, apperr.New(apperr.CodeCertificateNotFound, "certificate has not been generated yet")
}

// IssueCertificate generates the certificate on demand; later calls return the same one.
func (s *Service) IssueCertificate(ctx context.Context, studentID, courseID uint) (*course.Certificate, error) {
	cc, err := s.loadCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	e, err := s.mutate(ctx, studentID, courseID, func(e *course.Enrollment) error {
		if e.Certificate != nil {
			return nil
		}
		_, _, err := completion.IssueCertificate(e, cc.issuer(s.opts.DefaultIssuerID), s.opts.Now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return e.Certificate, nil
}

// VerifyCertificate looks a certificate up by its verification code.
func (s *Service) VerifyCertificate(ctx context.Context, code string) (*course.Certificate, error) {
	var cert *course.Certificate
	err := s.withStorageRetry(ctx, func() error {
		var err error
		cert, err = s.store.FindCertificateByCode(ctx, code)
		return err
	})
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.New(apperr.CodeCertificateNotFound, "no certificate matches this verification code")
	}
	if err != nil {
		return nil, storageError(err)
	}
	return cert, nil
}

// AttachDownloadReference stores the document link produced for a certificate.
func (s *Service) AttachDownloadReference(ctx context.Context, studentID, courseID uint, url string) error {
	_, err := s.mutate(ctx, studentID, courseID, func(e *course.Enrollment) error {
		if e.Certificate == nil {
			return apperr.New(apperr.CodeCertificateNotFound, "certificate has not been generated yet")
		}
		e.Certificate.DownloadURL = url
		return nil
	})
	return err
}

// GetProgress returns the enrollment with all its progress entries.
func (s *Service) GetProgress(ctx context.Context, studentID, courseID uint) (*course.Enrollment, error) {
	return s.load(ctx, studentID, courseID)
}

// ListEnrollments returns all enrollments of a student.
func (s *Service) ListEnrollments(ctx context.Context, studentID uint) ([]course.Enrollment, error) {
	var out []course.Enrollment
	err := s.withStorageRetry(ctx, func() error {
		var err error
		out, err = s.store.ListEnrollments(ctx, studentID)
		return err
	})
	if err != nil {
		return nil, storageError(err)
	}
	return out, nil
}

// Reconcile re-evaluates completion of one enrollment against the current course
// content. Nothing is written when the enrollment already matches it.
func (s *Service) Reconcile(ctx context.Context, studentID, courseID uint) (bool, error) {
	cc, err := s.loadCourse(ctx, courseID)
	if err != nil {
		return false, err
	}
	e, err := s.mutate(ctx, studentID, courseID, func(e *course.Enrollment) error {
		before := snapshot(e)
		if err := s.settle(e, cc, s.opts.Now()); err != nil {
			return err
		}
		if snapshot(e) == before {
			return errUnchanged
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return e.Completed, nil
}

// reconcileState is the part of an enrollment a reconciliation can change.
type reconcileState struct {
	status            string
	progress          float64
	completedContents int
	totalContents     int
	completed         bool
	certified         bool
}

func snapshot(e *course.Enrollment) reconcileState {
	return reconcileState{
		status:            e.Status,
		progress:          e.Progress,
		completedContents: e.CompletedContents,
		totalContents:     e.TotalContents,
		completed:         e.Completed,
		certified:         e.Certificate != nil,
	}
}

// SweepIncomplete reconciles incomplete enrollments in pages of limit and
// returns how many became completed. A sweep cut short by ctx resumes from
// the same enrollment on the next call; a finished sweep starts over.
func (s *Service) SweepIncomplete(ctx context.Context, limit int) (int, error) {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	completed := 0
	for {
		if err := ctx.Err(); err != nil {
			return completed, err
		}
		var refs []Ref
		err := s.withStorageRetry(ctx, func() error {
			var err error
			refs, err = s.store.ListIncomplete(ctx, s.sweepAfter, limit)
			return err
		})
		if err != nil {
			return completed, storageError(err)
		}

		for _, r := range refs {
			if ctx.Err() != nil {
				return completed, ctx.Err()
			}
			done, err := s.Reconcile(ctx, r.UserID, r.CourseID)
			s.sweepAfter = r.EnrollmentID
			if err != nil {
				log.Printf("[ENROLLMENT] reconcile user %d course %d: %v", r.UserID, r.CourseID, err)
				continue
			}
			if done {
				completed++
			}
		}
		if limit <= 0 || len(refs) < limit {
			s.sweepAfter = 0
			return completed, nil
		}
	}
}

// CertificatesWithoutDownload pages issued certificates that have no document
// reference yet, in id order after afterID.
func (s *Service) CertificatesWithoutDownload(ctx context.Context, afterID uint, limit int) ([]course.Certificate, error) {
	var out []course.Certificate
	err := s.withStorageRetry(ctx, func() error {
		var err error
		out, err = s.store.ListCertificatesWithoutDownload(ctx, afterID, limit)
		return err
	})
	if err != nil {
		return nil, storageError(err)
	}
	return out, nil
}
