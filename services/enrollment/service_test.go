package enrollment

import (
	"context"
	"sync"
	"testing"
	"time"

	"coursehub/models/course"
	"coursehub/services/apperr"
	"coursehub/services/grading"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const student uint = 7

var fixedNow = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

type harness struct {
	store   *memStore
	catalog *memCatalog
	svc     *Service

	mu     sync.Mutex
	issued []course.Certificate
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{store: newMemStore(), catalog: newCatalog()}
	h.svc = NewService(h.store, h.catalog, Options{
		LockTimeout:    time.Second,
		StorageBackoff: time.Millisecond,
		Now:            func() time.Time { return fixedNow },
		OnCertificateIssued: func(c course.Certificate) {
			h.mu.Lock()
			h.issued = append(h.issued, c)
			h.mu.Unlock()
		},
	})
	return h
}

func (h *harness) enroll(t *testing.T) *course.Enrollment {
	t.Helper()
	e, err := h.svc.Enroll(context.Background(), student, testCourse)
	require.NoError(t, err)
	return e
}

func (h *harness) hookCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.issued)
}

func TestEnrollIsAtMostOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := h.enroll(t)
	assert.Equal(t, course.EnrollmentEnrolled, first.Status)
	assert.Equal(t, 3, first.TotalContents)

	again, err := h.svc.Enroll(ctx, student, testCourse)
	assert.True(t, apperr.IsCode(err, apperr.CodeAlreadyEnrolled))
	require.NotNil(t, again)
	assert.Equal(t, first.ID, again.ID)

	list, err := h.svc.ListEnrollments(ctx, student)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestEnrollRejectsUnavailableCourses(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Enroll(ctx, student, draftCourse)
	assert.True(t, apperr.IsCode(err, apperr.CodeCourseNotFound))

	_, err = h.svc.Enroll(ctx, student, 999)
	assert.True(t, apperr.IsCode(err, apperr.CodeCourseNotFound))
}

func TestOperationsRequireEnrollment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.SubmitQuiz(ctx, student, testCourse, practiceQuizID, grading.Submission{5: {"B"}})
	assert.True(t, apperr.IsCode(err, apperr.CodeNotEnrolled))

	_, err = h.svc.RecordProgress(ctx, student, testCourse, tutorialID, 50, time.Minute, "")
	assert.True(t, apperr.IsCode(err, apperr.CodeNotEnrolled))

	_, err = h.svc.GetCertificate(ctx, student, testCourse)
	assert.True(t, apperr.IsCode(err, apperr.CodeNotEnrolled))
}

func TestContentItemLookup(t *testing.T) {
	h := newHarness(t)
	h.enroll(t)
	ctx := context.Background()

	_, err := h.svc.SubmitQuiz(ctx, student, testCourse, 999, grading.Submission{})
	assert.True(t, apperr.IsCode(err, apperr.CodeContentItemNotFound))

	_, err = h.svc.SubmitQuiz(ctx, student, testCourse, tutorialID, grading.Submission{})
	assert.True(t, apperr.IsCode(err, apperr.CodeWrongContentType))

	_, err = h.svc.RecordProgress(ctx, student, testCourse, mixedQuizID, 100, 0, "")
	assert.True(t, apperr.IsCode(err, apperr.CodeWrongContentType))

	_, err = h.svc.SubmitQuiz(ctx, student, testCourse, practiceQuizID, grading.Submission{99: {"B"}})
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidAnswer))
	assert.Nil(t, h.store.enrollment(student, testCourse).Entry(practiceQuizID))
}

func TestSubmitQuizEnforcesAttemptsCap(t *testing.T) {
	h := newHarness(t)
	h.enroll(t)
	ctx := context.Background()
	answers := grading.Submission{1: {"A"}, 2: {"an answer"}}

	for i := 1; i <= 3; i++ {
		out, err := h.svc.SubmitQuiz(ctx, student, testCourse, mixedQuizID, answers)
		require.NoError(t, err)
		assert.Equal(t, i, out.Attempts)
		assert.Equal(t, 3-i, out.AttemptsLeft)
	}

	_, err := h.svc.SubmitQuiz(ctx, student, testCourse, mixedQuizID, answers)
	assert.True(t, apperr.IsCode(err, apperr.CodeAttemptsExhausted))

	entry := h.store.enrollment(student, testCourse).Entry(mixedQuizID)
	require.NotNil(t, entry)
	assert.Equal(t, 3, entry.Attempts)
}

func TestSubmitQuizRecordsAccess(t *testing.T) {
	h := newHarness(t)
	h.enroll(t)

	out, err := h.svc.SubmitQuiz(context.Background(), student, testCourse, practiceQuizID, grading.Submission{5: {"B"}})
	require.NoError(t, err)
	assert.True(t, out.Passed)
	assert.Equal(t, 100, out.Percentage)
	assert.Equal(t, course.GradingAutoGraded, out.GradingStatus)

	e := h.store.enrollment(student, testCourse)
	require.Len(t, e.AccessHistory, 1)
	assert.Equal(t, "quiz-submit", e.AccessHistory[0].Action)
	assert.Equal(t, course.EnrollmentInProgress, e.Status)
	require.NotNil(t, e.LastAccessedAt)
}

func completeObjectiveWork(t *testing.T, h *harness) {
	t.Helper()
	ctx := context.Background()
	_, err := h.svc.RecordProgress(ctx, student, testCourse, tutorialID, 100, 10*time.Minute, "complete")
	require.NoError(t, err)
	_, err = h.svc.SubmitQuiz(ctx, student, testCourse, practiceQuizID, grading.Submission{5: {"B"}})
	require.NoError(t, err)
}

func TestCompletionWaitsForManualGrading(t *testing.T) {
	h := newHarness(t)
	h.enroll(t)
	ctx := context.Background()
	completeObjectiveWork(t, h)

	out, err := h.svc.SubmitQuiz(ctx, student, testCourse, mixedQuizID, grading.Submission{
		1: {"C", "A"},
		2: {"goroutines are cheap"},
	})
	require.NoError(t, err)
	assert.Equal(t, course.GradingPartiallyGraded, out.GradingStatus)
	assert.False(t, out.EnrollmentCompleted)

	_, err = h.svc.GetCertificate(ctx, student, testCourse)
	assert.True(t, apperr.IsCode(err, apperr.CodeCourseNotCompleted))

	pending, err := h.svc.ListPendingGrading(ctx, ownerID, testCourse)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, student, pending[0].UserID)

	entry, err := h.svc.GradeAnswers(ctx, ownerID, student, testCourse, mixedQuizID, []grading.ManualGrade{
		{QuestionID: 2, Marks: 3, Feedback: "good"},
	})
	require.NoError(t, err)
	assert.Equal(t, course.GradingManuallyGraded, entry.GradingStatus)
	assert.Equal(t, 100, entry.Percentage)
	assert.True(t, entry.Passed)

	e := h.store.enrollment(student, testCourse)
	assert.True(t, e.Completed)
	assert.Equal(t, course.EnrollmentCompleted, e.Status)
	assert.Equal(t, float64(100), e.Progress)
	require.NotNil(t, e.Certificate)
	assert.Equal(t, ownerID, e.Certificate.IssuedBy)
	assert.Equal(t, 1, h.hookCalls())

	cert, err := h.svc.GetCertificate(ctx, student, testCourse)
	require.NoError(t, err)
	assert.Equal(t, e.Certificate.CertificateID, cert.CertificateID)

	pending, err = h.svc.ListPendingGrading(ctx, ownerID, testCourse)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestCertificateIsIssuedOnce(t *testing.T) {
	h := newHarness(t)
	h.enroll(t)
	ctx := context.Background()
	completeObjectiveWork(t, h)
	_, err := h.svc.SubmitQuiz(ctx, student, testCourse, mixedQuizID, grading.Submission{1: {"A", "C"}, 2: {"x"}})
	require.NoError(t, err)
	_, err = h.svc.GradeAnswers(ctx, assistantID, student, testCourse, mixedQuizID, []grading.ManualGrade{{QuestionID: 2, Marks: 1}})
	require.NoError(t, err)

	first, err := h.svc.IssueCertificate(ctx, student, testCourse)
	require.NoError(t, err)
	second, err := h.svc.IssueCertificate(ctx, student, testCourse)
	require.NoError(t, err)
	assert.Equal(t, first.CertificateID, second.CertificateID)
	assert.Equal(t, first.VerificationCode, second.VerificationCode)

	// regrading a completed enrollment keeps the certificate
	_, err = h.svc.GradeAnswers(ctx, ownerID, student, testCourse, mixedQuizID, []grading.ManualGrade{{QuestionID: 2, Marks: 0}})
	require.NoError(t, err)
	e := h.store.enrollment(student, testCourse)
	assert.True(t, e.Completed)
	assert.Equal(t, first.CertificateID, e.Certificate.CertificateID)
	assert.Equal(t, 1, h.hookCalls())

	verified, err := h.svc.VerifyCertificate(ctx, first.VerificationCode)
	require.NoError(t, err)
	assert.Equal(t, student, verified.UserID)

	_, err = h.svc.VerifyCertificate(ctx, "not-a-code")
	assert.True(t, apperr.IsCode(err, apperr.CodeCertificateNotFound))
}

func TestIssueCertificateBeforeCompletion(t *testing.T) {
	h := newHarness(t)
	h.enroll(t)

	_, err := h.svc.IssueCertificate(context.Background(), student, testCourse)
	assert.True(t, apperr.IsCode(err, apperr.CodeCourseNotCompleted))
	assert.Nil(t, h.store.enrollment(student, testCourse).Certificate)
}

func TestGradeAnswersAuthorization(t *testing.T) {
	h := newHarness(t)
	h.enroll(t)
	ctx := context.Background()
	grades := []grading.ManualGrade{{QuestionID: 2, Marks: 1}}

	_, err := h.svc.GradeAnswers(ctx, ownerID, student, testCourse, mixedQuizID, grades)
	assert.True(t, apperr.IsCode(err, apperr.CodeAnswerNotFound))

	_, err = h.svc.SubmitQuiz(ctx, student, testCourse, mixedQuizID, grading.Submission{1: {"A"}, 2: {"x"}})
	require.NoError(t, err)

	_, err = h.svc.GradeAnswers(ctx, 555, student, testCourse, mixedQuizID, grades)
	assert.True(t, apperr.IsCode(err, apperr.CodeNotAuthorized))
	_, err = h.svc.ListPendingGrading(ctx, 555, testCourse)
	assert.True(t, apperr.IsCode(err, apperr.CodeNotAuthorized))

	_, err = h.svc.GradeAnswers(ctx, assistantID, student, testCourse, mixedQuizID, []grading.ManualGrade{{QuestionID: 2, Marks: 4}})
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidMarks))

	entry, err := h.svc.GradeAnswers(ctx, assistantID, student, testCourse, mixedQuizID, grades)
	require.NoError(t, err)
	assert.Equal(t, course.GradingManuallyGraded, entry.GradingStatus)
}

func TestConcurrentSubmissionsAreSerialized(t *testing.T) {
	h := newHarness(t)
	h.enroll(t)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.svc.SubmitQuiz(context.Background(), student, testCourse, practiceQuizID, grading.Submission{5: {"B"}})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 2, h.store.enrollment(student, testCourse).Entry(practiceQuizID).Attempts)
	assert.Equal(t, 0, h.svc.locks.Len())
}

func TestConflictsAcrossInstancesAreRetried(t *testing.T) {
	h := newHarness(t)
	h.enroll(t)
	other := NewService(h.store, h.catalog, Options{StorageBackoff: time.Millisecond, Now: func() time.Time { return fixedNow }})

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		svc := h.svc
		if i%2 == 1 {
			svc = other
		}
		wg.Add(1)
		go func(i int, svc *Service) {
			defer wg.Done()
			_, errs[i] = svc.SubmitQuiz(context.Background(), student, testCourse, practiceQuizID, grading.Submission{5: {"A"}})
		}(i, svc)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	e := h.store.enrollment(student, testCourse)
	assert.Equal(t, 4, e.Entry(practiceQuizID).Attempts)
	assert.Len(t, e.AccessHistory, 4)
}

func TestPersistentConflictFails(t *testing.T) {
	h := newHarness(t)
	h.enroll(t)
	h.store.conflicts = 100

	_, err := h.svc.SubmitQuiz(context.Background(), student, testCourse, practiceQuizID, grading.Submission{5: {"B"}})
	assert.True(t, apperr.IsCode(err, apperr.CodeConcurrentModification))
	assert.Nil(t, h.store.enrollment(student, testCourse).Entry(practiceQuizID))
	assert.Equal(t, 100-4, h.store.conflicts)
}

func TestTransientStorageErrorIsRetriedOnce(t *testing.T) {
	h := newHarness(t)
	h.enroll(t)
	ctx := context.Background()

	h.store.transientSave = 1
	_, err := h.svc.RecordProgress(ctx, student, testCourse, tutorialID, 40, time.Minute, "")
	require.NoError(t, err)

	h.store.transientSave = 2
	_, err = h.svc.RecordProgress(ctx, student, testCourse, tutorialID, 60, time.Minute, "")
	assert.True(t, apperr.IsCode(err, apperr.CodeStorageUnavailable))

	entry := h.store.enrollment(student, testCourse).Entry(tutorialID)
	assert.Equal(t, float64(40), entry.Progress)
	assert.Equal(t, int64(60), entry.TimeSpent)
}

func TestLostSaveAcknowledgementIsNotReapplied(t *testing.T) {
	h := newHarness(t)
	h.enroll(t)
	h.store.lostAcks = 1

	out, err := h.svc.SubmitQuiz(context.Background(), student, testCourse, practiceQuizID, grading.Submission{5: {"B"}})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Attempts)
	assert.Equal(t, 9, out.AttemptsLeft)

	e := h.store.enrollment(student, testCourse)
	assert.Equal(t, 1, e.Entry(practiceQuizID).Attempts)
	assert.Len(t, e.AccessHistory, 1)
	assert.Equal(t, 1, h.store.saves)
	assert.Equal(t, int64(1), e.Version)
}

func TestLostAcknowledgementOfCertificateWriteFiresHookOnce(t *testing.T) {
	h := newHarness(t)
	h.enroll(t)
	h.catalog.removeContent(testCourse, mixedQuizID)
	ctx := context.Background()

	_, err := h.svc.RecordProgress(ctx, student, testCourse, tutorialID, 100, time.Minute, "complete")
	require.NoError(t, err)
	h.store.lostAcks = 1
	out, err := h.svc.SubmitQuiz(ctx, student, testCourse, practiceQuizID, grading.Submission{5: {"B"}})
	require.NoError(t, err)
	assert.True(t, out.EnrollmentCompleted)

	assert.Equal(t, 1, h.hookCalls())
	assert.Equal(t, 1, h.store.enrollment(student, testCourse).Entry(practiceQuizID).Attempts)
}

func TestEnrollSurvivesLostAcknowledgement(t *testing.T) {
	h := newHarness(t)
	h.store.lostCreates = 1

	e, err := h.svc.Enroll(context.Background(), student, testCourse)
	require.NoError(t, err)
	assert.Equal(t, course.EnrollmentEnrolled, e.Status)
	require.NotNil(t, h.store.enrollment(student, testCourse))

	_, err = h.svc.Enroll(context.Background(), student, testCourse)
	assert.True(t, apperr.IsCode(err, apperr.CodeAlreadyEnrolled))
}

func TestLockTimeoutReportsBusy(t *testing.T) {
	h := newHarness(t)
	h.enroll(t)
	h.svc.opts.LockTimeout = 20 * time.Millisecond

	unlock, err := h.svc.locks.Lock(context.Background(), lockKey(student, testCourse))
	require.NoError(t, err)
	defer unlock()

	_, err = h.svc.RecordProgress(context.Background(), student, testCourse, tutorialID, 10, 0, "")
	assert.True(t, apperr.IsCode(err, apperr.CodeConcurrentModification))
}

func TestSweepCompletesAfterContentRemoval(t *testing.T) {
	h := newHarness(t)
	h.enroll(t)
	ctx := context.Background()
	completeObjectiveWork(t, h)

	n, err := h.svc.SweepIncomplete(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, n)

	h.catalog.removeContent(testCourse, mixedQuizID)
	n, err = h.svc.SweepIncomplete(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	e := h.store.enrollment(student, testCourse)
	assert.True(t, e.Completed)
	assert.Equal(t, 2, e.TotalContents)
	require.NotNil(t, e.Certificate)
	assert.Equal(t, 1, h.hookCalls())
}

func TestSweepWalksPastPageLimit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	// two students still mid-course hold the first enrollment ids
	for _, id := range []uint{1, 2} {
		_, err := h.svc.Enroll(ctx, id, testCourse)
		require.NoError(t, err)
		_, err = h.svc.RecordProgress(ctx, id, testCourse, tutorialID, 30, time.Minute, "")
		require.NoError(t, err)
	}
	h.enroll(t)
	completeObjectiveWork(t, h)
	h.catalog.removeContent(testCourse, mixedQuizID)

	n, err := h.svc.SweepIncomplete(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, h.store.enrollment(student, testCourse).Completed)
	assert.Equal(t, 3, h.store.listed)
	assert.Zero(t, h.svc.sweepAfter)

	versions := map[uint]int64{}
	for _, id := range []uint{1, 2} {
		e := h.store.enrollment(id, testCourse)
		assert.Equal(t, 2, e.TotalContents)
		versions[id] = e.Version
	}
	saves := h.store.saves

	n, err = h.svc.SweepIncomplete(ctx, 2)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, saves, h.store.saves)
	for id, v := range versions {
		assert.Equal(t, v, h.store.enrollment(id, testCourse).Version)
	}
}

func TestSweepResumesAfterCancellation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, id := range []uint{1, 2, 3} {
		_, err := h.svc.Enroll(ctx, id, testCourse)
		require.NoError(t, err)
	}
	h.svc.sweepAfter = 2

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err := h.svc.SweepIncomplete(canceled, 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, uint(2), h.svc.sweepAfter)

	_, err = h.svc.SweepIncomplete(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, h.store.listed)
	assert.Zero(t, h.svc.sweepAfter)
}

func TestAttachDownloadReference(t *testing.T) {
	h := newHarness(t)
	h.enroll(t)
	ctx := context.Background()

	err := h.svc.AttachDownloadReference(ctx, student, testCourse, "https://certs.example/x.pdf")
	assert.True(t, apperr.IsCode(err, apperr.CodeCertificateNotFound))

	h.catalog.removeContent(testCourse, mixedQuizID)
	completeObjectiveWork(t, h)
	pending, err := h.store.ListCertificatesWithoutDownload(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, h.svc.AttachDownloadReference(ctx, student, testCourse, "https://certs.example/x.pdf"))
	cert, err := h.svc.GetCertificate(ctx, student, testCourse)
	require.NoError(t, err)
	assert.Equal(t, "https://certs.example/x.pdf", cert.DownloadURL)

	pending, err = h.store.ListCertificatesWithoutDownload(ctx, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
