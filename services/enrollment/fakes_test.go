package enrollment

import (
	"context"
	"database/sql/driver"
	"sort"
	"sync"

	"coursehub/models/course"
	"coursehub/services/grading"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// memStore is an in-memory Store with the same version semantics as the gorm store.
type memStore struct {
	mu     sync.Mutex
	nextID uint
	rows   map[Key]*course.Enrollment

	conflicts     int // next SaveEnrollment calls that report a version conflict
	transientSave int // next SaveEnrollment calls that fail transiently
	lostAcks      int // next SaveEnrollment calls that commit and then fail transiently
	lostCreates   int // next CreateEnrollment calls that commit and then fail transiently
	saves         int
	listed        int // refs returned by ListIncomplete
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[Key]*course.Enrollment)}
}

func cloneEnrollment(e *course.Enrollment) *course.Enrollment {
	c := *e
	c.ProgressEntries = make([]course.ProgressEntry, len(e.ProgressEntries))
	for i, pe := range e.ProgressEntries {
		pe.Answers = append(datatypes.JSONSlice[course.AnswerRecord](nil), pe.Answers...)
		c.ProgressEntries[i] = pe
	}
	c.AccessHistory = append([]course.AccessRecord(nil), e.AccessHistory...)
	c.NewAccessRecords = nil
	if e.Certificate != nil {
		cert := *e.Certificate
		c.Certificate = &cert
	}
	return &c
}

func (m *memStore) CreateEnrollment(_ context.Context, e *course.Enrollment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := Key{UserID: e.UserID, CourseID: e.CourseID}
	if _, ok := m.rows[k]; ok {
		return ErrDuplicate
	}
	m.nextID++
	e.ID = m.nextID
	m.rows[k] = cloneEnrollment(e)
	if m.lostCreates > 0 {
		m.lostCreates--
		return driver.ErrBadConn
	}
	return nil
}

func (m *memStore) GetEnrollment(_ context.Context, userID, courseID uint) (*course.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rows[Key{UserID: userID, CourseID: courseID}]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneEnrollment(e), nil
}

func (m *memStore) SaveEnrollment(_ context.Context, e *course.Enrollment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.transientSave > 0 {
		m.transientSave--
		return ErrTransient
	}
	if m.conflicts > 0 {
		m.conflicts--
		return ErrVersionConflict
	}
	k := Key{UserID: e.UserID, CourseID: e.CourseID}
	stored, ok := m.rows[k]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != e.Version {
		return ErrVersionConflict
	}
	next := cloneEnrollment(e)
	next.AccessHistory = append(stored.AccessHistory, e.NewAccessRecords...)
	next.Version++
	if next.Certificate != nil && next.Certificate.ID == 0 {
		m.nextID++
		next.Certificate.ID = m.nextID
	}
	m.rows[k] = next
	m.saves++
	if m.lostAcks > 0 {
		m.lostAcks--
		return driver.ErrBadConn
	}

	e.Version = next.Version
	e.AccessHistory = append([]course.AccessRecord(nil), next.AccessHistory...)
	e.NewAccessRecords = nil
	if e.Certificate != nil {
		e.Certificate.ID = next.Certificate.ID
	}
	return nil
}

func (m *memStore) ListEnrollments(_ context.Context, userID uint) ([]course.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []course.Enrollment
	for k, e := range m.rows {
		if k.UserID == userID {
			out = append(out, *cloneEnrollment(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) ListIncomplete(_ context.Context, afterID uint, limit int) ([]Ref, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Ref
	for k, e := range m.rows {
		if !e.Completed && e.ID > afterID {
			out = append(out, Ref{EnrollmentID: e.ID, Key: k})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EnrollmentID < out[j].EnrollmentID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	m.listed += len(out)
	return out, nil
}

func (m *memStore) ListPendingGrading(_ context.Context, courseID uint) ([]PendingGrading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []PendingGrading
	for k, e := range m.rows {
		if k.CourseID != courseID {
			continue
		}
		for i := range e.ProgressEntries {
			if len(grading.Pending(&e.ProgressEntries[i])) > 0 {
				out = append(out, PendingGrading{UserID: k.UserID, CourseID: k.CourseID, EnrollmentID: e.ID, Entry: e.ProgressEntries[i]})
			}
		}
	}
	return out, nil
}

func (m *memStore) FindCertificateByCode(_ context.Context, code string) (*course.Certificate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.rows {
		if e.Certificate != nil && e.Certificate.VerificationCode == code {
			cert := *e.Certificate
			return &cert, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) ListCertificatesWithoutDownload(_ context.Context, afterID uint, limit int) ([]course.Certificate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []course.Certificate
	for _, e := range m.rows {
		if e.Certificate != nil && e.Certificate.DownloadURL == "" && e.Certificate.ID > afterID {
			out = append(out, *e.Certificate)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) enrollment(userID, courseID uint) *course.Enrollment {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rows[Key{UserID: userID, CourseID: courseID}]
	if !ok {
		return nil
	}
	return cloneEnrollment(e)
}

// memCatalog is a fixed in-memory Catalog.
type memCatalog struct {
	mu       sync.Mutex
	courses  map[uint]course.Course
	contents map[uint][]course.CourseContent
	graders  map[Key]bool // UserID is the grader
}

func (c *memCatalog) GetCourse(_ context.Context, courseID uint) (*course.Course, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	crs, ok := c.courses[courseID]
	if !ok {
		return nil, ErrNotFound
	}
	return &crs, nil
}

func (c *memCatalog) GetCourseContent(_ context.Context, courseID uint) ([]course.CourseContent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]course.CourseContent(nil), c.contents[courseID]...), nil
}

func (c *memCatalog) GetQuiz(_ context.Context, courseID, quizID uint) (course.Quiz, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, it := range c.contents[courseID] {
		if it.ID == quizID && it.IsQuiz() {
			return it.AsQuiz(), nil
		}
	}
	return course.Quiz{}, ErrNotFound
}

func (c *memCatalog) IsGrader(_ context.Context, courseID, userID uint) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.graders[Key{UserID: userID, CourseID: courseID}], nil
}

func (c *memCatalog) removeContent(courseID, contentID uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	items := c.contents[courseID][:0:0]
	for _, it := range c.contents[courseID] {
		if it.ID != contentID {
			items = append(items, it)
		}
	}
	c.contents[courseID] = items
}

func question(id uint, typ course.QuestionType, marks float64, correct ...string) course.QuizQuestion {
	return course.QuizQuestion{
		Model:         gorm.Model{ID: id},
		Type:          typ,
		Marks:         marks,
		Options:       []string{"A", "B", "C", "D"},
		CorrectAnswer: correct,
	}
}

const (
	testCourse     uint = 1
	draftCourse    uint = 2
	ownerID        uint = 100
	assistantID    uint = 200
	tutorialID     uint = 11
	mixedQuizID    uint = 12
	practiceQuizID uint = 13
)

// newCatalog builds an active course with a tutorial, a mixed quiz (3 attempts) and
// an objective practice quiz (10 attempts).
func newCatalog() *memCatalog {
	return &memCatalog{
		courses: map[uint]course.Course{
			testCourse:  {Model: gorm.Model{ID: testCourse}, Title: "Go", OwnerID: ownerID, Status: course.CourseStatusActive, IsPublished: true},
			draftCourse: {Model: gorm.Model{ID: draftCourse}, Title: "Draft", OwnerID: ownerID, Status: course.CourseStatusDraft},
		},
		contents: map[uint][]course.CourseContent{
			testCourse: {
				{Model: gorm.Model{ID: tutorialID}, CourseID: testCourse, ContentType: course.ContentTutorial, IsPublished: true},
				{
					Model: gorm.Model{ID: mixedQuizID}, CourseID: testCourse, ContentType: course.ContentQuiz,
					PassingScore: 60, MaxAttempts: 3, IsPublished: true,
					Questions: []course.QuizQuestion{
						question(1, course.QuestionMultiChoice, 2, "A", "C"),
						question(2, course.QuestionShortAnswer, 3),
					},
				},
				{
					Model: gorm.Model{ID: practiceQuizID}, CourseID: testCourse, ContentType: course.ContentQuiz,
					PassingScore: 50, MaxAttempts: 10, IsPublished: true,
					Questions: []course.QuizQuestion{
						question(5, course.QuestionSingleChoice, 1, "B"),
					},
				},
			},
		},
		graders: map[Key]bool{{UserID: assistantID, CourseID: testCourse}: true},
	}
}
