// Package enrollment is the progress and grading engine: every operation that
// mutates an enrollment runs under a per-(student, course) lock and writes the
// whole enrollment back with an optimistic version check.
package enrollment

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"coursehub/models/course"
	"coursehub/services/apperr"

	"github.com/google/uuid"
)

// Options tunes the serialization and retry behaviour of the service.
type Options struct {
	LockTimeout     time.Duration // max wait for the per-enrollment lock
	ConflictRetries int           // extra attempts after a version conflict, negative for none
	StorageBackoff  time.Duration // pause before retrying a transient storage error
	DefaultIssuerID uint          // issuer for certificates of courses without an owner
	Now             func() time.Time
	// OnCertificateIssued runs after the commit that created a certificate,
	// outside the enrollment lock.
	OnCertificateIssued func(course.Certificate)
}

// DefaultOptions returns the settings used when fields are left zero.
func DefaultOptions() Options {
	return Options{
		LockTimeout:     5 * time.Second,
		ConflictRetries: 3,
		StorageBackoff:  100 * time.Millisecond,
		Now:             time.Now,
	}
}

// Service implements the enrollment engine operations.
type Service struct {
	store   Store
	catalog Catalog
	locks   *KeyedLocker
	opts    Options

	sweepMu    sync.Mutex
	sweepAfter uint // enrollment id the reconcile sweep resumes after
}

// NewService wires the engine to its store and course catalog.
func NewService(store Store, catalog Catalog, opts Options) *Service {
	def := DefaultOptions()
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = def.LockTimeout
	}
	switch {
	case opts.ConflictRetries == 0:
		opts.ConflictRetries = def.ConflictRetries
	case opts.ConflictRetries < 0:
		opts.ConflictRetries = 0
	}
	if opts.StorageBackoff <= 0 {
		opts.StorageBackoff = def.StorageBackoff
	}
	if opts.Now == nil {
		opts.Now = def.Now
	}
	return &Service{
		store:   store,
		catalog: catalog,
		locks:   NewKeyedLocker(),
		opts:    opts,
	}
}

// SetCertificateHook replaces the post-commit certificate callback.
func (s *Service) SetCertificateHook(fn func(course.Certificate)) {
	s.opts.OnCertificateIssued = fn
}

func lockKey(userID, courseID uint) string {
	return fmt.Sprintf("%d:%d", userID, courseID)
}

// lock acquires the enrollment lock, bounded by LockTimeout.
func (s *Service) lock(ctx context.Context, userID, courseID uint) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, s.opts.LockTimeout)
	defer cancel()
	unlock, err := s.locks.Lock(lockCtx, lockKey(userID, courseID))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperr.New(apperr.CodeConcurrentModification, "enrollment is busy, try again")
	}
	return unlock, nil
}

// errUnchanged lets a mutation report that it left the enrollment as it was;
// mutate then returns the loaded copy without writing.
var errUnchanged = errors.New("enrollment unchanged")

// mutate is the single read-modify-write path for an enrollment. fn runs on a
// freshly loaded copy; returning an error aborts without writing. A version
// conflict reloads and reruns fn up to ConflictRetries more times.
//
// Every write carries a mutation token. A transient error on save does not say
// whether the commit landed, so the enrollment is reloaded once after
// StorageBackoff: if it carries the token the write is kept, otherwise fn runs
// again on the reloaded copy.
func (s *Service) mutate(ctx context.Context, userID, courseID uint, fn func(e *course.Enrollment) error) (*course.Enrollment, error) {
	unlock, err := s.lock(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	e, issued, err := s.mutateLocked(ctx, userID, courseID, fn)
	unlock()
	if err != nil {
		return nil, err
	}

	if issued != nil && s.opts.OnCertificateIssued != nil {
		s.opts.OnCertificateIssued(*issued)
	}
	return e, nil
}

// mutateLocked runs the load-apply-save loop and returns the certificate the
// write created, if any. The caller holds the enrollment lock.
func (s *Service) mutateLocked(ctx context.Context, userID, courseID uint, fn func(e *course.Enrollment) error) (*course.Enrollment, *course.Certificate, error) {
	token := uuid.NewString()
	conflicts := 0
	transientRetried := false
	for {
		e, err := s.load(ctx, userID, courseID)
		if err != nil {
			return nil, nil, err
		}
		hadCertificate := e.Certificate != nil

		if err = fn(e); err != nil {
			if errors.Is(err, errUnchanged) {
				return e, nil, nil
			}
			return nil, nil, err
		}

		e.LastMutation = token
		err = s.store.SaveEnrollment(ctx, e)
		if err != nil && isTransient(err) && !transientRetried {
			transientRetried = true
			log.Printf("[ENROLLMENT] transient error saving user %d course %d, checking commit: %v", userID, courseID, err)
			if err := s.pause(ctx); err != nil {
				return nil, nil, err
			}
			stored, loadErr := s.load(ctx, userID, courseID)
			if loadErr != nil {
				return nil, nil, loadErr
			}
			if stored.LastMutation != token {
				continue
			}
			e, err = stored, nil
		}

		if err == nil {
			if !hadCertificate && e.Certificate != nil {
				return e, e.Certificate, nil
			}
			return e, nil, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, nil, storageError(err)
		}
		if conflicts >= s.opts.ConflictRetries {
			return nil, nil, apperr.Wrap(apperr.CodeConcurrentModification, "enrollment was modified concurrently, try again", err)
		}
		conflicts++
		log.Printf("[ENROLLMENT] version conflict on user %d course %d, retrying (%d/%d)", userID, courseID, conflicts, s.opts.ConflictRetries)
	}
}

// load reads an enrollment, mapping a miss to NotEnrolled.
func (s *Service) load(ctx context.Context, userID, courseID uint) (*course.Enrollment, error) {
	var e *course.Enrollment
	err := s.withStorageRetry(ctx, func() error {
		var err error
		e, err = s.store.GetEnrollment(ctx, userID, courseID)
		return err
	})
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.Newf(apperr.CodeNotEnrolled, "user %d is not enrolled in course %d", userID, courseID)
	}
	if err != nil {
		return nil, storageError(err)
	}
	return e, nil
}

// withStorageRetry runs op and retries it once after StorageBackoff when the
// failure is transient. op must be a read or an insert whose replay is
// detected by the store; enrollment updates go through mutate.
func (s *Service) withStorageRetry(ctx context.Context, op func() error) error {
	err := op()
	if err == nil || !isTransient(err) {
		return err
	}
	log.Printf("[ENROLLMENT] transient storage error, retrying once: %v", err)
	if err := s.pause(ctx); err != nil {
		return err
	}
	return op()
}

func (s *Service) pause(ctx context.Context) error {
	timer := time.NewTimer(s.opts.StorageBackoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isTransient(err error) bool {
	if errors.Is(err, ErrTransient) || errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// storageError maps I/O failures to StorageUnavailable and passes typed and
// context errors through.
func storageError(err error) error {
	if err == nil {
		return nil
	}
	if apperr.GetCode(err) != apperr.CodeUnknown {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return apperr.Wrap(apperr.CodeStorageUnavailable, "storage is unavailable", err)
}
