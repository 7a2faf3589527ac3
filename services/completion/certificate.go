package completion

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"
	"time"

	"coursehub/models/course"
	"coursehub/services/apperr"

	"github.com/google/uuid"
)

// verificationCodeBytes gives 160 bits of entropy, 32 base32 characters.
const verificationCodeBytes = 20

// IssueCertificate returns the enrollment's certificate, creating it on the first
// call after completion. created is false when an existing certificate is returned.
func IssueCertificate(e *course.Enrollment, issuerID uint, now time.Time) (cert *course.Certificate, created bool, err error) {
	if !e.Completed {
		return nil, false, apperr.New(apperr.CodeCourseNotCompleted, "course is not completed yet").
			With("course_id", fmt.Sprint(e.CourseID))
	}
	if e.Certificate != nil {
		return e.Certificate, false, nil
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return nil, false, fmt.Errorf("generate certificate id: %w", err)
	}
	code, err := NewVerificationCode()
	if err != nil {
		return nil, false, err
	}

	e.Certificate = &course.Certificate{
		EnrollmentID:     e.ID,
		UserID:           e.UserID,
		CourseID:         e.CourseID,
		CertificateID:    "CERT-" + strings.ToUpper(id.String()),
		VerificationCode: code,
		IssuedAt:         now,
		IssuedBy:         issuerID,
	}
	return e.Certificate, true, nil
}

// NewVerificationCode returns an unguessable code from crypto/rand, lower-case
// base32 without padding.
func NewVerificationCode() (string, error) {
	buf := make([]byte, verificationCodeBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate verification code: %w", err)
	}
	return strings.ToLower(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf)), nil
}
