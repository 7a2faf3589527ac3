package utils

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"coursehub/models/course"

	"github.com/go-resty/resty/v2"
)

// CertificateEngine is the part of the enrollment engine the document client needs
type CertificateEngine interface {
	AttachDownloadReference(ctx context.Context, studentID, courseID uint, url string) error
	CertificatesWithoutDownload(ctx context.Context, afterID uint, limit int) ([]course.Certificate, error)
}

// A certificate whose document keeps failing waits documentRetryBase, doubled
// per failure up to documentRetryMax, before the sweep tries it again.
const (
	documentRetryBase = 10 * time.Minute
	documentRetryMax  = 24 * time.Hour
)

type documentFailure struct {
	count   int
	retryAt time.Time
}

// CertificateDocuments renders certificate documents through the external
// document service and records the returned download link.
type CertificateDocuments struct {
	client *resty.Client
	engine CertificateEngine
	now    func() time.Time

	mu       sync.Mutex
	failures map[string]documentFailure // by certificate id
}

type documentRequest struct {
	CertificateID    string    `json:"certificate_id"`
	VerificationCode string    `json:"verification_code"`
	UserID           uint      `json:"user_id"`
	CourseID         uint      `json:"course_id"`
	IssuedAt         time.Time `json:"issued_at"`
	IssuedBy         uint      `json:"issued_by"`
}

type documentResponse struct {
	DownloadURL string `json:"download_url"`
}

// NewCertificateDocuments creates a client for the service at baseURL
func NewCertificateDocuments(baseURL, apiKey string, engine CertificateEngine) *CertificateDocuments {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500*time.Millisecond).
		SetHeader("Content-Type", "application/json")
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}
	return &CertificateDocuments{
		client:   client,
		engine:   engine,
		now:      time.Now,
		failures: make(map[string]documentFailure),
	}
}

// Generate asks the document service for the certificate document and returns its download URL
func (d *CertificateDocuments) Generate(ctx context.Context, cert course.Certificate) (string, error) {
	var out documentResponse
	resp, err := d.client.R().
		SetContext(ctx).
		SetBody(documentRequest{
			CertificateID:    cert.CertificateID,
			VerificationCode: cert.VerificationCode,
			UserID:           cert.UserID,
			CourseID:         cert.CourseID,
			IssuedAt:         cert.IssuedAt,
			IssuedBy:         cert.IssuedBy,
		}).
		SetResult(&out).
		Post("/certificates")
	if err != nil {
		return "", fmt.Errorf("certificate service: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("certificate service returned %d: %s", resp.StatusCode(), resp.String())
	}
	if out.DownloadURL == "" {
		return "", fmt.Errorf("certificate service returned no download url for %s", cert.CertificateID)
	}
	return out.DownloadURL, nil
}

// Attach generates the document and stores its link on the enrollment
func (d *CertificateDocuments) Attach(ctx context.Context, cert course.Certificate) error {
	if err := d.attach(ctx, cert); err != nil {
		d.recordFailure(cert.CertificateID)
		return err
	}
	d.mu.Lock()
	delete(d.failures, cert.CertificateID)
	d.mu.Unlock()
	log.Printf("[CERTIFICATE] document ready for %s", cert.CertificateID)
	return nil
}

func (d *CertificateDocuments) attach(ctx context.Context, cert course.Certificate) error {
	url, err := d.Generate(ctx, cert)
	if err != nil {
		return err
	}
	if err := d.engine.AttachDownloadReference(ctx, cert.UserID, cert.CourseID, url); err != nil {
		return fmt.Errorf("attach download url to %s: %w", cert.CertificateID, err)
	}
	return nil
}

func (d *CertificateDocuments) recordFailure(certificateID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f := d.failures[certificateID]
	f.count++
	wait := documentRetryBase
	for i := 1; i < f.count && wait < documentRetryMax; i++ {
		wait *= 2
	}
	if wait > documentRetryMax {
		wait = documentRetryMax
	}
	f.retryAt = d.now().Add(wait)
	d.failures[certificateID] = f
}

func (d *CertificateDocuments) backingOff(certificateID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.failures[certificateID]
	return ok && d.now().Before(f.retryAt)
}

// OnIssued is the engine's post-commit hook. It runs the document request in
// the background; failures are picked up again by SweepMissing.
func (d *CertificateDocuments) OnIssued(cert course.Certificate) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := d.Attach(ctx, cert); err != nil {
			log.Printf("[CERTIFICATE] %v", err)
		}
	}()
}

// SweepMissing pages through certificates that still have no document, skipping
// those backing off after failures, and returns how many were attached
func (d *CertificateDocuments) SweepMissing(ctx context.Context, limit int) int {
	attached := 0
	var after uint
	for ctx.Err() == nil {
		certs, err := d.engine.CertificatesWithoutDownload(ctx, after, limit)
		if err != nil {
			log.Printf("[CERTIFICATE] listing certificates without documents: %v", err)
			return attached
		}
		for _, cert := range certs {
			after = cert.ID
			if d.backingOff(cert.CertificateID) {
				continue
			}
			if err := d.Attach(ctx, cert); err != nil {
				log.Printf("[CERTIFICATE] %v", err)
				continue
			}
			attached++
		}
		if limit <= 0 || len(certs) < limit {
			break
		}
	}
	return attached
}
