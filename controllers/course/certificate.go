package controllers

import (
	"coursehub/middleware"

	"github.com/gofiber/fiber/v2"
)

func GetCertificate(c *fiber.Ctx) error {
	userID, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	courseID := c.Locals("courseID").(uint)

	cert, err := engine.GetCertificate(c.UserContext(), userID, courseID)
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Certificate fetched successfully!", cert)
}

// IssueCertificate generates the certificate if the course is completed; repeated calls return the same one
func IssueCertificate(c *fiber.Ctx) error {
	userID, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	courseID := c.Locals("courseID").(uint)

	cert, err := engine.IssueCertificate(c.UserContext(), userID, courseID)
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Certificate issued successfully!", cert)
}

// VerifyCertificate is the public lookup by verification code
func VerifyCertificate(c *fiber.Ctx) error {
	code := c.Locals("verificationCode").(string)

	cert, err := engine.VerifyCertificate(c.UserContext(), code)
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Certificate is valid!", fiber.Map{
		"certificate_id": cert.CertificateID,
		"user_id":        cert.UserID,
		"course_id":      cert.CourseID,
		"issued_at":      cert.IssuedAt,
		"download_url":   cert.DownloadURL,
	})
}
