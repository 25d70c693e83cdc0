package utils

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"lms/config"
	"lms/database"
	"lms/models"
	"lms/models/course"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

// GenerateCertificationID produces a unique certificate number of the form
// CERT-{unix timestamp}-{8 uppercase hex chars}.
func GenerateCertificationID() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))[:8]
	return fmt.Sprintf("CERT-%d-%s", time.Now().Unix(), suffix)
}

// CreateShortURL builds the short verification link for a certificate number,
// using the first 6 chars of its hex suffix.
func CreateShortURL(baseURL string, certificateNumber string) string {
	parts := strings.Split(certificateNumber, "-")
	short := parts[len(parts)-1]
	if len(short) > 6 {
		short = short[:6]
	}
	return fmt.Sprintf("%s/v/%s", baseURL, strings.ToLower(short))
}

// renderCertificatePDF produces the certificate PDF bytes. When an external
// render service is configured it is called with the certificate fields;
// otherwise a minimal single-page PDF is generated locally so the flow still
// works in development.
func renderCertificatePDF(studentName, courseTitle, certificateNumber, verifyURL string, issuedAt time.Time) ([]byte, error) {
	if config.AppConfig.CertRenderURL != "" {
		client := resty.New().SetTimeout(60 * time.Second)
		resp, err := client.R().
			SetHeader("Content-Type", "application/json").
			SetBody(map[string]string{
				"student_name":       studentName,
				"course_title":       courseTitle,
				"certificate_number": certificateNumber,
				"verify_url":         verifyURL,
				"issued_at":          issuedAt.Format("2006-01-02"),
			}).
			Post(config.AppConfig.CertRenderURL)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode() >= 400 {
			return nil, fmt.Errorf("certificate renderer returned status %d", resp.StatusCode())
		}
		if len(resp.Body()) == 0 {
			return nil, errors.New("certificate renderer returned empty document")
		}
		return resp.Body(), nil
	}

	return buildFallbackPDF(studentName, courseTitle, certificateNumber, issuedAt), nil
}

// buildFallbackPDF writes a minimal but valid one-page PDF by hand. Good
// enough for local environments without the render service.
func buildFallbackPDF(studentName, courseTitle, certificateNumber string, issuedAt time.Time) []byte {
	esc := func(s string) string {
		s = strings.ReplaceAll(s, `\`, `\\`)
		s = strings.ReplaceAll(s, "(", `\(`)
		return strings.ReplaceAll(s, ")", `\)`)
	}
	content := fmt.Sprintf(
		"BT /F1 24 Tf 120 600 Td (Certificate of Completion) Tj ET\n"+
			"BT /F1 18 Tf 120 540 Td (%s) Tj ET\n"+
			"BT /F1 14 Tf 120 500 Td (has completed: %s) Tj ET\n"+
			"BT /F1 10 Tf 120 460 Td (%s - issued %s) Tj ET\n",
		esc(studentName), esc(courseTitle), esc(certificateNumber), issuedAt.Format("2006-01-02"))

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, 0, 5)
	writeObj := func(body string) {
		offsets = append(offsets, buf.Len())
		buf.WriteString(body)
	}
	writeObj("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	writeObj("2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n")
	writeObj("3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 792 612] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>\nendobj\n")
	writeObj(fmt.Sprintf("4 0 obj\n<< /Length %d >>\nstream\n%s\nendstream\nendobj\n", len(content), content))
	writeObj("5 0 obj\n<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>\nendobj\n")

	xrefStart := buf.Len()
	buf.WriteString(fmt.Sprintf("xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1))
	for _, off := range offsets {
		buf.WriteString(fmt.Sprintf("%010d 00000 n \n", off))
	}
	buf.WriteString(fmt.Sprintf("trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xrefStart))
	return buf.Bytes()
}

// IssueCertificate issues the completion certificate for a user, exactly once.
//
// Returns the existing certificate when one already exists. A render failure
// aborts without creating a row so the next completion trigger retries; an
// upload failure degrades to a placeholder URL but the row is still created,
// since the certificate number must not change on retry.
func IssueCertificate(userID uint) (*course.Certificate, error) {
	db := database.Database.Db

	var existing course.Certificate
	if err := db.Where("user_id = ? AND is_deleted = ?", userID, false).First(&existing).Error; err == nil {
		return &existing, nil
	}

	var user models.User
	if err := db.First(&user, userID).Error; err != nil {
		return nil, fmt.Errorf("certificate: user %d not found", userID)
	}

	var theCourse course.Course
	if err := db.Where("is_published = ? AND is_deleted = ?", true, false).First(&theCourse).Error; err != nil {
		return nil, errors.New("certificate: no published course found")
	}

	certNumber := GenerateCertificationID()
	issuedAt := time.Now().UTC()
	verifyURL := CreateShortURL(config.AppConfig.FrontendURL, certNumber)

	pdfBytes, err := renderCertificatePDF(user.Name, theCourse.Title, certNumber, verifyURL, issuedAt)
	if err != nil {
		log.Printf("Certificate render failed for user %d: %v", userID, err)
		return nil, err
	}

	certURL, err := UploadFile(pdfBytes, fmt.Sprintf("certificates/%s.pdf", certNumber), "application/pdf")
	if err != nil || certURL == "" {
		// Row is still created; the file can be re-uploaded out of band.
		certURL = fmt.Sprintf("%s/certificates/%s.pdf", config.AppConfig.BackendURL, certNumber)
		log.Printf("Certificate upload unavailable for %s, using placeholder URL", certNumber)
	}

	certificate := course.Certificate{
		UserID:            userID,
		CertificateNumber: certNumber,
		CertificateURL:    certURL,
		StudentName:       user.Name,
		CourseTitle:       theCourse.Title,
		IssuedAt:          issuedAt,
	}
	if err := db.Create(&certificate).Error; err != nil {
		// A concurrent completion trigger may have won the unique index race.
		if dbErr := db.Where("user_id = ? AND is_deleted = ?", userID, false).First(&existing).Error; dbErr == nil {
			return &existing, nil
		}
		return nil, err
	}

	log.Printf("Certificate %s issued for user %d", certNumber, userID)
	return &certificate, nil
}
