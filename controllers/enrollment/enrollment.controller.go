package enrollment

import (
	"encoding/base64"
	"fmt"
	"log"
	"strings"
	"time"

	"lms/config"
	"lms/database"
	"lms/middleware"
	"lms/models"
	"lms/models/course"
	"lms/utils"

	"github.com/gofiber/fiber/v2"
)

// SignatureRequest is the validated body for signature submission
type SignatureRequest struct {
	SignatureData string `json:"signature_data"`
}

// RefundRequest is the validated body for admin refunds
type RefundRequest struct {
	PaymentID uint   `json:"payment_id"`
	Reason    string `json:"reason"`
}

// InitiateEnrollment creates (or reuses) a pending payment and returns the
// signed gateway URL. One pending payment per user at a time: an unexpired
// PENDING payment is reused so abandoned checkouts don't pile up rows.
func InitiateEnrollment(c *fiber.Ctx) error {
	db := database.Database.Db
	userID, _ := c.Locals("userId").(uint)

	var user models.User
	if err := db.First(&user, userID).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusNotFound, false, "User not found!", nil)
	}
	if !user.IsVerified {
		return middleware.JsonResponse(c, fiber.StatusForbidden, false, "Verify your account before enrolling!", nil)
	}
	if user.IsEnrolled {
		return middleware.JsonResponse(c, fiber.StatusConflict, false, "You are already enrolled!", nil)
	}

	var existing course.Enrollment
	if err := db.Where("user_id = ? AND is_deleted = ?", userID, false).
		First(&existing).Error; err == nil {
		return middleware.JsonResponse(c, fiber.StatusConflict, false, "You are already enrolled!", nil)
	}

	var theCourse course.Course
	if err := db.Where("is_published = ? AND is_deleted = ?", true, false).
		First(&theCourse).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusNotFound, false, "No published course available!", nil)
	}

	// Reuse an unexpired pending payment if one exists
	var payment models.Payment
	err := db.Where("user_id = ? AND status = ? AND expires_at > ?",
		userID, models.PaymentStatusPending, time.Now().UTC()).
		Order("created_at DESC").First(&payment).Error
	if err != nil {
		expiresAt := time.Now().UTC().Add(time.Duration(config.AppConfig.PaymentExpiryMinutes) * time.Minute)
		payment = models.Payment{
			UserID:    userID,
			Amount:    theCourse.Price,
			Currency:  theCourse.Currency,
			Status:    models.PaymentStatusPending,
			ExpiresAt: &expiresAt,
		}
		if err := db.Create(&payment).Error; err != nil {
			log.Printf("Failed to create payment for user %d: %v", userID, err)
			return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to create payment!", nil)
		}
		log.Printf("Payment %d created for user %d, expires at %s", payment.ID, userID, expiresAt.Format(time.RFC3339))
	} else {
		log.Printf("Reusing pending payment %d for user %d", payment.ID, userID)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Enrollment payment initiated!", fiber.Map{
		"payment_id":  payment.ID,
		"amount":      payment.Amount,
		"currency":    payment.Currency,
		"expires_at":  payment.ExpiresAt,
		"payment_url": utils.GeneratePaymentURL(&payment, &user),
	})
}

// GetEnrollmentStatus reports the caller's enrollment and latest payment
func GetEnrollmentStatus(c *fiber.Ctx) error {
	db := database.Database.Db
	userID, _ := c.Locals("userId").(uint)

	data := fiber.Map{"is_enrolled": false}

	var enrollment course.Enrollment
	if err := db.Where("user_id = ? AND is_deleted = ?", userID, false).
		First(&enrollment).Error; err == nil {
		data["is_enrolled"] = true
		data["enrolled_at"] = enrollment.EnrolledAt
		data["has_signature"] = enrollment.SignatureURL != ""
		data["progress_percentage"] = enrollment.ProgressPercentage
		data["completed_at"] = enrollment.CompletedAt
	}

	var payment models.Payment
	if err := db.Where("user_id = ?", userID).
		Order("created_at DESC").First(&payment).Error; err == nil {
		data["payment"] = fiber.Map{
			"payment_id": payment.ID,
			"status":     payment.Status,
			"amount":     payment.Amount,
			"expires_at": payment.ExpiresAt,
		}
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Enrollment status fetched!", data)
}

// SubmitSignature stores the enrollment agreement signature image
func SubmitSignature(c *fiber.Ctx) error {
	db := database.Database.Db
	userID, _ := c.Locals("userId").(uint)

	reqData, ok := c.Locals("validatedSignature").(*SignatureRequest)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
	}

	var enrollment course.Enrollment
	if err := db.Where("user_id = ? AND is_deleted = ?", userID, false).
		First(&enrollment).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusNotFound, false, "Enrollment not found!", nil)
	}

	// Accept both raw base64 and data-URL form
	raw := reqData.SignatureData
	if idx := strings.Index(raw, ","); idx != -1 && strings.HasPrefix(raw, "data:") {
		raw = raw[idx+1:]
	}
	imageBytes, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid signature image data!", nil)
	}

	signatureURL, err := utils.UploadFile(imageBytes,
		fmt.Sprintf("signatures/user-%d.png", userID), "image/png")
	if err != nil {
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to store signature!", nil)
	}
	if signatureURL == "" {
		signatureURL = fmt.Sprintf("%s/signatures/user-%d.png", config.AppConfig.BackendURL, userID)
	}

	now := time.Now().UTC()
	if err := db.Model(&enrollment).Updates(map[string]interface{}{
		"signature_url":        signatureURL,
		"signature_created_at": now,
	}).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to save signature!", nil)
	}

	var user models.User
	if err := db.First(&user, userID).Error; err == nil {
		utils.SendSignatureConfirmationEmail(user.Email, user.Name)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Signature submitted!", fiber.Map{
		"signature_url": signatureURL,
	})
}

// RefundPayment moves a COMPLETED payment to REFUNDED. Admin only; the
// actual money movement happens out of band at the gateway.
func RefundPayment(c *fiber.Ctx) error {
	db := database.Database.Db

	reqData, ok := c.Locals("validatedRefund").(*RefundRequest)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
	}

	var payment models.Payment
	if err := db.First(&payment, reqData.PaymentID).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusNotFound, false, "Payment not found!", nil)
	}

	metadata := payment.MergeMetadata(map[string]interface{}{
		"refund_reason": reqData.Reason,
		"refunded_at":   time.Now().UTC().Format(time.RFC3339),
	})
	result := db.Model(&models.Payment{}).
		Where("id = ? AND status = ?", payment.ID, models.PaymentStatusCompleted).
		Updates(map[string]interface{}{
			"status":           models.PaymentStatusRefunded,
			"payment_metadata": metadata,
		})
	if result.Error != nil {
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Refund failed!", nil)
	}
	if result.RowsAffected == 0 {
		return middleware.JsonResponse(c, fiber.StatusConflict, false, "Only completed payments can be refunded!", nil)
	}

	log.Printf("Payment %d refunded: %s", payment.ID, reqData.Reason)
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Payment refunded!", nil)
}

// TestCallback simulates a gateway callback against a pending payment.
// Only available in demo mode.
func TestCallback(c *fiber.Ctx) error {
	if config.AppConfig.IPayVendorID != "demo" {
		return middleware.JsonResponse(c, fiber.StatusForbidden, false, "Test callbacks are only available in demo mode!", nil)
	}

	paymentID := c.Query("payment_id")
	status := c.Query("status", "success")
	if paymentID == "" {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "payment_id is required!", nil)
	}

	target := fmt.Sprintf("/enrollment/callback?oid=%s&status=%s&txncd=TEST-%d",
		paymentID, status, time.Now().Unix())
	return c.Redirect(target, fiber.StatusSeeOther)
}
