package enrollment

import (
	"errors"
	"log"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"lms/config"
	"lms/database"
	"lms/models"
	"lms/models/course"
	"lms/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// Gateway status codes that mean a successful payment. "aei7p7yrx4ae34" is
// iPay's production success code; the plain words cover demo traffic.
var successStatusCodes = map[string]bool{
	"aei7p7yrx4ae34": true,
	"success":        true,
	"completed":      true,
}

// amountTolerance is the absolute tolerance when comparing the gateway's
// settled amount against the expected payment amount.
const amountTolerance = 0.01

// redirectOutcome sends the user's browser back to the frontend. The gateway
// delivers callbacks as a browser redirect, so every exit path must answer
// with a 303, never a JSON error.
func redirectOutcome(c *fiber.Ctx, outcome string, message string) error {
	target := config.AppConfig.FrontendURL + "/enrollment/" + outcome
	if message != "" {
		target += "?message=" + url.QueryEscape(message)
	}
	return c.Redirect(target, fiber.StatusSeeOther)
}

// collectCallbackData merges query and form parameters into a single map.
// iPay sends GET redirects; the test harness and IPN variants POST.
func collectCallbackData(c *fiber.Ctx) map[string]string {
	data := make(map[string]string)
	c.Context().QueryArgs().VisitAll(func(key, value []byte) {
		data[string(key)] = string(value)
	})
	c.Context().PostArgs().VisitAll(func(key, value []byte) {
		data[string(key)] = string(value)
	})
	return data
}

// resolvePaymentID extracts the payment id from the callback, trying each
// carrier field in order: id, oid (order id), ivm/inv (invoice), p1 (custom
// field). Each rejected candidate is logged so gateway quirks are diagnosable.
func resolvePaymentID(data map[string]string) (uint, bool) {
	for _, field := range []string{"id", "oid", "ivm", "inv", "p1"} {
		raw, ok := data[field]
		if !ok || raw == "" {
			continue
		}
		id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			log.Printf("Callback field %s=%q is not a payment id, trying next", field, raw)
			continue
		}
		return uint(id), true
	}
	return 0, false
}

// findCallbackPayment locates the payment a callback refers to. When no id
// field is usable it falls back to the user's latest pending payment via the
// p2 custom field.
func findCallbackPayment(db *gorm.DB, data map[string]string) (*models.Payment, error) {
	if id, ok := resolvePaymentID(data); ok {
		var payment models.Payment
		if err := db.First(&payment, id).Error; err == nil {
			return &payment, nil
		}
		log.Printf("Callback referenced payment %d which does not exist", id)
	}

	rawUser, ok := data["p2"]
	if !ok || rawUser == "" {
		return nil, errors.New("callback carries no usable payment reference")
	}
	userID, err := strconv.ParseUint(strings.TrimSpace(rawUser), 10, 64)
	if err != nil {
		return nil, errors.New("callback carries no usable payment reference")
	}

	var payment models.Payment
	err = db.Where("user_id = ? AND status = ?", uint(userID), models.PaymentStatusPending).
		Order("created_at DESC").First(&payment).Error
	if err != nil {
		return nil, errors.New("no pending payment found for callback user")
	}
	log.Printf("Callback resolved via p2 fallback to payment %d (user %d)", payment.ID, payment.UserID)
	return &payment, nil
}

// incrementWebhookAttempts bumps the payment's attempt counter atomically.
// Runs before any validation outcome so poisoned callbacks are bounded by the
// retry ceiling instead of looping forever.
func incrementWebhookAttempts(db *gorm.DB, paymentID uint) {
	err := db.Model(&models.Payment{}).
		Where("id = ?", paymentID).
		Update("webhook_attempts", gorm.Expr("webhook_attempts + 1")).Error
	if err != nil {
		log.Printf("Failed to increment webhook attempts for payment %d: %v", paymentID, err)
	}
}

// parseCallbackAmount reads the settled amount ("mc"), tolerating the
// thousands separators iPay includes. Returns ok=false when the field is
// missing or unparseable; an unreadable amount does not fail the payment.
func parseCallbackAmount(data map[string]string) (float64, bool) {
	raw, ok := data["mc"]
	if !ok || strings.TrimSpace(raw) == "" {
		return 0, false
	}
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	amount, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		log.Printf("Callback amount %q is unparseable, skipping amount check", raw)
		return 0, false
	}
	return amount, true
}

// failPayment transitions a PENDING payment to FAILED with a reason folded
// into its metadata. The gateway audit fields are persisted on failure too,
// not just on success. No-op if the payment already left PENDING.
func failPayment(db *gorm.DB, payment *models.Payment, reason string, data map[string]string) {
	extra := map[string]interface{}{"failure_reason": reason}
	for k, v := range data {
		extra["cb_"+k] = v
	}
	result := db.Model(&models.Payment{}).
		Where("id = ? AND status = ?", payment.ID, models.PaymentStatusPending).
		Updates(map[string]interface{}{
			"status":                 models.PaymentStatusFailed,
			"gateway_transaction_id": data["txncd"],
			"gateway_reference":      data["msisdn_idnum"],
			"payment_method":         data["channel"],
			"payment_metadata":       payment.MergeMetadata(extra),
		})
	if result.Error != nil {
		log.Printf("Failed to mark payment %d FAILED: %v", payment.ID, result.Error)
	}
}

// completeEnrollment flips the user to enrolled and creates the enrollment
// row. The unique index on user_id makes replays harmless.
func completeEnrollment(db *gorm.DB, payment *models.Payment) {
	if err := db.Model(&models.User{}).
		Where("id = ?", payment.UserID).
		Update("is_enrolled", true).Error; err != nil {
		log.Printf("Failed to flag user %d enrolled: %v", payment.UserID, err)
	}

	enrollment := course.Enrollment{
		UserID:     payment.UserID,
		PaymentID:  payment.ID,
		EnrolledAt: time.Now().UTC(),
	}
	if err := db.Create(&enrollment).Error; err != nil {
		// Duplicate enrollment from a replayed callback is expected
		var existing course.Enrollment
		if dbErr := db.Where("user_id = ?", payment.UserID).First(&existing).Error; dbErr != nil {
			log.Printf("Failed to create enrollment for user %d: %v", payment.UserID, err)
			return
		}
	}

	var user models.User
	if err := db.First(&user, payment.UserID).Error; err == nil {
		utils.SendWelcomeEmail(user.Email, user.Name)
	}
}

// PaymentCallback processes the iPay gateway callback for an enrollment
// payment. Replay-safe: a terminal payment answers with the success redirect
// and changes nothing.
func PaymentCallback(c *fiber.Ctx) error {
	db := database.Database.Db
	data := collectCallbackData(c)

	if !utils.VerifyCallbackSignature(data) {
		// Still count the attempt if the callback names a real payment, so
		// a poisoned replay loop runs into the retry ceiling.
		if payment, err := findCallbackPayment(db, data); err == nil {
			incrementWebhookAttempts(db, payment.ID)
		}
		log.Printf("Callback rejected: invalid signature")
		return redirectOutcome(c, "error", "Invalid payment signature")
	}

	payment, err := findCallbackPayment(db, data)
	if err != nil {
		log.Printf("Callback rejected: %v", err)
		return redirectOutcome(c, "error", "Payment not found")
	}

	incrementWebhookAttempts(db, payment.ID)

	// Replayed callback for an already settled payment
	if payment.IsTerminal() {
		log.Printf("Callback replay for payment %d (status %s), acknowledging", payment.ID, payment.Status)
		return redirectOutcome(c, "success", "")
	}

	if amount, ok := parseCallbackAmount(data); ok {
		if math.Abs(amount-payment.Amount) > amountTolerance {
			log.Printf("Callback amount mismatch for payment %d: got %.2f want %.2f",
				payment.ID, amount, payment.Amount)
			failPayment(db, payment, "Amount mismatch", data)
			return redirectOutcome(c, "error", "Payment amount mismatch")
		}
	}

	statusCode := strings.ToLower(strings.TrimSpace(data["status"]))
	if !successStatusCodes[statusCode] {
		log.Printf("Callback reports failed payment %d (status %q)", payment.ID, statusCode)
		failPayment(db, payment, "Gateway reported failure: "+statusCode, data)
		return redirectOutcome(c, "failed", "")
	}

	extra := map[string]interface{}{}
	for k, v := range data {
		extra["cb_"+k] = v
	}
	result := db.Model(&models.Payment{}).
		Where("id = ? AND status = ?", payment.ID, models.PaymentStatusPending).
		Updates(map[string]interface{}{
			"status":                 models.PaymentStatusCompleted,
			"gateway_transaction_id": data["txncd"],
			"gateway_reference":      data["msisdn_idnum"],
			"payment_method":         data["channel"],
			"payment_metadata":       payment.MergeMetadata(extra),
		})
	if result.Error != nil {
		log.Printf("Failed to complete payment %d: %v", payment.ID, result.Error)
		return redirectOutcome(c, "error", "Payment processing failed")
	}
	if result.RowsAffected == 0 {
		// Lost the race against another callback or the sweeper; the winner
		// already settled the payment.
		log.Printf("Payment %d settled concurrently, acknowledging callback", payment.ID)
		return redirectOutcome(c, "success", "")
	}

	log.Printf("Payment %d completed (txn %s)", payment.ID, data["txncd"])
	completeEnrollment(db, payment)
	return redirectOutcome(c, "success", "")
}
