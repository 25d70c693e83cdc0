package utils

import (
	"log"
	"strconv"
	"time"

	"lms/config"
	"lms/database"
	"lms/models"

	"github.com/robfig/cron/v3"
)

// logSweeper logs sweeper events with timestamp
func logSweeper(message string) {
	log.Printf("[PAYMENT-SWEEPER %s] %s", time.Now().Format(time.RFC3339), message)
}

// ExpireOldPayments transitions PENDING payments past their expiry time to
// FAILED with a structured reason, in a single batch commit. Safe to run
// concurrently with callback traffic: only rows still PENDING are touched.
func ExpireOldPayments() int {
	db := database.Database.Db
	now := time.Now().UTC()

	var expired []models.Payment
	if err := db.Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?",
		models.PaymentStatusPending, now).
		Find(&expired).Error; err != nil {
		logSweeper("Error fetching expired payments: " + err.Error())
		return 0
	}

	if len(expired) == 0 {
		return 0
	}

	tx := db.Begin()
	count := 0
	for i := range expired {
		payment := &expired[i]
		metadata := payment.MergeMetadata(map[string]interface{}{
			"expired_at": now.Format(time.RFC3339),
			"reason":     "Payment expired (30 minutes timeout)",
		})

		// Status predicate guards against a callback completing the payment
		// between the fetch and this update.
		result := tx.Model(&models.Payment{}).
			Where("id = ? AND status = ?", payment.ID, models.PaymentStatusPending).
			Updates(map[string]interface{}{
				"status":           models.PaymentStatusFailed,
				"payment_metadata": metadata,
			})
		if result.Error != nil {
			tx.Rollback()
			logSweeper("Error expiring payment: " + result.Error.Error())
			return 0
		}
		count += int(result.RowsAffected)
	}
	tx.Commit()

	if count > 0 {
		logSweeper("Expired " + strconv.Itoa(count) + " old pending payments")
	}
	return count
}

// RetryFailedWebhooks reconciles PENDING payments against the webhook attempt
// ceiling. Payments at or over the ceiling are forced to FAILED rather than
// left dangling; payments still below it (and unexpired) are counted as
// eligible for redelivery by the gateway or a manual re-trigger.
func RetryFailedWebhooks() int {
	db := database.Database.Db
	now := time.Now().UTC()
	maxAttempts := config.AppConfig.MaxWebhookAttempts

	var pending []models.Payment
	if err := db.Where("status = ?", models.PaymentStatusPending).
		Find(&pending).Error; err != nil {
		logSweeper("Error fetching pending payments: " + err.Error())
		return 0
	}

	eligible := 0
	for i := range pending {
		payment := &pending[i]

		if !payment.CanRetryWebhook(maxAttempts) {
			metadata := payment.MergeMetadata(map[string]interface{}{
				"error":    "Max webhook retry attempts exceeded",
				"attempts": payment.WebhookAttempts,
			})
			result := db.Model(&models.Payment{}).
				Where("id = ? AND status = ?", payment.ID, models.PaymentStatusPending).
				Updates(map[string]interface{}{
					"status":           models.PaymentStatusFailed,
					"payment_metadata": metadata,
				})
			if result.Error != nil {
				logSweeper("Error failing exhausted payment: " + result.Error.Error())
				continue
			}
			if result.RowsAffected > 0 {
				logSweeper("Payment " + strconv.Itoa(int(payment.ID)) + " exceeded max webhook attempts, marked FAILED")
			}
			continue
		}

		if payment.ExpiresAt != nil && payment.ExpiresAt.Before(now) {
			// The expiry job owns this row
			continue
		}

		eligible++
	}

	if eligible > 0 {
		logSweeper("Found " + strconv.Itoa(eligible) + " payments eligible for webhook retry")
	}
	return eligible
}

// StartExpiryJob runs the payment expiry sweep every 5 minutes
func StartExpiryJob(c *cron.Cron) {
	c.AddFunc("*/5 * * * *", func() {
		ExpireOldPayments()
	})
	logSweeper("Expiry job started - runs every 5 minutes")
}

// StartRetryJob runs the webhook retry sweep every 10 minutes
func StartRetryJob(c *cron.Cron) {
	c.AddFunc("*/10 * * * *", func() {
		RetryFailedWebhooks()
	})
	logSweeper("Retry job started - runs every 10 minutes")
}

// InitializePaymentSchedulers initializes the payment sweeper jobs
func InitializePaymentSchedulers() *cron.Cron {
	logSweeper("Initializing payment schedulers...")

	c := cron.New()
	StartExpiryJob(c)
	StartRetryJob(c)
	c.Start()

	logSweeper("All payment schedulers initialized successfully")
	return c
}
