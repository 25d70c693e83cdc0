package utils

import (
	"testing"
	"time"

	"lms/config"
	"lms/database"
	"lms/models"
	"lms/models/course"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB wires an isolated in-memory database into the global instance
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"),
		&gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Payment{},
		&course.Course{},
		&course.Module{},
		&course.Content{},
		&course.UserProgress{},
		&course.Enrollment{},
		&course.Exercise{},
		&course.ExerciseSubmission{},
		&course.Certificate{},
	))

	database.Database = database.DbInstance{Db: db}
	config.AppConfig = &config.Config{
		IPayVendorID:         "demo",
		FrontendURL:          "https://frontend.test",
		BackendURL:           "https://backend.test",
		JWTKey:               "test-jwt-key",
		PaymentExpiryMinutes: 30,
		MaxWebhookAttempts:   5,
	}
	return db
}

func createPayment(t *testing.T, db *gorm.DB, status string, expiresAt *time.Time, attempts int) *models.Payment {
	t.Helper()
	payment := &models.Payment{
		UserID:          1,
		Amount:          5000,
		Currency:        "KES",
		Status:          status,
		ExpiresAt:       expiresAt,
		WebhookAttempts: attempts,
	}
	require.NoError(t, db.Create(payment).Error)
	return payment
}

func TestExpireOldPayments(t *testing.T) {
	db := setupTestDB(t)

	past := time.Now().UTC().Add(-time.Hour)
	future := time.Now().UTC().Add(time.Hour)

	stale := createPayment(t, db, models.PaymentStatusPending, &past, 0)
	fresh := createPayment(t, db, models.PaymentStatusPending, &future, 0)
	settled := createPayment(t, db, models.PaymentStatusCompleted, &past, 0)

	expired := ExpireOldPayments()
	assert.Equal(t, 1, expired)

	var got models.Payment
	require.NoError(t, db.First(&got, stale.ID).Error)
	assert.Equal(t, models.PaymentStatusFailed, got.Status)
	assert.Contains(t, string(got.PaymentMetadata), "Payment expired")

	got = models.Payment{}
	require.NoError(t, db.First(&got, fresh.ID).Error)
	assert.Equal(t, models.PaymentStatusPending, got.Status, "unexpired payment must stay pending")

	got = models.Payment{}
	require.NoError(t, db.First(&got, settled.ID).Error)
	assert.Equal(t, models.PaymentStatusCompleted, got.Status, "terminal payment must never be touched")
}

func TestExpireOldPaymentsIdempotent(t *testing.T) {
	db := setupTestDB(t)

	past := time.Now().UTC().Add(-time.Hour)
	createPayment(t, db, models.PaymentStatusPending, &past, 0)

	assert.Equal(t, 1, ExpireOldPayments())
	assert.Equal(t, 0, ExpireOldPayments(), "second sweep must find nothing")
}

func TestRetryFailedWebhooksCeiling(t *testing.T) {
	db := setupTestDB(t)

	future := time.Now().UTC().Add(time.Hour)
	exhausted := createPayment(t, db, models.PaymentStatusPending, &future, 5)
	retryable := createPayment(t, db, models.PaymentStatusPending, &future, 2)

	eligible := RetryFailedWebhooks()
	assert.Equal(t, 1, eligible)

	var got models.Payment
	require.NoError(t, db.First(&got, exhausted.ID).Error)
	assert.Equal(t, models.PaymentStatusFailed, got.Status, "payment at the ceiling must be forced FAILED")
	assert.Contains(t, string(got.PaymentMetadata), "Max webhook retry attempts exceeded")

	got = models.Payment{}
	require.NoError(t, db.First(&got, retryable.ID).Error)
	assert.Equal(t, models.PaymentStatusPending, got.Status)
}

func TestInitializePaymentSchedulersStartsAndStops(t *testing.T) {
	setupTestDB(t)

	c := InitializePaymentSchedulers()
	require.NotNil(t, c)
	assert.Len(t, c.Entries(), 2, "expiry and retry jobs must both be registered")

	// Stop must return promptly so process shutdown can wait on it
	ctx := c.Stop()
	<-ctx.Done()
}

func TestRetryFailedWebhooksSkipsExpired(t *testing.T) {
	db := setupTestDB(t)

	past := time.Now().UTC().Add(-time.Hour)
	expired := createPayment(t, db, models.PaymentStatusPending, &past, 1)

	eligible := RetryFailedWebhooks()
	assert.Equal(t, 0, eligible, "expired pending payments belong to the expiry sweep")

	var got models.Payment
	require.NoError(t, db.First(&got, expired.ID).Error)
	assert.Equal(t, models.PaymentStatusPending, got.Status)
}
