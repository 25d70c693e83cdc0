package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Payment statuses. COMPLETED, FAILED and REFUNDED are terminal: once set,
// a payment never moves back to PENDING.
const (
	PaymentStatusPending   = "PENDING"
	PaymentStatusCompleted = "COMPLETED"
	PaymentStatusFailed    = "FAILED"
	PaymentStatusRefunded  = "REFUNDED"
)

// Payment represents one enrollment payment attempt against the iPay gateway.
// Rows are created PENDING, mutated only by the callback processor or the
// sweeper, and never deleted.
type Payment struct {
	gorm.Model
	UserID               uint           `json:"user_id" gorm:"index;not null"`
	Amount               float64        `json:"amount" gorm:"not null"`
	Currency             string         `json:"currency" gorm:"size:3;default:'KES'"`
	Status               string         `json:"status" gorm:"size:20;index;not null"`
	GatewayTransactionID string         `json:"gateway_transaction_id"`
	GatewayReference     string         `json:"gateway_reference"`
	PaymentMethod        string         `json:"payment_method"`
	PaymentMetadata      datatypes.JSON `json:"payment_metadata"` // full raw callback, audit trail
	ExpiresAt            *time.Time     `json:"expires_at" gorm:"index"`
	WebhookAttempts      int            `json:"webhook_attempts" gorm:"default:0"`
	IsDeleted            bool           `gorm:"default:false"`
}

// MergeMetadata folds extra keys into the stored metadata blob, preserving
// whatever the gateway already delivered.
func (p *Payment) MergeMetadata(extra map[string]interface{}) datatypes.JSON {
	merged := map[string]interface{}{}
	if len(p.PaymentMetadata) > 0 {
		_ = json.Unmarshal(p.PaymentMetadata, &merged)
	}
	for k, v := range extra {
		merged[k] = v
	}
	out, err := json.Marshal(merged)
	if err != nil {
		return p.PaymentMetadata
	}
	return datatypes.JSON(out)
}

// IsExpired reports whether the payment is past its expiry time.
func (p *Payment) IsExpired() bool {
	if p.ExpiresAt == nil {
		return false
	}
	return time.Now().UTC().After(*p.ExpiresAt)
}

// IsTerminal reports whether the payment reached a status that no callback
// may overwrite.
func (p *Payment) IsTerminal() bool {
	return p.Status != PaymentStatusPending
}

// CanRetryWebhook reports whether the payment is still below the webhook
// attempt ceiling.
func (p *Payment) CanRetryWebhook(maxAttempts int) bool {
	return p.WebhookAttempts < maxAttempts
}
