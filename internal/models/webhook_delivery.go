package models

import "time"

type DeliveryStatus string

const (
	DeliveryStatusQueued    DeliveryStatus = "queued"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusExhausted DeliveryStatus = "exhausted"
)

const (
	EventPaymentCompleted = "payment.completed"
	EventPaymentFailed    = "payment.failed"
)

// WebhookDelivery holds the exact signed payload for one event of one
// payment request.
type WebhookDelivery struct {
	ID               string         `gorm:"primaryKey;size:36" json:"id"`
	PaymentRequestID string         `gorm:"size:36;not null;uniqueIndex:idx_webhook_request_event,priority:1" json:"payment_request_id"`
	DeveloperID      uint           `gorm:"not null;index" json:"developer_id"`
	EventType        string         `gorm:"size:32;not null;uniqueIndex:idx_webhook_request_event,priority:2" json:"event_type"`
	TargetURL        string         `gorm:"not null" json:"target_url"`
	Payload          string         `gorm:"type:text;not null" json:"payload"`
	Signature        string         `gorm:"size:64;not null" json:"signature"`
	AttemptCount     int            `gorm:"not null;default:0" json:"attempt_count"`
	MaxAttempts      int            `gorm:"not null" json:"max_attempts"`
	Status           DeliveryStatus `gorm:"size:16;not null;default:'queued';index" json:"status"`
	NextAttemptAt    *time.Time     `gorm:"index" json:"next_attempt_at,omitempty"`
	LastAttemptAt    *time.Time     `json:"last_attempt_at,omitempty"`
	LastStatusCode   int            `json:"last_status_code,omitempty"`
	LastError        string         `json:"last_error,omitempty"`
	DeliveredAt      *time.Time     `json:"delivered_at,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}
