package webhook

import (
	"time"

	"cardpay/internal/models"
)

// Backoff is the delay before each retry; the last entry repeats.
var Backoff = []time.Duration{
	time.Minute,
	5 * time.Minute,
	30 * time.Minute,
	2 * time.Hour,
	12 * time.Hour,
}

const (
	HeaderSignature = "X-Signature"
	HeaderID        = "X-Webhook-Id"
	HeaderEvent     = "X-Webhook-Event"

	userAgent       = "cardpay-webhooks/1.0"
	maxErrorLength  = 500
	maxResponseRead = 4 << 10
)

// Event is a terminal payment transition to announce.
type Event struct {
	Type    string
	Request *models.PaymentRequest
	Error   string
	At      time.Time
}

// Payload is the JSON body posted to developers.
type Payload struct {
	Event string      `json:"event"`
	Data  PayloadData `json:"data"`
}

type PayloadData struct {
	PaymentID string `json:"payment_id"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Error     string `json:"error,omitempty"`
}

type Config struct {
	Timeout     time.Duration
	MaxAttempts int
	Workers     int
	BatchSize   int
}
