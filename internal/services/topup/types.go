package topup

import (
	"time"

	"github.com/shopspring/decimal"
)

type Request struct {
	AccountID      uint
	Channel        string
	ExternalAmount decimal.Decimal
	// IdempotencyKey is required. For the purchased channel it is the
	// PaymentIntent id.
	IdempotencyKey string
	Description    string
}

type Config struct {
	// IdempotencyTTL is how long a finished request is remembered.
	IdempotencyTTL time.Duration
	// InFlightTTL bounds the reservation held while a request runs, so a
	// crashed request does not block its key for long.
	InFlightTTL time.Duration
}

const (
	idempotencyScope   = "topup"
	defaultTTL         = 24 * time.Hour
	defaultInFlightTTL = time.Minute
	maxIdempotencyKey  = 128
)
