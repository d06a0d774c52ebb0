// Package notification is the outbound hook for user-facing alerts. Push
// delivery lives outside this service, so the default implementation
// only records the event.
package notification

import (
	"context"

	"cardpay/internal/models"

	"github.com/rs/zerolog"
)

// Service logs notifications.
type Service struct {
	log zerolog.Logger
}

func NewService(log zerolog.Logger) *Service {
	return &Service{log: log.With().Str("component", "notification").Logger()}
}

// SendTransferNotification records that userID should be told about tx.
func (s *Service) SendTransferNotification(ctx context.Context, userID uint, tx *models.Transaction) error {
	s.log.Info().
		Uint("user_id", userID).
		Str("reference", tx.Reference).
		Str("type", string(tx.Type)).
		Str("amount", tx.Amount.StringFixed(2)).
		Msg("notify transfer")
	return nil
}

// SendPaymentNotification records a payment request outcome for the payer.
func (s *Service) SendPaymentNotification(ctx context.Context, userID uint, req *models.PaymentRequest) error {
	s.log.Info().
		Uint("user_id", userID).
		Str("payment_id", req.ID).
		Str("status", string(req.Status)).
		Msg("notify payment")
	return nil
}
