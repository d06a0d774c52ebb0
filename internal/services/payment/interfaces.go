package payment

import (
	"context"
	"time"

	"cardpay/internal/models"
	"cardpay/internal/repositories"
	"cardpay/internal/services/webhook"
)

// Service runs the developer payment request lifecycle:
// pending -> completed | failed | expired.
type Service interface {
	CreatePaymentRequest(ctx context.Context, dev *models.DeveloperAccount, input CreateInput) (*Created, error)
	GetPaymentRequest(ctx context.Context, caller models.Caller, id string) (*models.PaymentRequest, error)
	GetForDeveloper(ctx context.Context, dev *models.DeveloperAccount, id string) (*models.PaymentRequest, error)
	ListPayments(ctx context.Context, dev *models.DeveloperAccount, filter Filter) (*PaymentList, error)

	CompletePaymentRequest(ctx context.Context, caller models.Caller, id string, sourceAccountID uint) (*models.PaymentRequest, error)
	DeclinePaymentRequest(ctx context.Context, caller models.Caller, id, reason string) (*models.PaymentRequest, error)
	// FailPaymentRequest is the developer-side cancel of a pending request.
	FailPaymentRequest(ctx context.Context, dev *models.DeveloperAccount, id, reason string) (*models.PaymentRequest, error)
	ExpireStalePaymentRequests(ctx context.Context, now time.Time) (int, error)
}

// AccountService defines the account operations used by payments.
type AccountService interface {
	GetAccount(ctx context.Context, caller models.Caller, id uint) (*models.Account, error)
}

// WebhookQueue stores payment events for delivery. *webhook.Dispatcher
// implements it.
type WebhookQueue interface {
	Enqueue(ctx context.Context, repo repositories.WebhookRepository, dev *models.DeveloperAccount, ev webhook.Event) (*models.WebhookDelivery, error)
	Nudge()
}

type NotificationService interface {
	SendPaymentNotification(ctx context.Context, userID uint, req *models.PaymentRequest) error
}
