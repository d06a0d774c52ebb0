package topup

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	apperrors "cardpay/internal/errors"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/paymentintent"
)

var hundred = decimal.NewFromInt(100)

type stripeVerifier struct{}

// NewStripeVerifier returns a verifier backed by the Stripe PaymentIntents
// API, or nil when no secret key is configured.
func NewStripeVerifier(secretKey string) PurchaseVerifier {
	if secretKey == "" {
		return nil
	}
	stripe.Key = secretKey
	return stripeVerifier{}
}

func (stripeVerifier) Verify(ctx context.Context, reference string, amount decimal.Decimal, currency string) error {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := paymentintent.Get(reference, params)
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && se.HTTPStatusCode == http.StatusNotFound {
			return apperrors.Newf(apperrors.ErrValidation, "payment intent %s not found", reference)
		}
		return fmt.Errorf("failed to fetch payment intent: %w", err)
	}
	return checkIntent(pi, amount, currency)
}

func checkIntent(pi *stripe.PaymentIntent, amount decimal.Decimal, currency string) error {
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return apperrors.Newf(apperrors.ErrValidation, "payment intent %s is %s", pi.ID, pi.Status)
	}
	if !strings.EqualFold(string(pi.Currency), currency) {
		return apperrors.Newf(apperrors.ErrValidation, "payment intent currency %s does not match %s", pi.Currency, currency)
	}
	if cents := amount.Mul(hundred); !cents.IsInteger() || cents.IntPart() != pi.Amount {
		return apperrors.Newf(apperrors.ErrValidation,
			"payment intent amount %d does not match %s", pi.Amount, amount.StringFixed(2))
	}
	return nil
}
