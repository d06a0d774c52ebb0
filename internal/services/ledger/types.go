package ledger

import (
	"errors"
	"fmt"

	apperrors "cardpay/internal/errors"
	"cardpay/internal/models"
	"cardpay/internal/repositories"

	"github.com/shopspring/decimal"
)

// Entry describes a transaction about to be recorded.
type Entry struct {
	Type                 models.TransactionType
	SourceAccountID      *uint
	DestinationAccountID *uint
	PaymentRequestID     *string
	Amount               decimal.Decimal
	Currency             string
	Description          string
	Metadata             models.JSON
	IdempotencyKey       string
}

// Outcome is the terminal state written by Finalize.
type Outcome struct {
	Status models.TransactionStatus
	Reason string
	// Metadata is merged over the recorded metadata.
	Metadata models.JSON
}

func Completed() Outcome {
	return Outcome{Status: models.TransactionStatusCompleted}
}

func Failed(reason string) Outcome {
	return Outcome{Status: models.TransactionStatusFailed, Reason: reason}
}

// FailedWith records err as the failure reason and keeps its code so a
// replay can return the same error.
func FailedWith(err error) Outcome {
	out := Failed(err.Error())
	if code := apperrors.CodeOf(err); code != "" {
		out.Metadata = models.JSON{metadataErrorCode: string(code)}
	}
	return out
}

// Leg is one balance change applied by Settle. The change is refused when
// the account is blocked or the resulting balance would drop below
// MinResult.
type Leg struct {
	AccountID uint
	Delta     decimal.Decimal
	MinResult decimal.Decimal
}

// Settlement is the work Settle commits together with the completed status.
type Settlement struct {
	Legs []Leg
	// Within runs last, inside the same database transaction.
	Within func(tx *repositories.Store) error
}

// LegError reports which leg was refused. The transaction is left pending.
type LegError struct {
	Leg       int
	AccountID uint
	Err       error
}

func (e *LegError) Error() string {
	return fmt.Sprintf("leg %d on account %d: %v", e.Leg, e.AccountID, e.Err)
}

func (e *LegError) Unwrap() error {
	return e.Err
}

// Definitive reports whether a Settle error is a business refusal that
// retrying cannot fix.
func Definitive(err error) bool {
	var le *LegError
	return errors.As(err, &le) && apperrors.CodeOf(le.Err) != ""
}

// Postings derives the legs of a transfer, top-up or adjustment from the
// recorded transaction. Amount is signed for adjustments.
func Postings(tx *models.Transaction) []Leg {
	var legs []Leg
	if tx.SourceAccountID != nil {
		legs = append(legs, Leg{AccountID: *tx.SourceAccountID, Delta: tx.Amount.Neg()})
	}
	if tx.DestinationAccountID != nil {
		legs = append(legs, Leg{AccountID: *tx.DestinationAccountID, Delta: tx.Amount})
	}
	return legs
}

// ReplayError returns what the original request returned for a finalized
// transaction: nil when it completed, its recorded error when it failed.
func ReplayError(tx *models.Transaction) error {
	switch tx.Status {
	case models.TransactionStatusCompleted:
		return nil
	case models.TransactionStatusFailed:
		if code, ok := tx.Metadata[metadataErrorCode].(string); ok && code != "" {
			return apperrors.New(apperrors.Code(code), tx.FailureReason)
		}
		return apperrors.Newf(apperrors.ErrInvalidState, "transaction %s failed: %s", tx.Reference, tx.FailureReason)
	}
	return apperrors.ErrRequestInProgress
}
