// Package errors holds the domain error taxonomy shared by every service.
// Errors compare by code, so a wrapped or re-messaged error still matches
// its sentinel with errors.Is.
package errors

import (
	stderrors "errors"
	"fmt"
)

type Code string

const (
	CodeValidation         Code = "VALIDATION_ERROR"
	CodeInsufficientFunds  Code = "INSUFFICIENT_FUNDS"
	CodeNotFound           Code = "NOT_FOUND"
	CodeAccountBlocked     Code = "ACCOUNT_BLOCKED"
	CodeAccountInactive    Code = "ACCOUNT_INACTIVE"
	CodeLimitExceeded      Code = "LIMIT_EXCEEDED"
	CodeDuplicateRequest   Code = "DUPLICATE_REQUEST"
	CodeRequestInProgress  Code = "REQUEST_IN_PROGRESS"
	CodeCompensatedFailure Code = "COMPENSATED_FAILURE"
	CodeDeliveryExhausted  Code = "DELIVERY_EXHAUSTED"
	CodeInvalidChannel     Code = "INVALID_CHANNEL"
	CodeRateUnavailable    Code = "RATE_UNAVAILABLE"
	CodeForbidden          Code = "FORBIDDEN"
	CodeInvalidState       Code = "INVALID_STATE"
	CodeExpired            Code = "EXPIRED"
	CodeUnauthorized       Code = "UNAUTHORIZED"
)

type DomainError struct {
	Code    Code
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches any DomainError carrying the same code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func New(code Code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// Newf builds an error with the sentinel's code and a specific message.
func Newf(sentinel *DomainError, format string, args ...interface{}) *DomainError {
	return &DomainError{Code: sentinel.Code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to an error of the sentinel's kind.
func Wrap(sentinel *DomainError, err error) *DomainError {
	return &DomainError{Code: sentinel.Code, Message: sentinel.Message, Err: err}
}

// CodeOf returns the code of the first DomainError in the chain, or "" for
// infrastructure errors.
func CodeOf(err error) Code {
	var de *DomainError
	if stderrors.As(err, &de) {
		return de.Code
	}
	return ""
}

// Transient reports whether retrying the same request may succeed.
func Transient(err error) bool {
	switch CodeOf(err) {
	case CodeCompensatedFailure, CodeRequestInProgress, CodeRateUnavailable:
		return true
	}
	return false
}

var (
	ErrValidation         = New(CodeValidation, "validation failed")
	ErrInvalidAmount      = New(CodeValidation, "invalid amount")
	ErrInvalidCardNumber  = New(CodeValidation, "invalid card number")
	ErrSameAccount        = New(CodeValidation, "source and destination accounts are the same")
	ErrInsufficientFunds  = New(CodeInsufficientFunds, "insufficient funds")
	ErrNotFound           = New(CodeNotFound, "not found")
	ErrAccountNotFound    = New(CodeNotFound, "account not found")
	ErrAccountBlocked     = New(CodeAccountBlocked, "account is blocked")
	ErrAccountInactive    = New(CodeAccountInactive, "account is not active")
	ErrLimitExceeded      = New(CodeLimitExceeded, "account limit reached")
	ErrDuplicateRequest   = New(CodeDuplicateRequest, "duplicate request")
	ErrRequestInProgress  = New(CodeRequestInProgress, "request with this idempotency key is in progress")
	ErrCompensatedFailure = New(CodeCompensatedFailure, "operation failed and was reversed")
	ErrDeliveryExhausted  = New(CodeDeliveryExhausted, "webhook delivery attempts exhausted")
	ErrInvalidChannel     = New(CodeInvalidChannel, "invalid top-up channel")
	ErrRateUnavailable    = New(CodeRateUnavailable, "exchange rate unavailable")
	ErrForbidden          = New(CodeForbidden, "forbidden")
	ErrUnauthorized       = New(CodeUnauthorized, "unauthorized")
	ErrInvalidState       = New(CodeInvalidState, "invalid state transition")
	ErrAlreadyFinalized   = New(CodeInvalidState, "transaction already finalized")
	ErrExpired            = New(CodeExpired, "payment request expired")
)
