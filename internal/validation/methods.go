// Package validation checks request payloads and domain identifiers.
package validation

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	apperrors "cardpay/internal/errors"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

const (
	CardNumberLength     = 16
	LedgerScale          = 2
	MaxDescriptionLength = 500
)

var digitsRegex = regexp.MustCompile(`^[0-9]+$`)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validator collects field errors.
type Validator struct {
	Errors map[string]string
}

func New() *Validator {
	return &Validator{Errors: make(map[string]string)}
}

func (v *Validator) Valid() bool {
	return len(v.Errors) == 0
}

// AddError keeps the first message reported for a field.
func (v *Validator) AddError(field, message string) {
	if _, exists := v.Errors[field]; !exists {
		v.Errors[field] = message
	}
}

// Check adds an error if the condition is false
func (v *Validator) Check(ok bool, field, message string) {
	if !ok {
		v.AddError(field, message)
	}
}

// Err returns nil or a validation DomainError listing every field.
func (v *Validator) Err() error {
	if v.Valid() {
		return nil
	}
	fields := make([]string, 0, len(v.Errors))
	for f := range v.Errors {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+v.Errors[f])
	}
	return apperrors.Newf(apperrors.ErrValidation, "%s", strings.Join(parts, "; "))
}

// Struct runs the `validate` tags on s.
func (v *Validator) Struct(s interface{}) {
	err := validate.Struct(s)
	if err == nil {
		return
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		v.AddError("body", err.Error())
		return
	}
	for _, fe := range verrs {
		v.AddError(strings.ToLower(fe.Field()), "failed '"+fe.Tag()+"' check")
	}
}

// PositiveAmount requires a strictly positive amount with at most two
// fractional digits.
func (v *Validator) PositiveAmount(field string, amount decimal.Decimal) {
	v.Check(amount.IsPositive(), field, "must be greater than zero")
	v.Check(HasLedgerScale(amount), field, "must have at most 2 decimal places")
}

func (v *Validator) CardNumber(field, number, prefix string) {
	v.Check(ValidCardNumber(number, prefix), field, "must be a 16-digit card number issued by this service")
}

// OptionalURL accepts an empty string or an absolute http(s) URL.
func (v *Validator) OptionalURL(field, raw string) {
	if raw == "" {
		return
	}
	v.Check(ValidURL(raw), field, "must be an absolute http or https URL")
}

func (v *Validator) MaxLength(field, value string, max int) {
	v.Check(len(value) <= max, field, "is too long")
}

// ValidateStruct is the one-shot form of Validator.Struct.
func ValidateStruct(s interface{}) error {
	v := New()
	v.Struct(s)
	return v.Err()
}

func ValidCardNumber(number, prefix string) bool {
	return len(number) == CardNumberLength &&
		digitsRegex.MatchString(number) &&
		strings.HasPrefix(number, prefix)
}

func ValidURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func HasLedgerScale(amount decimal.Decimal) bool {
	return amount.Equal(amount.Truncate(LedgerScale))
}
