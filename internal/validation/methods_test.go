package validation

import (
	"errors"
	"testing"

	apperrors "cardpay/internal/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestValidCardNumber(t *testing.T) {
	tests := []struct {
		number string
		want   bool
	}{
		{"4001234567890123", true},
		{"4011234567890123", false},
		{"400123456789012", false},
		{"40012345678901234", false},
		{"40012345678901a3", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.number, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidCardNumber(tt.number, "400"))
		})
	}
}

func TestValidator_PositiveAmount(t *testing.T) {
	v := New()
	v.PositiveAmount("amount", decimal.RequireFromString("10.25"))
	assert.True(t, v.Valid())

	v.PositiveAmount("zero", decimal.Zero)
	v.PositiveAmount("scale", decimal.RequireFromString("1.005"))
	assert.Len(t, v.Errors, 2)

	err := v.Err()
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
	assert.Contains(t, err.Error(), "scale: must have at most 2 decimal places")
}

func TestValidator_Struct(t *testing.T) {
	type input struct {
		Name string `validate:"required,max=5"`
		URL  string `validate:"omitempty,url"`
	}

	assert.NoError(t, ValidateStruct(input{Name: "ok"}))

	err := ValidateStruct(input{Name: "", URL: "nope"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "name")
	assert.Contains(t, err.Error(), "url")
}

func TestValidURL(t *testing.T) {
	assert.True(t, ValidURL("https://merchant.example.com/hooks"))
	assert.False(t, ValidURL("ftp://merchant.example.com"))
	assert.False(t, ValidURL("/relative"))
}
