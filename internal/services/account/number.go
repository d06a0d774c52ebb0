package account

import (
	"crypto/rand"
	"math/big"
	"strings"

	"cardpay/internal/validation"
)

var ten = big.NewInt(10)

// generateNumber returns prefix followed by uniformly random digits up to
// the card number length.
func generateNumber(prefix string) (string, error) {
	var b strings.Builder
	b.Grow(validation.CardNumberLength)
	b.WriteString(prefix)
	for b.Len() < validation.CardNumberLength {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + d.Int64()))
	}
	return b.String(), nil
}
