package transfer

import "github.com/shopspring/decimal"

type Request struct {
	FromAccountID  uint
	ToCardNumber   string
	Amount         decimal.Decimal
	Description    string
	IdempotencyKey string
}

type Config struct {
	IssuerPrefix string
}
