// Package exchange converts external top-up units into ledger currency.
package exchange

import (
	"sort"
	"strings"

	"cardpay/internal/config"
	apperrors "cardpay/internal/errors"

	"github.com/shopspring/decimal"
)

type Channel string

const (
	ChannelPurchased Channel = "purchased"
	ChannelStars     Channel = "stars"
	ChannelOnchain   Channel = "onchain"
	ChannelAdmin     Channel = "admin"
)

// LedgerScale is the number of fractional digits the ledger keeps.
const LedgerScale = 2

func ParseChannel(s string) (Channel, error) {
	switch ch := Channel(strings.ToLower(strings.TrimSpace(s))); ch {
	case ChannelPurchased, ChannelStars, ChannelOnchain, ChannelAdmin:
		return ch, nil
	}
	return "", apperrors.Newf(apperrors.ErrInvalidChannel, "unknown top-up channel %q", s)
}

// Table is a static per-channel rate table: ledger units per external unit.
type Table struct {
	rates map[Channel]decimal.Decimal
}

func NewTable(cfg config.RatesConfig) *Table {
	return &Table{rates: map[Channel]decimal.Decimal{
		ChannelPurchased: decimal.NewFromInt(1),
		ChannelStars:     cfg.Stars,
		ChannelOnchain:   cfg.Onchain,
		ChannelAdmin:     decimal.NewFromInt(1),
	}}
}

func (t *Table) Rate(ch Channel) (decimal.Decimal, error) {
	rate, ok := t.rates[ch]
	if !ok {
		return decimal.Zero, apperrors.Newf(apperrors.ErrInvalidChannel, "unknown top-up channel %q", ch)
	}
	if !rate.IsPositive() {
		return decimal.Zero, apperrors.Newf(apperrors.ErrRateUnavailable, "no rate configured for %s", ch)
	}
	return rate, nil
}

// Convert applies the channel rate and rounds toward zero to the ledger
// scale, so a conversion never credits more than the external amount is
// worth.
func (t *Table) Convert(ch Channel, external decimal.Decimal) (decimal.Decimal, error) {
	rate, err := t.Rate(ch)
	if err != nil {
		return decimal.Zero, err
	}
	return external.Mul(rate).RoundDown(LedgerScale), nil
}

type RateInfo struct {
	Channel Channel         `json:"channel"`
	Rate    decimal.Decimal `json:"rate"`
}

func (t *Table) Rates() []RateInfo {
	out := make([]RateInfo, 0, len(t.rates))
	for ch, r := range t.rates {
		out = append(out, RateInfo{Channel: ch, Rate: r})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Channel < out[j].Channel })
	return out
}
