package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

type Money struct {
	Amount   decimal.Decimal
	Currency currency.Unit
}

// Times returns the price multiplied by an integer quantity, same currency.
func (m Money) Times(quantity int) Money {
	return Money{
		Amount:   m.Amount.Mul(decimal.NewFromInt(int64(quantity))),
		Currency: m.Currency,
	}
}

func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("currency mismatch %s != %s: %w", m.Currency, other.Currency, ErrInvalidRequest)
	}

	return Money{
		Amount:   m.Amount.Add(other.Amount),
		Currency: m.Currency,
	}, nil
}

func (m Money) String() string {
	return m.Amount.StringFixed(2) + " " + m.Currency.String()
}
