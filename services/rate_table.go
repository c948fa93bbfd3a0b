package services

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/HSouheill/barrim_mlm/models"
)

// ratePlaces is the precision a rate is stored with in the ledger.
const ratePlaces = 6

// RateTable maps a commission level (1 = nearest ancestor) to its rate.
// Levels past the last entry use the last rate.
type RateTable struct {
	rates []decimal.Decimal
}

// DefaultRateTable is 10%, 5%, 3%, 2%, then 1% for level 5 and beyond.
func DefaultRateTable() RateTable {
	return RateTable{rates: []decimal.Decimal{
		decimal.RequireFromString("0.10"),
		decimal.RequireFromString("0.05"),
		decimal.RequireFromString("0.03"),
		decimal.RequireFromString("0.02"),
		decimal.RequireFromString("0.01"),
	}}
}

func NewRateTable(rates []decimal.Decimal) (RateTable, error) {
	if len(rates) == 0 {
		return RateTable{}, fmt.Errorf("rate table is empty: %w", models.ErrInvalidInput)
	}
	one := decimal.NewFromInt(1)
	for i, r := range rates {
		if r.IsNegative() || r.GreaterThan(one) {
			return RateTable{}, fmt.Errorf("rate %s at level %d is outside [0, 1]: %w", r, i+1, models.ErrInvalidInput)
		}
		if !r.Equal(r.Truncate(ratePlaces)) {
			return RateTable{}, fmt.Errorf("rate %s at level %d has more than %d decimal places: %w", r, i+1, ratePlaces, models.ErrInvalidInput)
		}
	}
	return RateTable{rates: append([]decimal.Decimal(nil), rates...)}, nil
}

// ParseRateTable builds a table from decimal strings such as "0.10".
func ParseRateTable(raw []string) (RateTable, error) {
	rates := make([]decimal.Decimal, 0, len(raw))
	for _, s := range raw {
		r, err := decimal.NewFromString(strings.TrimSpace(s))
		if err != nil {
			return RateTable{}, fmt.Errorf("rate %q: %w", s, models.ErrInvalidInput)
		}
		rates = append(rates, r)
	}
	return NewRateTable(rates)
}

// RateFor returns the rate of a 1-based commission level.
func (t RateTable) RateFor(level int) decimal.Decimal {
	if len(t.rates) == 0 {
		return decimal.Zero
	}
	idx := level - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(t.rates) {
		idx = len(t.rates) - 1
	}
	return t.rates[idx]
}

func (t RateTable) Len() int { return len(t.rates) }
