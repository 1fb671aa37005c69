package money

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Micros is an amount of currency expressed in millionths of a unit.
// Balances, rates and earnings are all stored in this form so that ledger
// arithmetic stays exact.
type Micros int64

const microsExp = 6

// Parse converts a decimal string such as "700.00" into Micros.
// Digits beyond the sixth decimal place are truncated.
func Parse(s string) (Micros, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("invalid amount %q: must not be negative", s)
	}
	return Micros(d.Shift(microsExp).Truncate(0).IntPart()), nil
}

// MustParse is Parse for constants; it panics on malformed input.
func MustParse(s string) Micros {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

func (m Micros) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -microsExp)
}

func (m Micros) String() string {
	return m.Decimal().StringFixed(2)
}

// MarshalJSON renders the amount as a decimal string without losing
// sub-cent precision, e.g. "0.12" or "0.095".
func (m Micros) MarshalJSON() ([]byte, error) {
	d := m.Decimal()
	if d.Exponent() >= -2 || d.Equal(d.Truncate(2)) {
		return json.Marshal(d.StringFixed(2))
	}
	return json.Marshal(d.String())
}

// PerImpression converts a CPM rate (earning per thousand views) into the
// earning for a single view.
func (m Micros) PerImpression() Micros {
	return m / 1000
}

// Split divides gross into a commission at the given rate (0.10 = 10%) and
// the net remainder. Commission is rounded down to the micro, so
// commission+net always equals gross.
func Split(gross Micros, rate decimal.Decimal) (commission, net Micros) {
	commission = Micros(gross.Decimal().Mul(rate).Shift(microsExp).Floor().IntPart())
	if commission < 0 {
		commission = 0
	}
	if commission > gross {
		commission = gross
	}
	return commission, gross - commission
}
