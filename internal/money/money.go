// Package money converts the internal minor-unit amounts (agorot) to the units
// each provider expects. Amounts stay int64 until the provider boundary.
package money

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

const Currency = "ILS"

// Major returns minor/100 as an exact decimal. CreditGuard's doDeal total and
// Dorix amounts are sent this way.
func Major(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// MajorJSON renders minor/100 as a bare JSON number, e.g. 2600 -> 26, 1250 -> 12.5.
func MajorJSON(minor int64) json.Number {
	return json.Number(Major(minor).String())
}

// ToMinor converts a major-unit decimal back to minor units, rejecting fractions of an agora.
func ToMinor(major decimal.Decimal) (int64, bool) {
	m := major.Shift(2)
	if !m.IsInteger() {
		return 0, false
	}
	return m.IntPart(), true
}
