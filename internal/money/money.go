// Package money converts between human-entered major units and the integer
// minor units (cents) used everywhere inside the execution path.
//
// Rounding is half away from zero at the cent for every conversion, fee and
// average-price computation.
package money

import (
	"errors"
	"math"

	gomoney "github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// DefaultCurrency is the settlement currency. Multi-currency is not supported.
const DefaultCurrency = gomoney.USD

// minorDigits is the number of decimal digits between major and minor units.
const minorDigits = 2

// ErrOutOfRange is returned when an amount does not fit in int64 cents.
var ErrOutOfRange = errors.New("money: amount out of range")

var (
	maxCents = decimal.NewFromInt(math.MaxInt64)
	minCents = decimal.NewFromInt(math.MinInt64)
)

// FromMajor converts a major-unit amount (dollars) to cents.
func FromMajor(major decimal.Decimal) (int64, error) {
	cents := major.Shift(minorDigits).Round(0)
	if cents.GreaterThan(maxCents) || cents.LessThan(minCents) {
		return 0, ErrOutOfRange
	}
	return cents.IntPart(), nil
}

// ToMajor converts cents to a major-unit decimal.
func ToMajor(cents int64) decimal.Decimal {
	return decimal.New(cents, -minorDigits)
}

// MajorString renders cents as a major-unit string with two decimals.
func MajorString(cents int64) string {
	return ToMajor(cents).StringFixed(minorDigits)
}

// Format renders cents for display, e.g. "$1,000.00".
func Format(cents int64, currency string) string {
	if currency == "" {
		currency = DefaultCurrency
	}
	return gomoney.New(cents, currency).Display()
}

// Notional returns quantity * unitPrice, failing instead of overflowing.
func Notional(quantity, unitPrice int64) (int64, error) {
	if quantity < 0 || unitPrice < 0 {
		return 0, ErrOutOfRange
	}
	if quantity != 0 && unitPrice > math.MaxInt64/quantity {
		return 0, ErrOutOfRange
	}
	return quantity * unitPrice, nil
}

// ApplyRate returns amount * rate rounded to the nearest cent.
func ApplyRate(amount int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(rate).Round(0).IntPart()
}

// WeightedAverage returns the cost basis per unit after adding qty units at
// unitPrice to a position of oldQty units at oldAvg.
func WeightedAverage(oldQty, oldAvg, qty, unitPrice int64) int64 {
	total := oldQty + qty
	if total <= 0 {
		return 0
	}
	num := decimal.NewFromInt(oldQty).Mul(decimal.NewFromInt(oldAvg)).
		Add(decimal.NewFromInt(qty).Mul(decimal.NewFromInt(unitPrice)))
	return num.DivRound(decimal.NewFromInt(total), 0).IntPart()
}

// Add returns a + b for non-negative amounts, failing instead of overflowing.
func Add(a, b int64) (int64, error) {
	if a < 0 || b < 0 || a > math.MaxInt64-b {
		return 0, ErrOutOfRange
	}
	return a + b, nil
}
