// Package fees computes trading fees from an order's notional subtotal.
package fees

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"tradedesk/internal/money"
)

// DefaultRate is the flat proportional fee (0.2%) applied when no override matches.
var DefaultRate = decimal.RequireFromString("0.002")

// Policy computes the fee in cents for a notional subtotal in cents.
// Implementations must be deterministic and never return a negative fee.
type Policy interface {
	Fee(subtotal int64) int64
}

// Proportional charges a fixed fraction of the subtotal, rounded to the cent.
type Proportional struct {
	Rate decimal.Decimal
}

// NewProportional validates rate and returns a Proportional policy.
func NewProportional(rate decimal.Decimal) (Proportional, error) {
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return Proportional{}, fmt.Errorf("fee rate %s must be in [0, 1)", rate)
	}
	return Proportional{Rate: rate}, nil
}

// Fee implements Policy.
func (p Proportional) Fee(subtotal int64) int64 {
	if subtotal <= 0 {
		return 0
	}
	fee := money.ApplyRate(subtotal, p.Rate)
	if fee < 0 {
		return 0
	}
	return fee
}

// Schedule picks a Policy per exchange, falling back to a default.
type Schedule struct {
	def       Policy
	exchanges map[string]Policy
}

// NewSchedule creates a Schedule with the given default policy.
func NewSchedule(def Policy) *Schedule {
	return &Schedule{def: def, exchanges: make(map[string]Policy)}
}

// Set registers a policy for an exchange code (case-insensitive).
func (s *Schedule) Set(exchange string, p Policy) {
	s.exchanges[strings.ToUpper(strings.TrimSpace(exchange))] = p
}

// For returns the policy for exchange, or the default one.
func (s *Schedule) For(exchange string) Policy {
	if p, ok := s.exchanges[strings.ToUpper(strings.TrimSpace(exchange))]; ok {
		return p
	}
	return s.def
}

// ParseSchedule builds a Schedule from a default rate and an override list of
// the form "NYSE=0.001,NASDAQ=0.0015". An empty override list is allowed.
func ParseSchedule(defaultRate, overrides string) (*Schedule, error) {
	rate := DefaultRate
	if strings.TrimSpace(defaultRate) != "" {
		r, err := decimal.NewFromString(strings.TrimSpace(defaultRate))
		if err != nil {
			return nil, fmt.Errorf("invalid default fee rate %q: %w", defaultRate, err)
		}
		rate = r
	}
	def, err := NewProportional(rate)
	if err != nil {
		return nil, err
	}
	schedule := NewSchedule(def)

	for _, entry := range strings.Split(overrides, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		exchange, value, ok := strings.Cut(entry, "=")
		if !ok || strings.TrimSpace(exchange) == "" {
			return nil, fmt.Errorf("invalid fee override %q, want EXCHANGE=RATE", entry)
		}
		r, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("invalid fee rate for %s: %w", exchange, err)
		}
		p, err := NewProportional(r)
		if err != nil {
			return nil, fmt.Errorf("exchange %s: %w", exchange, err)
		}
		schedule.Set(exchange, p)
	}
	return schedule, nil
}
