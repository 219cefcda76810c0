package testutil

import (
	"errors"
	"testing"

	"gorm.io/gorm"

	apperrors "tradedesk/internal/errors"
)

// AssertAppError fails unless err carries the application error code.
func AssertAppError(t *testing.T, err error, code string) {
	t.Helper()

	var appErr *apperrors.AppError
	switch {
	case err == nil:
		t.Fatalf("want %s, got nil", code)
	case !errors.As(err, &appErr):
		t.Fatalf("want %s, got non-application error %T: %v", code, err, err)
	case appErr.Code != code:
		t.Errorf("want %s, got %s (%s)", code, appErr.Code, appErr.Message)
	}
}

// AssertNoError stops the test on any error.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertCash checks the stored cash balance of a portfolio, in cents.
func AssertCash(t *testing.T, db *gorm.DB, portfolioID string, want int64) {
	t.Helper()
	if got := ReloadPortfolio(t, db, portfolioID).Cash; got != want {
		t.Errorf("cash = %d, want %d", got, want)
	}
}

// AssertPosition checks the stored holding of a security. A zero quantity
// means the holding must not exist; avgPrice is only checked otherwise.
func AssertPosition(t *testing.T, db *gorm.DB, portfolioID, securityID string, quantity, avgPrice int64) {
	t.Helper()

	h := FindHolding(t, db, portfolioID, securityID)
	switch {
	case quantity == 0 && h != nil:
		t.Errorf("expected no holding, got %d units", h.Quantity)
	case quantity == 0:
	case h == nil:
		t.Errorf("expected %d units, got no holding", quantity)
	case h.Quantity != quantity || h.AvgPrice != avgPrice:
		t.Errorf("holding = %d @ %d, want %d @ %d", h.Quantity, h.AvgPrice, quantity, avgPrice)
	}
}
