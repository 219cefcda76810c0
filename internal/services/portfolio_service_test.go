package services

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tradedesk/internal/models"
	"tradedesk/internal/pagination"
	"tradedesk/internal/testutil"
)

func TestGetPortfolio(t *testing.T) {
	t.Run("values_holdings_at_market", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewPortfolioService(db, NewPortfolioLocker(db, time.Second))

		user := testutil.CreateTestUserWithCash(t, db, 50000)
		up := testutil.CreateTestSecurity(t, db, 12000)
		down := testutil.CreateTestSecurity(t, db, 800)
		testutil.CreateTestHolding(t, db, user.Portfolio.ID, up.ID, 10, 10000)
		testutil.CreateTestHolding(t, db, user.Portfolio.ID, down.ID, 5, 1000)

		view, err := svc.GetPortfolio(user.ID)
		testutil.AssertNoError(t, err)

		if view.Cash != 50000 {
			t.Errorf("expected cash 50000, got %d", view.Cash)
		}
		// 10*12000 + 5*800
		if view.HoldingsValue != 124000 {
			t.Errorf("expected holdings value 124000, got %d", view.HoldingsValue)
		}
		if view.TotalValue != 174000 {
			t.Errorf("expected total value 174000, got %d", view.TotalValue)
		}
		// (120000-100000) + (4000-5000)
		if view.TotalReturn != 19000 {
			t.Errorf("expected total return 19000, got %d", view.TotalReturn)
		}
		if len(view.Holdings) != 2 {
			t.Fatalf("expected 2 holdings, got %d", len(view.Holdings))
		}
		for _, h := range view.Holdings {
			if h.SecurityID == down.ID && h.UnrealizedGainLoss != -1000 {
				t.Errorf("expected -1000 unrealized on the losing position, got %d", h.UnrealizedGainLoss)
			}
		}
	})

	t.Run("empty", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewPortfolioService(db, NewPortfolioLocker(db, time.Second))

		user := testutil.CreateTestUser(t, db)
		view, err := svc.GetPortfolio(user.ID)
		testutil.AssertNoError(t, err)
		if view.TotalValue != 0 || len(view.Holdings) != 0 {
			t.Errorf("expected empty portfolio, got %+v", view)
		}
	})

	t.Run("not_found", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewPortfolioService(db, NewPortfolioLocker(db, time.Second))

		_, err := svc.GetPortfolio("0190a3b4-0000-7000-8000-000000000000")
		testutil.AssertAppError(t, err, "PORTFOLIO_NOT_FOUND")
	})
}

func TestCashMovements(t *testing.T) {
	t.Run("deposit", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewPortfolioService(db, NewPortfolioLocker(db, time.Second))

		user := testutil.CreateTestUser(t, db)
		mv, err := svc.Deposit(context.Background(), user.ID, decimal.RequireFromString("1000"))
		testutil.AssertNoError(t, err)

		if mv.Amount != 100000 || mv.CashBalance != 100000 || mv.Type != models.TransactionTypeDeposit {
			t.Errorf("unexpected movement %+v", mv)
		}
		if p := testutil.ReloadPortfolio(t, db, user.Portfolio.ID); p.Cash != 100000 {
			t.Errorf("expected cash 100000, got %d", p.Cash)
		}
	})

	t.Run("withdraw", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewPortfolioService(db, NewPortfolioLocker(db, time.Second))

		user := testutil.CreateTestUserWithCash(t, db, 100000)
		mv, err := svc.Withdraw(context.Background(), user.ID, decimal.RequireFromString("250.50"))
		testutil.AssertNoError(t, err)

		if mv.Amount != 25050 || mv.CashBalance != 74950 {
			t.Errorf("unexpected movement %+v", mv)
		}
	})

	t.Run("overdraw_rejected", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewPortfolioService(db, NewPortfolioLocker(db, time.Second))

		user := testutil.CreateTestUserWithCash(t, db, 100)
		_, err := svc.Withdraw(context.Background(), user.ID, decimal.RequireFromString("1.01"))
		testutil.AssertAppError(t, err, "INSUFFICIENT_FUNDS")

		if p := testutil.ReloadPortfolio(t, db, user.Portfolio.ID); p.Cash != 100 {
			t.Errorf("expected cash to stay 100, got %d", p.Cash)
		}
		if n := testutil.CountRows(t, db, &models.Transaction{}, ""); n != 0 {
			t.Errorf("expected no transaction, got %d", n)
		}
	})

	t.Run("non_positive_amount", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewPortfolioService(db, NewPortfolioLocker(db, time.Second))

		user := testutil.CreateTestUser(t, db)
		for _, amount := range []string{"0", "-5", "0.004"} {
			_, err := svc.Deposit(context.Background(), user.ID, decimal.RequireFromString(amount))
			testutil.AssertAppError(t, err, "INVALID_INPUT")
		}
	})
}

func TestListTransactions(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	locker := NewPortfolioLocker(db, time.Second)
	svc := NewPortfolioService(db, locker)
	orders := NewOrderService(db, locker, nil)

	user := testutil.CreateTestUser(t, db)
	sec := testutil.CreateTestSecurity(t, db, 1000)

	_, err := svc.Deposit(context.Background(), user.ID, decimal.RequireFromString("100"))
	testutil.AssertNoError(t, err)
	_, err = orders.PlaceOrder(context.Background(), user.ID, marketOrder(models.OrderActionBuy, sec.ID, 2))
	testutil.AssertNoError(t, err)
	_, err = svc.Withdraw(context.Background(), user.ID, decimal.RequireFromString("10"))
	testutil.AssertNoError(t, err)

	result, err := svc.ListTransactions(user.ID, pagination.PageRequest{Page: 1, PageSize: 10}, TransactionFilter{})
	testutil.AssertNoError(t, err)
	if result.TotalItems != 3 {
		t.Errorf("expected 3 transactions, got %d", result.TotalItems)
	}

	buy := models.TransactionTypeBuy
	result, err = svc.ListTransactions(user.ID, pagination.PageRequest{Page: 1, PageSize: 10}, TransactionFilter{Type: &buy})
	testutil.AssertNoError(t, err)
	if result.TotalItems != 1 || result.Data[0].Amount != 2004 {
		t.Errorf("expected one buy of 2004, got %+v", result.Data)
	}
}
