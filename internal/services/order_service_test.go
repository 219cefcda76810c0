package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "tradedesk/internal/errors"
	"tradedesk/internal/fees"
	"tradedesk/internal/models"
	"tradedesk/internal/pagination"
	"tradedesk/internal/testutil"
)

func newTestOrderService(t *testing.T, db *gorm.DB) (OrderServicer, *PortfolioLocker) {
	t.Helper()
	schedule, err := fees.ParseSchedule("0.002", "FREEX=0")
	testutil.AssertNoError(t, err)
	locker := NewPortfolioLocker(db, 5*time.Second)
	return NewOrderService(db, locker, schedule), locker
}

func marketOrder(action models.OrderAction, securityID string, qty int64) OrderRequest {
	return OrderRequest{SecurityID: securityID, Quantity: qty, Action: action, Type: models.OrderTypeMarket}
}

func limitOrder(action models.OrderAction, securityID string, qty int64, limit string) OrderRequest {
	p := decimal.RequireFromString(limit)
	return OrderRequest{SecurityID: securityID, Quantity: qty, Action: action, Type: models.OrderTypeLimit, LimitPrice: &p}
}

// ledgerState captures everything an order may touch.
type ledgerState struct {
	cash         int64
	holdingQty   int64
	holdingAvg   int64
	orders       int64
	transactions int64
}

func snapshot(t *testing.T, db *gorm.DB, portfolioID, securityID string) ledgerState {
	t.Helper()
	s := ledgerState{
		cash:         testutil.ReloadPortfolio(t, db, portfolioID).Cash,
		orders:       testutil.CountRows(t, db, &models.Order{}, "portfolio_id = ?", portfolioID),
		transactions: testutil.CountRows(t, db, &models.Transaction{}, "portfolio_id = ?", portfolioID),
	}
	if h := testutil.FindHolding(t, db, portfolioID, securityID); h != nil {
		s.holdingQty, s.holdingAvg = h.Quantity, h.AvgPrice
	}
	return s
}

func TestPlaceOrderBuy(t *testing.T) {
	t.Run("market_buy_settles", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc, _ := newTestOrderService(t, db)

		user := testutil.CreateTestUserWithCash(t, db, 100000)
		sec := testutil.CreateTestSecurity(t, db, 10000)

		st, err := svc.PlaceOrder(context.Background(), user.ID, marketOrder(models.OrderActionBuy, sec.ID, 5))
		testutil.AssertNoError(t, err)

		if st.Status != models.OrderStatusCompleted {
			t.Errorf("expected completed, got %s", st.Status)
		}
		if st.ExecutedPrice != 10000 || st.Subtotal != 50000 || st.Fee != 100 || st.TotalCost != 50100 {
			t.Errorf("unexpected settlement %+v", st)
		}
		if st.CashBalance != 49900 {
			t.Errorf("expected cash 49900, got %d", st.CashBalance)
		}
		if st.ExecutedAt == nil {
			t.Error("expected executed_at to be set")
		}

		if p := testutil.ReloadPortfolio(t, db, user.Portfolio.ID); p.Cash != 49900 {
			t.Errorf("expected persisted cash 49900, got %d", p.Cash)
		}
		h := testutil.FindHolding(t, db, user.Portfolio.ID, sec.ID)
		if h == nil || h.Quantity != 5 || h.AvgPrice != 10000 {
			t.Errorf("unexpected holding %+v", h)
		}

		var txn models.Transaction
		if err := db.Where("order_id = ?", st.OrderID).First(&txn).Error; err != nil {
			t.Fatalf("expected transaction for order: %v", err)
		}
		if txn.Type != models.TransactionTypeBuy || txn.Amount != 50100 || txn.Fee != 100 || txn.Price != 10000 {
			t.Errorf("unexpected transaction %+v", txn)
		}

		var order models.Order
		if err := db.First(&order, "id = ?", st.OrderID).Error; err != nil {
			t.Fatalf("expected order row: %v", err)
		}
		if order.Status != models.OrderStatusCompleted || order.Fee != 100 || order.Price != 10000 {
			t.Errorf("unexpected order %+v", order)
		}
	})

	t.Run("exact_cash_is_enough", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc, _ := newTestOrderService(t, db)

		user := testutil.CreateTestUserWithCash(t, db, 50100)
		sec := testutil.CreateTestSecurity(t, db, 10000)

		st, err := svc.PlaceOrder(context.Background(), user.ID, marketOrder(models.OrderActionBuy, sec.ID, 5))
		testutil.AssertNoError(t, err)
		if st.CashBalance != 0 {
			t.Errorf("expected cash 0, got %d", st.CashBalance)
		}
	})

	t.Run("insufficient_funds_changes_nothing", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc, _ := newTestOrderService(t, db)

		user := testutil.CreateTestUserWithCash(t, db, 50099)
		sec := testutil.CreateTestSecurity(t, db, 10000)
		before := snapshot(t, db, user.Portfolio.ID, sec.ID)

		_, err := svc.PlaceOrder(context.Background(), user.ID, marketOrder(models.OrderActionBuy, sec.ID, 5))
		testutil.AssertAppError(t, err, "INSUFFICIENT_FUNDS")

		if after := snapshot(t, db, user.Portfolio.ID, sec.ID); after != before {
			t.Errorf("expected no change, before %+v after %+v", before, after)
		}
	})

	t.Run("second_lot_moves_average", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc, _ := newTestOrderService(t, db)

		user := testutil.CreateTestUserWithCash(t, db, 1000000)
		sec := testutil.CreateTestSecurityOnExchange(t, db, 10000, "FREEX")

		_, err := svc.PlaceOrder(context.Background(), user.ID, marketOrder(models.OrderActionBuy, sec.ID, 10))
		testutil.AssertNoError(t, err)

		db.Model(&models.Security{}).Where("id = ?", sec.ID).Update("price", 20000)
		_, err = svc.PlaceOrder(context.Background(), user.ID, marketOrder(models.OrderActionBuy, sec.ID, 10))
		testutil.AssertNoError(t, err)

		h := testutil.FindHolding(t, db, user.Portfolio.ID, sec.ID)
		if h.Quantity != 20 || h.AvgPrice != 15000 {
			t.Errorf("expected 20 @ 15000, got %d @ %d", h.Quantity, h.AvgPrice)
		}
		if p := testutil.ReloadPortfolio(t, db, user.Portfolio.ID); p.Cash != 1000000-100000-200000 {
			t.Errorf("unexpected cash %d with zero-fee exchange", p.Cash)
		}
	})

	t.Run("buy_limit_executes_at_limit_price", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc, _ := newTestOrderService(t, db)

		user := testutil.CreateTestUserWithCash(t, db, 100000)
		sec := testutil.CreateTestSecurity(t, db, 10000)

		st, err := svc.PlaceOrder(context.Background(), user.ID, limitOrder(models.OrderActionBuy, sec.ID, 2, "95.00"))
		testutil.AssertNoError(t, err)

		if st.Status != models.OrderStatusCompleted || st.ExecutedPrice != 9500 {
			t.Errorf("expected immediate fill at 9500, got %s @ %d", st.Status, st.ExecutedPrice)
		}
		// 19000 + fee 38
		if st.TotalCost != 19038 || st.CashBalance != 80962 {
			t.Errorf("unexpected settlement %+v", st)
		}
	})

	t.Run("fee_rounds_half_away_from_zero", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc, _ := newTestOrderService(t, db)

		user := testutil.CreateTestUserWithCash(t, db, 1000)
		sec := testutil.CreateTestSecurity(t, db, 250)

		// 250 * 0.002 = 0.5 cents
		st, err := svc.PlaceOrder(context.Background(), user.ID, marketOrder(models.OrderActionBuy, sec.ID, 1))
		testutil.AssertNoError(t, err)
		if st.Fee != 1 {
			t.Errorf("expected fee 1, got %d", st.Fee)
		}
	})

	t.Run("limit_price_rounds_to_cent", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc, _ := newTestOrderService(t, db)

		user := testutil.CreateTestUserWithCash(t, db, 100000)
		sec := testutil.CreateTestSecurityOnExchange(t, db, 10000, "FREEX")

		st, err := svc.PlaceOrder(context.Background(), user.ID, limitOrder(models.OrderActionBuy, sec.ID, 1, "95.005"))
		testutil.AssertNoError(t, err)
		if st.ExecutedPrice != 9501 {
			t.Errorf("expected 9501, got %d", st.ExecutedPrice)
		}
	})
}

func TestPlaceOrderSell(t *testing.T) {
	t.Run("market_sell_settles", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc, _ := newTestOrderService(t, db)

		user := testutil.CreateTestUserWithCash(t, db, 100000)
		sec := testutil.CreateTestSecurity(t, db, 10000)
		testutil.CreateTestHolding(t, db, user.Portfolio.ID, sec.ID, 10, 9000)

		st, err := svc.PlaceOrder(context.Background(), user.ID, marketOrder(models.OrderActionSell, sec.ID, 5))
		testutil.AssertNoError(t, err)

		if st.Subtotal != 50000 || st.Fee != 100 || st.Proceeds != 49900 {
			t.Errorf("unexpected settlement %+v", st)
		}
		if st.CashBalance != 149900 {
			t.Errorf("expected cash 149900, got %d", st.CashBalance)
		}
		// 49900 - 5*9000
		if st.RealizedGainLoss != 4900 {
			t.Errorf("expected realized gain 4900, got %d", st.RealizedGainLoss)
		}

		h := testutil.FindHolding(t, db, user.Portfolio.ID, sec.ID)
		if h == nil || h.Quantity != 5 || h.AvgPrice != 9000 {
			t.Errorf("expected 5 @ 9000 left, got %+v", h)
		}

		var txn models.Transaction
		if err := db.Where("order_id = ?", st.OrderID).First(&txn).Error; err != nil {
			t.Fatalf("expected transaction for order: %v", err)
		}
		if txn.Type != models.TransactionTypeSell || txn.Amount != 49900 || txn.RealizedGainLoss != 4900 {
			t.Errorf("unexpected transaction %+v", txn)
		}
	})

	t.Run("sell_all_removes_holding", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc, _ := newTestOrderService(t, db)

		user := testutil.CreateTestUserWithCash(t, db, 0)
		sec := testutil.CreateTestSecurity(t, db, 10000)
		testutil.CreateTestHolding(t, db, user.Portfolio.ID, sec.ID, 10, 9000)

		_, err := svc.PlaceOrder(context.Background(), user.ID, marketOrder(models.OrderActionSell, sec.ID, 10))
		testutil.AssertNoError(t, err)

		if h := testutil.FindHolding(t, db, user.Portfolio.ID, sec.ID); h != nil {
			t.Errorf("expected holding to be removed, got %+v", h)
		}
	})

	t.Run("oversell_changes_nothing", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc, _ := newTestOrderService(t, db)

		user := testutil.CreateTestUserWithCash(t, db, 100000)
		sec := testutil.CreateTestSecurity(t, db, 10000)
		testutil.CreateTestHolding(t, db, user.Portfolio.ID, sec.ID, 5, 9000)
		before := snapshot(t, db, user.Portfolio.ID, sec.ID)

		_, err := svc.PlaceOrder(context.Background(), user.ID, marketOrder(models.OrderActionSell, sec.ID, 6))
		testutil.AssertAppError(t, err, "INSUFFICIENT_HOLDINGS")

		if after := snapshot(t, db, user.Portfolio.ID, sec.ID); after != before {
			t.Errorf("expected no change, before %+v after %+v", before, after)
		}
	})

	t.Run("sell_limit_at_or_below_market_fills_at_limit", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc, _ := newTestOrderService(t, db)

		user := testutil.CreateTestUserWithCash(t, db, 0)
		sec := testutil.CreateTestSecurityOnExchange(t, db, 10000, "FREEX")
		testutil.CreateTestHolding(t, db, user.Portfolio.ID, sec.ID, 10, 9000)

		st, err := svc.PlaceOrder(context.Background(), user.ID, limitOrder(models.OrderActionSell, sec.ID, 2, "99.00"))
		testutil.AssertNoError(t, err)

		if st.Status != models.OrderStatusCompleted || st.ExecutedPrice != 9900 || st.CashBalance != 19800 {
			t.Errorf("unexpected settlement %+v", st)
		}
	})

	t.Run("sell_limit_above_market_is_deferred", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc, _ := newTestOrderService(t, db)

		user := testutil.CreateTestUserWithCash(t, db, 100)
		sec := testutil.CreateTestSecurity(t, db, 10000)
		testutil.CreateTestHolding(t, db, user.Portfolio.ID, sec.ID, 10, 9000)

		st, err := svc.PlaceOrder(context.Background(), user.ID, limitOrder(models.OrderActionSell, sec.ID, 4, "120.00"))
		testutil.AssertNoError(t, err)

		if st.Status != models.OrderStatusPending {
			t.Fatalf("expected pending, got %s", st.Status)
		}
		if st.ExecutedPrice != 12000 || st.ExecutedAt != nil || st.CashBalance != 100 {
			t.Errorf("unexpected deferred settlement %+v", st)
		}

		after := snapshot(t, db, user.Portfolio.ID, sec.ID)
		if after.cash != 100 || after.holdingQty != 10 || after.transactions != 0 || after.orders != 1 {
			t.Errorf("expected only a pending order row, got %+v", after)
		}
	})

	t.Run("deferred_sell_needs_holdings", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc, _ := newTestOrderService(t, db)

		user := testutil.CreateTestUser(t, db)
		sec := testutil.CreateTestSecurity(t, db, 10000)

		_, err := svc.PlaceOrder(context.Background(), user.ID, limitOrder(models.OrderActionSell, sec.ID, 1, "120.00"))
		testutil.AssertAppError(t, err, "INSUFFICIENT_HOLDINGS")
		if n := testutil.CountRows(t, db, &models.Order{}, ""); n != 0 {
			t.Errorf("expected no order rows, got %d", n)
		}
	})
}

func TestPlaceOrderRejections(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	svc, _ := newTestOrderService(t, db)

	user := testutil.CreateTestUserWithCash(t, db, 100000)
	sec := testutil.CreateTestSecurity(t, db, 10000)
	unpriced := testutil.CreateTestSecurity(t, db, 0)
	past := time.Now().Add(-time.Hour)
	limit := decimal.RequireFromString("10")

	cases := []struct {
		name string
		req  OrderRequest
		code string
	}{
		{"zero_quantity", marketOrder(models.OrderActionBuy, sec.ID, 0), "INVALID_INPUT"},
		{"negative_quantity", marketOrder(models.OrderActionBuy, sec.ID, -1), "INVALID_INPUT"},
		{"unknown_action", marketOrder("short", sec.ID, 1), "INVALID_INPUT"},
		{"unknown_type", OrderRequest{SecurityID: sec.ID, Quantity: 1, Action: models.OrderActionBuy, Type: "stop"}, "INVALID_INPUT"},
		{"missing_security_id", marketOrder(models.OrderActionBuy, "", 1), "INVALID_INPUT"},
		{"market_with_limit_price", OrderRequest{SecurityID: sec.ID, Quantity: 1, Action: models.OrderActionBuy, Type: models.OrderTypeMarket, LimitPrice: &limit}, "INVALID_INPUT"},
		{"end_date_in_past", func() OrderRequest {
			r := limitOrder(models.OrderActionSell, sec.ID, 1, "200")
			r.EndDate = &past
			return r
		}(), "INVALID_INPUT"},
		{"unknown_security", marketOrder(models.OrderActionBuy, "0190a3b4-0000-7000-8000-000000000000", 1), "SECURITY_NOT_FOUND"},
		{"market_price_zero", marketOrder(models.OrderActionBuy, unpriced.ID, 1), "INVALID_PRICE"},
		{"limit_price_missing", OrderRequest{SecurityID: sec.ID, Quantity: 1, Action: models.OrderActionBuy, Type: models.OrderTypeLimit}, "INVALID_PRICE"},
		{"limit_price_zero", limitOrder(models.OrderActionBuy, sec.ID, 1, "0"), "INVALID_PRICE"},
		{"limit_price_negative", limitOrder(models.OrderActionBuy, sec.ID, 1, "-5"), "INVALID_PRICE"},
		{"notional_overflow", marketOrder(models.OrderActionBuy, sec.ID, 1<<62), "INVALID_INPUT"},
	}

	before := snapshot(t, db, user.Portfolio.ID, sec.ID)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.PlaceOrder(context.Background(), user.ID, tc.req)
			testutil.AssertAppError(t, err, tc.code)
		})
	}
	if after := snapshot(t, db, user.Portfolio.ID, sec.ID); after != before {
		t.Errorf("rejections must not change state, before %+v after %+v", before, after)
	}

	t.Run("no_portfolio", func(t *testing.T) {
		_, err := svc.PlaceOrder(context.Background(), "0190a3b4-0000-7000-8000-000000000000", marketOrder(models.OrderActionBuy, sec.ID, 1))
		testutil.AssertAppError(t, err, "PORTFOLIO_NOT_FOUND")
	})
}

func TestPlaceOrderConcurrency(t *testing.T) {
	t.Run("two_buys_one_budget", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc, _ := newTestOrderService(t, db)

		user := testutil.CreateTestUserWithCash(t, db, 50100)
		sec := testutil.CreateTestSecurity(t, db, 10000)

		errs := make([]error, 2)
		var wg sync.WaitGroup
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = svc.PlaceOrder(context.Background(), user.ID, marketOrder(models.OrderActionBuy, sec.ID, 5))
			}(i)
		}
		wg.Wait()

		succeeded, rejected := 0, 0
		for _, err := range errs {
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, apperrors.ErrInsufficientFunds):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}
		if succeeded != 1 || rejected != 1 {
			t.Errorf("expected exactly one success and one INSUFFICIENT_FUNDS, got %d/%d", succeeded, rejected)
		}

		after := snapshot(t, db, user.Portfolio.ID, sec.ID)
		if after.cash != 0 || after.holdingQty != 5 || after.transactions != 1 {
			t.Errorf("unexpected final state %+v", after)
		}
	})

	t.Run("many_small_buys_never_overdraw", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc, _ := newTestOrderService(t, db)

		// Enough for exactly 3 buys of 1 @ 10000 + 20 fee.
		user := testutil.CreateTestUserWithCash(t, db, 3*10020+10)
		sec := testutil.CreateTestSecurity(t, db, 10000)

		const workers = 8
		var mu sync.Mutex
		succeeded := 0
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := svc.PlaceOrder(context.Background(), user.ID, marketOrder(models.OrderActionBuy, sec.ID, 1))
				if err == nil {
					mu.Lock()
					succeeded++
					mu.Unlock()
				} else if !errors.Is(err, apperrors.ErrInsufficientFunds) {
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		if succeeded != 3 {
			t.Errorf("expected 3 fills, got %d", succeeded)
		}
		after := snapshot(t, db, user.Portfolio.ID, sec.ID)
		if after.cash != 10 || after.holdingQty != 3 {
			t.Errorf("unexpected final state %+v", after)
		}
	})

	t.Run("busy_portfolio", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)

		locker := NewPortfolioLocker(db, 30*time.Millisecond)
		svc := NewOrderService(db, locker, nil)

		user := testutil.CreateTestUserWithCash(t, db, 100000)
		sec := testutil.CreateTestSecurity(t, db, 10000)

		release, err := locker.acquire(context.Background(), user.Portfolio.ID)
		testutil.AssertNoError(t, err)
		defer release()

		_, err = svc.PlaceOrder(context.Background(), user.ID, marketOrder(models.OrderActionBuy, sec.ID, 1))
		testutil.AssertAppError(t, err, "PORTFOLIO_BUSY")
	})
}

func TestGetAndListOrders(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	svc, _ := newTestOrderService(t, db)

	user := testutil.CreateTestUserWithCash(t, db, 1000000)
	other := testutil.CreateTestUserWithCash(t, db, 1000000)
	sec := testutil.CreateTestSecurity(t, db, 1000)

	var placed []*Settlement
	for i := 0; i < 3; i++ {
		st, err := svc.PlaceOrder(context.Background(), user.ID, marketOrder(models.OrderActionBuy, sec.ID, 1))
		testutil.AssertNoError(t, err)
		placed = append(placed, st)
	}
	st, err := svc.PlaceOrder(context.Background(), user.ID, marketOrder(models.OrderActionSell, sec.ID, 1))
	testutil.AssertNoError(t, err)
	placed = append(placed, st)
	otherOrder, err := svc.PlaceOrder(context.Background(), other.ID, marketOrder(models.OrderActionBuy, sec.ID, 1))
	testutil.AssertNoError(t, err)

	t.Run("get_own_order", func(t *testing.T) {
		order, err := svc.GetOrder(user.ID, placed[0].OrderID)
		testutil.AssertNoError(t, err)
		if order.Security.ID != sec.ID {
			t.Errorf("expected security to be preloaded")
		}
	})

	t.Run("get_foreign_order", func(t *testing.T) {
		_, err := svc.GetOrder(user.ID, otherOrder.OrderID)
		testutil.AssertAppError(t, err, "ORDER_NOT_FOUND")
	})

	t.Run("list_all", func(t *testing.T) {
		result, err := svc.ListOrders(user.ID, pagination.PageRequest{Page: 1, PageSize: 10}, OrderFilter{})
		testutil.AssertNoError(t, err)
		if result.TotalItems != 4 {
			t.Errorf("expected 4 orders, got %d", result.TotalItems)
		}
	})

	t.Run("filter_by_action", func(t *testing.T) {
		sell := models.OrderActionSell
		result, err := svc.ListOrders(user.ID, pagination.PageRequest{Page: 1, PageSize: 10}, OrderFilter{Action: &sell})
		testutil.AssertNoError(t, err)
		if result.TotalItems != 1 || result.Data[0].ID != placed[3].OrderID {
			t.Errorf("expected the single sell order, got %+v", result.Data)
		}
	})

	t.Run("filter_by_status", func(t *testing.T) {
		pending := models.OrderStatusPending
		result, err := svc.ListOrders(user.ID, pagination.PageRequest{}, OrderFilter{Status: &pending})
		testutil.AssertNoError(t, err)
		if result.TotalItems != 0 {
			t.Errorf("expected no pending orders, got %d", result.TotalItems)
		}
	})
}

func TestCancelOrder(t *testing.T) {
	t.Run("pending_order", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc, _ := newTestOrderService(t, db)

		user := testutil.CreateTestUser(t, db)
		sec := testutil.CreateTestSecurity(t, db, 10000)
		order := testutil.CreateTestPendingOrder(t, db, user.Portfolio.ID, sec.ID, 1, 12000, nil)

		canceled, err := svc.CancelOrder(context.Background(), user.ID, order.ID)
		testutil.AssertNoError(t, err)
		if canceled.Status != models.OrderStatusCanceled || canceled.CancelReason != CancelReasonUser {
			t.Errorf("unexpected order %+v", canceled)
		}

		_, err = svc.CancelOrder(context.Background(), user.ID, order.ID)
		testutil.AssertAppError(t, err, "ORDER_NOT_CANCELABLE")
	})

	t.Run("completed_order", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc, _ := newTestOrderService(t, db)

		user := testutil.CreateTestUserWithCash(t, db, 100000)
		sec := testutil.CreateTestSecurity(t, db, 10000)
		st, err := svc.PlaceOrder(context.Background(), user.ID, marketOrder(models.OrderActionBuy, sec.ID, 1))
		testutil.AssertNoError(t, err)

		_, err = svc.CancelOrder(context.Background(), user.ID, st.OrderID)
		testutil.AssertAppError(t, err, "ORDER_NOT_CANCELABLE")
	})

	t.Run("foreign_order", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc, _ := newTestOrderService(t, db)

		owner := testutil.CreateTestUser(t, db)
		intruder := testutil.CreateTestUser(t, db)
		sec := testutil.CreateTestSecurity(t, db, 10000)
		order := testutil.CreateTestPendingOrder(t, db, owner.Portfolio.ID, sec.ID, 1, 12000, nil)

		_, err := svc.CancelOrder(context.Background(), intruder.ID, order.ID)
		testutil.AssertAppError(t, err, "ORDER_NOT_FOUND")
	})
}
