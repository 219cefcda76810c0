package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "tradedesk/internal/errors"
	"tradedesk/internal/models"
	"tradedesk/internal/pagination"
	"tradedesk/internal/services"
)

type mockPortfolioService struct {
	getPortfolioFn     func(userID string) (*services.PortfolioView, error)
	depositFn          func(ctx context.Context, userID string, amount decimal.Decimal) (*services.CashMovement, error)
	withdrawFn         func(ctx context.Context, userID string, amount decimal.Decimal) (*services.CashMovement, error)
	listTransactionsFn func(userID string, page pagination.PageRequest, filter services.TransactionFilter) (*pagination.PageResponse[models.Transaction], error)
}

func (m *mockPortfolioService) GetPortfolio(userID string) (*services.PortfolioView, error) {
	if m.getPortfolioFn != nil {
		return m.getPortfolioFn(userID)
	}
	return &services.PortfolioView{}, nil
}

func (m *mockPortfolioService) Deposit(ctx context.Context, userID string, amount decimal.Decimal) (*services.CashMovement, error) {
	if m.depositFn != nil {
		return m.depositFn(ctx, userID, amount)
	}
	return &services.CashMovement{}, nil
}

func (m *mockPortfolioService) Withdraw(ctx context.Context, userID string, amount decimal.Decimal) (*services.CashMovement, error) {
	if m.withdrawFn != nil {
		return m.withdrawFn(ctx, userID, amount)
	}
	return &services.CashMovement{}, nil
}

func (m *mockPortfolioService) ListTransactions(userID string, page pagination.PageRequest, filter services.TransactionFilter) (*pagination.PageResponse[models.Transaction], error) {
	if m.listTransactionsFn != nil {
		return m.listTransactionsFn(userID, page, filter)
	}
	resp := pagination.NewPageResponse([]models.Transaction{}, 1, 20, 0)
	return &resp, nil
}

func setupPortfolioRouter(handler *PortfolioHandler) *gin.Engine {
	r := gin.New()
	g := r.Group("/portfolio", injectUserID(testUserID))
	g.GET("", handler.GetPortfolio)
	g.POST("/deposit", handler.Deposit)
	g.POST("/withdraw", handler.Withdraw)
	g.GET("/transactions", handler.ListTransactions)
	return r
}

func TestPortfolioHandler_GetPortfolio(t *testing.T) {
	svc := &mockPortfolioService{
		getPortfolioFn: func(string) (*services.PortfolioView, error) {
			return &services.PortfolioView{
				ID:            "p-1",
				Cash:          100050,
				HoldingsValue: 150000,
				TotalValue:    250050,
				TotalReturn:   -5000,
				Holdings: []services.HoldingView{{
					Holding: models.Holding{
						SecurityID: testSecurityID,
						Quantity:   10,
						AvgPrice:   15500,
						Security:   models.Security{Ticker: "ACME"},
					},
					CurrentPrice:       15000,
					MarketValue:        150000,
					UnrealizedGainLoss: -5000,
				}},
			}, nil
		},
	}
	r := setupPortfolioRouter(NewPortfolioHandler(svc, &mockAuditService{}))

	rec := doRequest(r, "GET", "/portfolio", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	p := parseJSON(t, rec)["portfolio"].(map[string]interface{})
	if p["cash"] != "1000.50" || p["total_value"] != "2500.50" || p["total_return"] != "-50.00" {
		t.Errorf("unexpected amounts: %v", p)
	}
	if p["total_value_display"] != "$2,500.50" {
		t.Errorf("expected total_value_display $2,500.50, got %v", p["total_value_display"])
	}
	holdings := p["holdings"].([]interface{})
	if len(holdings) != 1 {
		t.Fatalf("expected 1 holding, got %d", len(holdings))
	}
	h := holdings[0].(map[string]interface{})
	if h["ticker"] != "ACME" || h["avg_price"] != "155.00" || h["unrealized_gain_loss"] != "-50.00" {
		t.Errorf("unexpected holding: %v", h)
	}
}

func TestPortfolioHandler_Deposit(t *testing.T) {
	t.Run("returns 201 and audits", func(t *testing.T) {
		var got decimal.Decimal
		svc := &mockPortfolioService{
			depositFn: func(_ context.Context, _ string, amount decimal.Decimal) (*services.CashMovement, error) {
				got = amount
				return &services.CashMovement{
					TransactionID: "tx-1",
					Type:          models.TransactionTypeDeposit,
					Amount:        25075,
					CashBalance:   25075,
				}, nil
			},
		}
		audit := &mockAuditService{}
		r := setupPortfolioRouter(NewPortfolioHandler(svc, audit))

		rec := doRequest(r, "POST", "/portfolio/deposit", `{"amount":"250.75"}`)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		if !got.Equal(decimal.RequireFromString("250.75")) {
			t.Errorf("expected amount 250.75, got %s", got)
		}
		result := parseJSON(t, rec)
		if result["amount"] != "250.75" || result["type"] != "deposit" {
			t.Errorf("unexpected response: %v", result)
		}
		if len(audit.entries) != 1 || audit.entries[0].action != "DEPOSIT" {
			t.Errorf("expected one DEPOSIT audit entry, got %+v", audit.entries)
		}
	})

	t.Run("returns 422 on non-numeric amount", func(t *testing.T) {
		r := setupPortfolioRouter(NewPortfolioHandler(&mockPortfolioService{}, &mockAuditService{}))

		rec := doRequest(r, "POST", "/portfolio/deposit", `{"amount":"lots"}`)

		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", rec.Code)
		}
	})
}

func TestPortfolioHandler_Withdraw(t *testing.T) {
	svc := &mockPortfolioService{
		withdrawFn: func(context.Context, string, decimal.Decimal) (*services.CashMovement, error) {
			return nil, apperrors.ErrInsufficientFunds
		},
	}
	audit := &mockAuditService{}
	r := setupPortfolioRouter(NewPortfolioHandler(svc, audit))

	rec := doRequest(r, "POST", "/portfolio/withdraw", `{"amount":5000}`)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	assertErrorCode(t, parseJSON(t, rec), "INSUFFICIENT_FUNDS")
	if len(audit.entries) != 0 {
		t.Error("failed withdrawal should not be audited")
	}
}

func TestPortfolioHandler_ListTransactions(t *testing.T) {
	t.Run("filters by type", func(t *testing.T) {
		var gotFilter services.TransactionFilter
		svc := &mockPortfolioService{
			listTransactionsFn: func(_ string, _ pagination.PageRequest, filter services.TransactionFilter) (*pagination.PageResponse[models.Transaction], error) {
				gotFilter = filter
				txs := []models.Transaction{{Type: models.TransactionTypeSell, Amount: 99800, Fee: 200, RealizedGainLoss: 4800}}
				resp := pagination.NewPageResponse(txs, 1, 20, 1)
				return &resp, nil
			},
		}
		r := setupPortfolioRouter(NewPortfolioHandler(svc, &mockAuditService{}))

		rec := doRequest(r, "GET", "/portfolio/transactions?type=sell", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if gotFilter.Type == nil || *gotFilter.Type != models.TransactionTypeSell {
			t.Errorf("expected sell filter, got %v", gotFilter.Type)
		}
		tx := parseJSON(t, rec)["data"].([]interface{})[0].(map[string]interface{})
		if tx["amount"] != "998.00" || tx["realized_gain_loss"] != "48.00" {
			t.Errorf("unexpected transaction: %v", tx)
		}
	})

	t.Run("rejects unknown type", func(t *testing.T) {
		r := setupPortfolioRouter(NewPortfolioHandler(&mockPortfolioService{}, &mockAuditService{}))

		rec := doRequest(r, "GET", "/portfolio/transactions?type=transfer", "")

		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", rec.Code)
		}
	})
}
