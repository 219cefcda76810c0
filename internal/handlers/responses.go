package handlers

import (
	"time"

	"tradedesk/internal/models"
	"tradedesk/internal/money"
	"tradedesk/internal/pagination"
	"tradedesk/internal/services"
)

// Monetary fields in responses are major-unit strings with two decimals.

// SettlementResponse is the outcome of a placed order.
type SettlementResponse struct {
	OrderID            string             `json:"order_id"`
	TransactionID      string             `json:"transaction_id,omitempty"`
	Status             models.OrderStatus `json:"status"`
	Action             models.OrderAction `json:"action"`
	Type               models.OrderType   `json:"type"`
	Quantity           int64              `json:"quantity"`
	ExecutedPrice      string             `json:"executed_price"`
	Subtotal           string             `json:"subtotal"`
	Fee                string             `json:"fee"`
	TotalCost          string             `json:"total_cost,omitempty"`
	Proceeds           string             `json:"proceeds,omitempty"`
	RealizedGainLoss   string             `json:"realized_gain_loss,omitempty"`
	CashBalance        string             `json:"cash_balance"`
	CashBalanceDisplay string             `json:"cash_balance_display"`
	ExecutedAt         *time.Time         `json:"executed_at,omitempty"`
}

func newSettlementResponse(s *services.Settlement) SettlementResponse {
	resp := SettlementResponse{
		OrderID:            s.OrderID,
		TransactionID:      s.TransactionID,
		Status:             s.Status,
		Action:             s.Action,
		Type:               s.Type,
		Quantity:           s.Quantity,
		ExecutedPrice:      money.MajorString(s.ExecutedPrice),
		Subtotal:           money.MajorString(s.Subtotal),
		Fee:                money.MajorString(s.Fee),
		CashBalance:        money.MajorString(s.CashBalance),
		CashBalanceDisplay: money.Format(s.CashBalance, money.DefaultCurrency),
		ExecutedAt:         s.ExecutedAt,
	}
	if s.Status != models.OrderStatusCompleted {
		return resp
	}
	switch s.Action {
	case models.OrderActionBuy:
		resp.TotalCost = money.MajorString(s.TotalCost)
	case models.OrderActionSell:
		resp.Proceeds = money.MajorString(s.Proceeds)
		resp.RealizedGainLoss = money.MajorString(s.RealizedGainLoss)
	}
	return resp
}

// OrderResponse is a persisted order.
type OrderResponse struct {
	ID           string             `json:"id"`
	SecurityID   string             `json:"security_id"`
	Ticker       string             `json:"ticker,omitempty"`
	Quantity     int64              `json:"quantity"`
	Price        string             `json:"price"`
	Fee          string             `json:"fee"`
	Type         models.OrderType   `json:"type"`
	Action       models.OrderAction `json:"action"`
	Status       models.OrderStatus `json:"status"`
	EndDate      *time.Time         `json:"end_date,omitempty"`
	ExecutedAt   *time.Time         `json:"executed_at,omitempty"`
	CancelReason string             `json:"cancel_reason,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
}

func newOrderResponse(o *models.Order) OrderResponse {
	return OrderResponse{
		ID:           o.ID,
		SecurityID:   o.SecurityID,
		Ticker:       o.Security.Ticker,
		Quantity:     o.Quantity,
		Price:        money.MajorString(o.Price),
		Fee:          money.MajorString(o.Fee),
		Type:         o.Type,
		Action:       o.Action,
		Status:       o.Status,
		EndDate:      o.EndDate,
		ExecutedAt:   o.ExecutedAt,
		CancelReason: o.CancelReason,
		CreatedAt:    o.CreatedAt,
	}
}

// HoldingResponse is a holding with its live valuation.
type HoldingResponse struct {
	SecurityID         string `json:"security_id"`
	Ticker             string `json:"ticker"`
	Quantity           int64  `json:"quantity"`
	AvgPrice           string `json:"avg_price"`
	CurrentPrice       string `json:"current_price"`
	MarketValue        string `json:"market_value"`
	UnrealizedGainLoss string `json:"unrealized_gain_loss"`
}

// PortfolioResponse is a point-in-time valuation of the caller's portfolio.
type PortfolioResponse struct {
	ID                string            `json:"id"`
	Cash              string            `json:"cash"`
	CashDisplay       string            `json:"cash_display"`
	HoldingsValue     string            `json:"holdings_value"`
	TotalValue        string            `json:"total_value"`
	TotalValueDisplay string            `json:"total_value_display"`
	TotalReturn       string            `json:"total_return"`
	Holdings          []HoldingResponse `json:"holdings"`
}

func newPortfolioResponse(v *services.PortfolioView) PortfolioResponse {
	holdings := make([]HoldingResponse, 0, len(v.Holdings))
	for i := range v.Holdings {
		h := &v.Holdings[i]
		holdings = append(holdings, HoldingResponse{
			SecurityID:         h.SecurityID,
			Ticker:             h.Security.Ticker,
			Quantity:           h.Quantity,
			AvgPrice:           money.MajorString(h.AvgPrice),
			CurrentPrice:       money.MajorString(h.CurrentPrice),
			MarketValue:        money.MajorString(h.MarketValue),
			UnrealizedGainLoss: money.MajorString(h.UnrealizedGainLoss),
		})
	}
	return PortfolioResponse{
		ID:                v.ID,
		Cash:              money.MajorString(v.Cash),
		CashDisplay:       money.Format(v.Cash, money.DefaultCurrency),
		HoldingsValue:     money.MajorString(v.HoldingsValue),
		TotalValue:        money.MajorString(v.TotalValue),
		TotalValueDisplay: money.Format(v.TotalValue, money.DefaultCurrency),
		TotalReturn:       money.MajorString(v.TotalReturn),
		Holdings:          holdings,
	}
}

// CashMovementResponse is the outcome of a deposit or withdrawal.
type CashMovementResponse struct {
	TransactionID string                 `json:"transaction_id"`
	Type          models.TransactionType `json:"type"`
	Amount        string                 `json:"amount"`
	CashBalance   string                 `json:"cash_balance"`
}

func newCashMovementResponse(m *services.CashMovement) CashMovementResponse {
	return CashMovementResponse{
		TransactionID: m.TransactionID,
		Type:          m.Type,
		Amount:        money.MajorString(m.Amount),
		CashBalance:   money.MajorString(m.CashBalance),
	}
}

// TransactionResponse is a ledger entry.
type TransactionResponse struct {
	ID               string                 `json:"id"`
	OrderID          *string                `json:"order_id,omitempty"`
	Type             models.TransactionType `json:"type"`
	Amount           string                 `json:"amount"`
	Price            string                 `json:"price"`
	Fee              string                 `json:"fee"`
	RealizedGainLoss string                 `json:"realized_gain_loss"`
	CreatedAt        time.Time              `json:"created_at"`
}

func newTransactionResponse(t *models.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:               t.ID,
		OrderID:          t.OrderID,
		Type:             t.Type,
		Amount:           money.MajorString(t.Amount),
		Price:            money.MajorString(t.Price),
		Fee:              money.MajorString(t.Fee),
		RealizedGainLoss: money.MajorString(t.RealizedGainLoss),
		CreatedAt:        t.CreatedAt,
	}
}

// SecurityResponse is a tradable instrument with its last known price.
type SecurityResponse struct {
	ID       string              `json:"id"`
	Ticker   string              `json:"ticker"`
	Name     string              `json:"name"`
	Kind     models.SecurityKind `json:"kind"`
	Exchange string              `json:"exchange,omitempty"`
	Currency string              `json:"currency"`
	Price    string              `json:"price"`
}

func newSecurityResponse(s *models.Security) SecurityResponse {
	return SecurityResponse{
		ID:       s.ID,
		Ticker:   s.Ticker,
		Name:     s.Name,
		Kind:     s.Kind,
		Exchange: s.Exchange,
		Currency: s.Currency,
		Price:    money.MajorString(s.Price),
	}
}

// PricePointResponse is one price history entry.
type PricePointResponse struct {
	Price      string    `json:"price"`
	RecordedAt time.Time `json:"recorded_at"`
}

func newPricePointResponse(p *models.SecurityPrice) PricePointResponse {
	return PricePointResponse{Price: money.MajorString(p.Price), RecordedAt: p.RecordedAt}
}

// mapPage converts the items of a page while keeping its metadata.
func mapPage[T, R any](page *pagination.PageResponse[T], fn func(*T) R) pagination.PageResponse[R] {
	out := make([]R, len(page.Data))
	for i := range page.Data {
		out[i] = fn(&page.Data[i])
	}
	return pagination.NewPageResponse(out, page.Page, page.PageSize, page.TotalItems)
}
