package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"tradedesk/internal/models"
	"tradedesk/internal/pagination"
)

// UserServicer defines the contract for user-related business logic.
type UserServicer interface {
	CreateUser(email, password, firstName, lastName string) (*models.User, error)
	GetUserByEmail(email string) (*models.User, error)
	GetUserByID(id string) (*models.User, error)
	VerifyPassword(user *models.User, password string) bool
	AttemptLogin(email, password string) (*models.User, error)
	StoreRefreshTokenHash(userID, hash string) error
	GetRefreshTokenHash(userID string) (string, error)
}

// SecurityInput carries the fields needed to list a new security.
type SecurityInput struct {
	Ticker   string
	Name     string
	Kind     models.SecurityKind
	Exchange string
	Currency string
	Price    decimal.Decimal // major units
}

// PriceUpdate is one market-data refresh entry. Price is in major units.
type PriceUpdate struct {
	SecurityID string
	Price      decimal.Decimal
	RecordedAt time.Time
}

// SecurityServicer defines the contract for security lookup and price refresh.
type SecurityServicer interface {
	CreateSecurity(input SecurityInput) (*models.Security, error)
	GetSecurityByID(id string) (*models.Security, error)
	ListSecurities(page pagination.PageRequest) (*pagination.PageResponse[models.Security], error)
	UpdatePrices(updates []PriceUpdate) (int, error)
	GetPriceHistory(securityID string, from, to time.Time, page pagination.PageRequest) (*pagination.PageResponse[models.SecurityPrice], error)
}

// OrderRequest is an inbound buy/sell request. LimitPrice is in major units
// and only meaningful for limit orders.
type OrderRequest struct {
	SecurityID string
	Quantity   int64
	Action     models.OrderAction
	Type       models.OrderType
	LimitPrice *decimal.Decimal
	EndDate    *time.Time
}

// Settlement is the outcome of a placed order. All amounts are in cents.
// For a deferred sell-limit order Status is pending, ExecutedPrice is the
// limit price and ExecutedAt is nil.
type Settlement struct {
	OrderID          string
	TransactionID    string
	Status           models.OrderStatus
	Action           models.OrderAction
	Type             models.OrderType
	Quantity         int64
	ExecutedPrice    int64
	Subtotal         int64
	Fee              int64
	TotalCost        int64
	Proceeds         int64
	RealizedGainLoss int64
	CashBalance      int64
	ExecutedAt       *time.Time
}

// OrderFilter holds optional filter parameters for listing orders.
type OrderFilter struct {
	Status     *models.OrderStatus
	Action     *models.OrderAction
	SecurityID *string
}

// OrderServicer defines the contract for order execution and order queries.
type OrderServicer interface {
	PlaceOrder(ctx context.Context, userID string, req OrderRequest) (*Settlement, error)
	GetOrder(userID, orderID string) (*models.Order, error)
	ListOrders(userID string, page pagination.PageRequest, filter OrderFilter) (*pagination.PageResponse[models.Order], error)
	CancelOrder(ctx context.Context, userID, orderID string) (*models.Order, error)
}

// HoldingView is a holding enriched with its live valuation.
type HoldingView struct {
	models.Holding
	CurrentPrice       int64 `json:"current_price"`
	MarketValue        int64 `json:"market_value"`
	UnrealizedGainLoss int64 `json:"unrealized_gain_loss"`
}

// PortfolioView is a point-in-time valuation of a portfolio.
type PortfolioView struct {
	ID            string        `json:"id"`
	UserID        string        `json:"user_id"`
	Cash          int64         `json:"cash"`
	HoldingsValue int64         `json:"holdings_value"`
	TotalValue    int64         `json:"total_value"`
	TotalReturn   int64         `json:"total_return"`
	Holdings      []HoldingView `json:"holdings"`
}

// CashMovement is the outcome of a deposit or withdrawal.
type CashMovement struct {
	TransactionID string
	Type          models.TransactionType
	Amount        int64
	CashBalance   int64
}

// TransactionFilter holds optional filter parameters for listing transactions.
type TransactionFilter struct {
	Type *models.TransactionType
}

// PortfolioServicer defines the contract for portfolio reads and cash flows.
type PortfolioServicer interface {
	GetPortfolio(userID string) (*PortfolioView, error)
	Deposit(ctx context.Context, userID string, amount decimal.Decimal) (*CashMovement, error)
	Withdraw(ctx context.Context, userID string, amount decimal.Decimal) (*CashMovement, error)
	ListTransactions(userID string, page pagination.PageRequest, filter TransactionFilter) (*pagination.PageResponse[models.Transaction], error)
}

// AuditServicer defines the contract for audit logging.
type AuditServicer interface {
	Log(userID, action, resourceType, resourceID, ipAddress string, changes map[string]interface{})
}
