package models

// TransactionType represents the cash movement recorded by a transaction.
type TransactionType string

const (
	TransactionTypeBuy        TransactionType = "buy"
	TransactionTypeSell       TransactionType = "sell"
	TransactionTypeDeposit    TransactionType = "deposit"
	TransactionTypeWithdrawal TransactionType = "withdrawal"
	TransactionTypeDividend   TransactionType = "dividend"
)

// Transaction is an append-only ledger entry. Amount is always the
// cash-equivalent value in cents: total cost for buys, net proceeds for
// sells, the moved amount for deposits and withdrawals.
type Transaction struct {
	Base
	PortfolioID      string          `gorm:"type:uuid;not null;index" json:"portfolio_id"`
	OrderID          *string         `gorm:"type:uuid;uniqueIndex" json:"order_id,omitempty"`
	Type             TransactionType `gorm:"not null" json:"type"`
	Amount           int64           `gorm:"type:bigint;not null" json:"amount"`
	Price            int64           `gorm:"type:bigint;not null;default:0" json:"price"`
	Fee              int64           `gorm:"type:bigint;not null;default:0" json:"fee"`
	RealizedGainLoss int64           `gorm:"type:bigint;not null;default:0" json:"realized_gain_loss"`
	ExchangeRate     *float64        `json:"exchange_rate,omitempty"`
}
