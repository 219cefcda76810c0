package models

import "time"

// Portfolio is a user's single cash + holdings account. Cash is in cents and
// never negative; it is mutated only while the portfolio row is locked.
type Portfolio struct {
	Base
	UserID      string     `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	Cash        int64      `gorm:"type:bigint;not null;default:0" json:"cash"`
	TotalValue  int64      `gorm:"type:bigint;not null;default:0" json:"total_value"`
	TotalReturn int64      `gorm:"type:bigint;not null;default:0" json:"total_return"`
	ValuedAt    *time.Time `json:"valued_at,omitempty"`
	Holdings    []Holding  `gorm:"foreignKey:PortfolioID" json:"holdings,omitempty"`
}

// Holding is a position in one security. A holding with zero quantity does
// not exist: it is deleted when a sale exhausts it.
type Holding struct {
	Base
	PortfolioID   string   `gorm:"type:uuid;not null;uniqueIndex:uq_holdings_portfolio_security" json:"portfolio_id"`
	SecurityID    string   `gorm:"type:uuid;not null;uniqueIndex:uq_holdings_portfolio_security" json:"security_id"`
	Quantity      int64    `gorm:"not null" json:"quantity"`
	PurchasePrice int64    `gorm:"type:bigint;not null" json:"purchase_price"`
	AvgPrice      int64    `gorm:"type:bigint;not null" json:"avg_price"`
	GainLoss      int64    `gorm:"type:bigint;not null;default:0" json:"gain_loss"`
	Security      Security `gorm:"foreignKey:SecurityID" json:"security,omitempty"`
}
