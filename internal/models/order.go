package models

import (
	"fmt"
	"time"
)

// OrderAction is the side of an order.
type OrderAction string

const (
	OrderActionBuy  OrderAction = "buy"
	OrderActionSell OrderAction = "sell"
)

// OrderType selects how the execution price is resolved.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// OrderStatus is the lifecycle state of a persisted order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCanceled  OrderStatus = "canceled"
)

// ParseOrderAction converts a raw string into an OrderAction.
func ParseOrderAction(s string) (OrderAction, error) {
	switch a := OrderAction(s); a {
	case OrderActionBuy, OrderActionSell:
		return a, nil
	}
	return "", fmt.Errorf("unknown order action %q", s)
}

// ParseOrderType converts a raw string into an OrderType.
func ParseOrderType(s string) (OrderType, error) {
	switch t := OrderType(s); t {
	case OrderTypeMarket, OrderTypeLimit:
		return t, nil
	}
	return "", fmt.Errorf("unknown order type %q", s)
}

// ParseOrderStatus converts a raw string into an OrderStatus.
func ParseOrderStatus(s string) (OrderStatus, error) {
	switch st := OrderStatus(s); st {
	case OrderStatusPending, OrderStatusCompleted, OrderStatusCanceled:
		return st, nil
	}
	return "", fmt.Errorf("unknown order status %q", s)
}

// CanTransitionTo reports whether an order may move from s to next.
// Completed and canceled orders are terminal.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	return s == OrderStatusPending && (next == OrderStatusCompleted || next == OrderStatusCanceled)
}

// Order is a trade request. Once completed or canceled it is never modified.
// Price holds the execution price for completed orders and the limit price
// for pending ones.
type Order struct {
	Base
	PortfolioID  string      `gorm:"type:uuid;not null;index" json:"portfolio_id"`
	SecurityID   string      `gorm:"type:uuid;not null;index" json:"security_id"`
	Quantity     int64       `gorm:"not null" json:"quantity"`
	Price        int64       `gorm:"type:bigint;not null" json:"price"`
	Fee          int64       `gorm:"type:bigint;not null;default:0" json:"fee"`
	Type         OrderType   `gorm:"not null" json:"type"`
	Action       OrderAction `gorm:"not null" json:"action"`
	Status       OrderStatus `gorm:"not null;index" json:"status"`
	EndDate      *time.Time  `json:"end_date,omitempty"`
	ExecutedAt   *time.Time  `json:"executed_at,omitempty"`
	CancelReason string      `json:"cancel_reason,omitempty"`
	Security     Security    `gorm:"foreignKey:SecurityID" json:"security,omitempty"`
}
