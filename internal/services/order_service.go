package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	apperrors "tradedesk/internal/errors"
	"tradedesk/internal/fees"
	"tradedesk/internal/models"
	"tradedesk/internal/pagination"
)

// Cancel reasons recorded on canceled orders.
const (
	CancelReasonUser                 = "canceled_by_user"
	CancelReasonExpired              = "expired"
	CancelReasonInsufficientHoldings = "insufficient_holdings"
)

// orderService handles order placement, lookup and cancellation.
type orderService struct {
	db   *gorm.DB
	exec *executor
}

// NewOrderService creates a new OrderServicer. All services that mutate a
// portfolio must share the same locker.
func NewOrderService(db *gorm.DB, locker *PortfolioLocker, schedule *fees.Schedule) OrderServicer {
	return &orderService{db: db, exec: newExecutor(db, locker, schedule)}
}

// PlaceOrder validates, prices and settles (or defers) a buy/sell request.
// Rejections leave cash, holdings, orders and transactions untouched.
func (s *orderService) PlaceOrder(ctx context.Context, userID string, req OrderRequest) (*Settlement, error) {
	return s.exec.place(ctx, userID, req)
}

// GetOrder returns an order owned by the user.
func (s *orderService) GetOrder(userID, orderID string) (*models.Order, error) {
	portfolioID, err := portfolioIDForUser(s.db, userID)
	if err != nil {
		return nil, err
	}

	var order models.Order
	if err := s.db.Preload("Security").
		Where("id = ? AND portfolio_id = ?", orderID, portfolioID).
		First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrOrderNotFound
		}
		return nil, classifyDBError(err)
	}
	return &order, nil
}

// ListOrders returns a paginated list of the user's orders, newest first.
func (s *orderService) ListOrders(userID string, page pagination.PageRequest, filter OrderFilter) (*pagination.PageResponse[models.Order], error) {
	portfolioID, err := portfolioIDForUser(s.db, userID)
	if err != nil {
		return nil, err
	}

	query := s.db.Model(&models.Order{}).Where("portfolio_id = ?", portfolioID)
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Action != nil {
		query = query.Where("action = ?", *filter.Action)
	}
	if filter.SecurityID != nil {
		query = query.Where("security_id = ?", *filter.SecurityID)
	}

	result, err := pagination.Find[models.Order](query, page,
		func(db *gorm.DB) *gorm.DB { return db.Preload("Security").Order("created_at DESC, id DESC") },
	)
	if err != nil {
		return nil, classifyDBError(err)
	}
	return result, nil
}

// CancelOrder cancels one of the user's pending orders.
func (s *orderService) CancelOrder(ctx context.Context, userID, orderID string) (*models.Order, error) {
	var canceled *models.Order
	err := s.exec.locker.WithUserPortfolio(ctx, userID, func(tx *gorm.DB, portfolio *models.Portfolio) error {
		var order models.Order
		if err := tx.Where("id = ? AND portfolio_id = ?", orderID, portfolio.ID).
			First(&order).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrOrderNotFound
			}
			return classifyDBError(err)
		}
		if err := cancelOrder(tx, &order, CancelReasonUser); err != nil {
			return err
		}
		canceled = &order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.exec.log.Infow("order canceled", "user_id", userID, "order_id", orderID)
	return canceled, nil
}

// cancelOrder moves a pending order to canceled inside a portfolio transaction.
func cancelOrder(tx *gorm.DB, order *models.Order, reason string) error {
	if !order.Status.CanTransitionTo(models.OrderStatusCanceled) {
		return apperrors.ErrOrderNotCancelable
	}
	if err := tx.Model(order).Updates(map[string]interface{}{
		"status":        models.OrderStatusCanceled,
		"cancel_reason": reason,
	}).Error; err != nil {
		return classifyDBError(err)
	}
	order.Status = models.OrderStatusCanceled
	order.CancelReason = reason
	return nil
}
