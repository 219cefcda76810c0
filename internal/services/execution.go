package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "tradedesk/internal/errors"
	"tradedesk/internal/fees"
	"tradedesk/internal/logger"
	"tradedesk/internal/models"
	"tradedesk/internal/money"
)

// ExecutionState is a step of the order execution pipeline. It is never
// persisted; persisted orders only carry models.OrderStatus.
type ExecutionState string

const (
	StateRequested ExecutionState = "requested"
	StateValidated ExecutionState = "validated"
	StatePriced    ExecutionState = "priced"
	StateSettled   ExecutionState = "settled"
	StateDeferred  ExecutionState = "deferred"
	StateRejected  ExecutionState = "rejected"
)

var executionTransitions = map[ExecutionState][]ExecutionState{
	StateRequested: {StateValidated, StateRejected},
	StateValidated: {StatePriced, StateRejected},
	StatePriced:    {StateSettled, StateDeferred, StateRejected},
}

// Terminal reports whether no further transition is possible.
func (s ExecutionState) Terminal() bool {
	return len(executionTransitions[s]) == 0
}

// execution tracks one order through the pipeline.
type execution struct {
	state ExecutionState
	log   *zap.SugaredLogger
}

func newExecution(log *zap.SugaredLogger) *execution {
	return &execution{state: StateRequested, log: log}
}

func (e *execution) advance(next ExecutionState) error {
	for _, allowed := range executionTransitions[e.state] {
		if allowed == next {
			e.log.Debugw("order execution transition", "from", e.state, "to", next)
			e.state = next
			return nil
		}
	}
	return apperrors.Wrap(apperrors.ErrPersistence,
		fmt.Errorf("illegal execution transition %s -> %s", e.state, next))
}

// reject moves a non-terminal execution to rejected and returns err.
func (e *execution) reject(err error) error {
	if !e.state.Terminal() {
		e.log.Infow("order rejected", "at", e.state, "error", err)
		e.state = StateRejected
	}
	return err
}

// executor places and settles orders. It is shared by the order service and
// the sweeper so both fill orders through the same path.
type executor struct {
	db     *gorm.DB
	locker *PortfolioLocker
	fees   *fees.Schedule
	log    *zap.SugaredLogger
	now    func() time.Time
}

func newExecutor(db *gorm.DB, locker *PortfolioLocker, schedule *fees.Schedule) *executor {
	if schedule == nil {
		schedule = fees.NewSchedule(fees.Proportional{Rate: fees.DefaultRate})
	}
	return &executor{
		db:     db,
		locker: locker,
		fees:   schedule,
		log:    logger.Named("orders"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// validate checks the request shape before any lock is taken.
func (r OrderRequest) validate(now time.Time) error {
	if r.SecurityID == "" {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "security_id is required")
	}
	if r.Quantity <= 0 {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "quantity must be greater than zero")
	}
	if _, err := models.ParseOrderAction(string(r.Action)); err != nil {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "action must be buy or sell")
	}
	if _, err := models.ParseOrderType(string(r.Type)); err != nil {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "type must be market or limit")
	}
	if r.Type == models.OrderTypeMarket {
		if r.LimitPrice != nil {
			return apperrors.WithMessage(apperrors.ErrInvalidInput, "limit_price is only allowed on limit orders")
		}
		if r.EndDate != nil {
			return apperrors.WithMessage(apperrors.ErrInvalidInput, "end_date is only allowed on limit orders")
		}
	}
	if r.EndDate != nil && !r.EndDate.After(now) {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "end_date must be in the future")
	}
	return nil
}

// resolvePrice returns the execution price in cents: the market price for
// market orders, the limit price for limit orders.
func (r OrderRequest) resolvePrice(security *models.Security) (int64, error) {
	var price int64
	switch r.Type {
	case models.OrderTypeMarket:
		price = security.Price
	case models.OrderTypeLimit:
		if r.LimitPrice == nil {
			return 0, apperrors.WithMessage(apperrors.ErrInvalidPrice, "limit orders require a limit_price")
		}
		cents, err := money.FromMajor(*r.LimitPrice)
		if err != nil {
			return 0, apperrors.WithMessage(apperrors.ErrInvalidPrice, "limit_price is out of range")
		}
		price = cents
	}
	if price <= 0 {
		return 0, apperrors.ErrInvalidPrice
	}
	return price, nil
}

// place runs the full pipeline for one request under the user's portfolio lock.
func (x *executor) place(ctx context.Context, userID string, req OrderRequest) (*Settlement, error) {
	log := x.log.With("user_id", userID, "security_id", req.SecurityID,
		"action", req.Action, "type", req.Type, "quantity", req.Quantity)
	exec := newExecution(log)

	now := x.now()
	if err := req.validate(now); err != nil {
		return nil, exec.reject(err)
	}

	var result *Settlement
	err := x.locker.WithUserPortfolio(ctx, userID, func(tx *gorm.DB, portfolio *models.Portfolio) error {
		security, err := findSecurity(tx, req.SecurityID)
		if err != nil {
			return err
		}
		if err := exec.advance(StateValidated); err != nil {
			return err
		}

		price, err := req.resolvePrice(security)
		if err != nil {
			return err
		}
		if err := exec.advance(StatePriced); err != nil {
			return err
		}

		order := &models.Order{
			PortfolioID: portfolio.ID,
			SecurityID:  security.ID,
			Quantity:    req.Quantity,
			Price:       price,
			Type:        req.Type,
			Action:      req.Action,
			EndDate:     req.EndDate,
		}

		if req.Action == models.OrderActionSell && req.Type == models.OrderTypeLimit && price > security.Price {
			result, err = x.deferOrder(tx, portfolio, order)
			if err != nil {
				return err
			}
			return exec.advance(StateDeferred)
		}

		result, err = x.settle(tx, portfolio, security, order, now)
		if err != nil {
			return err
		}
		return exec.advance(StateSettled)
	})
	if err != nil {
		return nil, exec.reject(err)
	}

	log.Infow("order placed", "order_id", result.OrderID, "status", result.Status,
		"price", result.ExecutedPrice, "fee", result.Fee, "cash", result.CashBalance)
	return result, nil
}

// deferOrder records a sell-limit order that cannot fill at the current
// market price. Holdings are checked but not reserved.
func (x *executor) deferOrder(tx *gorm.DB, portfolio *models.Portfolio, order *models.Order) (*Settlement, error) {
	held, err := newHoldingLedger(tx).Available(portfolio.ID, order.SecurityID)
	if err != nil {
		return nil, err
	}
	if held < order.Quantity {
		return nil, apperrors.ErrInsufficientHoldings
	}

	order.Status = models.OrderStatusPending
	if err := tx.Omit(clause.Associations).Create(order).Error; err != nil {
		return nil, classifyDBError(err)
	}

	return &Settlement{
		OrderID:       order.ID,
		Status:        order.Status,
		Action:        order.Action,
		Type:          order.Type,
		Quantity:      order.Quantity,
		ExecutedPrice: order.Price,
		CashBalance:   portfolio.Cash,
	}, nil
}

// settle fills order at order.Price. A new order (empty ID) is inserted as
// completed; a pending one is moved to completed. Cash, the holding, the
// order and its transaction are all written through tx, so a failure at any
// step leaves nothing behind.
func (x *executor) settle(tx *gorm.DB, portfolio *models.Portfolio, security *models.Security, order *models.Order, now time.Time) (*Settlement, error) {
	subtotal, err := money.Notional(order.Quantity, order.Price)
	if err != nil {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "order value is too large")
	}
	fee := x.fees.For(security.Exchange).Fee(subtotal)
	ledger := newHoldingLedger(tx)

	st := &Settlement{
		Action:        order.Action,
		Type:          order.Type,
		Quantity:      order.Quantity,
		ExecutedPrice: order.Price,
		Subtotal:      subtotal,
		Fee:           fee,
	}
	txn := &models.Transaction{
		PortfolioID: portfolio.ID,
		Price:       order.Price,
		Fee:         fee,
	}

	var cash int64
	switch order.Action {
	case models.OrderActionBuy:
		total, err := money.Add(subtotal, fee)
		if err != nil {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "order value is too large")
		}
		if portfolio.Cash < total {
			return nil, apperrors.ErrInsufficientFunds
		}
		if _, err := ledger.ApplyBuy(portfolio.ID, security.ID, order.Quantity, order.Price); err != nil {
			return nil, err
		}
		cash = portfolio.Cash - total
		txn.Type = models.TransactionTypeBuy
		txn.Amount = total
		st.TotalCost = total

	case models.OrderActionSell:
		avgPrice, err := ledger.ApplySell(portfolio.ID, security.ID, order.Quantity)
		if err != nil {
			return nil, err
		}
		proceeds := subtotal - fee
		costBasis, err := money.Notional(order.Quantity, avgPrice)
		if err != nil {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "order value is too large")
		}
		cash, err = money.Add(portfolio.Cash, proceeds)
		if err != nil {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "cash balance would overflow")
		}
		txn.Type = models.TransactionTypeSell
		txn.Amount = proceeds
		txn.RealizedGainLoss = proceeds - costBasis
		st.Proceeds = proceeds
		st.RealizedGainLoss = txn.RealizedGainLoss

	default:
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "action must be buy or sell")
	}

	if err := tx.Model(portfolio).Update("cash", cash).Error; err != nil {
		return nil, classifyDBError(err)
	}
	portfolio.Cash = cash

	if err := completeOrder(tx, order, fee, now); err != nil {
		return nil, err
	}

	txn.OrderID = &order.ID
	if err := tx.Create(txn).Error; err != nil {
		return nil, classifyDBError(err)
	}

	st.OrderID = order.ID
	st.TransactionID = txn.ID
	st.Status = order.Status
	st.CashBalance = cash
	st.ExecutedAt = order.ExecutedAt
	return st, nil
}

func completeOrder(tx *gorm.DB, order *models.Order, fee int64, now time.Time) error {
	executedAt := now
	if order.ID == "" {
		order.Status = models.OrderStatusCompleted
		order.Fee = fee
		order.ExecutedAt = &executedAt
		if err := tx.Omit(clause.Associations).Create(order).Error; err != nil {
			return classifyDBError(err)
		}
		return nil
	}

	if !order.Status.CanTransitionTo(models.OrderStatusCompleted) {
		return apperrors.Wrap(apperrors.ErrPersistence, fmt.Errorf("order %s cannot complete from %s", order.ID, order.Status))
	}
	res := tx.Model(&models.Order{}).
		Where("id = ? AND status = ?", order.ID, models.OrderStatusPending).
		Updates(map[string]interface{}{
			"status":      models.OrderStatusCompleted,
			"fee":         fee,
			"executed_at": executedAt,
		})
	if res.Error != nil {
		return classifyDBError(res.Error)
	}
	if res.RowsAffected != 1 {
		return apperrors.Wrap(apperrors.ErrPersistence, fmt.Errorf("order %s is no longer pending", order.ID))
	}
	order.Status = models.OrderStatusCompleted
	order.Fee = fee
	order.ExecutedAt = &executedAt
	return nil
}

func findSecurity(db *gorm.DB, id string) (*models.Security, error) {
	var security models.Security
	if err := db.Where("id = ?", id).First(&security).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrSecurityNotFound
		}
		return nil, classifyDBError(err)
	}
	return &security, nil
}
