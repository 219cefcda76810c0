package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	apperrors "tradedesk/internal/errors"
	"tradedesk/internal/fees"
	"tradedesk/internal/logger"
	"tradedesk/internal/models"
)

// SweepError records a per-order or per-portfolio failure during a sweep.
type SweepError struct {
	Stage string
	ID    string
	Err   error
}

func (e SweepError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.ID, e.Err)
}

// SweepResult contains the outcome of one sweep cycle.
type SweepResult struct {
	Expired  int
	Filled   int
	Canceled int
	Revalued int
	Errors   []SweepError
	Duration time.Duration
}

// OrderSweeper maintains pending orders and stored valuations: it expires
// orders past their end date, fills sell-limit orders whose limit the market
// has reached, and refreshes portfolio totals.
type OrderSweeper struct {
	db   *gorm.DB
	exec *executor
	log  *zap.SugaredLogger
}

// NewOrderSweeper creates a sweeper sharing locker with the request path.
func NewOrderSweeper(db *gorm.DB, locker *PortfolioLocker, schedule *fees.Schedule) *OrderSweeper {
	return &OrderSweeper{
		db:   db,
		exec: newExecutor(db, locker, schedule),
		log:  logger.Named("sweeper"),
	}
}

// Run calls RunOnce every interval until ctx is done.
func (s *OrderSweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := s.RunOnce(ctx)
			if err != nil {
				s.log.Errorw("sweep failed", "error", err)
				continue
			}
			s.log.Infow("sweep completed",
				"expired", result.Expired,
				"filled", result.Filled,
				"canceled", result.Canceled,
				"revalued", result.Revalued,
				"errors", len(result.Errors),
				"duration", result.Duration.String(),
			)
		}
	}
}

// RunOnce executes a single sweep cycle. Failures on individual orders or
// portfolios are collected in the result; only a failed scan is returned as
// an error.
func (s *OrderSweeper) RunOnce(ctx context.Context) (*SweepResult, error) {
	start := time.Now()
	result := &SweepResult{}

	if err := s.expire(ctx, result); err != nil {
		return nil, err
	}
	if err := s.fill(ctx, result); err != nil {
		return nil, err
	}
	if err := s.revalue(ctx, result); err != nil {
		return nil, err
	}

	for _, e := range result.Errors {
		s.log.Warnw("sweep item failed", "stage", e.Stage, "id", e.ID, "error", e.Err)
	}

	result.Duration = time.Since(start)
	return result, nil
}

type pendingRef struct {
	ID          string
	PortfolioID string
}

func (s *OrderSweeper) expire(ctx context.Context, result *SweepResult) error {
	var refs []pendingRef
	if err := s.db.WithContext(ctx).Model(&models.Order{}).
		Select("id, portfolio_id").
		Where("status = ? AND end_date IS NOT NULL AND end_date <= ?", models.OrderStatusPending, s.exec.now()).
		Scan(&refs).Error; err != nil {
		return classifyDBError(err)
	}

	for _, ref := range refs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		expired := false
		err := s.exec.locker.WithPortfolio(ctx, ref.PortfolioID, func(tx *gorm.DB, _ *models.Portfolio) error {
			order, err := loadPendingOrder(tx, ref.ID)
			if err != nil || order == nil {
				return err
			}
			if err := cancelOrder(tx, order, CancelReasonExpired); err != nil {
				return err
			}
			expired = true
			return nil
		})
		if err != nil {
			result.Errors = append(result.Errors, SweepError{Stage: "expire", ID: ref.ID, Err: err})
			continue
		}
		if expired {
			result.Expired++
		}
	}
	return nil
}

func (s *OrderSweeper) fill(ctx context.Context, result *SweepResult) error {
	var refs []pendingRef
	if err := s.db.WithContext(ctx).Table("orders").
		Select("orders.id, orders.portfolio_id").
		Joins("JOIN securities ON securities.id = orders.security_id").
		Where("orders.status = ? AND orders.type = ? AND orders.action = ?",
			models.OrderStatusPending, models.OrderTypeLimit, models.OrderActionSell).
		Where("securities.price >= orders.price").
		Order("orders.created_at ASC").
		Scan(&refs).Error; err != nil {
		return classifyDBError(err)
	}

	for _, ref := range refs {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var outcome string
		err := s.exec.locker.WithPortfolio(ctx, ref.PortfolioID, func(tx *gorm.DB, portfolio *models.Portfolio) error {
			outcome = ""
			order, err := loadPendingOrder(tx, ref.ID)
			if err != nil || order == nil {
				return err
			}
			security, err := findSecurity(tx, order.SecurityID)
			if err != nil {
				return err
			}
			if security.Price < order.Price {
				return nil
			}

			held, err := newHoldingLedger(tx).Available(portfolio.ID, order.SecurityID)
			if err != nil {
				return err
			}
			if held < order.Quantity {
				outcome = "canceled"
				return cancelOrder(tx, order, CancelReasonInsufficientHoldings)
			}

			if _, err := s.exec.settle(tx, portfolio, security, order, s.exec.now()); err != nil {
				return err
			}
			outcome = "filled"
			return nil
		})
		if err != nil {
			result.Errors = append(result.Errors, SweepError{Stage: "fill", ID: ref.ID, Err: err})
			continue
		}
		switch outcome {
		case "filled":
			result.Filled++
		case "canceled":
			result.Canceled++
		}
	}
	return nil
}

func (s *OrderSweeper) revalue(ctx context.Context, result *SweepResult) error {
	var portfolioIDs []string
	if err := s.db.WithContext(ctx).Model(&models.Portfolio{}).
		Order("id").
		Pluck("id", &portfolioIDs).Error; err != nil {
		return classifyDBError(err)
	}

	for _, id := range portfolioIDs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := s.exec.locker.WithPortfolio(ctx, id, func(tx *gorm.DB, portfolio *models.Portfolio) error {
			return s.revaluePortfolio(tx, portfolio)
		})
		if err != nil {
			result.Errors = append(result.Errors, SweepError{Stage: "revalue", ID: id, Err: err})
			continue
		}
		result.Revalued++
	}
	return nil
}

func (s *OrderSweeper) revaluePortfolio(tx *gorm.DB, portfolio *models.Portfolio) error {
	var holdings []models.Holding
	if err := tx.Preload("Security").
		Where("portfolio_id = ?", portfolio.ID).
		Find(&holdings).Error; err != nil {
		return classifyDBError(err)
	}

	view, err := valuePortfolio(portfolio, holdings)
	if err != nil {
		return err
	}

	for _, h := range view.Holdings {
		if h.GainLoss == h.UnrealizedGainLoss {
			continue
		}
		if err := tx.Model(&models.Holding{}).
			Where("id = ?", h.ID).
			Update("gain_loss", h.UnrealizedGainLoss).Error; err != nil {
			return classifyDBError(err)
		}
	}

	valuedAt := s.exec.now()
	if err := tx.Model(portfolio).Updates(map[string]interface{}{
		"total_value":  view.TotalValue,
		"total_return": view.TotalReturn,
		"valued_at":    valuedAt,
	}).Error; err != nil {
		return classifyDBError(err)
	}
	return nil
}

// loadPendingOrder returns the order if it is still pending, nil otherwise.
func loadPendingOrder(tx *gorm.DB, id string) (*models.Order, error) {
	var order models.Order
	if err := tx.Where("id = ?", id).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrOrderNotFound
		}
		return nil, classifyDBError(err)
	}
	if order.Status != models.OrderStatusPending {
		return nil, nil
	}
	return &order, nil
}
