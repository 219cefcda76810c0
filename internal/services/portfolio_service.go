package services

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	apperrors "tradedesk/internal/errors"
	"tradedesk/internal/logger"
	"tradedesk/internal/models"
	"tradedesk/internal/money"
	"tradedesk/internal/pagination"
)

// portfolioService handles portfolio reads and cash movements.
type portfolioService struct {
	db     *gorm.DB
	locker *PortfolioLocker
	log    *zap.SugaredLogger
}

// NewPortfolioService creates a new PortfolioServicer.
func NewPortfolioService(db *gorm.DB, locker *PortfolioLocker) PortfolioServicer {
	return &portfolioService{db: db, locker: locker, log: logger.Named("portfolio")}
}

// GetPortfolio returns the user's portfolio valued at current prices.
func (s *portfolioService) GetPortfolio(userID string) (*PortfolioView, error) {
	var portfolio models.Portfolio
	if err := s.db.Where("user_id = ?", userID).First(&portfolio).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrPortfolioNotFound
		}
		return nil, classifyDBError(err)
	}

	var holdings []models.Holding
	if err := s.db.Preload("Security").
		Where("portfolio_id = ?", portfolio.ID).
		Order("created_at ASC").
		Find(&holdings).Error; err != nil {
		return nil, classifyDBError(err)
	}

	return valuePortfolio(&portfolio, holdings)
}

// Deposit adds cash (major units) to the user's portfolio.
func (s *portfolioService) Deposit(ctx context.Context, userID string, amount decimal.Decimal) (*CashMovement, error) {
	cents, err := positiveCents(amount)
	if err != nil {
		return nil, err
	}

	var movement *CashMovement
	err = s.locker.WithUserPortfolio(ctx, userID, func(tx *gorm.DB, portfolio *models.Portfolio) error {
		cash, err := money.Add(portfolio.Cash, cents)
		if err != nil {
			return apperrors.WithMessage(apperrors.ErrInvalidInput, "cash balance would overflow")
		}
		movement, err = moveCash(tx, portfolio, models.TransactionTypeDeposit, cents, cash)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Infow("cash deposited", "user_id", userID, "amount", cents, "cash", movement.CashBalance)
	return movement, nil
}

// Withdraw removes cash (major units) from the user's portfolio.
func (s *portfolioService) Withdraw(ctx context.Context, userID string, amount decimal.Decimal) (*CashMovement, error) {
	cents, err := positiveCents(amount)
	if err != nil {
		return nil, err
	}

	var movement *CashMovement
	err = s.locker.WithUserPortfolio(ctx, userID, func(tx *gorm.DB, portfolio *models.Portfolio) error {
		if portfolio.Cash < cents {
			return apperrors.ErrInsufficientFunds
		}
		movement, err = moveCash(tx, portfolio, models.TransactionTypeWithdrawal, cents, portfolio.Cash-cents)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Infow("cash withdrawn", "user_id", userID, "amount", cents, "cash", movement.CashBalance)
	return movement, nil
}

// ListTransactions returns a paginated list of the user's ledger entries, newest first.
func (s *portfolioService) ListTransactions(userID string, page pagination.PageRequest, filter TransactionFilter) (*pagination.PageResponse[models.Transaction], error) {
	portfolioID, err := portfolioIDForUser(s.db, userID)
	if err != nil {
		return nil, err
	}

	query := s.db.Model(&models.Transaction{}).Where("portfolio_id = ?", portfolioID)
	if filter.Type != nil {
		query = query.Where("type = ?", *filter.Type)
	}

	result, err := pagination.Find[models.Transaction](query, page,
		func(db *gorm.DB) *gorm.DB { return db.Order("created_at DESC, id DESC") },
	)
	if err != nil {
		return nil, classifyDBError(err)
	}
	return result, nil
}

func moveCash(tx *gorm.DB, portfolio *models.Portfolio, kind models.TransactionType, amount, cash int64) (*CashMovement, error) {
	if err := tx.Model(portfolio).Update("cash", cash).Error; err != nil {
		return nil, classifyDBError(err)
	}
	portfolio.Cash = cash

	txn := &models.Transaction{
		PortfolioID: portfolio.ID,
		Type:        kind,
		Amount:      amount,
	}
	if err := tx.Create(txn).Error; err != nil {
		return nil, classifyDBError(err)
	}

	return &CashMovement{
		TransactionID: txn.ID,
		Type:          kind,
		Amount:        amount,
		CashBalance:   cash,
	}, nil
}

func positiveCents(amount decimal.Decimal) (int64, error) {
	cents, err := money.FromMajor(amount)
	if err != nil {
		return 0, apperrors.WithMessage(apperrors.ErrInvalidInput, "amount is out of range")
	}
	if cents <= 0 {
		return 0, apperrors.WithMessage(apperrors.ErrInvalidInput, "amount must be greater than zero")
	}
	return cents, nil
}
