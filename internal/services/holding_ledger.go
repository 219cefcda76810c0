package services

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "tradedesk/internal/errors"
	"tradedesk/internal/models"
	"tradedesk/internal/money"
)

// holdingLedger reads and mutates positions inside a portfolio transaction.
// It must only be built from the tx handed out by PortfolioLocker.
type holdingLedger struct {
	tx *gorm.DB
}

func newHoldingLedger(tx *gorm.DB) *holdingLedger {
	return &holdingLedger{tx: tx}
}

// Get returns the holding for the pair, or nil if the portfolio holds none.
func (l *holdingLedger) Get(portfolioID, securityID string) (*models.Holding, error) {
	var holding models.Holding
	err := l.tx.Where("portfolio_id = ? AND security_id = ?", portfolioID, securityID).
		Take(&holding).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, classifyDBError(err)
	}
	return &holding, nil
}

// Available returns the quantity held, zero when there is no holding.
func (l *holdingLedger) Available(portfolioID, securityID string) (int64, error) {
	holding, err := l.Get(portfolioID, securityID)
	if err != nil || holding == nil {
		return 0, err
	}
	return holding.Quantity, nil
}

// ApplyBuy adds quantity units bought at unitPrice. The first lot opens the
// position at unitPrice; later lots move the average cost.
func (l *holdingLedger) ApplyBuy(portfolioID, securityID string, quantity, unitPrice int64) (*models.Holding, error) {
	if quantity <= 0 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "quantity must be greater than zero")
	}
	if unitPrice <= 0 {
		return nil, apperrors.ErrInvalidPrice
	}

	holding, err := l.Get(portfolioID, securityID)
	if err != nil {
		return nil, err
	}

	if holding == nil {
		holding = &models.Holding{
			PortfolioID:   portfolioID,
			SecurityID:    securityID,
			Quantity:      quantity,
			PurchasePrice: unitPrice,
			AvgPrice:      unitPrice,
		}
		if err := l.tx.Omit(clause.Associations).Create(holding).Error; err != nil {
			return nil, classifyDBError(err)
		}
		return holding, nil
	}

	newQty, err := money.Add(holding.Quantity, quantity)
	if err != nil {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "position size is too large")
	}
	newAvg := money.WeightedAverage(holding.Quantity, holding.AvgPrice, quantity, unitPrice)

	if err := l.tx.Model(holding).Updates(map[string]interface{}{
		"quantity":  newQty,
		"avg_price": newAvg,
	}).Error; err != nil {
		return nil, classifyDBError(err)
	}
	holding.Quantity = newQty
	holding.AvgPrice = newAvg
	return holding, nil
}

// ApplySell removes quantity units and returns the average cost they carried.
// Selling the whole position deletes the row; average cost is untouched by
// partial sales.
func (l *holdingLedger) ApplySell(portfolioID, securityID string, quantity int64) (int64, error) {
	if quantity <= 0 {
		return 0, apperrors.WithMessage(apperrors.ErrInvalidInput, "quantity must be greater than zero")
	}

	holding, err := l.Get(portfolioID, securityID)
	if err != nil {
		return 0, err
	}
	if holding == nil || holding.Quantity < quantity {
		return 0, apperrors.ErrInsufficientHoldings
	}

	remaining := holding.Quantity - quantity
	if remaining == 0 {
		if err := l.tx.Delete(holding).Error; err != nil {
			return 0, classifyDBError(err)
		}
		return holding.AvgPrice, nil
	}

	if err := l.tx.Model(holding).Update("quantity", remaining).Error; err != nil {
		return 0, classifyDBError(err)
	}
	return holding.AvgPrice, nil
}
