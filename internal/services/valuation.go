package services

import (
	apperrors "tradedesk/internal/errors"
	"tradedesk/internal/models"
	"tradedesk/internal/money"
)

// valuePortfolio marks every holding to its security's current price.
// Holdings must have Security loaded.
func valuePortfolio(portfolio *models.Portfolio, holdings []models.Holding) (*PortfolioView, error) {
	view := &PortfolioView{
		ID:       portfolio.ID,
		UserID:   portfolio.UserID,
		Cash:     portfolio.Cash,
		Holdings: make([]HoldingView, 0, len(holdings)),
	}

	var costBasis int64
	for _, h := range holdings {
		marketValue, err := money.Notional(h.Quantity, h.Security.Price)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		cost, err := money.Notional(h.Quantity, h.AvgPrice)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		view.Holdings = append(view.Holdings, HoldingView{
			Holding:            h,
			CurrentPrice:       h.Security.Price,
			MarketValue:        marketValue,
			UnrealizedGainLoss: marketValue - cost,
		})
		view.HoldingsValue += marketValue
		costBasis += cost
	}

	view.TotalValue = view.Cash + view.HoldingsValue
	view.TotalReturn = view.HoldingsValue - costBasis
	return view, nil
}
