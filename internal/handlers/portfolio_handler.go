package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "tradedesk/internal/errors"
	"tradedesk/internal/models"
	"tradedesk/internal/services"
)

// PortfolioHandler handles portfolio valuation and cash flows.
type PortfolioHandler struct {
	portfolioService services.PortfolioServicer
	auditService     services.AuditServicer
}

// NewPortfolioHandler creates a new PortfolioHandler.
func NewPortfolioHandler(portfolioService services.PortfolioServicer, auditService services.AuditServicer) *PortfolioHandler {
	return &PortfolioHandler{portfolioService: portfolioService, auditService: auditService}
}

// CashRequest is the payload for deposits and withdrawals. amount is in major
// units and accepts a JSON number or string. A missing amount is zero and
// is rejected by the service.
type CashRequest struct {
	Amount decimal.Decimal `json:"amount" swaggertype:"string" example:"1000.00"`
}

// GetPortfolio returns the caller's portfolio valued at current prices.
// @Summary     Get portfolio
// @Description Get cash, holdings and total value of the caller's portfolio at current market prices
// @Tags        portfolio
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} map[string]PortfolioResponse "Portfolio"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Portfolio not found"
// @Router      /portfolio [get]
func (h *PortfolioHandler) GetPortfolio(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	view, err := h.portfolioService.GetPortfolio(userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"portfolio": newPortfolioResponse(view)})
}

// Deposit adds cash to the caller's portfolio.
// @Summary     Deposit cash
// @Tags        portfolio
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body CashRequest true "Amount"
// @Success     201 {object} CashMovementResponse "Deposit recorded"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     409 {object} ErrorResponse "Portfolio busy"
// @Failure     422 {object} ErrorResponse "Invalid amount"
// @Router      /portfolio/deposit [post]
func (h *PortfolioHandler) Deposit(c *gin.Context) {
	h.moveCash(c, services.AuditActionDeposit, h.portfolioService.Deposit)
}

// Withdraw removes cash from the caller's portfolio.
// @Summary     Withdraw cash
// @Tags        portfolio
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body CashRequest true "Amount"
// @Success     201 {object} CashMovementResponse "Withdrawal recorded"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     409 {object} ErrorResponse "Portfolio busy"
// @Failure     422 {object} ErrorResponse "Invalid amount or insufficient funds"
// @Router      /portfolio/withdraw [post]
func (h *PortfolioHandler) Withdraw(c *gin.Context) {
	h.moveCash(c, services.AuditActionWithdraw, h.portfolioService.Withdraw)
}

type cashFunc = func(ctx context.Context, userID string, amount decimal.Decimal) (*services.CashMovement, error)

func (h *PortfolioHandler) moveCash(c *gin.Context, action string, fn cashFunc) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CashRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	movement, err := fn(c.Request.Context(), userID, req.Amount)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, action, "transaction", movement.TransactionID, c.ClientIP(),
		map[string]interface{}{"amount": movement.Amount})

	c.JSON(http.StatusCreated, newCashMovementResponse(movement))
}

// ListTransactions lists the caller's ledger entries, newest first.
// @Summary     List transactions
// @Tags        portfolio
// @Produce     json
// @Security    BearerAuth
// @Param       type      query string false "Filter by type (buy, sell, deposit, withdrawal, dividend)"
// @Param       page      query int    false "Page number (default 1)"
// @Param       page_size query int    false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[TransactionResponse] "Paginated transactions"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     422 {object} ErrorResponse "Invalid filter"
// @Router      /portfolio/transactions [get]
func (h *PortfolioHandler) ListTransactions(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	page, err := bindPage(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var filter services.TransactionFilter
	if raw := c.Query("type"); raw != "" {
		txType := models.TransactionType(raw)
		switch txType {
		case models.TransactionTypeBuy, models.TransactionTypeSell, models.TransactionTypeDeposit,
			models.TransactionTypeWithdrawal, models.TransactionTypeDividend:
		default:
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "Invalid transaction type"))
			return
		}
		filter.Type = &txType
	}

	result, err := h.portfolioService.ListTransactions(userID, page, filter)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, mapPage(result, newTransactionResponse))
}
