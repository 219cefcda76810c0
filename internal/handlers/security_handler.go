package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "tradedesk/internal/errors"
	"tradedesk/internal/models"
	"tradedesk/internal/services"
)

// SecurityHandler handles security lookup and the market-data pipeline.
type SecurityHandler struct {
	securityService services.SecurityServicer
	auditService    services.AuditServicer
}

// NewSecurityHandler creates a new SecurityHandler.
func NewSecurityHandler(securityService services.SecurityServicer, auditService services.AuditServicer) *SecurityHandler {
	return &SecurityHandler{securityService: securityService, auditService: auditService}
}

// CreateSecurityRequest represents the request payload for listing a security.
type CreateSecurityRequest struct {
	Ticker   string              `json:"ticker" binding:"required,ticker"`
	Name     string              `json:"name" binding:"required,min=1,max=200"`
	Kind     models.SecurityKind `json:"kind" binding:"omitempty,security_kind"`
	Currency string              `json:"currency" binding:"omitempty,iso4217"`
	Exchange string              `json:"exchange" binding:"omitempty,max=20"`
	Price    decimal.Decimal     `json:"price" swaggertype:"string" example:"187.44"`
}

// UpdatePricesRequest represents the request payload for a price refresh.
type UpdatePricesRequest struct {
	Prices []PriceEntry `json:"prices" binding:"required,min=1,max=1000,dive"`
}

// PriceEntry represents a single price entry in a refresh batch.
type PriceEntry struct {
	SecurityID string          `json:"security_id" binding:"required,uuid"`
	Price      decimal.Decimal `json:"price" swaggertype:"string" example:"187.44"`
	RecordedAt time.Time       `json:"recorded_at" binding:"required"`
}

// CreateSecurity handles listing a new security.
// @Summary     Create security
// @Description List a new security with its opening price (pipeline endpoint)
// @Tags        pipeline
// @Accept      json
// @Produce     json
// @Security    ApiKeyAuth
// @Param       request body CreateSecurityRequest true "Security details"
// @Success     201 {object} map[string]SecurityResponse "Security created"
// @Failure     401 {object} ErrorResponse "Invalid API key"
// @Failure     409 {object} ErrorResponse "Duplicate security"
// @Failure     422 {object} ErrorResponse "Invalid input or price"
// @Failure     503 {object} ErrorResponse "Pipeline not configured"
// @Router      /pipeline/securities [post]
func (h *SecurityHandler) CreateSecurity(c *gin.Context) {
	var req CreateSecurityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	security, err := h.securityService.CreateSecurity(services.SecurityInput{
		Ticker:   req.Ticker,
		Name:     req.Name,
		Kind:     req.Kind,
		Exchange: req.Exchange,
		Currency: req.Currency,
		Price:    req.Price,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log("", services.AuditActionCreateSecurity, "security", security.ID, c.ClientIP(),
		map[string]interface{}{"ticker": security.Ticker, "kind": string(security.Kind)})

	c.JSON(http.StatusCreated, gin.H{"security": newSecurityResponse(security)})
}

// UpdatePrices handles a batch market-data refresh.
// @Summary     Update prices
// @Description Refresh current prices and append price history. The batch is applied atomically; replayed entries are ignored.
// @Tags        pipeline
// @Accept      json
// @Produce     json
// @Security    ApiKeyAuth
// @Param       request body UpdatePricesRequest true "Price entries"
// @Success     200 {object} map[string]int "Prices recorded count"
// @Failure     401 {object} ErrorResponse "Invalid API key"
// @Failure     404 {object} ErrorResponse "Unknown security"
// @Failure     422 {object} ErrorResponse "Invalid input or price"
// @Failure     503 {object} ErrorResponse "Pipeline not configured"
// @Router      /pipeline/securities/prices [put]
func (h *SecurityHandler) UpdatePrices(c *gin.Context) {
	var req UpdatePricesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	updates := make([]services.PriceUpdate, len(req.Prices))
	for i, p := range req.Prices {
		updates[i] = services.PriceUpdate{
			SecurityID: p.SecurityID,
			Price:      p.Price,
			RecordedAt: p.RecordedAt,
		}
	}

	count, err := h.securityService.UpdatePrices(updates)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"prices_recorded": count})
}

// ListSecurities handles listing all securities.
// @Summary     List securities
// @Description Get a paginated list of securities ordered by ticker
// @Tags        securities
// @Produce     json
// @Security    BearerAuth
// @Param       page      query int false "Page number (default 1)"
// @Param       page_size query int false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[SecurityResponse] "Paginated securities"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /securities [get]
func (h *SecurityHandler) ListSecurities(c *gin.Context) {
	page, err := bindPage(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	result, err := h.securityService.ListSecurities(page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, mapPage(result, newSecurityResponse))
}

// GetSecurity handles retrieving a specific security.
// @Summary     Get security by ID
// @Tags        securities
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Security ID"
// @Success     200 {object} map[string]SecurityResponse "Security details"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Security not found"
// @Failure     422 {object} ErrorResponse "Invalid security ID"
// @Router      /securities/{id} [get]
func (h *SecurityHandler) GetSecurity(c *gin.Context) {
	id, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	security, err := h.securityService.GetSecurityByID(id)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"security": newSecurityResponse(security)})
}

// GetPriceHistory handles retrieving price history for a security.
// @Summary     Get price history
// @Description Get price history for a security, newest first. from and to are optional bounds.
// @Tags        securities
// @Produce     json
// @Security    BearerAuth
// @Param       id        path  string true  "Security ID"
// @Param       from      query string false "Start (RFC3339 or YYYY-MM-DD)"
// @Param       to        query string false "End (RFC3339 or YYYY-MM-DD)"
// @Param       page      query int    false "Page number (default 1)"
// @Param       page_size query int    false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[PricePointResponse] "Paginated prices"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Security not found"
// @Failure     422 {object} ErrorResponse "Invalid input"
// @Router      /securities/{id}/prices [get]
func (h *SecurityHandler) GetPriceHistory(c *gin.Context) {
	id, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}
	from, err := parseOptionalTime(c, "from")
	if err != nil {
		respondWithError(c, err)
		return
	}
	to, err := parseOptionalTime(c, "to")
	if err != nil {
		respondWithError(c, err)
		return
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "to must not be before from"))
		return
	}
	page, err := bindPage(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	result, err := h.securityService.GetPriceHistory(id, from, to, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, mapPage(result, newPricePointResponse))
}
