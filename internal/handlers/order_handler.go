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

// OrderHandler handles order placement and order queries.
type OrderHandler struct {
	orderService services.OrderServicer
	auditService services.AuditServicer
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(orderService services.OrderServicer, auditService services.AuditServicer) *OrderHandler {
	return &OrderHandler{orderService: orderService, auditService: auditService}
}

// PlaceOrderRequest is the payload for placing an order. limit_price is in
// major units and accepts a JSON number or string.
type PlaceOrderRequest struct {
	SecurityID string             `json:"security_id" binding:"required,uuid"`
	Quantity   int64              `json:"quantity" binding:"required,gt=0"`
	Action     models.OrderAction `json:"action" binding:"required,order_action"`
	Type       models.OrderType   `json:"type" binding:"required,order_type"`
	LimitPrice *decimal.Decimal   `json:"limit_price,omitempty" swaggertype:"string" example:"150.25"`
	EndDate    *time.Time         `json:"end_date,omitempty"`
}

// OrderListQuery holds the optional filters for listing orders.
type OrderListQuery struct {
	Status     string `form:"status" binding:"omitempty,order_status"`
	Action     string `form:"action" binding:"omitempty,order_action"`
	SecurityID string `form:"security_id" binding:"omitempty,uuid"`
}

// PlaceOrder executes a buy or sell order against the caller's portfolio.
// @Summary     Place order
// @Description Place a market or limit order. Market and buy-limit orders settle immediately; a sell-limit above the market price stays pending until the price reaches it.
// @Tags        orders
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body PlaceOrderRequest true "Order details"
// @Success     201 {object} SettlementResponse "Order settled"
// @Success     202 {object} SettlementResponse "Order accepted as pending"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Security or portfolio not found"
// @Failure     409 {object} ErrorResponse "Portfolio busy"
// @Failure     422 {object} ErrorResponse "Invalid order, price, funds or holdings"
// @Failure     500 {object} ErrorResponse "Persistence error"
// @Router      /orders [post]
func (h *OrderHandler) PlaceOrder(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	settlement, err := h.orderService.PlaceOrder(c.Request.Context(), userID, services.OrderRequest{
		SecurityID: req.SecurityID,
		Quantity:   req.Quantity,
		Action:     req.Action,
		Type:       req.Type,
		LimitPrice: req.LimitPrice,
		EndDate:    req.EndDate,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, services.AuditActionPlaceOrder, "order", settlement.OrderID, c.ClientIP(),
		map[string]interface{}{
			"security_id": req.SecurityID,
			"action":      string(req.Action),
			"type":        string(req.Type),
			"quantity":    req.Quantity,
			"status":      string(settlement.Status),
		})

	status := http.StatusCreated
	if settlement.Status == models.OrderStatusPending {
		status = http.StatusAccepted
	}
	c.JSON(status, newSettlementResponse(settlement))
}

// ListOrders lists the caller's orders, newest first.
// @Summary     List orders
// @Description Get a paginated list of the caller's orders
// @Tags        orders
// @Produce     json
// @Security    BearerAuth
// @Param       status      query string false "Filter by status (pending, completed, canceled)"
// @Param       action      query string false "Filter by action (buy, sell)"
// @Param       security_id query string false "Filter by security"
// @Param       page        query int    false "Page number (default 1)"
// @Param       page_size   query int    false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[OrderResponse] "Paginated orders"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     422 {object} ErrorResponse "Invalid filter"
// @Router      /orders [get]
func (h *OrderHandler) ListOrders(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var q OrderListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}
	page, err := bindPage(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var filter services.OrderFilter
	if q.Status != "" {
		status := models.OrderStatus(q.Status)
		filter.Status = &status
	}
	if q.Action != "" {
		action := models.OrderAction(q.Action)
		filter.Action = &action
	}
	if q.SecurityID != "" {
		filter.SecurityID = &q.SecurityID
	}

	result, err := h.orderService.ListOrders(userID, page, filter)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, mapPage(result, newOrderResponse))
}

// GetOrder returns one of the caller's orders.
// @Summary     Get order by ID
// @Description Get a specific order belonging to the caller
// @Tags        orders
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Order ID"
// @Success     200 {object} map[string]OrderResponse "Order"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Order not found"
// @Failure     422 {object} ErrorResponse "Invalid order ID"
// @Router      /orders/{id} [get]
func (h *OrderHandler) GetOrder(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	orderID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	order, err := h.orderService.GetOrder(userID, orderID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": newOrderResponse(order)})
}

// CancelOrder cancels a pending order.
// @Summary     Cancel order
// @Description Cancel one of the caller's pending orders
// @Tags        orders
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Order ID"
// @Success     200 {object} map[string]OrderResponse "Canceled order"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Order not found"
// @Failure     409 {object} ErrorResponse "Order not cancelable or portfolio busy"
// @Router      /orders/{id}/cancel [post]
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	orderID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	order, err := h.orderService.CancelOrder(c.Request.Context(), userID, orderID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, services.AuditActionCancelOrder, "order", order.ID, c.ClientIP(), nil)

	c.JSON(http.StatusOK, gin.H{"order": newOrderResponse(order)})
}
