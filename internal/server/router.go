// Package server assembles the HTTP surface: middleware, routes and docs.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "tradedesk/internal/docs" // registers the swagger spec
	"tradedesk/internal/handlers"
	"tradedesk/internal/middleware"
	"tradedesk/internal/services"
)

// Deps are the services the router dispatches to.
type Deps struct {
	Users      services.UserServicer
	Securities services.SecurityServicer
	Orders     services.OrderServicer
	Portfolios services.PortfolioServicer
	Audit      services.AuditServicer

	// PipelineAPIKey guards the market-data endpoints. Empty disables them.
	PipelineAPIKey string
}

// NewRouter builds the Gin engine with every route mounted.
func NewRouter(deps Deps) *gin.Engine {
	authHandler := handlers.NewAuthHandler(deps.Users, deps.Audit)
	orderHandler := handlers.NewOrderHandler(deps.Orders, deps.Audit)
	portfolioHandler := handlers.NewPortfolioHandler(deps.Portfolios, deps.Audit)
	securityHandler := handlers.NewSecurityHandler(deps.Securities, deps.Audit)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogging())
	router.Use(middleware.ErrorHandler())
	router.Use(cors())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")

	// Public routes
	auth := v1.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)

	// Market data pipeline
	pipeline := v1.Group("/pipeline")
	pipeline.Use(middleware.PipelineAuthMiddleware(deps.PipelineAPIKey))
	pipeline.POST("/securities", securityHandler.CreateSecurity)
	pipeline.PUT("/securities/prices", securityHandler.UpdatePrices)

	// Protected routes
	protected := v1.Group("")
	protected.Use(middleware.AuthMiddleware())

	protected.GET("/profile", authHandler.GetProfile)

	orders := protected.Group("/orders")
	orders.POST("", orderHandler.PlaceOrder)
	orders.GET("", orderHandler.ListOrders)
	orders.GET("/:id", orderHandler.GetOrder)
	orders.POST("/:id/cancel", orderHandler.CancelOrder)

	portfolio := protected.Group("/portfolio")
	portfolio.GET("", portfolioHandler.GetPortfolio)
	portfolio.POST("/deposit", portfolioHandler.Deposit)
	portfolio.POST("/withdraw", portfolioHandler.Withdraw)
	portfolio.GET("/transactions", portfolioHandler.ListTransactions)

	securities := protected.Group("/securities")
	securities.GET("", securityHandler.ListSecurities)
	securities.GET("/:id", securityHandler.GetSecurity)
	securities.GET("/:id/prices", securityHandler.GetPriceHistory)

	return router
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key, X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
