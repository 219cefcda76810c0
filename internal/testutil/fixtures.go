package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"tradedesk/internal/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// counter provides unique values across fixtures within a test run.
var counter atomic.Int64

func nextID() int64 {
	return counter.Add(1)
}

// CreateTestUser creates a user with a hashed password, a unique email and an
// empty portfolio.
func CreateTestUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	email := fmt.Sprintf("user%d@test.com", nextID())
	return CreateTestUserWithEmail(t, db, email)
}

// CreateTestUserWithEmail creates a user with the given email and an empty
// portfolio.
func CreateTestUserWithEmail(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	user := &models.User{
		Email:    email,
		Password: string(hash),
		IsActive: true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}

	portfolio := &models.Portfolio{UserID: user.ID}
	if err := db.Create(portfolio).Error; err != nil {
		t.Fatalf("failed to create test portfolio: %v", err)
	}
	user.Portfolio = portfolio
	return user
}

// CreateTestUserWithCash creates a user whose portfolio holds cash (in cents).
func CreateTestUserWithCash(t *testing.T, db *gorm.DB, cash int64) *models.User {
	t.Helper()

	user := CreateTestUser(t, db)
	if err := db.Model(user.Portfolio).Update("cash", cash).Error; err != nil {
		t.Fatalf("failed to fund test portfolio: %v", err)
	}
	user.Portfolio.Cash = cash
	return user
}

// CreateTestSecurity creates a NYSE stock priced at price cents.
func CreateTestSecurity(t *testing.T, db *gorm.DB, price int64) *models.Security {
	t.Helper()
	return CreateTestSecurityOnExchange(t, db, price, "NYSE")
}

// CreateTestSecurityOnExchange creates a stock on the given exchange.
func CreateTestSecurityOnExchange(t *testing.T, db *gorm.DB, price int64, exchange string) *models.Security {
	t.Helper()

	n := nextID()
	security := &models.Security{
		Ticker:   fmt.Sprintf("TST%d", n),
		Name:     fmt.Sprintf("Test Security %d", n),
		Price:    price,
		Exchange: exchange,
		Kind:     models.SecurityKindStock,
		Currency: "USD",
	}
	if err := db.Create(security).Error; err != nil {
		t.Fatalf("failed to create test security: %v", err)
	}
	return security
}

// CreateTestHolding creates a position of quantity units bought at avgPrice.
func CreateTestHolding(t *testing.T, db *gorm.DB, portfolioID, securityID string, quantity, avgPrice int64) *models.Holding {
	t.Helper()

	holding := &models.Holding{
		PortfolioID:   portfolioID,
		SecurityID:    securityID,
		Quantity:      quantity,
		PurchasePrice: avgPrice,
		AvgPrice:      avgPrice,
	}
	if err := db.Omit("Security").Create(holding).Error; err != nil {
		t.Fatalf("failed to create test holding: %v", err)
	}
	return holding
}

// CreateTestPendingOrder creates a pending sell-limit order at limitPrice.
func CreateTestPendingOrder(t *testing.T, db *gorm.DB, portfolioID, securityID string, quantity, limitPrice int64, endDate *time.Time) *models.Order {
	t.Helper()

	order := &models.Order{
		PortfolioID: portfolioID,
		SecurityID:  securityID,
		Quantity:    quantity,
		Price:       limitPrice,
		Type:        models.OrderTypeLimit,
		Action:      models.OrderActionSell,
		Status:      models.OrderStatusPending,
		EndDate:     endDate,
	}
	if err := db.Omit("Security").Create(order).Error; err != nil {
		t.Fatalf("failed to create test order: %v", err)
	}
	return order
}

// ReloadPortfolio fetches the current state of a portfolio.
func ReloadPortfolio(t *testing.T, db *gorm.DB, portfolioID string) *models.Portfolio {
	t.Helper()

	var portfolio models.Portfolio
	if err := db.First(&portfolio, "id = ?", portfolioID).Error; err != nil {
		t.Fatalf("failed to reload portfolio: %v", err)
	}
	return &portfolio
}

// FindHolding returns the holding for a portfolio/security pair, or nil.
func FindHolding(t *testing.T, db *gorm.DB, portfolioID, securityID string) *models.Holding {
	t.Helper()

	var holdings []models.Holding
	if err := db.Where("portfolio_id = ? AND security_id = ?", portfolioID, securityID).
		Find(&holdings).Error; err != nil {
		t.Fatalf("failed to query holding: %v", err)
	}
	if len(holdings) == 0 {
		return nil
	}
	return &holdings[0]
}

// CountRows returns the number of rows of model matching where.
func CountRows(t *testing.T, db *gorm.DB, model interface{}, where string, args ...interface{}) int64 {
	t.Helper()

	var n int64
	q := db.Model(model)
	if where != "" {
		q = q.Where(where, args...)
	}
	if err := q.Count(&n).Error; err != nil {
		t.Fatalf("failed to count rows: %v", err)
	}
	return n
}
