package services

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "tradedesk/internal/errors"
	"tradedesk/internal/models"
	"tradedesk/internal/money"
	"tradedesk/internal/pagination"
)

// securityService handles security-related business logic.
type securityService struct {
	db *gorm.DB
}

// NewSecurityService creates a new SecurityServicer.
func NewSecurityService(db *gorm.DB) SecurityServicer {
	return &securityService{db: db}
}

// CreateSecurity lists a new security and records its opening price.
func (s *securityService) CreateSecurity(input SecurityInput) (*models.Security, error) {
	ticker := strings.ToUpper(strings.TrimSpace(input.Ticker))
	if ticker == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Ticker is required")
	}
	if strings.TrimSpace(input.Name) == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Name is required")
	}
	kind := input.Kind
	if kind == "" {
		kind = models.SecurityKindStock
	}
	if !kind.Valid() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Kind must be stock, bond or crypto")
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = money.DefaultCurrency
	}
	price, err := money.FromMajor(input.Price)
	if err != nil || price <= 0 {
		return nil, apperrors.ErrInvalidPrice
	}

	security := &models.Security{
		Ticker:   ticker,
		Name:     strings.TrimSpace(input.Name),
		Price:    price,
		Exchange: strings.ToUpper(strings.TrimSpace(input.Exchange)),
		Kind:     kind,
		Currency: currency,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(security).Error; err != nil {
			if isUniqueConstraintError(err) {
				return apperrors.ErrDuplicateSecurity
			}
			return classifyDBError(err)
		}
		opening := &models.SecurityPrice{
			SecurityID: security.ID,
			Price:      price,
			RecordedAt: time.Now().UTC(),
		}
		if err := tx.Create(opening).Error; err != nil {
			return classifyDBError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return security, nil
}

// GetSecurityByID returns a security by its ID.
func (s *securityService) GetSecurityByID(id string) (*models.Security, error) {
	return findSecurity(s.db, id)
}

// ListSecurities returns a paginated list of securities ordered by ticker.
func (s *securityService) ListSecurities(page pagination.PageRequest) (*pagination.PageResponse[models.Security], error) {
	result, err := pagination.Find[models.Security](s.db.Model(&models.Security{}), page,
		func(db *gorm.DB) *gorm.DB { return db.Order("ticker ASC") },
	)
	if err != nil {
		return nil, classifyDBError(err)
	}
	return result, nil
}

// UpdatePrices records a batch of market-data refreshes atomically and
// returns how many new history entries were written. An entry already
// recorded for the same security and timestamp is skipped, so retries are
// safe. The current price follows the newest entry only. Any invalid entry
// rejects the whole batch.
func (s *securityService) UpdatePrices(updates []PriceUpdate) (int, error) {
	if len(updates) == 0 {
		return 0, apperrors.WithMessage(apperrors.ErrInvalidInput, "Prices array is empty")
	}

	count := 0
	err := s.db.Transaction(func(tx *gorm.DB) error {
		for _, u := range updates {
			price, err := money.FromMajor(u.Price)
			if err != nil || price <= 0 {
				return apperrors.WithMessage(apperrors.ErrInvalidPrice, "Price for security "+u.SecurityID+" must be greater than zero")
			}
			if _, err := findSecurity(tx, u.SecurityID); err != nil {
				if errors.Is(err, apperrors.ErrSecurityNotFound) {
					return apperrors.WithMessage(apperrors.ErrSecurityNotFound, "Security "+u.SecurityID+" not found")
				}
				return err
			}

			recordedAt := u.RecordedAt
			if recordedAt.IsZero() {
				recordedAt = time.Now()
			}
			recordedAt = recordedAt.UTC()

			// A replayed entry hits the (security_id, recorded_at) unique index
			// and is skipped.
			entry := models.SecurityPrice{SecurityID: u.SecurityID, Price: price, RecordedAt: recordedAt}
			res := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "security_id"}, {Name: "recorded_at"}},
				DoNothing: true,
			}).Create(&entry)
			if res.Error != nil {
				return classifyDBError(res.Error)
			}
			if res.RowsAffected == 0 {
				continue
			}
			count++

			var newer int64
			if err := tx.Model(&models.SecurityPrice{}).
				Where("security_id = ? AND recorded_at > ?", u.SecurityID, recordedAt).
				Count(&newer).Error; err != nil {
				return classifyDBError(err)
			}
			if newer > 0 {
				continue
			}
			if err := tx.Model(&models.Security{}).Where("id = ?", u.SecurityID).
				Update("price", price).Error; err != nil {
				return classifyDBError(err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return count, nil
}

// GetPriceHistory returns the security's price history within [from, to],
// newest first. A zero bound is open.
func (s *securityService) GetPriceHistory(securityID string, from, to time.Time, page pagination.PageRequest) (*pagination.PageResponse[models.SecurityPrice], error) {
	if _, err := findSecurity(s.db, securityID); err != nil {
		return nil, err
	}

	query := s.db.Model(&models.SecurityPrice{}).Where("security_id = ?", securityID)
	if !from.IsZero() {
		query = query.Where("recorded_at >= ?", from.UTC())
	}
	if !to.IsZero() {
		query = query.Where("recorded_at <= ?", to.UTC())
	}
	result, err := pagination.Find[models.SecurityPrice](query, page,
		func(db *gorm.DB) *gorm.DB { return db.Order("recorded_at DESC, id DESC") },
	)
	if err != nil {
		return nil, classifyDBError(err)
	}
	return result, nil
}
