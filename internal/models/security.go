package models

import "time"

// SecurityKind tags the instrument class of a security.
type SecurityKind string

const (
	SecurityKindStock  SecurityKind = "stock"
	SecurityKindBond   SecurityKind = "bond"
	SecurityKindCrypto SecurityKind = "crypto"
)

// Valid reports whether k is a known kind.
func (k SecurityKind) Valid() bool {
	switch k {
	case SecurityKindStock, SecurityKindBond, SecurityKindCrypto:
		return true
	}
	return false
}

// Security represents a tradable instrument. Price is the last known market
// price in cents and is only written by the price pipeline.
type Security struct {
	Base
	Ticker   string       `gorm:"not null;uniqueIndex" json:"ticker"`
	Name     string       `gorm:"not null" json:"name"`
	Price    int64        `gorm:"type:bigint;not null;default:0" json:"price"`
	Exchange string       `json:"exchange,omitempty"`
	Kind     SecurityKind `gorm:"not null" json:"kind"`
	Currency string       `gorm:"not null;default:'USD'" json:"currency"`
}

// SecurityPrice is an append-only price history entry for a security. There
// is at most one entry per security and timestamp.
type SecurityPrice struct {
	Base
	SecurityID string    `gorm:"type:uuid;not null;uniqueIndex:idx_security_prices_security_recorded,priority:1" json:"security_id"`
	Price      int64     `gorm:"type:bigint;not null" json:"price"`
	RecordedAt time.Time `gorm:"not null;uniqueIndex:idx_security_prices_security_recorded,priority:2" json:"recorded_at"`
}
