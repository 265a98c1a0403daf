package models

import (
	"time"

	"escrow-market/internal/market"
)

// MarketConfigRecord is the global fee configuration
type MarketConfigRecord struct {
	Address      string    `gorm:"primaryKey;size:44" json:"address"`
	SuperAdmin   string    `gorm:"not null;size:44" json:"super_admin"`
	FeeRateSol   uint64    `gorm:"not null" json:"fee_rate_sol"`   // bps
	FeeRateToken uint64    `gorm:"not null" json:"fee_rate_token"` // bps
	Version      uint64    `gorm:"not null;default:0" json:"version"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	// Relationships
	Treasuries []TreasuryRecord `gorm:"foreignKey:ConfigAddress;references:Address;constraint:OnDelete:CASCADE" json:"treasuries"`
}

// TreasuryRecord is one fee beneficiary. Position preserves the stored order.
type TreasuryRecord struct {
	ID            uint   `gorm:"primaryKey" json:"-"`
	ConfigAddress string `gorm:"not null;size:44;uniqueIndex:idx_treasury_position" json:"-"`
	Position      int    `gorm:"not null;uniqueIndex:idx_treasury_position" json:"position"`
	Address       string `gorm:"not null;size:44" json:"address"`
	Rate          uint64 `gorm:"not null" json:"rate"` // bps of the fee
}

// NewMarketConfigRecord converts the domain config.
func NewMarketConfigRecord(c *market.MarketConfig) *MarketConfigRecord {
	r := &MarketConfigRecord{
		Address:      KeyString(c.Address),
		SuperAdmin:   KeyString(c.SuperAdmin),
		FeeRateSol:   c.FeeRateSol,
		FeeRateToken: c.FeeRateToken,
		Version:      c.Version,
	}
	for i, t := range c.Treasuries {
		r.Treasuries = append(r.Treasuries, TreasuryRecord{
			ConfigAddress: r.Address,
			Position:      i,
			Address:       KeyString(t.Address),
			Rate:          t.Rate,
		})
	}
	return r
}

// ToDomain converts back. Treasuries must already be ordered by Position.
func (r *MarketConfigRecord) ToDomain() (*market.MarketConfig, error) {
	var kr keyReader
	c := &market.MarketConfig{
		Address:      kr.key(r.Address),
		SuperAdmin:   kr.key(r.SuperAdmin),
		FeeRateSol:   r.FeeRateSol,
		FeeRateToken: r.FeeRateToken,
		Version:      r.Version,
	}
	for _, t := range r.Treasuries {
		c.Treasuries = append(c.Treasuries, market.Treasury{Address: kr.key(t.Address), Rate: t.Rate})
	}
	return c, kr.err
}

// TableName methods
func (MarketConfigRecord) TableName() string { return "market_configs" }
func (TreasuryRecord) TableName() string     { return "treasuries" }
