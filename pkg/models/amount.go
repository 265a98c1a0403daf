package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Amount is a uint64 minor-unit column. PostgreSQL keeps it in numeric(20,0).
// SQLite keeps the decimal string in a TEXT column, since NUMERIC affinity
// turns integers at or above 2^63 into lossy REALs.
type Amount struct {
	decimal.Decimal
}

// NewAmount wraps an exact uint64.
func NewAmount(v uint64) Amount {
	return Amount{DecimalFromUint64(v)}
}

// GormDBDataType picks the column type per dialect.
func (Amount) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "numeric(20,0)"
	}
	return "text"
}

// Uint64 converts back to minor units.
func (a Amount) Uint64() (uint64, error) {
	return Uint64FromDecimal(a.Decimal)
}
