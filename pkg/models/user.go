package models

import (
	"time"

	"gorm.io/gorm"

	"escrow-market/internal/market"
)

// UserLedgerRecord holds a participant's escrow balances and traded volume
type UserLedgerRecord struct {
	Address           string    `gorm:"primaryKey;size:44" json:"address"`
	Owner             string    `gorm:"unique;not null;size:44" json:"owner"`
	EscrowSol         Amount    `gorm:"not null;default:0" json:"escrow_sol"`
	EscrowToken       Amount    `gorm:"not null;default:0" json:"escrow_token"`
	TradedSolVolume   Amount    `gorm:"not null;default:0" json:"traded_sol_volume"`
	TradedTokenVolume Amount    `gorm:"not null;default:0" json:"traded_token_volume"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// BeforeSave rejects negative balances before they reach the database
func (u *UserLedgerRecord) BeforeSave(tx *gorm.DB) error {
	for _, d := range []Amount{u.EscrowSol, u.EscrowToken, u.TradedSolVolume, u.TradedTokenVolume} {
		if d.IsNegative() {
			return market.ErrUnderflow
		}
	}
	return nil
}

func NewUserLedgerRecord(l *market.UserLedger) *UserLedgerRecord {
	return &UserLedgerRecord{
		Address:           KeyString(l.Address),
		Owner:             KeyString(l.Owner),
		EscrowSol:         NewAmount(l.EscrowSol),
		EscrowToken:       NewAmount(l.EscrowToken),
		TradedSolVolume:   NewAmount(l.TradedSolVolume),
		TradedTokenVolume: NewAmount(l.TradedTokenVolume),
	}
}

func (u *UserLedgerRecord) ToDomain() (*market.UserLedger, error) {
	var kr keyReader
	l := &market.UserLedger{
		Address:           kr.key(u.Address),
		Owner:             kr.key(u.Owner),
		EscrowSol:         kr.amount(u.EscrowSol),
		EscrowToken:       kr.amount(u.EscrowToken),
		TradedSolVolume:   kr.amount(u.TradedSolVolume),
		TradedTokenVolume: kr.amount(u.TradedTokenVolume),
	}
	return l, kr.err
}

// TableName methods
func (UserLedgerRecord) TableName() string { return "user_ledgers" }
