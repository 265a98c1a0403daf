package models

import (
	"time"

	"escrow-market/internal/market"
)

// SettlementRecord journals one executed custody batch
type SettlementRecord struct {
	ID         string    `gorm:"primaryKey;size:20" json:"id"` // xid
	Operation  string    `gorm:"not null;size:32;index" json:"operation"`
	ExecutedAt time.Time `gorm:"not null;index" json:"executed_at"`

	// Relationships
	Transfers []SettlementTransferRecord `gorm:"foreignKey:SettlementID;constraint:OnDelete:CASCADE" json:"transfers"`
}

// SettlementTransferRecord is one leg of a settlement
type SettlementTransferRecord struct {
	ID           uint   `gorm:"primaryKey" json:"-"`
	SettlementID string `gorm:"not null;size:20;index" json:"-"`
	Position     int    `gorm:"not null" json:"position"`
	Kind         string `gorm:"not null;size:8" json:"kind"`
	From         string `gorm:"column:from_address;not null;size:44;index" json:"from"`
	To           string `gorm:"column:to_address;not null;size:44;index" json:"to"`
	Asset        string `gorm:"size:44" json:"asset,omitempty"`
	Amount       Amount `gorm:"not null" json:"amount"`
}

func NewSettlementRecord(s market.Settlement, executedAt time.Time) *SettlementRecord {
	r := &SettlementRecord{ID: s.ID, Operation: s.Operation, ExecutedAt: executedAt}
	for i, t := range s.Transfers {
		r.Transfers = append(r.Transfers, SettlementTransferRecord{
			SettlementID: s.ID,
			Position:     i,
			Kind:         string(t.Kind),
			From:         KeyString(t.From),
			To:           KeyString(t.To),
			Asset:        KeyString(t.Asset),
			Amount:       NewAmount(t.Amount),
		})
	}
	return r
}

func (r *SettlementRecord) ToDomain() (market.Settlement, error) {
	var kr keyReader
	s := market.Settlement{ID: r.ID, Operation: r.Operation}
	for _, t := range r.Transfers {
		s.Transfers = append(s.Transfers, market.Transfer{
			Kind:   market.TransferKind(t.Kind),
			From:   kr.key(t.From),
			To:     kr.key(t.To),
			Asset:  kr.key(t.Asset),
			Amount: kr.amount(t.Amount),
		})
	}
	return s, kr.err
}

// TableName methods
func (SettlementRecord) TableName() string         { return "settlements" }
func (SettlementTransferRecord) TableName() string { return "settlement_transfers" }
