package custody

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"gorm.io/gorm"

	"escrow-market/internal/market"
	"escrow-market/pkg/database"
	"escrow-market/pkg/models"
)

// Journal records every settlement before handing it to the wrapped custody.
// The record joins the caller's store transaction, so a settlement that is
// rejected downstream leaves no journal row behind. Execution times strictly
// increase in the order settlements reach custody, which is the order Replay
// applies them in.
type Journal struct {
	next market.Custody
	db   *gorm.DB
	now  func() time.Time

	mu   sync.Mutex
	last time.Time
}

// NewJournal wraps next
func NewJournal(next market.Custody, db *gorm.DB) *Journal {
	return &Journal{next: next, db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Execute implements market.Custody.
func (j *Journal) Execute(ctx context.Context, s market.Settlement) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	// PostgreSQL keeps microseconds
	at := j.now().Truncate(time.Microsecond)
	if !at.After(j.last) {
		at = j.last.Add(time.Microsecond)
	}

	rec := models.NewSettlementRecord(s, at)
	if err := database.Conn(ctx, j.db).Create(rec).Error; err != nil {
		return fmt.Errorf("failed to journal settlement %s: %w", s.ID, err)
	}
	if err := j.next.Execute(ctx, s); err != nil {
		return err
	}
	j.last = at
	return nil
}

// Get returns one journaled settlement.
func (j *Journal) Get(ctx context.Context, id string) (market.Settlement, error) {
	var rec models.SettlementRecord
	err := j.db.WithContext(ctx).
		Preload("Transfers", byPosition).
		Where("id = ?", id).
		First(&rec).Error
	if err != nil {
		return market.Settlement{}, err
	}
	return rec.ToDomain()
}

// History returns the most recent settlements that moved value to or from
// party, newest first.
func (j *Journal) History(ctx context.Context, party solana.PublicKey, limit int) ([]market.Settlement, error) {
	db := j.db.WithContext(ctx)
	key := party.String()

	var ids []string
	err := db.Model(&models.SettlementTransferRecord{}).
		Where("from_address = ? OR to_address = ?", key, key).
		Distinct("settlement_id").
		Pluck("settlement_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find settlements: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	var recs []models.SettlementRecord
	err = db.Preload("Transfers", byPosition).
		Where("id IN ?", ids).
		Order("executed_at DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load settlements: %w", err)
	}

	out := make([]market.Settlement, 0, len(recs))
	for i := range recs {
		s, err := recs[i].ToDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Replay executes every journaled settlement on l in the order custody first
// executed them. The server runs it once at startup, after the seed, so the
// in-process ledger holds the balances and assets the stored records expect.
func Replay(ctx context.Context, db *gorm.DB, l *Ledger) (int, error) {
	const batch = 500
	replayed := 0
	for offset := 0; ; offset += batch {
		var recs []models.SettlementRecord
		err := db.WithContext(ctx).
			Preload("Transfers", byPosition).
			Order("executed_at").
			Order("id").
			Offset(offset).
			Limit(batch).
			Find(&recs).Error
		if err != nil {
			return replayed, fmt.Errorf("failed to load settlements: %w", err)
		}

		for i := range recs {
			s, err := recs[i].ToDomain()
			if err != nil {
				return replayed, fmt.Errorf("settlement %s: %w", recs[i].ID, err)
			}
			if err := l.Execute(ctx, s); err != nil {
				return replayed, fmt.Errorf("failed to replay: %w", err)
			}
			replayed++
		}
		if len(recs) < batch {
			return replayed, nil
		}
	}
}

func byPosition(db *gorm.DB) *gorm.DB {
	return db.Order("position")
}
