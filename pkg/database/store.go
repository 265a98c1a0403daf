package database

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/gagliardetto/solana-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"escrow-market/internal/market"
	"escrow-market/pkg/models"
)

// Store persists market records with gorm. Each unit of work is one database
// transaction; on PostgreSQL every loaded row is locked FOR UPDATE so
// concurrent operations on the same records serialize.
type Store struct {
	db   *gorm.DB
	lock bool
}

// NewStore creates a Store on db.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, lock: db.Dialector.Name() == "postgres"}
}

// WithTx implements market.Store.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx market.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(withTx(ctx, db), &storeTx{db: db, lock: s.lock})
	})
}

type storeTx struct {
	db   *gorm.DB
	lock bool
}

func (t *storeTx) query() *gorm.DB {
	if t.lock {
		return t.db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return t.db
}

func (t *storeTx) first(dst interface{}, addr solana.PublicKey) error {
	err := t.query().Where("address = ?", addr.String()).First(dst).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return market.ErrRecordNotFound
	}
	return err
}

func (t *storeTx) Load(addr solana.PublicKey, dst market.Record) error {
	switch d := dst.(type) {
	case *market.MarketConfig:
		var r models.MarketConfigRecord
		if err := t.first(&r, addr); err != nil {
			return err
		}
		if err := t.db.Where("config_address = ?", r.Address).Order("position").Find(&r.Treasuries).Error; err != nil {
			return fmt.Errorf("failed to load treasuries: %w", err)
		}
		c, err := r.ToDomain()
		if err != nil {
			return err
		}
		*d = *c
	case *market.UserLedger:
		var r models.UserLedgerRecord
		if err := t.first(&r, addr); err != nil {
			return err
		}
		l, err := r.ToDomain()
		if err != nil {
			return err
		}
		*d = *l
	case *market.Listing:
		var r models.ListingRecord
		if err := t.first(&r, addr); err != nil {
			return err
		}
		l, err := r.ToDomain()
		if err != nil {
			return err
		}
		*d = *l
	case *market.Offer:
		var r models.OfferRecord
		if err := t.first(&r, addr); err != nil {
			return err
		}
		o, err := r.ToDomain()
		if err != nil {
			return err
		}
		*d = *o
	case *market.Auction:
		var r models.AuctionRecord
		if err := t.first(&r, addr); err != nil {
			return err
		}
		a, err := r.ToDomain()
		if err != nil {
			return err
		}
		*d = *a
	default:
		return fmt.Errorf("unsupported record type %T", dst)
	}
	return nil
}

func (t *storeTx) Insert(rec market.Record) error {
	row, err := toRow(rec)
	if err != nil {
		return err
	}

	var n int64
	if err := t.db.Model(row).Where("address = ?", rec.RecordAddress().String()).Count(&n).Error; err != nil {
		return fmt.Errorf("failed to check %T: %w", row, err)
	}
	if n > 0 {
		return market.ErrRecordExists
	}

	if err := t.db.Create(row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return market.ErrRecordExists
		}
		return err
	}
	return nil
}

func (t *storeTx) Update(rec market.Record) error {
	row, err := toRow(rec)
	if err != nil {
		return err
	}

	res := t.db.Model(row).Select("*").Omit(clause.Associations, "created_at").Updates(row)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return market.ErrRecordNotFound
	}

	// treasuries are rewritten in order on every config update
	if cfg, ok := row.(*models.MarketConfigRecord); ok {
		if err := t.db.Where("config_address = ?", cfg.Address).Delete(&models.TreasuryRecord{}).Error; err != nil {
			return fmt.Errorf("failed to clear treasuries: %w", err)
		}
		if len(cfg.Treasuries) > 0 {
			if err := t.db.Create(&cfg.Treasuries).Error; err != nil {
				return fmt.Errorf("failed to store treasuries: %w", err)
			}
		}
	}
	return nil
}

func toRow(rec market.Record) (interface{}, error) {
	switch r := rec.(type) {
	case *market.MarketConfig:
		return models.NewMarketConfigRecord(r), nil
	case *market.UserLedger:
		return models.NewUserLedgerRecord(r), nil
	case *market.Listing:
		return models.NewListingRecord(r), nil
	case *market.Offer:
		return models.NewOfferRecord(r), nil
	case *market.Auction:
		return models.NewAuctionRecord(r), nil
	default:
		return nil, fmt.Errorf("unsupported record type %T", rec)
	}
}

// ActiveOffers returns the open offers on an asset, highest price first. Prices
// are sorted here because SQLite compares the TEXT amount column as strings.
func (s *Store) ActiveOffers(ctx context.Context, asset solana.PublicKey) ([]*market.Offer, error) {
	var rows []models.OfferRecord
	err := s.db.WithContext(ctx).Where("asset = ? AND active = ?", asset.String(), true).
		Order("address").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch offers: %w", err)
	}

	out := make([]*market.Offer, 0, len(rows))
	for i := range rows {
		o, err := rows[i].ToDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Price > out[j].Price })
	return out, nil
}

// ActiveAuctions returns every auction still taking bids or awaiting a claim,
// soonest end first.
func (s *Store) ActiveAuctions(ctx context.Context) ([]*market.Auction, error) {
	var rows []models.AuctionRecord
	err := s.db.WithContext(ctx).Where("status = ?", market.AuctionActive.String()).
		Order("end_time").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch auctions: %w", err)
	}

	out := make([]*market.Auction, 0, len(rows))
	for i := range rows {
		a, err := rows[i].ToDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
