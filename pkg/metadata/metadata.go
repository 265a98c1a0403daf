// Package metadata resolves the verified collection of an asset.
package metadata

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"escrow-market/internal/market"
	"escrow-market/pkg/database"
	"escrow-market/pkg/models"
)

// Registry resolves collections from the asset_creators table. The first
// verified creator by position is the collection.
type Registry struct {
	db *gorm.DB
}

func NewRegistry(db *gorm.DB) *Registry {
	return &Registry{db: db}
}

// ResolveCollection implements market.MetadataOracle.
func (r *Registry) ResolveCollection(ctx context.Context, asset solana.PublicKey) (solana.PublicKey, error) {
	var creator models.AssetCreator
	err := database.Conn(ctx, r.db).
		Where("asset = ? AND verified = ?", asset.String(), true).
		Order("position").
		First(&creator).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return solana.PublicKey{}, market.ErrNoVerifiedCreator
	}
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to load creators of %s: %w", asset, err)
	}
	return models.ParseKey(creator.Creator)
}

// Register replaces the creator list of an asset.
func (r *Registry) Register(ctx context.Context, asset solana.PublicKey, creators []models.AssetCreator) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("asset = ?", asset.String()).Delete(&models.AssetCreator{}).Error; err != nil {
			return err
		}
		for i := range creators {
			creators[i].Asset = asset.String()
			creators[i].Position = i
		}
		if len(creators) == 0 {
			return nil
		}
		return tx.Create(&creators).Error
	})
}

// Cache stores resolved collections.
type Cache interface {
	GetCollection(ctx context.Context, asset solana.PublicKey) (solana.PublicKey, error)
	SetCollection(ctx context.Context, asset, collection solana.PublicKey) error
}

// CachedOracle consults the cache before the wrapped oracle and fills it on
// a miss. Cache failures fall through to the oracle.
type CachedOracle struct {
	next  market.MetadataOracle
	cache Cache
	log   *logrus.Entry
}

func NewCachedOracle(next market.MetadataOracle, cache Cache, logger *logrus.Logger) *CachedOracle {
	return &CachedOracle{next: next, cache: cache, log: logger.WithField("component", "metadata")}
}

func (o *CachedOracle) ResolveCollection(ctx context.Context, asset solana.PublicKey) (solana.PublicKey, error) {
	if c, err := o.cache.GetCollection(ctx, asset); err == nil {
		return c, nil
	}

	c, err := o.next.ResolveCollection(ctx, asset)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if err := o.cache.SetCollection(ctx, asset, c); err != nil {
		o.log.WithField("asset", asset).Debugf("Failed to cache collection: %v", err)
	}
	return c, nil
}
