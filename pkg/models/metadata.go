package models

import "time"

// AssetCreator is one entry of an asset's creator list. The first verified
// creator by Position identifies the asset's collection.
type AssetCreator struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	Asset     string    `gorm:"not null;size:44;uniqueIndex:idx_asset_creator_position" json:"asset"`
	Position  int       `gorm:"not null;uniqueIndex:idx_asset_creator_position" json:"position"`
	Creator   string    `gorm:"not null;size:44" json:"creator"`
	Verified  bool      `gorm:"not null;default:false" json:"verified"`
	CreatedAt time.Time `json:"created_at"`
}

func (AssetCreator) TableName() string { return "asset_creators" }
