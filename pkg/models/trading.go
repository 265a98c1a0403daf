package models

import (
	"time"

	"escrow-market/internal/market"
)

// ListingRecord represents a fixed-price sale; rows are never deleted
type ListingRecord struct {
	Address    string    `gorm:"primaryKey;size:44" json:"address"`
	Asset      string    `gorm:"unique;not null;size:44" json:"asset"`
	Seller     string    `gorm:"size:44;index" json:"seller"`
	PriceSol   Amount    `gorm:"not null;default:0" json:"price_sol"`
	PriceToken Amount    `gorm:"not null;default:0" json:"price_token"`
	Collection string    `gorm:"size:44;index" json:"collection"`
	ListedAt   int64     `gorm:"not null;default:0" json:"listed_at"` // unix nanoseconds
	Active     bool      `gorm:"not null;default:false;index" json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// OfferRecord represents one bidder's offer on a listed asset
type OfferRecord struct {
	Address         string    `gorm:"primaryKey;size:44" json:"address"`
	Asset           string    `gorm:"not null;size:44;uniqueIndex:idx_offer_asset_bidder" json:"asset"`
	Bidder          string    `gorm:"not null;size:44;uniqueIndex:idx_offer_asset_bidder;index" json:"bidder"`
	Price           Amount    `gorm:"not null;default:0" json:"price"`
	Currency        string    `gorm:"size:8" json:"currency"`
	ListingSnapshot int64     `gorm:"not null;default:0" json:"listing_snapshot"`
	Active          bool      `gorm:"not null;default:false;index" json:"active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// AuctionRecord represents a timed ascending-price sale. Times are stored as
// unix nanoseconds since PostgreSQL timestamps only keep microseconds.
type AuctionRecord struct {
	Address       string    `gorm:"primaryKey;size:44" json:"address"`
	Asset         string    `gorm:"unique;not null;size:44" json:"asset"`
	Creator       string    `gorm:"size:44;index" json:"creator"`
	StartPrice    Amount    `gorm:"not null;default:0" json:"start_price"`
	MinIncrement  Amount    `gorm:"not null;default:0" json:"min_increment"`
	Currency      string    `gorm:"size:8" json:"currency"`
	EndTime       int64     `gorm:"not null;default:0;index" json:"end_time"`
	HighestBid    Amount    `gorm:"not null;default:0" json:"highest_bid"`
	HighestBidder string    `gorm:"size:44" json:"highest_bidder"`
	LastBidAt     int64     `gorm:"not null;default:0" json:"last_bid_at"`
	Status        string    `gorm:"not null;size:16;index" json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func NewListingRecord(l *market.Listing) *ListingRecord {
	return &ListingRecord{
		Address:    KeyString(l.Address),
		Asset:      KeyString(l.Asset),
		Seller:     KeyString(l.Seller),
		PriceSol:   NewAmount(l.PriceSol),
		PriceToken: NewAmount(l.PriceToken),
		Collection: KeyString(l.Collection),
		ListedAt:   l.ListedAt,
		Active:     l.Active,
	}
}

func (r *ListingRecord) ToDomain() (*market.Listing, error) {
	var kr keyReader
	l := &market.Listing{
		Address:    kr.key(r.Address),
		Asset:      kr.key(r.Asset),
		Seller:     kr.key(r.Seller),
		PriceSol:   kr.amount(r.PriceSol),
		PriceToken: kr.amount(r.PriceToken),
		Collection: kr.key(r.Collection),
		ListedAt:   r.ListedAt,
		Active:     r.Active,
	}
	return l, kr.err
}

func NewOfferRecord(o *market.Offer) *OfferRecord {
	return &OfferRecord{
		Address:         KeyString(o.Address),
		Asset:           KeyString(o.Asset),
		Bidder:          KeyString(o.Bidder),
		Price:           NewAmount(o.Price),
		Currency:        string(o.Currency),
		ListingSnapshot: o.ListingSnapshot,
		Active:          o.Active,
	}
}

func (r *OfferRecord) ToDomain() (*market.Offer, error) {
	var kr keyReader
	o := &market.Offer{
		Address:         kr.key(r.Address),
		Asset:           kr.key(r.Asset),
		Bidder:          kr.key(r.Bidder),
		Price:           kr.amount(r.Price),
		Currency:        market.Currency(r.Currency),
		ListingSnapshot: r.ListingSnapshot,
		Active:          r.Active,
	}
	return o, kr.err
}

func NewAuctionRecord(a *market.Auction) *AuctionRecord {
	return &AuctionRecord{
		Address:       KeyString(a.Address),
		Asset:         KeyString(a.Asset),
		Creator:       KeyString(a.Creator),
		StartPrice:    NewAmount(a.StartPrice),
		MinIncrement:  NewAmount(a.MinIncrement),
		Currency:      string(a.Currency),
		EndTime:       unixNano(a.EndTime),
		HighestBid:    NewAmount(a.HighestBid),
		HighestBidder: KeyString(a.HighestBidder),
		LastBidAt:     unixNano(a.LastBidAt),
		Status:        a.Status.String(),
	}
}

func (r *AuctionRecord) ToDomain() (*market.Auction, error) {
	var kr keyReader
	a := &market.Auction{
		Address:       kr.key(r.Address),
		Asset:         kr.key(r.Asset),
		Creator:       kr.key(r.Creator),
		StartPrice:    kr.amount(r.StartPrice),
		MinIncrement:  kr.amount(r.MinIncrement),
		Currency:      market.Currency(r.Currency),
		EndTime:       fromUnixNano(r.EndTime),
		HighestBid:    kr.amount(r.HighestBid),
		HighestBidder: kr.key(r.HighestBidder),
		LastBidAt:     fromUnixNano(r.LastBidAt),
	}
	if kr.err != nil {
		return nil, kr.err
	}
	status, err := market.ParseAuctionStatus(r.Status)
	if err != nil {
		return nil, err
	}
	a.Status = status
	return a, nil
}

// zero time maps to 0 and back
func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}

// TableName methods
func (ListingRecord) TableName() string { return "listings" }
func (OfferRecord) TableName() string   { return "offers" }
func (AuctionRecord) TableName() string { return "auctions" }
