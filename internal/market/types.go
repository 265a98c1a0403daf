package market

import (
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
)

// Permyriad is the basis-point denominator: 10,000 = 100%.
const Permyriad uint64 = 10_000

// MaxTreasuries bounds the beneficiary list.
const MaxTreasuries = 8

// Currency selects which fungible balance a trade settles in.
type Currency string

const (
	CurrencySol   Currency = "sol"
	CurrencyToken Currency = "token"
)

// Valid reports whether c is a known currency.
func (c Currency) Valid() bool {
	return c == CurrencySol || c == CurrencyToken
}

// ParseCurrency converts user input into a Currency.
func ParseCurrency(s string) (Currency, error) {
	c := Currency(s)
	if !c.Valid() {
		return "", errorf(CodeInvalidCurrency, "unknown currency %q", s)
	}
	return c, nil
}

// AuctionStatus is the auction lifecycle state.
type AuctionStatus uint8

const (
	AuctionNotStarted AuctionStatus = iota
	AuctionActive
	AuctionClaimed
	AuctionCancelled
)

func (s AuctionStatus) String() string {
	switch s {
	case AuctionNotStarted:
		return "not_started"
	case AuctionActive:
		return "active"
	case AuctionClaimed:
		return "claimed"
	case AuctionCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// MarshalText renders the status name in JSON.
func (s AuctionStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseAuctionStatus is the inverse of AuctionStatus.String.
func ParseAuctionStatus(s string) (AuctionStatus, error) {
	for _, st := range []AuctionStatus{AuctionNotStarted, AuctionActive, AuctionClaimed, AuctionCancelled} {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown auction status %q", s)
}

// Record is anything the store persists under a derived address.
type Record interface {
	RecordAddress() solana.PublicKey
}

// Treasury is one fee beneficiary.
type Treasury struct {
	Address solana.PublicKey `json:"address"`
	Rate    uint64           `json:"rate"`
}

// MarketConfig is the global fee configuration.
type MarketConfig struct {
	Address      solana.PublicKey `json:"address"`
	SuperAdmin   solana.PublicKey `json:"super_admin"`
	FeeRateSol   uint64           `json:"fee_rate_sol"`
	FeeRateToken uint64           `json:"fee_rate_token"`
	Treasuries   []Treasury       `json:"treasuries"`
	// Version increases with every admin mutation so clients can detect a
	// reordered treasury list.
	Version uint64 `json:"version"`
}

func (c *MarketConfig) RecordAddress() solana.PublicKey { return c.Address }

// Clone returns a deep copy.
func (c *MarketConfig) Clone() *MarketConfig {
	out := *c
	out.Treasuries = append([]Treasury(nil), c.Treasuries...)
	return &out
}

// UserLedger holds a participant's escrow balances and traded volume.
type UserLedger struct {
	Address           solana.PublicKey `json:"address"`
	Owner             solana.PublicKey `json:"owner"`
	EscrowSol         uint64           `json:"escrow_sol"`
	EscrowToken       uint64           `json:"escrow_token"`
	TradedSolVolume   uint64           `json:"traded_sol_volume"`
	TradedTokenVolume uint64           `json:"traded_token_volume"`
}

func (l *UserLedger) RecordAddress() solana.PublicKey { return l.Address }

// Listing is a fixed-price sale of one asset. Listings are never deleted.
type Listing struct {
	Address    solana.PublicKey `json:"address"`
	Asset      solana.PublicKey `json:"asset"`
	Seller     solana.PublicKey `json:"seller"`
	PriceSol   uint64           `json:"price_sol"`
	PriceToken uint64           `json:"price_token"`
	Collection solana.PublicKey `json:"collection"`
	// ListedAt is unix nanoseconds and strictly increases on every relist.
	ListedAt int64 `json:"listed_at"`
	Active   bool  `json:"active"`
}

func (l *Listing) RecordAddress() solana.PublicKey { return l.Address }

// Price returns the listing price in the given currency.
func (l *Listing) Price(c Currency) uint64 {
	if c == CurrencyToken {
		return l.PriceToken
	}
	return l.PriceSol
}

// Offer is one bidder's proposal on a listed asset.
type Offer struct {
	Address         solana.PublicKey `json:"address"`
	Asset           solana.PublicKey `json:"asset"`
	Bidder          solana.PublicKey `json:"bidder"`
	Price           uint64           `json:"price"`
	Currency        Currency         `json:"currency"`
	ListingSnapshot int64            `json:"listing_snapshot"`
	Active          bool             `json:"active"`
}

func (o *Offer) RecordAddress() solana.PublicKey { return o.Address }

// Auction is a timed ascending-price sale.
type Auction struct {
	Address       solana.PublicKey `json:"address"`
	Asset         solana.PublicKey `json:"asset"`
	Creator       solana.PublicKey `json:"creator"`
	StartPrice    uint64           `json:"start_price"`
	MinIncrement  uint64           `json:"min_increment"`
	Currency      Currency         `json:"currency"`
	EndTime       time.Time        `json:"end_time"`
	HighestBid    uint64           `json:"highest_bid"`
	HighestBidder solana.PublicKey `json:"highest_bidder"`
	LastBidAt     time.Time        `json:"last_bid_at"`
	Status        AuctionStatus    `json:"status"`
}

func (a *Auction) RecordAddress() solana.PublicKey { return a.Address }

// HasBid reports whether anyone has bid.
func (a *Auction) HasBid() bool {
	return !a.HighestBidder.IsZero()
}

// TransferKind is the kind of value a Transfer moves.
type TransferKind string

const (
	TransferAsset TransferKind = "asset"
	TransferSol   TransferKind = "sol"
	TransferToken TransferKind = "token"
)

// Transfer moves an asset or a fungible amount between two parties.
type Transfer struct {
	Kind   TransferKind     `json:"kind"`
	From   solana.PublicKey `json:"from"`
	To     solana.PublicKey `json:"to"`
	Asset  solana.PublicKey `json:"asset"`
	Amount uint64           `json:"amount"`
}

// Settlement is a batch of transfers that must execute all-or-nothing.
type Settlement struct {
	ID        string     `json:"id"`
	Operation string     `json:"operation"`
	Transfers []Transfer `json:"transfers"`
}

func transferKind(c Currency) TransferKind {
	if c == CurrencyToken {
		return TransferToken
	}
	return TransferSol
}

// EventType names a committed domain event.
type EventType string

const (
	EventConfigUpdated    EventType = "config_updated"
	EventDeposit          EventType = "deposit"
	EventWithdraw         EventType = "withdraw"
	EventListed           EventType = "listed"
	EventDelisted         EventType = "delisted"
	EventPurchased        EventType = "purchased"
	EventOfferMade        EventType = "offer_made"
	EventOfferCancelled   EventType = "offer_cancelled"
	EventOfferAccepted    EventType = "offer_accepted"
	EventAuctionCreated   EventType = "auction_created"
	EventBidPlaced        EventType = "bid_placed"
	EventAuctionClaimed   EventType = "auction_claimed"
	EventAuctionCancelled EventType = "auction_cancelled"
	EventAuctionEnded     EventType = "auction_ended"
)

// Event is published after an operation commits.
type Event struct {
	Type         EventType        `json:"type"`
	Asset        solana.PublicKey `json:"asset"`
	Actor        solana.PublicKey `json:"actor"`
	Counterparty solana.PublicKey `json:"counterparty"`
	Price        uint64           `json:"price,omitempty"`
	Currency     Currency         `json:"currency,omitempty"`
	EndTime      *time.Time       `json:"end_time,omitempty"`
	Timestamp    time.Time        `json:"timestamp"`
}

// Receipt describes the committed effect of an operation.
type Receipt struct {
	Operation    string        `json:"operation"`
	Settlement   *Settlement   `json:"settlement,omitempty"`
	Distribution *Distribution `json:"distribution,omitempty"`
	Events       []Event       `json:"events,omitempty"`
}
