package api

import (
	"github.com/shopspring/decimal"

	"escrow-market/internal/market"
	"escrow-market/pkg/models"
)

// Views add human-readable amounts next to the raw base-unit fields.

type LedgerView struct {
	*market.UserLedger
	EscrowSolDisplay   decimal.Decimal `json:"escrow_sol_display"`
	EscrowTokenDisplay decimal.Decimal `json:"escrow_token_display"`
}

type ListingView struct {
	*market.Listing
	PriceSolDisplay   decimal.Decimal `json:"price_sol_display"`
	PriceTokenDisplay decimal.Decimal `json:"price_token_display"`
}

type OfferView struct {
	*market.Offer
	PriceDisplay decimal.Decimal `json:"price_display"`
}

type AuctionView struct {
	*market.Auction
	StartPriceDisplay decimal.Decimal `json:"start_price_display"`
	HighestBidDisplay decimal.Decimal `json:"highest_bid_display"`
}

type display struct {
	tokenDecimals int32
}

func (d display) amount(c market.Currency, v uint64) decimal.Decimal {
	if c == market.CurrencyToken {
		return models.ToDisplay(v, d.tokenDecimals)
	}
	return models.LamportsToSOL(v)
}

func (d display) ledger(l *market.UserLedger) LedgerView {
	return LedgerView{
		UserLedger:         l,
		EscrowSolDisplay:   d.amount(market.CurrencySol, l.EscrowSol),
		EscrowTokenDisplay: d.amount(market.CurrencyToken, l.EscrowToken),
	}
}

func (d display) listing(l *market.Listing) ListingView {
	return ListingView{
		Listing:           l,
		PriceSolDisplay:   d.amount(market.CurrencySol, l.PriceSol),
		PriceTokenDisplay: d.amount(market.CurrencyToken, l.PriceToken),
	}
}

func (d display) offer(o *market.Offer) OfferView {
	return OfferView{Offer: o, PriceDisplay: d.amount(o.Currency, o.Price)}
}

func (d display) auction(a *market.Auction) AuctionView {
	return AuctionView{
		Auction:           a,
		StartPriceDisplay: d.amount(a.Currency, a.StartPrice),
		HighestBidDisplay: d.amount(a.Currency, a.HighestBid),
	}
}
