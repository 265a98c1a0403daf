package market

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
)

// MakeOfferRequest proposes a price below the listing price.
type MakeOfferRequest struct {
	Caller   solana.PublicKey
	Asset    solana.PublicKey
	Price    uint64
	Currency Currency
	Claims   Claims
}

// AcceptOfferRequest is sent by the seller to sell to one bidder.
type AcceptOfferRequest struct {
	Caller     solana.PublicKey
	Asset      solana.PublicKey
	Bidder     solana.PublicKey
	Treasuries []solana.PublicKey
	Claims     Claims
}

// OfferBounds returns the accepted half-open price range [min, max) for an
// offer against a listing price.
func OfferBounds(listPrice uint64) (lo, hi uint64) {
	return listPrice / 2, listPrice
}

// InitOffer creates the caller's inactive offer record for an asset.
func (e *Engine) InitOffer(ctx context.Context, req AssetRequest) (*Receipt, error) {
	fields := logrus.Fields{"caller": req.Caller, "asset": req.Asset}
	return e.run(ctx, "init_offer", fields, func(ctx context.Context, tx Tx, r *Receipt) error {
		if err := requireCaller(req.Caller); err != nil {
			return err
		}
		addr, err := e.locate("offer", req.Claims.Offer, func() (solana.PublicKey, error) {
			return e.addr.Offer(req.Asset, req.Caller)
		})
		if err != nil {
			return err
		}
		return e.create(tx, "offer", &Offer{Address: addr, Asset: req.Asset, Bidder: req.Caller})
	})
}

// MakeOffer escrows the offered amount and binds the offer to the current
// listing. Making another offer overwrites the previous one; funds escrowed
// for it stay in the bidder's escrow balance.
func (e *Engine) MakeOffer(ctx context.Context, req MakeOfferRequest) (*Receipt, error) {
	fields := logrus.Fields{"caller": req.Caller, "asset": req.Asset, "price": req.Price, "currency": req.Currency}
	return e.run(ctx, "make_offer", fields, func(ctx context.Context, tx Tx, r *Receipt) error {
		if !req.Currency.Valid() {
			return errorf(CodeInvalidCurrency, "unknown currency %q", req.Currency)
		}
		listing, err := e.loadListing(tx, req.Asset, req.Claims.Listing)
		if err != nil {
			return err
		}
		if !listing.Active {
			return ErrNotListed
		}
		if listing.Seller.Equals(req.Caller) {
			return ErrSelfDealing
		}

		lo, hi := OfferBounds(listing.Price(req.Currency))
		if req.Price < lo || req.Price >= hi {
			return errorf(CodeOfferOutOfRange, "offer %d outside [%d, %d)", req.Price, lo, hi)
		}

		offer, err := e.loadOffer(tx, req.Asset, req.Caller, req.Claims.Offer)
		if err != nil {
			return err
		}
		ledger, err := e.loadLedger(tx, req.Caller, req.Claims.Ledger)
		if err != nil {
			return err
		}
		if err := ledger.credit(req.Currency, req.Price); err != nil {
			return err
		}

		offer.Price = req.Price
		offer.Currency = req.Currency
		offer.ListingSnapshot = listing.ListedAt
		offer.Active = true
		if err := e.save(tx, "offer", offer); err != nil {
			return err
		}
		if err := e.save(tx, "user ledger", ledger); err != nil {
			return err
		}

		e.emit(r, Event{
			Type: EventOfferMade, Asset: req.Asset, Actor: req.Caller, Counterparty: listing.Seller,
			Price: req.Price, Currency: req.Currency,
		})
		return e.settle(ctx, r, []Transfer{
			{Kind: transferKind(req.Currency), From: req.Caller, To: e.vault, Amount: req.Price},
		})
	})
}

// CancelOffer deactivates the caller's offer. The escrowed amount stays in
// the caller's escrow balance and is reclaimed with Withdraw.
func (e *Engine) CancelOffer(ctx context.Context, req AssetRequest) (*Receipt, error) {
	fields := logrus.Fields{"caller": req.Caller, "asset": req.Asset}
	return e.run(ctx, "cancel_offer", fields, func(ctx context.Context, tx Tx, r *Receipt) error {
		offer, err := e.loadOffer(tx, req.Asset, req.Caller, req.Claims.Offer)
		if err != nil {
			return err
		}
		if !offer.Bidder.Equals(req.Caller) {
			return errorf(CodeBidderMismatch, "only the bidder can cancel the offer")
		}
		if !offer.Active {
			return ErrOfferInactive
		}

		offer.Active = false
		if err := e.save(tx, "offer", offer); err != nil {
			return err
		}
		e.emit(r, Event{Type: EventOfferCancelled, Asset: req.Asset, Actor: req.Caller, Price: offer.Price, Currency: offer.Currency})
		return nil
	})
}

// AcceptOffer sells the asset to bidder at the offered price, paid out of the
// bidder's escrow in the vault.
func (e *Engine) AcceptOffer(ctx context.Context, req AcceptOfferRequest) (*Receipt, error) {
	fields := logrus.Fields{"caller": req.Caller, "asset": req.Asset, "bidder": req.Bidder}
	return e.run(ctx, "accept_offer", fields, func(ctx context.Context, tx Tx, r *Receipt) error {
		cfg, err := e.loadConfig(tx, req.Claims.Config)
		if err != nil {
			return err
		}
		listing, err := e.loadListing(tx, req.Asset, req.Claims.Listing)
		if err != nil {
			return err
		}
		if !listing.Seller.Equals(req.Caller) {
			return errorf(CodeSellerMismatch, "only the seller can accept offers")
		}
		if !listing.Active {
			return ErrNotListed
		}

		offer, err := e.loadOffer(tx, req.Asset, req.Bidder, req.Claims.Offer)
		if err != nil {
			return err
		}
		if !offer.Active {
			return ErrOfferInactive
		}
		if offer.ListingSnapshot != listing.ListedAt {
			return ErrStaleOffer
		}
		if err := requireTreasuries(cfg, req.Treasuries); err != nil {
			return err
		}
		listing.Active = false
		offer.Active = false

		bidder, err := e.loadLedger(tx, req.Bidder, req.Claims.CounterpartyLedger)
		if err != nil {
			return err
		}
		seller, err := e.loadLedger(tx, req.Caller, req.Claims.Ledger)
		if err != nil {
			return err
		}
		if offer.Price > bidder.Escrow(offer.Currency) {
			return errorf(CodeInsufficientEscrow, "bidder escrow %d below offer %d", bidder.Escrow(offer.Currency), offer.Price)
		}
		if err := bidder.debit(offer.Currency, offer.Price); err != nil {
			return err
		}
		if err := bidder.addVolume(offer.Currency, offer.Price); err != nil {
			return err
		}
		if err := seller.addVolume(offer.Currency, offer.Price); err != nil {
			return err
		}

		dist, err := Distribute(offer.Price, cfg.FeeRate(offer.Currency), cfg.Treasuries)
		if err != nil {
			return err
		}

		if err := e.save(tx, "listing", listing); err != nil {
			return err
		}
		if err := e.save(tx, "offer", offer); err != nil {
			return err
		}
		if err := e.save(tx, "user ledger", bidder, seller); err != nil {
			return err
		}

		r.Distribution = &dist
		e.emit(r, Event{
			Type: EventOfferAccepted, Asset: req.Asset, Actor: req.Caller, Counterparty: req.Bidder,
			Price: offer.Price, Currency: offer.Currency,
		})
		transfers := payout(transferKind(offer.Currency), e.vault, req.Caller, dist)
		transfers = append(transfers, assetTransfer(req.Asset, e.vault, req.Bidder))
		return e.settle(ctx, r, transfers)
	})
}
