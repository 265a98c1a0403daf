package market

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
)

// AssetRequest names an asset the caller acts on.
type AssetRequest struct {
	Caller solana.PublicKey
	Asset  solana.PublicKey
	Claims Claims
}

// ListRequest puts an asset up for sale.
type ListRequest struct {
	Caller     solana.PublicKey
	Asset      solana.PublicKey
	PriceSol   uint64
	PriceToken uint64
	Claims     Claims
}

// PurchaseRequest buys a listed asset. Treasuries must repeat the stored
// treasury addresses in stored order.
type PurchaseRequest struct {
	Caller     solana.PublicKey
	Asset      solana.PublicKey
	Currency   Currency
	Treasuries []solana.PublicKey
	Claims     Claims
}

// InitListing creates the inactive listing record of an asset.
func (e *Engine) InitListing(ctx context.Context, req AssetRequest) (*Receipt, error) {
	fields := logrus.Fields{"caller": req.Caller, "asset": req.Asset}
	return e.run(ctx, "init_listing", fields, func(ctx context.Context, tx Tx, r *Receipt) error {
		if err := requireCaller(req.Caller); err != nil {
			return err
		}
		addr, err := e.locate("listing", req.Claims.Listing, func() (solana.PublicKey, error) {
			return e.addr.Listing(req.Asset)
		})
		if err != nil {
			return err
		}
		return e.create(tx, "listing", &Listing{Address: addr, Asset: req.Asset})
	})
}

// List records the caller as seller and moves the asset into the vault.
func (e *Engine) List(ctx context.Context, req ListRequest) (*Receipt, error) {
	fields := logrus.Fields{"caller": req.Caller, "asset": req.Asset, "price_sol": req.PriceSol, "price_token": req.PriceToken}
	return e.run(ctx, "list", fields, func(ctx context.Context, tx Tx, r *Receipt) error {
		if err := requireCaller(req.Caller); err != nil {
			return err
		}
		if req.PriceSol == 0 || req.PriceToken == 0 {
			return errorf(CodeInvalidPrice, "both prices must be positive")
		}
		listing, err := e.loadListing(tx, req.Asset, req.Claims.Listing)
		if err != nil {
			return err
		}
		if listing.Active {
			return ErrAlreadyListed
		}

		collection, err := e.oracle.ResolveCollection(ctx, req.Asset)
		if err != nil {
			if CodeOf(err) != "" {
				return err
			}
			return wrapError(CodeMetadataUnavailable, err, "cannot resolve collection of %s", req.Asset)
		}
		if collection.IsZero() {
			return ErrNoVerifiedCreator
		}

		// A relist must change ListedAt so offers on the old listing go stale.
		listedAt := e.clock.Now().UnixNano()
		if listedAt <= listing.ListedAt {
			listedAt = listing.ListedAt + 1
		}

		listing.Seller = req.Caller
		listing.PriceSol = req.PriceSol
		listing.PriceToken = req.PriceToken
		listing.Collection = collection
		listing.ListedAt = listedAt
		listing.Active = true
		if err := e.save(tx, "listing", listing); err != nil {
			return err
		}

		e.emit(r, Event{Type: EventListed, Asset: req.Asset, Actor: req.Caller, Price: req.PriceSol, Currency: CurrencySol})
		return e.settle(ctx, r, []Transfer{assetTransfer(req.Asset, req.Caller, e.vault)})
	})
}

// Delist withdraws an active listing and returns the asset to its seller.
func (e *Engine) Delist(ctx context.Context, req AssetRequest) (*Receipt, error) {
	fields := logrus.Fields{"caller": req.Caller, "asset": req.Asset}
	return e.run(ctx, "delist", fields, func(ctx context.Context, tx Tx, r *Receipt) error {
		listing, err := e.loadListing(tx, req.Asset, req.Claims.Listing)
		if err != nil {
			return err
		}
		if !listing.Active {
			return ErrNotListed
		}
		if !listing.Seller.Equals(req.Caller) {
			return errorf(CodeSellerMismatch, "only the seller can delist")
		}

		listing.Active = false
		if err := e.save(tx, "listing", listing); err != nil {
			return err
		}

		e.emit(r, Event{Type: EventDelisted, Asset: req.Asset, Actor: req.Caller})
		return e.settle(ctx, r, []Transfer{assetTransfer(req.Asset, e.vault, listing.Seller)})
	})
}

// Purchase buys a listed asset at its listed price. The buyer pays the seller
// the net amount and each treasury its share directly; the asset moves from
// the vault to the buyer.
func (e *Engine) Purchase(ctx context.Context, req PurchaseRequest) (*Receipt, error) {
	fields := logrus.Fields{"caller": req.Caller, "asset": req.Asset, "currency": req.Currency}
	return e.run(ctx, "purchase", fields, func(ctx context.Context, tx Tx, r *Receipt) error {
		if !req.Currency.Valid() {
			return errorf(CodeInvalidCurrency, "unknown currency %q", req.Currency)
		}
		cfg, err := e.loadConfig(tx, req.Claims.Config)
		if err != nil {
			return err
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
		listing.Active = false

		if err := requireTreasuries(cfg, req.Treasuries); err != nil {
			return err
		}
		price := listing.Price(req.Currency)
		dist, err := Distribute(price, cfg.FeeRate(req.Currency), cfg.Treasuries)
		if err != nil {
			return err
		}

		buyer, err := e.loadLedger(tx, req.Caller, req.Claims.Ledger)
		if err != nil {
			return err
		}
		seller, err := e.loadLedger(tx, listing.Seller, req.Claims.CounterpartyLedger)
		if err != nil {
			return err
		}
		if err := buyer.addVolume(req.Currency, price); err != nil {
			return err
		}
		if err := seller.addVolume(req.Currency, price); err != nil {
			return err
		}

		if err := e.save(tx, "listing", listing); err != nil {
			return err
		}
		if err := e.save(tx, "user ledger", buyer, seller); err != nil {
			return err
		}

		r.Distribution = &dist
		e.emit(r, Event{
			Type: EventPurchased, Asset: req.Asset, Actor: req.Caller, Counterparty: listing.Seller,
			Price: price, Currency: req.Currency,
		})
		transfers := payout(transferKind(req.Currency), req.Caller, listing.Seller, dist)
		transfers = append(transfers, assetTransfer(req.Asset, e.vault, req.Caller))
		return e.settle(ctx, r, transfers)
	})
}
