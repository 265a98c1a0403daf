package market

import (
	"context"

	"github.com/gagliardetto/solana-go"
)

// Config returns the market configuration.
func (e *Engine) Config(ctx context.Context) (*MarketConfig, error) {
	var cfg *MarketConfig
	err := e.store.WithTx(ctx, func(_ context.Context, tx Tx) error {
		var err error
		cfg, err = e.loadConfig(tx, solana.PublicKey{})
		return err
	})
	return cfg, err
}

// UserLedger returns a participant's ledger.
func (e *Engine) UserLedger(ctx context.Context, owner solana.PublicKey) (*UserLedger, error) {
	var l *UserLedger
	err := e.store.WithTx(ctx, func(_ context.Context, tx Tx) error {
		var err error
		l, err = e.loadLedger(tx, owner, solana.PublicKey{})
		return err
	})
	return l, err
}

// Listing returns the listing record of an asset.
func (e *Engine) Listing(ctx context.Context, asset solana.PublicKey) (*Listing, error) {
	var l *Listing
	err := e.store.WithTx(ctx, func(_ context.Context, tx Tx) error {
		var err error
		l, err = e.loadListing(tx, asset, solana.PublicKey{})
		return err
	})
	return l, err
}

// Offer returns a bidder's offer on an asset.
func (e *Engine) Offer(ctx context.Context, asset, bidder solana.PublicKey) (*Offer, error) {
	var o *Offer
	err := e.store.WithTx(ctx, func(_ context.Context, tx Tx) error {
		var err error
		o, err = e.loadOffer(tx, asset, bidder, solana.PublicKey{})
		return err
	})
	return o, err
}

// Auction returns the auction record of an asset.
func (e *Engine) Auction(ctx context.Context, asset solana.PublicKey) (*Auction, error) {
	var a *Auction
	err := e.store.WithTx(ctx, func(_ context.Context, tx Tx) error {
		var err error
		a, err = e.loadAuction(tx, asset, solana.PublicKey{})
		return err
	})
	return a, err
}
