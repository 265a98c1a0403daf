package market

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"

	"escrow-market/pkg/safe"
)

// CreateAuctionRequest starts an auction on an asset the caller owns.
type CreateAuctionRequest struct {
	Caller       solana.PublicKey
	Asset        solana.PublicKey
	StartPrice   uint64
	MinIncrement uint64
	Currency     Currency
	EndTime      time.Time
	Claims       Claims
}

// PlaceBidRequest outbids the current highest bidder. RefundTo must name the
// current highest bidder when there is one.
type PlaceBidRequest struct {
	Caller   solana.PublicKey
	Asset    solana.PublicKey
	Price    uint64
	RefundTo solana.PublicKey
	Claims   Claims
}

// ClaimAuctionRequest settles an ended auction for its winner.
type ClaimAuctionRequest struct {
	Caller     solana.PublicKey
	Asset      solana.PublicKey
	Creator    solana.PublicKey
	Treasuries []solana.PublicKey
	Claims     Claims
}

// InitAuction creates the auction record of an asset in NotStarted state.
func (e *Engine) InitAuction(ctx context.Context, req AssetRequest) (*Receipt, error) {
	fields := logrus.Fields{"caller": req.Caller, "asset": req.Asset}
	return e.run(ctx, "init_auction", fields, func(ctx context.Context, tx Tx, r *Receipt) error {
		if err := requireCaller(req.Caller); err != nil {
			return err
		}
		addr, err := e.locate("auction", req.Claims.Auction, func() (solana.PublicKey, error) {
			return e.addr.Auction(req.Asset)
		})
		if err != nil {
			return err
		}
		return e.create(tx, "auction", &Auction{Address: addr, Asset: req.Asset, Status: AuctionNotStarted})
	})
}

// CreateAuction opens the auction and moves the asset into the vault. An
// auction record that has been claimed or cancelled can be reused.
func (e *Engine) CreateAuction(ctx context.Context, req CreateAuctionRequest) (*Receipt, error) {
	fields := logrus.Fields{
		"caller": req.Caller, "asset": req.Asset, "start_price": req.StartPrice,
		"min_increment": req.MinIncrement, "end_time": req.EndTime,
	}
	return e.run(ctx, "create_auction", fields, func(ctx context.Context, tx Tx, r *Receipt) error {
		if err := requireCaller(req.Caller); err != nil {
			return err
		}
		if !req.Currency.Valid() {
			return errorf(CodeInvalidCurrency, "unknown currency %q", req.Currency)
		}
		if req.MinIncrement == 0 {
			return errorf(CodeInvalidIncrement, "minimum increment must be positive")
		}
		now := e.clock.Now()
		if !req.EndTime.After(now) {
			return errorf(CodeInvalidEndTime, "end time %s is not after %s", req.EndTime.Format(time.RFC3339), now.Format(time.RFC3339))
		}

		auction, err := e.loadAuction(tx, req.Asset, req.Claims.Auction)
		if err != nil {
			return err
		}
		if auction.Status == AuctionActive {
			return errorf(CodeAuctionInProgress, "auction on %s is already active", req.Asset)
		}

		auction.Creator = req.Caller
		auction.StartPrice = req.StartPrice
		auction.MinIncrement = req.MinIncrement
		auction.Currency = req.Currency
		auction.EndTime = req.EndTime.UTC()
		auction.HighestBid = req.StartPrice
		auction.HighestBidder = solana.PublicKey{}
		auction.LastBidAt = time.Time{}
		auction.Status = AuctionActive
		if err := e.save(tx, "auction", auction); err != nil {
			return err
		}

		end := auction.EndTime
		e.emit(r, Event{
			Type: EventAuctionCreated, Asset: req.Asset, Actor: req.Caller,
			Price: req.StartPrice, Currency: req.Currency, EndTime: &end,
		})
		return e.settle(ctx, r, []Transfer{assetTransfer(req.Asset, req.Caller, e.vault)})
	})
}

// PlaceBid escrows a new highest bid and refunds the previous one in the same
// settlement.
func (e *Engine) PlaceBid(ctx context.Context, req PlaceBidRequest) (*Receipt, error) {
	fields := logrus.Fields{"caller": req.Caller, "asset": req.Asset, "price": req.Price}
	return e.run(ctx, "place_bid", fields, func(ctx context.Context, tx Tx, r *Receipt) error {
		if err := requireCaller(req.Caller); err != nil {
			return err
		}
		auction, err := e.loadAuction(tx, req.Asset, req.Claims.Auction)
		if err != nil {
			return err
		}
		if auction.Status != AuctionActive {
			return ErrAuctionNotActive
		}
		now := e.clock.Now()
		if !now.Before(auction.EndTime) {
			return ErrAuctionEnded
		}
		if auction.Creator.Equals(req.Caller) {
			return errorf(CodeBidFromCreator, "the creator cannot bid on its own auction")
		}
		if auction.HighestBidder.Equals(req.Caller) {
			return errorf(CodeConsecutiveBid, "caller already holds the highest bid")
		}

		minimum, err := safe.Add(auction.HighestBid, auction.MinIncrement)
		if err != nil {
			return arith(err, "minimum bid")
		}
		if req.Price < minimum {
			return errorf(CodeBidTooLow, "bid %d below minimum %d", req.Price, minimum)
		}

		kind := transferKind(auction.Currency)
		var transfers []Transfer
		previous, refund := auction.HighestBidder, auction.HighestBid
		if auction.HasBid() {
			if !req.RefundTo.Equals(previous) {
				return errorf(CodeRefundMismatch, "refund target %s is not the highest bidder %s", req.RefundTo, previous)
			}
			transfers = append(transfers, Transfer{Kind: kind, From: e.vault, To: previous, Amount: refund})
		}
		transfers = append(transfers, Transfer{Kind: kind, From: req.Caller, To: e.vault, Amount: req.Price})

		auction.HighestBid = req.Price
		auction.HighestBidder = req.Caller
		auction.LastBidAt = now
		if err := e.save(tx, "auction", auction); err != nil {
			return err
		}

		e.emit(r, Event{
			Type: EventBidPlaced, Asset: req.Asset, Actor: req.Caller, Counterparty: previous,
			Price: req.Price, Currency: auction.Currency,
		})
		return e.settle(ctx, r, transfers)
	})
}

// ClaimAuction pays the creator and treasuries out of the winning bid and
// hands the asset to the winner.
func (e *Engine) ClaimAuction(ctx context.Context, req ClaimAuctionRequest) (*Receipt, error) {
	fields := logrus.Fields{"caller": req.Caller, "asset": req.Asset, "creator": req.Creator}
	return e.run(ctx, "claim_auction", fields, func(ctx context.Context, tx Tx, r *Receipt) error {
		cfg, err := e.loadConfig(tx, req.Claims.Config)
		if err != nil {
			return err
		}
		auction, err := e.loadAuction(tx, req.Asset, req.Claims.Auction)
		if err != nil {
			return err
		}
		if e.clock.Now().Before(auction.EndTime) {
			return ErrAuctionNotEnded
		}
		if auction.Status != AuctionActive {
			return ErrAuctionNotActive
		}
		if !auction.HasBid() {
			return errorf(CodeAuctionHasNoBid, "auction on %s has no bid", req.Asset)
		}
		if !auction.HighestBidder.Equals(req.Caller) {
			return errorf(CodeBidderMismatch, "only the highest bidder can claim")
		}
		if !auction.Creator.Equals(req.Creator) {
			return errorf(CodeCreatorRefMismatch, "creator reference %s does not match %s", req.Creator, auction.Creator)
		}
		if err := requireTreasuries(cfg, req.Treasuries); err != nil {
			return err
		}
		auction.Status = AuctionClaimed

		winner, err := e.loadLedger(tx, req.Caller, req.Claims.Ledger)
		if err != nil {
			return err
		}
		creator, err := e.loadLedger(tx, auction.Creator, req.Claims.CounterpartyLedger)
		if err != nil {
			return err
		}
		if err := winner.addVolume(auction.Currency, auction.HighestBid); err != nil {
			return err
		}
		if err := creator.addVolume(auction.Currency, auction.HighestBid); err != nil {
			return err
		}
		dist, err := Distribute(auction.HighestBid, cfg.FeeRate(auction.Currency), cfg.Treasuries)
		if err != nil {
			return err
		}

		if err := e.save(tx, "auction", auction); err != nil {
			return err
		}
		if err := e.save(tx, "user ledger", winner, creator); err != nil {
			return err
		}

		r.Distribution = &dist
		e.emit(r, Event{
			Type: EventAuctionClaimed, Asset: req.Asset, Actor: req.Caller, Counterparty: auction.Creator,
			Price: auction.HighestBid, Currency: auction.Currency,
		})
		transfers := payout(transferKind(auction.Currency), e.vault, auction.Creator, dist)
		transfers = append(transfers, assetTransfer(req.Asset, e.vault, req.Caller))
		return e.settle(ctx, r, transfers)
	})
}

// CancelAuction returns the asset of an ended auction nobody bid on.
func (e *Engine) CancelAuction(ctx context.Context, req AssetRequest) (*Receipt, error) {
	fields := logrus.Fields{"caller": req.Caller, "asset": req.Asset}
	return e.run(ctx, "cancel_auction", fields, func(ctx context.Context, tx Tx, r *Receipt) error {
		auction, err := e.loadAuction(tx, req.Asset, req.Claims.Auction)
		if err != nil {
			return err
		}
		if e.clock.Now().Before(auction.EndTime) {
			return ErrAuctionNotEnded
		}
		if auction.Status != AuctionActive {
			return ErrAuctionNotActive
		}
		if auction.HasBid() {
			return errorf(CodeAuctionHasBid, "auction on %s has bids", req.Asset)
		}
		if !auction.Creator.Equals(req.Caller) {
			return errorf(CodeCreatorMismatch, "only the creator can cancel")
		}

		auction.Status = AuctionCancelled
		if err := e.save(tx, "auction", auction); err != nil {
			return err
		}
		e.emit(r, Event{Type: EventAuctionCancelled, Asset: req.Asset, Actor: req.Caller})
		return e.settle(ctx, r, []Transfer{assetTransfer(req.Asset, e.vault, auction.Creator)})
	})
}
