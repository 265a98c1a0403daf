package market

import (
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAuctionRules(t *testing.T) {
	f := newFixture(t)
	creator := f.user()
	asset := newWallet()
	_, err := f.engine.InitAuction(f.ctx, AssetRequest{Caller: creator, Asset: asset})
	require.NoError(t, err)

	req := CreateAuctionRequest{
		Caller: creator, Asset: asset, StartPrice: 1000, MinIncrement: 0,
		Currency: CurrencySol, EndTime: f.clock.Now().Add(time.Hour),
	}
	_, err = f.engine.CreateAuction(f.ctx, req)
	requireCode(t, err, CodeInvalidIncrement)

	req.MinIncrement = 50
	req.EndTime = f.clock.Now()
	_, err = f.engine.CreateAuction(f.ctx, req)
	requireCode(t, err, CodeInvalidEndTime)

	req.EndTime = f.clock.Now().Add(time.Hour)
	r, err := f.engine.CreateAuction(f.ctx, req)
	require.NoError(t, err)
	assert.Equal(t, []Transfer{assetTransfer(asset, creator, f.engine.Vault())}, r.Settlement.Transfers)

	a, err := f.engine.Auction(f.ctx, asset)
	require.NoError(t, err)
	assert.Equal(t, AuctionActive, a.Status)
	assert.Equal(t, uint64(1000), a.HighestBid)
	assert.False(t, a.HasBid())

	_, err = f.engine.CreateAuction(f.ctx, req)
	requireCode(t, err, CodeAuctionInProgress)
}

func TestPlaceBidRules(t *testing.T) {
	f := newFixture(t)
	creator, alice, bob := f.user(), f.user(), f.user()
	asset := f.auction(creator, 1000, 50)

	bid := func(caller solana.PublicKey, price uint64, refund solana.PublicKey) (*Receipt, error) {
		return f.engine.PlaceBid(f.ctx, PlaceBidRequest{Caller: caller, Asset: asset, Price: price, RefundTo: refund})
	}

	_, err := bid(alice, 1049, solana.PublicKey{})
	requireCode(t, err, CodeBidTooLow)

	_, err = bid(creator, 5000, solana.PublicKey{})
	requireCode(t, err, CodeBidFromCreator)

	r, err := bid(alice, 1050, solana.PublicKey{})
	require.NoError(t, err)
	assert.Equal(t, []Transfer{{Kind: TransferSol, From: alice, To: f.engine.Vault(), Amount: 1050}}, r.Settlement.Transfers)

	_, err = bid(alice, 1200, alice)
	requireCode(t, err, CodeConsecutiveBid)

	_, err = bid(bob, 1100, newWallet())
	requireCode(t, err, CodeRefundMismatch)

	f.clock.Advance(time.Minute)
	r, err = bid(bob, 1100, alice)
	require.NoError(t, err)
	assert.Equal(t, []Transfer{
		{Kind: TransferSol, From: f.engine.Vault(), To: alice, Amount: 1050},
		{Kind: TransferSol, From: bob, To: f.engine.Vault(), Amount: 1100},
	}, r.Settlement.Transfers)

	a, err := f.engine.Auction(f.ctx, asset)
	require.NoError(t, err)
	assert.Equal(t, bob, a.HighestBidder)
	assert.Equal(t, uint64(1100), a.HighestBid)
	assert.Equal(t, f.clock.Now(), a.LastBidAt)

	_, err = bid(creator, 5000, bob)
	requireCode(t, err, CodeBidFromCreator)
}

func TestBidAfterEnd(t *testing.T) {
	f := newFixture(t)
	creator, alice := f.user(), f.user()
	asset := f.auction(creator, 1000, 50)

	f.clock.Advance(time.Hour)
	_, err := f.engine.PlaceBid(f.ctx, PlaceBidRequest{Caller: alice, Asset: asset, Price: 2000})
	requireCode(t, err, CodeAuctionEnded)
}

func TestBidMinimumOverflow(t *testing.T) {
	f := newFixture(t)
	creator, alice := f.user(), f.user()
	asset := f.auction(creator, ^uint64(0)-10, 50)

	_, err := f.engine.PlaceBid(f.ctx, PlaceBidRequest{Caller: alice, Asset: asset, Price: ^uint64(0)})
	requireCode(t, err, CodeOverflow)
}

func TestClaimAuction(t *testing.T) {
	f := newFixture(t)
	creator, alice, bob := f.user(), f.user(), f.user()
	asset := f.auction(creator, 1000, 50)
	_, err := f.engine.PlaceBid(f.ctx, PlaceBidRequest{Caller: alice, Asset: asset, Price: 2000})
	require.NoError(t, err)

	claim := ClaimAuctionRequest{Caller: alice, Asset: asset, Creator: creator, Treasuries: f.treasury}
	_, err = f.engine.ClaimAuction(f.ctx, claim)
	requireCode(t, err, CodeAuctionNotEnded)

	f.clock.Advance(time.Hour)

	_, err = f.engine.ClaimAuction(f.ctx, ClaimAuctionRequest{Caller: bob, Asset: asset, Creator: creator, Treasuries: f.treasury})
	requireCode(t, err, CodeBidderMismatch)

	_, err = f.engine.ClaimAuction(f.ctx, ClaimAuctionRequest{Caller: alice, Asset: asset, Creator: bob, Treasuries: f.treasury})
	requireCode(t, err, CodeCreatorRefMismatch)

	_, err = f.engine.CancelAuction(f.ctx, AssetRequest{Caller: creator, Asset: asset})
	requireCode(t, err, CodeAuctionHasBid)

	r, err := f.engine.ClaimAuction(f.ctx, claim)
	require.NoError(t, err)
	vault := f.engine.Vault()
	assert.Equal(t, []Transfer{
		{Kind: TransferSol, From: vault, To: creator, Amount: 1950},
		{Kind: TransferSol, From: vault, To: f.treasury[0], Amount: 25},
		{Kind: TransferSol, From: vault, To: f.treasury[1], Amount: 25},
		assetTransfer(asset, vault, alice),
	}, r.Settlement.Transfers)

	a, err := f.engine.Auction(f.ctx, asset)
	require.NoError(t, err)
	assert.Equal(t, AuctionClaimed, a.Status)
	assert.Equal(t, uint64(2000), f.ledger(alice).TradedSolVolume)
	assert.Equal(t, uint64(2000), f.ledger(creator).TradedSolVolume)

	_, err = f.engine.ClaimAuction(f.ctx, claim)
	requireCode(t, err, CodeAuctionNotActive)
}

func TestCancelAuction(t *testing.T) {
	f := newFixture(t)
	creator := f.user()
	asset := f.auction(creator, 1000, 50)

	_, err := f.engine.CancelAuction(f.ctx, AssetRequest{Caller: creator, Asset: asset})
	requireCode(t, err, CodeAuctionNotEnded)

	f.clock.Advance(time.Hour)
	_, err = f.engine.CancelAuction(f.ctx, AssetRequest{Caller: newWallet(), Asset: asset})
	requireCode(t, err, CodeCreatorMismatch)

	_, err = f.engine.ClaimAuction(f.ctx, ClaimAuctionRequest{Caller: creator, Asset: asset, Creator: creator, Treasuries: f.treasury})
	requireCode(t, err, CodeAuctionHasNoBid)

	r, err := f.engine.CancelAuction(f.ctx, AssetRequest{Caller: creator, Asset: asset})
	require.NoError(t, err)
	assert.Equal(t, []Transfer{assetTransfer(asset, f.engine.Vault(), creator)}, r.Settlement.Transfers)

	a, err := f.engine.Auction(f.ctx, asset)
	require.NoError(t, err)
	assert.Equal(t, AuctionCancelled, a.Status)

	// a finished auction record can host a new auction
	_, err = f.engine.CreateAuction(f.ctx, CreateAuctionRequest{
		Caller: creator, Asset: asset, StartPrice: 10, MinIncrement: 1,
		Currency: CurrencyToken, EndTime: f.clock.Now().Add(time.Hour),
	})
	require.NoError(t, err)
}

func TestAuctionEventsCarryEndTime(t *testing.T) {
	f := newFixture(t)
	creator := f.user()
	f.auction(creator, 1000, 50)

	f.sink.mu.Lock()
	defer f.sink.mu.Unlock()
	last := f.sink.events[len(f.sink.events)-1]
	assert.Equal(t, EventAuctionCreated, last.Type)
	require.NotNil(t, last.EndTime)
	assert.Equal(t, f.clock.Now().Add(time.Hour), *last.EndTime)
}
