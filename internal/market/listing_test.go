package market

import (
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListRules(t *testing.T) {
	f := newFixture(t)
	seller := f.user()
	asset := newWallet()

	_, err := f.engine.List(f.ctx, ListRequest{Caller: seller, Asset: asset, PriceSol: 10, PriceToken: 10})
	requireCode(t, err, CodeRecordNotFound)

	_, err = f.engine.InitListing(f.ctx, AssetRequest{Caller: seller, Asset: asset})
	require.NoError(t, err)
	_, err = f.engine.InitListing(f.ctx, AssetRequest{Caller: seller, Asset: asset})
	requireCode(t, err, CodeRecordExists)

	_, err = f.engine.List(f.ctx, ListRequest{Caller: seller, Asset: asset, PriceSol: 0, PriceToken: 10})
	requireCode(t, err, CodeInvalidPrice)

	f.oracle.unverified[asset] = true
	_, err = f.engine.List(f.ctx, ListRequest{Caller: seller, Asset: asset, PriceSol: 10, PriceToken: 10})
	requireCode(t, err, CodeNoVerifiedCreator)
	delete(f.oracle.unverified, asset)

	r, err := f.engine.List(f.ctx, ListRequest{Caller: seller, Asset: asset, PriceSol: 10, PriceToken: 20})
	require.NoError(t, err)
	assert.Equal(t, []Transfer{assetTransfer(asset, seller, f.engine.Vault())}, r.Settlement.Transfers)

	l := f.listing(asset)
	assert.True(t, l.Active)
	assert.Equal(t, seller, l.Seller)
	assert.Equal(t, f.oracle.collection, l.Collection)
	assert.Equal(t, f.clock.Now().UnixNano(), l.ListedAt)

	_, err = f.engine.List(f.ctx, ListRequest{Caller: seller, Asset: asset, PriceSol: 10, PriceToken: 20})
	requireCode(t, err, CodeAlreadyListed)
}

func TestDelist(t *testing.T) {
	f := newFixture(t)
	seller := f.user()
	asset := f.listed(seller, 100, 100)

	_, err := f.engine.Delist(f.ctx, AssetRequest{Caller: newWallet(), Asset: asset})
	requireCode(t, err, CodeSellerMismatch)

	r, err := f.engine.Delist(f.ctx, AssetRequest{Caller: seller, Asset: asset})
	require.NoError(t, err)
	assert.Equal(t, []Transfer{assetTransfer(asset, f.engine.Vault(), seller)}, r.Settlement.Transfers)
	assert.False(t, f.listing(asset).Active)

	_, err = f.engine.Delist(f.ctx, AssetRequest{Caller: seller, Asset: asset})
	requireCode(t, err, CodeNotListed)
}

func TestRelistAlwaysMovesListedAt(t *testing.T) {
	f := newFixture(t)
	seller := f.user()
	asset := f.listed(seller, 100, 100)
	first := f.listing(asset).ListedAt

	_, err := f.engine.Delist(f.ctx, AssetRequest{Caller: seller, Asset: asset})
	require.NoError(t, err)
	_, err = f.engine.List(f.ctx, ListRequest{Caller: seller, Asset: asset, PriceSol: 100, PriceToken: 100})
	require.NoError(t, err)

	assert.Greater(t, f.listing(asset).ListedAt, first)
}

func TestPurchasePaysSellerAndTreasuries(t *testing.T) {
	f := newFixture(t)
	seller, buyer := f.user(), f.user()
	asset := f.listed(seller, 1000, 400)

	r, err := f.engine.Purchase(f.ctx, PurchaseRequest{Caller: buyer, Asset: asset, Currency: CurrencySol, Treasuries: f.treasury})
	require.NoError(t, err)

	require.NotNil(t, r.Distribution)
	assert.Equal(t, uint64(25), r.Distribution.Fee)
	assert.Equal(t, uint64(1), r.Distribution.Dust)
	assert.Equal(t, []Transfer{
		{Kind: TransferSol, From: buyer, To: seller, Amount: 975},
		{Kind: TransferSol, From: buyer, To: f.treasury[0], Amount: 12},
		{Kind: TransferSol, From: buyer, To: f.treasury[1], Amount: 12},
		assetTransfer(asset, f.engine.Vault(), buyer),
	}, r.Settlement.Transfers)

	assert.False(t, f.listing(asset).Active)
	assert.Equal(t, uint64(1000), f.ledger(buyer).TradedSolVolume)
	assert.Equal(t, uint64(1000), f.ledger(seller).TradedSolVolume)
	assert.Contains(t, f.sink.types(), EventPurchased)
}

func TestPurchaseInToken(t *testing.T) {
	f := newFixture(t)
	seller, buyer := f.user(), f.user()
	asset := f.listed(seller, 1000, 400)

	r, err := f.engine.Purchase(f.ctx, PurchaseRequest{Caller: buyer, Asset: asset, Currency: CurrencyToken, Treasuries: f.treasury})
	require.NoError(t, err)
	assert.Equal(t, uint64(4), r.Distribution.Fee)
	assert.Equal(t, Transfer{Kind: TransferToken, From: buyer, To: seller, Amount: 396}, r.Settlement.Transfers[0])
	assert.Equal(t, uint64(400), f.ledger(buyer).TradedTokenVolume)
	assert.Zero(t, f.ledger(buyer).TradedSolVolume)
}

func TestPurchaseRejections(t *testing.T) {
	f := newFixture(t)
	seller, buyer := f.user(), f.user()
	asset := f.listed(seller, 1000, 400)
	settled := f.custody.count()

	tests := []struct {
		name string
		req  PurchaseRequest
		code Code
	}{
		{"seller buys own asset", PurchaseRequest{Caller: seller, Asset: asset, Currency: CurrencySol, Treasuries: f.treasury}, CodeSelfDealing},
		{"unknown currency", PurchaseRequest{Caller: buyer, Asset: asset, Currency: "btc", Treasuries: f.treasury}, CodeInvalidCurrency},
		{"missing treasury", PurchaseRequest{Caller: buyer, Asset: asset, Currency: CurrencySol, Treasuries: f.treasury[:1]}, CodeTreasuryMismatch},
		{"reordered treasuries", PurchaseRequest{Caller: buyer, Asset: asset, Currency: CurrencySol, Treasuries: []solana.PublicKey{f.treasury[1], f.treasury[0]}}, CodeTreasuryMismatch},
		{"claimed listing elsewhere", PurchaseRequest{Caller: buyer, Asset: asset, Currency: CurrencySol, Treasuries: f.treasury, Claims: Claims{Listing: newWallet()}}, CodeRecordAddressMismatch},
		{"buyer without ledger", PurchaseRequest{Caller: newWallet(), Asset: asset, Currency: CurrencySol, Treasuries: f.treasury}, CodeRecordNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.Purchase(f.ctx, tt.req)
			requireCode(t, err, tt.code)
			assert.True(t, f.listing(asset).Active)
			assert.Equal(t, settled, f.custody.count())
		})
	}
}

func TestPurchaseNeedsTreasury(t *testing.T) {
	f := newBareFixture(t)
	_, err := f.engine.Initialize(f.ctx, FeeRequest{Caller: f.admin, FeeRateSol: 250, FeeRateToken: 250})
	require.NoError(t, err)
	seller, buyer := f.user(), f.user()
	asset := f.listed(seller, 1000, 1000)

	_, err = f.engine.Purchase(f.ctx, PurchaseRequest{Caller: buyer, Asset: asset, Currency: CurrencySol})
	requireCode(t, err, CodeNoTreasury)
}

func TestConcurrentPurchaseSellsOnce(t *testing.T) {
	f := newFixture(t)
	seller := f.user()
	asset := f.listed(seller, 1000, 1000)
	buyers := []solana.PublicKey{f.user(), f.user(), f.user(), f.user()}

	var wg sync.WaitGroup
	errs := make([]error, len(buyers))
	for i, b := range buyers {
		wg.Add(1)
		go func(i int, b solana.PublicKey) {
			defer wg.Done()
			_, errs[i] = f.engine.Purchase(f.ctx, PurchaseRequest{Caller: b, Asset: asset, Currency: CurrencySol, Treasuries: f.treasury})
		}(i, b)
	}
	wg.Wait()

	sold := 0
	for _, err := range errs {
		if err == nil {
			sold++
			continue
		}
		requireCode(t, err, CodeNotListed)
		assert.Equal(t, CategoryState, CodeOf(err).Category())
	}
	assert.Equal(t, 1, sold)

	sales := 0
	for _, typ := range f.sink.types() {
		if typ == EventPurchased {
			sales++
		}
	}
	assert.Equal(t, 1, sales)
}
