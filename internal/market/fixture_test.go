package market

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"escrow-market/internal/address"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingCustody struct {
	mu          sync.Mutex
	settlements []Settlement
	failNext    error
}

func (c *recordingCustody) Execute(_ context.Context, s Settlement) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failNext != nil {
		err := c.failNext
		c.failNext = nil
		return err
	}
	c.settlements = append(c.settlements, s)
	return nil
}

func (c *recordingCustody) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.settlements)
}

func (c *recordingCustody) last() Settlement {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settlements[len(c.settlements)-1]
}

type staticOracle struct {
	collection solana.PublicKey
	unverified map[solana.PublicKey]bool
}

func (o *staticOracle) ResolveCollection(_ context.Context, asset solana.PublicKey) (solana.PublicKey, error) {
	if o.unverified[asset] {
		return solana.PublicKey{}, ErrNoVerifiedCreator
	}
	return o.collection, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Publish(_ context.Context, ev Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *recordingSink) types() []EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EventType, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Type)
	}
	return out
}

type fixture struct {
	t        *testing.T
	ctx      context.Context
	engine   *Engine
	store    *MemoryStore
	custody  *recordingCustody
	oracle   *staticOracle
	clock    *manualClock
	sink     *recordingSink
	deriver  *address.Deriver
	admin    solana.PublicKey
	treasury []solana.PublicKey
}

func newWallet() solana.PublicKey {
	return solana.NewWallet().PublicKey()
}

// newFixture returns an engine whose market charges 2.5% on sol, 1% on
// token and splits fees evenly between two treasuries.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := newBareFixture(t)

	_, err := f.engine.Initialize(f.ctx, FeeRequest{Caller: f.admin, FeeRateSol: 250, FeeRateToken: 100})
	require.NoError(t, err)
	for _, tr := range []solana.PublicKey{newWallet(), newWallet()} {
		_, err := f.engine.AddTreasury(f.ctx, TreasuryRequest{Caller: f.admin, Treasury: tr, Rate: 5000})
		require.NoError(t, err)
		f.treasury = append(f.treasury, tr)
	}
	return f
}

// newBareFixture returns an engine with no market configuration.
func newBareFixture(t *testing.T) *fixture {
	t.Helper()
	deriver, err := address.NewDeriver(newWallet())
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	f := &fixture{
		t:       t,
		ctx:     context.Background(),
		store:   NewMemoryStore(),
		custody: &recordingCustody{},
		oracle:  &staticOracle{collection: newWallet(), unverified: map[solana.PublicKey]bool{}},
		clock:   &manualClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
		sink:    &recordingSink{},
		deriver: deriver,
		admin:   newWallet(),
	}
	f.engine, err = NewEngine(Dependencies{
		Store:     f.store,
		Custody:   f.custody,
		Oracle:    f.oracle,
		Addresser: deriver,
		Clock:     f.clock,
		Events:    f.sink,
		Logger:    logger,
	})
	require.NoError(t, err)
	return f
}

// user creates a participant with an initialized ledger.
func (f *fixture) user() solana.PublicKey {
	f.t.Helper()
	u := newWallet()
	_, err := f.engine.InitUserLedger(f.ctx, LedgerRequest{Caller: u})
	require.NoError(f.t, err)
	return u
}

// listed lists a fresh asset for seller.
func (f *fixture) listed(seller solana.PublicKey, priceSol, priceToken uint64) solana.PublicKey {
	f.t.Helper()
	asset := newWallet()
	_, err := f.engine.InitListing(f.ctx, AssetRequest{Caller: seller, Asset: asset})
	require.NoError(f.t, err)
	_, err = f.engine.List(f.ctx, ListRequest{Caller: seller, Asset: asset, PriceSol: priceSol, PriceToken: priceToken})
	require.NoError(f.t, err)
	return asset
}

// auction opens an auction on a fresh asset that ends in one hour.
func (f *fixture) auction(creator solana.PublicKey, start, increment uint64) solana.PublicKey {
	f.t.Helper()
	asset := newWallet()
	_, err := f.engine.InitAuction(f.ctx, AssetRequest{Caller: creator, Asset: asset})
	require.NoError(f.t, err)
	_, err = f.engine.CreateAuction(f.ctx, CreateAuctionRequest{
		Caller: creator, Asset: asset, StartPrice: start, MinIncrement: increment,
		Currency: CurrencySol, EndTime: f.clock.Now().Add(time.Hour),
	})
	require.NoError(f.t, err)
	return asset
}

func (f *fixture) ledger(owner solana.PublicKey) *UserLedger {
	f.t.Helper()
	l, err := f.engine.UserLedger(f.ctx, owner)
	require.NoError(f.t, err)
	return l
}

func (f *fixture) listing(asset solana.PublicKey) *Listing {
	f.t.Helper()
	l, err := f.engine.Listing(f.ctx, asset)
	require.NoError(f.t, err)
	return l
}

func (f *fixture) config() *MarketConfig {
	f.t.Helper()
	cfg, err := f.engine.Config(f.ctx)
	require.NoError(f.t, err)
	return cfg
}

func requireCode(t *testing.T, err error, code Code) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, CodeOf(err), "unexpected error: %v", err)
}
