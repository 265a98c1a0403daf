package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
)

// Store runs a unit of work atomically and serializably. If fn returns an
// error nothing it wrote is committed. The context passed to fn may carry the
// store's transaction so collaborators can join it.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx reads and writes records inside one unit of work.
type Tx interface {
	// Load copies the record at addr into dst or returns ErrRecordNotFound.
	Load(addr solana.PublicKey, dst Record) error
	// Insert stores a new record or returns ErrRecordExists.
	Insert(rec Record) error
	// Update overwrites an existing record.
	Update(rec Record) error
}

// Custody moves assets and fungible balances. A settlement either executes in
// full or not at all.
//
// Execute is the last step inside the operation's unit of work and the store
// cannot undo it. If the store then fails to commit, custody has moved while
// the records have not; the engine logs the settlement ID at Error level and
// the host must reconcile custody from its settlement journal.
type Custody interface {
	Execute(ctx context.Context, s Settlement) error
}

// MetadataOracle resolves the verified collection of an asset.
type MetadataOracle interface {
	ResolveCollection(ctx context.Context, asset solana.PublicKey) (solana.PublicKey, error)
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// Addresser derives record addresses from logical keys.
type Addresser interface {
	Config() (solana.PublicKey, error)
	Vault() (solana.PublicKey, error)
	UserLedger(owner solana.PublicKey) (solana.PublicKey, error)
	Listing(asset solana.PublicKey) (solana.PublicKey, error)
	Offer(asset, bidder solana.PublicKey) (solana.PublicKey, error)
	Auction(asset solana.PublicKey) (solana.PublicKey, error)
}

// EventSink receives events after their operation commits.
type EventSink interface {
	Publish(ctx context.Context, ev Event)
}

// SystemClock is the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// EventSinks fans an event out to several sinks.
type EventSinks []EventSink

func (s EventSinks) Publish(ctx context.Context, ev Event) {
	for _, sink := range s {
		if sink != nil {
			sink.Publish(ctx, ev)
		}
	}
}

// Claims are record addresses supplied by a caller. A non-zero claim must
// equal the derived address or the operation aborts before touching state.
type Claims struct {
	Config             solana.PublicKey `json:"config"`
	Ledger             solana.PublicKey `json:"ledger"`
	CounterpartyLedger solana.PublicKey `json:"counterparty_ledger"`
	Listing            solana.PublicKey `json:"listing"`
	Offer              solana.PublicKey `json:"offer"`
	Auction            solana.PublicKey `json:"auction"`
}

// Dependencies wires an Engine. Clock, Events and Logger are optional.
type Dependencies struct {
	Store     Store
	Custody   Custody
	Oracle    MetadataOracle
	Addresser Addresser
	Clock     Clock
	Events    EventSink
	Logger    *logrus.Logger
}

// Engine executes marketplace operations.
type Engine struct {
	store   Store
	custody Custody
	oracle  MetadataOracle
	addr    Addresser
	clock   Clock
	events  EventSink
	log     *logrus.Entry
	vault   solana.PublicKey
}

// NewEngine creates an engine
func NewEngine(deps Dependencies) (*Engine, error) {
	if deps.Store == nil || deps.Custody == nil || deps.Oracle == nil || deps.Addresser == nil {
		return nil, errors.New("market engine requires store, custody, oracle and addresser")
	}
	vault, err := deps.Addresser.Vault()
	if err != nil {
		return nil, fmt.Errorf("failed to derive vault address: %w", err)
	}

	e := &Engine{
		store:   deps.Store,
		custody: deps.Custody,
		oracle:  deps.Oracle,
		addr:    deps.Addresser,
		clock:   deps.Clock,
		events:  deps.Events,
		vault:   vault,
	}
	if e.clock == nil {
		e.clock = SystemClock{}
	}
	if e.events == nil {
		e.events = EventSinks{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	e.log = logger.WithField("component", "market")
	return e, nil
}

// Vault returns the pooled escrow vault address.
func (e *Engine) Vault() solana.PublicKey {
	return e.vault
}

// Addresser returns the engine's address deriver.
func (e *Engine) Addresser() Addresser {
	return e.addr
}

// run executes fn in one unit of work, then logs and publishes its events.
func (e *Engine) run(ctx context.Context, op string, fields logrus.Fields, fn func(ctx context.Context, tx Tx, r *Receipt) error) (*Receipt, error) {
	var r *Receipt
	err := e.store.WithTx(ctx, func(txCtx context.Context, tx Tx) error {
		r = &Receipt{Operation: op}
		return fn(txCtx, tx, r)
	})

	entry := e.log.WithFields(fields).WithField("op", op)
	if err != nil && r != nil && r.Settlement != nil {
		entry.WithField("settlement", r.Settlement.ID).Errorf("Commit failed after custody executed: %v", err)
		return nil, err
	}
	if err != nil {
		if code := CodeOf(err); code != "" {
			entry.WithField("code", code).Warnf("Operation rejected: %v", err)
		} else {
			entry.Errorf("Operation failed: %v", err)
		}
		return nil, err
	}

	if r.Settlement != nil {
		entry = entry.WithField("settlement", r.Settlement.ID)
	}
	entry.Info("Operation committed")
	for _, ev := range r.Events {
		e.events.Publish(ctx, ev)
	}
	return r, nil
}

// locate derives a record address and checks it against the caller's claim.
func (e *Engine) locate(kind string, claimed solana.PublicKey, derive func() (solana.PublicKey, error)) (solana.PublicKey, error) {
	addr, err := derive()
	if err != nil {
		return solana.PublicKey{}, wrapError(CodeAddressDerivation, err, "cannot derive %s address", kind)
	}
	if !claimed.IsZero() && !claimed.Equals(addr) {
		return solana.PublicKey{}, errorf(CodeRecordAddressMismatch, "%s address %s does not match derived %s", kind, claimed, addr)
	}
	return addr, nil
}

// resolve is the single authenticated lookup path: derive, verify the claim,
// then load.
func (e *Engine) resolve(tx Tx, kind string, claimed solana.PublicKey, derive func() (solana.PublicKey, error), dst Record) error {
	addr, err := e.locate(kind, claimed, derive)
	if err != nil {
		return err
	}
	if err := tx.Load(addr, dst); err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return errorf(CodeRecordNotFound, "%s %s not found", kind, addr)
		}
		return fmt.Errorf("failed to load %s: %w", kind, err)
	}
	return nil
}

// create inserts rec at its derived address.
func (e *Engine) create(tx Tx, kind string, rec Record) error {
	if err := tx.Insert(rec); err != nil {
		if errors.Is(err, ErrRecordExists) {
			return errorf(CodeRecordExists, "%s %s already initialized", kind, rec.RecordAddress())
		}
		return fmt.Errorf("failed to create %s: %w", kind, err)
	}
	return nil
}

func (e *Engine) save(tx Tx, kind string, recs ...Record) error {
	for _, rec := range recs {
		if err := tx.Update(rec); err != nil {
			return fmt.Errorf("failed to save %s: %w", kind, err)
		}
	}
	return nil
}

func (e *Engine) loadConfig(tx Tx, claimed solana.PublicKey) (*MarketConfig, error) {
	cfg := &MarketConfig{}
	if err := e.resolve(tx, "config", claimed, e.addr.Config, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (e *Engine) loadLedger(tx Tx, owner, claimed solana.PublicKey) (*UserLedger, error) {
	l := &UserLedger{}
	derive := func() (solana.PublicKey, error) { return e.addr.UserLedger(owner) }
	if err := e.resolve(tx, "user ledger", claimed, derive, l); err != nil {
		return nil, err
	}
	if !l.Owner.Equals(owner) {
		return nil, errorf(CodeOwnerMismatch, "ledger %s is owned by %s", l.Address, l.Owner)
	}
	return l, nil
}

func (e *Engine) loadListing(tx Tx, asset, claimed solana.PublicKey) (*Listing, error) {
	l := &Listing{}
	derive := func() (solana.PublicKey, error) { return e.addr.Listing(asset) }
	if err := e.resolve(tx, "listing", claimed, derive, l); err != nil {
		return nil, err
	}
	return l, nil
}

func (e *Engine) loadOffer(tx Tx, asset, bidder, claimed solana.PublicKey) (*Offer, error) {
	o := &Offer{}
	derive := func() (solana.PublicKey, error) { return e.addr.Offer(asset, bidder) }
	if err := e.resolve(tx, "offer", claimed, derive, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (e *Engine) loadAuction(tx Tx, asset, claimed solana.PublicKey) (*Auction, error) {
	a := &Auction{}
	derive := func() (solana.PublicKey, error) { return e.addr.Auction(asset) }
	if err := e.resolve(tx, "auction", claimed, derive, a); err != nil {
		return nil, err
	}
	return a, nil
}

// settle hands the transfers to custody. It must be the last step of an
// operation so that a custody failure aborts the whole unit of work.
func (e *Engine) settle(ctx context.Context, r *Receipt, transfers []Transfer) error {
	s := Settlement{ID: xid.New().String(), Operation: r.Operation}
	for _, t := range transfers {
		if t.Kind != TransferAsset && t.Amount == 0 {
			continue
		}
		s.Transfers = append(s.Transfers, t)
	}
	if len(s.Transfers) == 0 {
		return nil
	}

	if err := e.custody.Execute(ctx, s); err != nil {
		if CodeOf(err) != "" {
			return err
		}
		return wrapError(CodeCustodyFailed, err, "custody rejected %s settlement", r.Operation)
	}
	r.Settlement = &s
	return nil
}

func (e *Engine) emit(r *Receipt, ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = e.clock.Now()
	}
	r.Events = append(r.Events, ev)
}

func requireCaller(caller solana.PublicKey) error {
	if caller.IsZero() {
		return errorf(CodeOwnerMismatch, "caller identity is required")
	}
	return nil
}

func requireTreasuries(cfg *MarketConfig, refs []solana.PublicKey) error {
	if len(cfg.Treasuries) == 0 {
		return ErrNoTreasury
	}
	return ValidateBeneficiaries(cfg.Treasuries, refs)
}

// payout sends the net amount to recipient and each share to its treasury.
func payout(kind TransferKind, from, recipient solana.PublicKey, d Distribution) []Transfer {
	out := make([]Transfer, 0, len(d.Shares)+1)
	out = append(out, Transfer{Kind: kind, From: from, To: recipient, Amount: d.Net})
	for _, s := range d.Shares {
		out = append(out, Transfer{Kind: kind, From: from, To: s.Address, Amount: s.Amount})
	}
	return out
}

func assetTransfer(asset, from, to solana.PublicKey) Transfer {
	return Transfer{Kind: TransferAsset, From: from, To: to, Asset: asset, Amount: 1}
}
