package custody

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"

	"escrow-market/internal/market"
	"escrow-market/pkg/safe"
)

var (
	ErrInsufficientFunds = errors.New("custody: insufficient funds")
	ErrNotHolder         = errors.New("custody: sender does not hold the asset")
	ErrAssetExists       = errors.New("custody: asset already minted")
	ErrUnknownTransfer   = errors.New("custody: unknown transfer kind")
)

// Ledger is an in-process custody ledger holding lamport and token balances
// and the current holder of every asset. It stands in for the chain in
// development and tests.
type Ledger struct {
	mu     sync.Mutex
	sol    map[solana.PublicKey]uint64
	token  map[solana.PublicKey]uint64
	holder map[solana.PublicKey]solana.PublicKey
	log    *logrus.Entry
}

// NewLedger creates an empty ledger
func NewLedger(logger *logrus.Logger) *Ledger {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Ledger{
		sol:    make(map[solana.PublicKey]uint64),
		token:  make(map[solana.PublicKey]uint64),
		holder: make(map[solana.PublicKey]solana.PublicKey),
		log:    logger.WithField("component", "custody"),
	}
}

// Fund credits a wallet.
func (l *Ledger) Fund(owner solana.PublicKey, sol, token uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	newSol, err := safe.Add(l.sol[owner], sol)
	if err != nil {
		return fmt.Errorf("failed to fund %s: %w", owner, err)
	}
	newToken, err := safe.Add(l.token[owner], token)
	if err != nil {
		return fmt.Errorf("failed to fund %s: %w", owner, err)
	}
	l.sol[owner] = newSol
	l.token[owner] = newToken
	return nil
}

// Mint assigns a new asset to owner.
func (l *Ledger) Mint(asset, owner solana.PublicKey) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.holder[asset]; ok {
		return ErrAssetExists
	}
	l.holder[asset] = owner
	return nil
}

// Balance returns a wallet's lamport and token balances.
func (l *Ledger) Balance(owner solana.PublicKey) (sol, token uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sol[owner], l.token[owner]
}

// HolderOf returns the wallet currently holding asset.
func (l *Ledger) HolderOf(asset solana.PublicKey) (solana.PublicKey, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.holder[asset]
	return h, ok
}

// Execute applies every transfer of s or none of them.
func (l *Ledger) Execute(ctx context.Context, s market.Settlement) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	stage := newStaging(l)
	for i, t := range s.Transfers {
		if err := stage.apply(t); err != nil {
			l.log.WithFields(logrus.Fields{
				"settlement": s.ID,
				"leg":        i,
				"kind":       t.Kind,
			}).Warnf("Settlement rejected: %v", err)
			return fmt.Errorf("settlement %s leg %d: %w", s.ID, i, err)
		}
	}
	stage.commit()

	l.log.WithFields(logrus.Fields{
		"settlement": s.ID,
		"operation":  s.Operation,
		"legs":       len(s.Transfers),
	}).Debug("Settlement executed")
	return nil
}

// staging reads through to the ledger and buffers writes until commit.
type staging struct {
	l      *Ledger
	sol    map[solana.PublicKey]uint64
	token  map[solana.PublicKey]uint64
	holder map[solana.PublicKey]solana.PublicKey
}

func newStaging(l *Ledger) *staging {
	return &staging{
		l:      l,
		sol:    make(map[solana.PublicKey]uint64),
		token:  make(map[solana.PublicKey]uint64),
		holder: make(map[solana.PublicKey]solana.PublicKey),
	}
}

func (s *staging) balances(kind market.TransferKind) (staged, base map[solana.PublicKey]uint64) {
	if kind == market.TransferToken {
		return s.token, s.l.token
	}
	return s.sol, s.l.sol
}

func (s *staging) apply(t market.Transfer) error {
	switch t.Kind {
	case market.TransferAsset:
		h, ok := s.holder[t.Asset]
		if !ok {
			h, ok = s.l.holder[t.Asset]
		}
		if !ok || !h.Equals(t.From) {
			return ErrNotHolder
		}
		s.holder[t.Asset] = t.To
		return nil
	case market.TransferSol, market.TransferToken:
		staged, base := s.balances(t.Kind)
		read := func(k solana.PublicKey) uint64 {
			if v, ok := staged[k]; ok {
				return v
			}
			return base[k]
		}
		from, err := safe.Sub(read(t.From), t.Amount)
		if err != nil {
			return ErrInsufficientFunds
		}
		staged[t.From] = from
		to, err := safe.Add(read(t.To), t.Amount)
		if err != nil {
			return err
		}
		staged[t.To] = to
		return nil
	default:
		return ErrUnknownTransfer
	}
}

func (s *staging) commit() {
	for k, v := range s.sol {
		s.l.sol[k] = v
	}
	for k, v := range s.token {
		s.l.token[k] = v
	}
	for k, v := range s.holder {
		s.l.holder[k] = v
	}
}
