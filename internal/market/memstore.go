package market

import (
	"context"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
)

// MemoryStore keeps records in memory. One mutex serializes every unit of
// work; writes are staged and applied only when fn succeeds.
type MemoryStore struct {
	mu      sync.Mutex
	records map[solana.PublicKey]Record
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[solana.PublicKey]Record)}
}

// WithTx implements Store.
func (s *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{store: s, staged: make(map[solana.PublicKey]Record)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for addr, rec := range tx.staged {
		s.records[addr] = rec
	}
	return nil
}

type memTx struct {
	store  *MemoryStore
	staged map[solana.PublicKey]Record
}

func (t *memTx) lookup(addr solana.PublicKey) (Record, bool) {
	if rec, ok := t.staged[addr]; ok {
		return rec, true
	}
	rec, ok := t.store.records[addr]
	return rec, ok
}

func (t *memTx) Load(addr solana.PublicKey, dst Record) error {
	rec, ok := t.lookup(addr)
	if !ok {
		return ErrRecordNotFound
	}
	return copyRecord(dst, rec)
}

func (t *memTx) Insert(rec Record) error {
	if _, ok := t.lookup(rec.RecordAddress()); ok {
		return ErrRecordExists
	}
	return t.stage(rec)
}

func (t *memTx) Update(rec Record) error {
	if _, ok := t.lookup(rec.RecordAddress()); !ok {
		return ErrRecordNotFound
	}
	return t.stage(rec)
}

func (t *memTx) stage(rec Record) error {
	c, err := cloneRecord(rec)
	if err != nil {
		return err
	}
	t.staged[rec.RecordAddress()] = c
	return nil
}

func cloneRecord(rec Record) (Record, error) {
	switch r := rec.(type) {
	case *MarketConfig:
		return r.Clone(), nil
	case *UserLedger:
		c := *r
		return &c, nil
	case *Listing:
		c := *r
		return &c, nil
	case *Offer:
		c := *r
		return &c, nil
	case *Auction:
		c := *r
		return &c, nil
	default:
		return nil, fmt.Errorf("unsupported record type %T", rec)
	}
}

func copyRecord(dst, src Record) error {
	switch d := dst.(type) {
	case *MarketConfig:
		s, ok := src.(*MarketConfig)
		if !ok {
			break
		}
		*d = *s.Clone()
		return nil
	case *UserLedger:
		s, ok := src.(*UserLedger)
		if !ok {
			break
		}
		*d = *s
		return nil
	case *Listing:
		s, ok := src.(*Listing)
		if !ok {
			break
		}
		*d = *s
		return nil
	case *Offer:
		s, ok := src.(*Offer)
		if !ok {
			break
		}
		*d = *s
		return nil
	case *Auction:
		s, ok := src.(*Auction)
		if !ok {
			break
		}
		*d = *s
		return nil
	}
	return fmt.Errorf("record at %s is %T, not %T", src.RecordAddress(), src, dst)
}
