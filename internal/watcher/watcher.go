// Package watcher announces auctions whose bidding window has closed. Active
// auctions are kept in a skip list ordered by end time so each sweep only
// touches the auctions that actually ended.
package watcher

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/huandu/skiplist"
	"github.com/sirupsen/logrus"

	"escrow-market/internal/market"
)

// AuctionLookup loads the current state of an auction.
type AuctionLookup func(ctx context.Context, asset solana.PublicKey) (*market.Auction, error)

type deadline struct {
	end   int64
	asset solana.PublicKey
}

func compareDeadlines(lhs, rhs interface{}) int {
	l, r := lhs.(deadline), rhs.(deadline)
	switch {
	case l.end < r.end:
		return -1
	case l.end > r.end:
		return 1
	}
	return bytes.Compare(l.asset[:], r.asset[:])
}

// Watcher tracks active auctions and publishes auction_ended once per auction
// when its end time passes.
type Watcher struct {
	mu      sync.Mutex
	queue   *skiplist.SkipList
	byAsset map[solana.PublicKey]deadline

	lookup AuctionLookup
	sink   market.EventSink
	clock  market.Clock
	log    *logrus.Entry
}

// New creates a watcher. lookup may be nil, in which case ended events carry
// only the asset and end time.
func New(lookup AuctionLookup, sink market.EventSink, clock market.Clock, logger *logrus.Logger) *Watcher {
	if clock == nil {
		clock = market.SystemClock{}
	}
	if sink == nil {
		sink = market.EventSinks{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Watcher{
		queue:   skiplist.New(skiplist.GreaterThanFunc(compareDeadlines)),
		byAsset: make(map[solana.PublicKey]deadline),
		lookup:  lookup,
		sink:    sink,
		clock:   clock,
		log:     logger.WithField("component", "watcher"),
	}
}

// Publish implements market.EventSink so the watcher can follow the engine.
func (w *Watcher) Publish(_ context.Context, ev market.Event) {
	switch ev.Type {
	case market.EventAuctionCreated:
		if ev.EndTime != nil {
			w.Track(ev.Asset, *ev.EndTime)
		}
	case market.EventAuctionClaimed, market.EventAuctionCancelled:
		w.Forget(ev.Asset)
	}
}

// Track schedules an auction. Tracking an asset again replaces its end time.
func (w *Watcher) Track(asset solana.PublicKey, end time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.forgetLocked(asset)
	d := deadline{end: end.UnixNano(), asset: asset}
	w.queue.Set(d, struct{}{})
	w.byAsset[asset] = d
}

// Forget stops tracking an auction.
func (w *Watcher) Forget(asset solana.PublicKey) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.forgetLocked(asset)
}

func (w *Watcher) forgetLocked(asset solana.PublicKey) {
	if d, ok := w.byAsset[asset]; ok {
		w.queue.Remove(d)
		delete(w.byAsset, asset)
	}
}

// Pending returns the number of tracked auctions.
func (w *Watcher) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.queue.Len()
}

// Sweep publishes auction_ended for every tracked auction whose end time is
// not after now and returns how many it announced.
func (w *Watcher) Sweep(ctx context.Context) int {
	now := w.clock.Now().UnixNano()

	w.mu.Lock()
	var due []deadline
	for elem := w.queue.Front(); elem != nil; elem = w.queue.Front() {
		d := elem.Key().(deadline)
		if d.end > now {
			break
		}
		w.queue.Remove(d)
		delete(w.byAsset, d.asset)
		due = append(due, d)
	}
	w.mu.Unlock()

	announced := 0
	for _, d := range due {
		ev, ok := w.endedEvent(ctx, d)
		if !ok {
			continue
		}
		w.sink.Publish(ctx, ev)
		announced++
	}
	return announced
}

func (w *Watcher) endedEvent(ctx context.Context, d deadline) (market.Event, bool) {
	end := time.Unix(0, d.end).UTC()
	ev := market.Event{Type: market.EventAuctionEnded, Asset: d.asset, EndTime: &end, Timestamp: w.clock.Now()}
	if w.lookup == nil {
		return ev, true
	}

	a, err := w.lookup(ctx, d.asset)
	if err != nil {
		w.log.WithField("asset", d.asset).Warnf("Failed to load ended auction: %v", err)
		return ev, true
	}
	if a.Status != market.AuctionActive {
		return ev, false
	}
	ev.Actor = a.Creator
	ev.Counterparty = a.HighestBidder
	ev.Price = a.HighestBid
	ev.Currency = a.Currency
	return ev, true
}

// Run sweeps every interval until ctx is done.
func (w *Watcher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := w.Sweep(ctx); n > 0 {
				w.log.WithField("count", n).Info("Announced ended auctions")
			}
		}
	}
}
