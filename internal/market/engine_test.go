package market

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errCommit = errors.New("commit failed")

// commitFailStore runs the unit of work and then refuses to commit it.
type commitFailStore struct {
	*MemoryStore
}

func (s commitFailStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return s.MemoryStore.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := fn(ctx, tx); err != nil {
			return err
		}
		return errCommit
	})
}

func TestCommitFailureAfterCustodyIsLogged(t *testing.T) {
	f := newFixture(t)
	seller, buyer := f.user(), f.user()
	asset := f.listed(seller, 1000, 400)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	hook := test.NewLocal(logger)
	f.engine.log = logger.WithField("component", "market")
	f.engine.store = commitFailStore{f.store}
	before := f.custody.count()

	_, err := f.engine.Purchase(f.ctx, PurchaseRequest{Caller: buyer, Asset: asset, Currency: CurrencySol, Treasuries: f.treasury})
	require.ErrorIs(t, err, errCommit)

	// custody ran, the records did not change
	assert.Equal(t, before+1, f.custody.count())
	f.engine.store = f.store
	assert.True(t, f.listing(asset).Active)
	assert.NotContains(t, f.sink.types(), EventPurchased)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, f.custody.last().ID, entry.Data["settlement"])
	assert.Equal(t, "purchase", entry.Data["op"])
}

func TestRejectedOperationLogsWarning(t *testing.T) {
	f := newFixture(t)
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	hook := test.NewLocal(logger)
	f.engine.log = logger.WithField("component", "market")

	_, err := f.engine.Withdraw(f.ctx, LedgerRequest{Caller: f.user(), Sol: 1})
	require.Error(t, err)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.NotContains(t, entry.Data, "settlement")
}
