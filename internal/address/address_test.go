package address

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDeriver(t *testing.T) *Deriver {
	t.Helper()
	d, err := NewDeriver(solana.NewWallet().PublicKey())
	require.NoError(t, err)
	return d
}

func TestNewDeriverRejectsEmptyProgram(t *testing.T) {
	_, err := NewDeriver(solana.PublicKey{})
	assert.Error(t, err)
}

func TestDerivationIsDeterministic(t *testing.T) {
	d := newTestDeriver(t)
	asset := solana.NewWallet().PublicKey()

	first, err := d.Listing(asset)
	require.NoError(t, err)
	second, err := d.Listing(asset)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	other, err := NewDeriver(d.ProgramID())
	require.NoError(t, err)
	third, err := other.Listing(asset)
	require.NoError(t, err)
	assert.Equal(t, first, third)
}

func TestRecordKindsDoNotCollide(t *testing.T) {
	d := newTestDeriver(t)
	asset := solana.NewWallet().PublicKey()
	bidder := solana.NewWallet().PublicKey()

	cfg, err := d.Config()
	require.NoError(t, err)
	vault, err := d.Vault()
	require.NoError(t, err)
	listing, err := d.Listing(asset)
	require.NoError(t, err)
	auction, err := d.Auction(asset)
	require.NoError(t, err)
	offer, err := d.Offer(asset, bidder)
	require.NoError(t, err)
	ledger, err := d.UserLedger(bidder)
	require.NoError(t, err)

	seen := map[solana.PublicKey]string{}
	for name, addr := range map[string]solana.PublicKey{
		"config": cfg, "vault": vault, "listing": listing,
		"auction": auction, "offer": offer, "ledger": ledger,
	} {
		prev, dup := seen[addr]
		assert.False(t, dup, "%s collides with %s", name, prev)
		seen[addr] = name
	}
}

func TestOfferAddressDependsOnBidder(t *testing.T) {
	d := newTestDeriver(t)
	asset := solana.NewWallet().PublicKey()

	a, err := d.Offer(asset, solana.NewWallet().PublicKey())
	require.NoError(t, err)
	b, err := d.Offer(asset, solana.NewWallet().PublicKey())
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestEmptyKeyRejected(t *testing.T) {
	d := newTestDeriver(t)
	_, err := d.UserLedger(solana.PublicKey{})
	assert.Error(t, err)
}
