package market

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitUserLedgerOnce(t *testing.T) {
	f := newFixture(t)
	u := f.user()

	_, err := f.engine.InitUserLedger(f.ctx, LedgerRequest{Caller: u})
	requireCode(t, err, CodeRecordExists)

	l := f.ledger(u)
	assert.Equal(t, u, l.Owner)
	assert.Zero(t, l.EscrowSol)
}

func TestDepositAndWithdraw(t *testing.T) {
	f := newFixture(t)
	u := f.user()

	_, err := f.engine.Deposit(f.ctx, LedgerRequest{Caller: u})
	requireCode(t, err, CodeInvalidAmount)

	r, err := f.engine.Deposit(f.ctx, LedgerRequest{Caller: u, Sol: 500, Token: 70})
	require.NoError(t, err)
	require.NotNil(t, r.Settlement)
	require.Len(t, r.Settlement.Transfers, 2)
	assert.Equal(t, Transfer{Kind: TransferSol, From: u, To: f.engine.Vault(), Amount: 500}, r.Settlement.Transfers[0])
	assert.Equal(t, Transfer{Kind: TransferToken, From: u, To: f.engine.Vault(), Amount: 70}, r.Settlement.Transfers[1])

	_, err = f.engine.Withdraw(f.ctx, LedgerRequest{Caller: u, Sol: 200})
	require.NoError(t, err)

	l := f.ledger(u)
	assert.Equal(t, uint64(300), l.EscrowSol)
	assert.Equal(t, uint64(70), l.EscrowToken)
	last := f.custody.last()
	require.Len(t, last.Transfers, 1)
	assert.Equal(t, f.engine.Vault(), last.Transfers[0].From)
	assert.Equal(t, u, last.Transfers[0].To)
}

func TestOverWithdrawIsUnderflowAndChangesNothing(t *testing.T) {
	f := newFixture(t)
	u := f.user()
	_, err := f.engine.Deposit(f.ctx, LedgerRequest{Caller: u, Sol: 100, Token: 100})
	require.NoError(t, err)
	settled := f.custody.count()

	_, err = f.engine.Withdraw(f.ctx, LedgerRequest{Caller: u, Sol: 101})
	requireCode(t, err, CodeUnderflow)
	assert.Equal(t, CategoryArithmetic, CodeOf(err).Category())
	assert.True(t, errors.Is(err, ErrUnderflow))

	// the token leg is valid but must not land without the sol leg
	_, err = f.engine.Withdraw(f.ctx, LedgerRequest{Caller: u, Sol: 101, Token: 50})
	requireCode(t, err, CodeUnderflow)

	l := f.ledger(u)
	assert.Equal(t, uint64(100), l.EscrowSol)
	assert.Equal(t, uint64(100), l.EscrowToken)
	assert.Equal(t, settled, f.custody.count())
}

func TestDepositOverflowAborts(t *testing.T) {
	f := newFixture(t)
	u := f.user()
	_, err := f.engine.Deposit(f.ctx, LedgerRequest{Caller: u, Sol: ^uint64(0)})
	require.NoError(t, err)

	_, err = f.engine.Deposit(f.ctx, LedgerRequest{Caller: u, Sol: 1})
	requireCode(t, err, CodeOverflow)
	assert.Equal(t, ^uint64(0), f.ledger(u).EscrowSol)
}

func TestLedgerRequiresInit(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Deposit(f.ctx, LedgerRequest{Caller: newWallet(), Sol: 1})
	requireCode(t, err, CodeRecordNotFound)
	assert.Equal(t, 404, CodeOf(err).HTTPStatus())
}

func TestClaimedLedgerAddressMustMatch(t *testing.T) {
	f := newFixture(t)
	u := f.user()
	other := f.user()
	otherAddr, err := f.deriver.UserLedger(other)
	require.NoError(t, err)

	_, err = f.engine.Deposit(f.ctx, LedgerRequest{Caller: u, Sol: 10, Claims: Claims{Ledger: otherAddr}})
	requireCode(t, err, CodeRecordAddressMismatch)
	assert.Equal(t, CategoryAuthorization, CodeOf(err).Category())

	ownAddr, err := f.deriver.UserLedger(u)
	require.NoError(t, err)
	_, err = f.engine.Deposit(f.ctx, LedgerRequest{Caller: u, Sol: 10, Claims: Claims{Ledger: ownAddr}})
	require.NoError(t, err)
}

func TestCustodyFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	u := f.user()
	f.custody.failNext = errors.New("transfer rejected")

	_, err := f.engine.Deposit(f.ctx, LedgerRequest{Caller: u, Sol: 10})
	requireCode(t, err, CodeCustodyFailed)
	assert.Zero(t, f.ledger(u).EscrowSol)
}
