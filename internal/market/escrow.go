package market

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
)

// LedgerRequest addresses the caller's own ledger.
type LedgerRequest struct {
	Caller solana.PublicKey
	Sol    uint64
	Token  uint64
	Claims Claims
}

// InitUserLedger creates the caller's ledger with zero balances.
func (e *Engine) InitUserLedger(ctx context.Context, req LedgerRequest) (*Receipt, error) {
	return e.run(ctx, "init_user_ledger", logrus.Fields{"caller": req.Caller}, func(ctx context.Context, tx Tx, r *Receipt) error {
		if err := requireCaller(req.Caller); err != nil {
			return err
		}
		addr, err := e.locate("user ledger", req.Claims.Ledger, func() (solana.PublicKey, error) {
			return e.addr.UserLedger(req.Caller)
		})
		if err != nil {
			return err
		}
		return e.create(tx, "user ledger", &UserLedger{Address: addr, Owner: req.Caller})
	})
}

// Deposit moves funds from the caller into the vault and credits the
// caller's escrow balances.
func (e *Engine) Deposit(ctx context.Context, req LedgerRequest) (*Receipt, error) {
	fields := logrus.Fields{"caller": req.Caller, "sol": req.Sol, "token": req.Token}
	return e.run(ctx, "deposit", fields, func(ctx context.Context, tx Tx, r *Receipt) error {
		if req.Sol == 0 && req.Token == 0 {
			return errorf(CodeInvalidAmount, "deposit needs a nonzero sol or token amount")
		}
		ledger, err := e.loadLedger(tx, req.Caller, req.Claims.Ledger)
		if err != nil {
			return err
		}
		if err := ledger.adjust(req.Sol, req.Token, (*UserLedger).credit); err != nil {
			return err
		}
		if err := e.save(tx, "user ledger", ledger); err != nil {
			return err
		}

		e.emitBalance(r, EventDeposit, req)
		return e.settle(ctx, r, []Transfer{
			{Kind: TransferSol, From: req.Caller, To: e.vault, Amount: req.Sol},
			{Kind: TransferToken, From: req.Caller, To: e.vault, Amount: req.Token},
		})
	})
}

// Withdraw returns escrowed funds to the caller. Asking for more than the
// escrow balance fails with an underflow and changes nothing.
func (e *Engine) Withdraw(ctx context.Context, req LedgerRequest) (*Receipt, error) {
	fields := logrus.Fields{"caller": req.Caller, "sol": req.Sol, "token": req.Token}
	return e.run(ctx, "withdraw", fields, func(ctx context.Context, tx Tx, r *Receipt) error {
		if req.Sol == 0 && req.Token == 0 {
			return errorf(CodeInvalidAmount, "withdraw needs a nonzero sol or token amount")
		}
		ledger, err := e.loadLedger(tx, req.Caller, req.Claims.Ledger)
		if err != nil {
			return err
		}
		if err := ledger.adjust(req.Sol, req.Token, (*UserLedger).debit); err != nil {
			return err
		}
		if err := e.save(tx, "user ledger", ledger); err != nil {
			return err
		}

		e.emitBalance(r, EventWithdraw, req)
		return e.settle(ctx, r, []Transfer{
			{Kind: TransferSol, From: e.vault, To: req.Caller, Amount: req.Sol},
			{Kind: TransferToken, From: e.vault, To: req.Caller, Amount: req.Token},
		})
	})
}

// emitBalance records one event per currency that moved.
func (e *Engine) emitBalance(r *Receipt, typ EventType, req LedgerRequest) {
	if req.Sol > 0 {
		e.emit(r, Event{Type: typ, Actor: req.Caller, Price: req.Sol, Currency: CurrencySol})
	}
	if req.Token > 0 {
		e.emit(r, Event{Type: typ, Actor: req.Caller, Price: req.Token, Currency: CurrencyToken})
	}
}
