package market

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
)

// FeeRequest sets both fee rates.
type FeeRequest struct {
	Caller       solana.PublicKey
	FeeRateSol   uint64
	FeeRateToken uint64
	Claims       Claims
}

// TreasuryRequest adds or removes a beneficiary. Rate is ignored on removal.
type TreasuryRequest struct {
	Caller   solana.PublicKey
	Treasury solana.PublicKey
	Rate     uint64
	Claims   Claims
}

// Initialize creates the market configuration with the caller as super admin.
// It succeeds only once.
func (e *Engine) Initialize(ctx context.Context, req FeeRequest) (*Receipt, error) {
	fields := logrus.Fields{"caller": req.Caller, "fee_sol": req.FeeRateSol, "fee_token": req.FeeRateToken}
	return e.run(ctx, "initialize", fields, func(ctx context.Context, tx Tx, r *Receipt) error {
		if err := requireCaller(req.Caller); err != nil {
			return err
		}
		addr, err := e.locate("config", req.Claims.Config, e.addr.Config)
		if err != nil {
			return err
		}

		cfg := &MarketConfig{Address: addr, SuperAdmin: req.Caller}
		if err := cfg.setFees(req.FeeRateSol, req.FeeRateToken); err != nil {
			return err
		}
		if err := e.create(tx, "config", cfg); err != nil {
			return err
		}
		e.emit(r, Event{Type: EventConfigUpdated, Actor: req.Caller})
		return nil
	})
}

// UpdateFee replaces both fee rates. Each must lie strictly between 0 and
// 10,000 basis points.
func (e *Engine) UpdateFee(ctx context.Context, req FeeRequest) (*Receipt, error) {
	fields := logrus.Fields{"caller": req.Caller, "fee_sol": req.FeeRateSol, "fee_token": req.FeeRateToken}
	return e.run(ctx, "update_fee", fields, func(ctx context.Context, tx Tx, r *Receipt) error {
		cfg, err := e.adminConfig(tx, req.Caller, req.Claims.Config)
		if err != nil {
			return err
		}
		if err := cfg.setFees(req.FeeRateSol, req.FeeRateToken); err != nil {
			return err
		}
		if err := e.save(tx, "config", cfg); err != nil {
			return err
		}
		e.emit(r, Event{Type: EventConfigUpdated, Actor: req.Caller})
		return nil
	})
}

// AddTreasury appends a beneficiary to the end of the treasury list.
func (e *Engine) AddTreasury(ctx context.Context, req TreasuryRequest) (*Receipt, error) {
	fields := logrus.Fields{"caller": req.Caller, "treasury": req.Treasury, "rate": req.Rate}
	return e.run(ctx, "add_treasury", fields, func(ctx context.Context, tx Tx, r *Receipt) error {
		cfg, err := e.adminConfig(tx, req.Caller, req.Claims.Config)
		if err != nil {
			return err
		}
		if err := cfg.addTreasury(req.Treasury, req.Rate); err != nil {
			return err
		}
		if err := e.save(tx, "config", cfg); err != nil {
			return err
		}
		e.emit(r, Event{Type: EventConfigUpdated, Actor: req.Caller, Counterparty: req.Treasury})
		return nil
	})
}

// RemoveTreasury drops a beneficiary by moving the last entry into its slot.
// Callers that pass treasury references must re-read the list afterwards:
// the stored order changes and Version is bumped.
func (e *Engine) RemoveTreasury(ctx context.Context, req TreasuryRequest) (*Receipt, error) {
	fields := logrus.Fields{"caller": req.Caller, "treasury": req.Treasury}
	return e.run(ctx, "remove_treasury", fields, func(ctx context.Context, tx Tx, r *Receipt) error {
		cfg, err := e.adminConfig(tx, req.Caller, req.Claims.Config)
		if err != nil {
			return err
		}
		if err := cfg.removeTreasury(req.Treasury); err != nil {
			return err
		}
		if err := e.save(tx, "config", cfg); err != nil {
			return err
		}
		e.emit(r, Event{Type: EventConfigUpdated, Actor: req.Caller, Counterparty: req.Treasury})
		return nil
	})
}

func (e *Engine) adminConfig(tx Tx, caller, claimed solana.PublicKey) (*MarketConfig, error) {
	cfg, err := e.loadConfig(tx, claimed)
	if err != nil {
		return nil, err
	}
	if caller.IsZero() || !cfg.SuperAdmin.Equals(caller) {
		return nil, ErrNotSuperAdmin
	}
	return cfg, nil
}
