package market

import "escrow-market/pkg/safe"

// Escrow returns the escrow balance for a currency.
func (l *UserLedger) Escrow(cur Currency) uint64 {
	if cur == CurrencyToken {
		return l.EscrowToken
	}
	return l.EscrowSol
}

func (l *UserLedger) credit(cur Currency, amount uint64) error {
	next, err := safe.Add(l.Escrow(cur), amount)
	if err != nil {
		return arith(err, "escrow "+string(cur)+" credit")
	}
	l.setEscrow(cur, next)
	return nil
}

func (l *UserLedger) debit(cur Currency, amount uint64) error {
	next, err := safe.Sub(l.Escrow(cur), amount)
	if err != nil {
		return arith(err, "escrow "+string(cur)+" debit")
	}
	l.setEscrow(cur, next)
	return nil
}

func (l *UserLedger) setEscrow(cur Currency, v uint64) {
	if cur == CurrencyToken {
		l.EscrowToken = v
	} else {
		l.EscrowSol = v
	}
}

// addVolume bumps the traded-volume accumulator for a currency.
func (l *UserLedger) addVolume(cur Currency, amount uint64) error {
	if cur == CurrencyToken {
		v, err := safe.Add(l.TradedTokenVolume, amount)
		if err != nil {
			return arith(err, "token volume")
		}
		l.TradedTokenVolume = v
		return nil
	}
	v, err := safe.Add(l.TradedSolVolume, amount)
	if err != nil {
		return arith(err, "sol volume")
	}
	l.TradedSolVolume = v
	return nil
}

// adjust applies a sol and token change together so that either both or
// neither land.
func (l *UserLedger) adjust(sol, token uint64, op func(*UserLedger, Currency, uint64) error) error {
	next := *l
	if sol > 0 {
		if err := op(&next, CurrencySol, sol); err != nil {
			return err
		}
	}
	if token > 0 {
		if err := op(&next, CurrencyToken, token); err != nil {
			return err
		}
	}
	*l = next
	return nil
}
