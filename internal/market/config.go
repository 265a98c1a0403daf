package market

import (
	"github.com/gagliardetto/solana-go"

	"escrow-market/pkg/safe"
)

// FeeRate returns the fee rate for a currency.
func (c *MarketConfig) FeeRate(cur Currency) uint64 {
	if cur == CurrencyToken {
		return c.FeeRateToken
	}
	return c.FeeRateSol
}

// TreasuryRateSum returns the sum of all treasury rates.
func (c *MarketConfig) TreasuryRateSum() (uint64, error) {
	var sum uint64
	for _, t := range c.Treasuries {
		var err error
		if sum, err = safe.Add(sum, t.Rate); err != nil {
			return 0, arith(err, "treasury rate sum")
		}
	}
	return sum, nil
}

// TreasuryIndex returns the position of addr or -1.
func (c *MarketConfig) TreasuryIndex(addr solana.PublicKey) int {
	for i, t := range c.Treasuries {
		if t.Address.Equals(addr) {
			return i
		}
	}
	return -1
}

func validateFeeRate(rate uint64) error {
	if rate == 0 || rate >= Permyriad {
		return errorf(CodeInvalidFeeRate, "fee rate %d must be in (0, %d)", rate, Permyriad)
	}
	return nil
}

func (c *MarketConfig) setFees(solRate, tokenRate uint64) error {
	if err := validateFeeRate(solRate); err != nil {
		return err
	}
	if err := validateFeeRate(tokenRate); err != nil {
		return err
	}
	c.FeeRateSol = solRate
	c.FeeRateToken = tokenRate
	c.Version++
	return nil
}

func (c *MarketConfig) addTreasury(addr solana.PublicKey, rate uint64) error {
	if addr.IsZero() {
		return errorf(CodeInvalidTreasuryRate, "treasury address must not be empty")
	}
	if c.TreasuryIndex(addr) >= 0 {
		return errorf(CodeTreasuryExists, "treasury %s already added", addr)
	}
	if len(c.Treasuries) >= MaxTreasuries {
		return errorf(CodeTreasuryCapacity, "at most %d treasuries", MaxTreasuries)
	}
	if rate == 0 || rate > Permyriad {
		return errorf(CodeInvalidTreasuryRate, "treasury rate %d must be in (0, %d]", rate, Permyriad)
	}
	sum, err := c.TreasuryRateSum()
	if err != nil {
		return err
	}
	total, err := safe.Add(sum, rate)
	if err != nil {
		return arith(err, "treasury rate sum")
	}
	if total > Permyriad {
		return errorf(CodeTreasuryRateSum, "treasury rates would sum to %d", total)
	}

	c.Treasuries = append(c.Treasuries, Treasury{Address: addr, Rate: rate})
	c.Version++
	return nil
}

// removeTreasury swap-removes addr: the last treasury takes its slot, so the
// stored order of the remaining entries changes.
func (c *MarketConfig) removeTreasury(addr solana.PublicKey) error {
	if len(c.Treasuries) == 0 {
		return ErrNoTreasury
	}
	idx := c.TreasuryIndex(addr)
	if idx < 0 {
		return errorf(CodeTreasuryNotFound, "treasury %s not found", addr)
	}

	last := len(c.Treasuries) - 1
	c.Treasuries[idx] = c.Treasuries[last]
	c.Treasuries = c.Treasuries[:last]
	c.Version++
	return nil
}
