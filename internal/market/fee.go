package market

import (
	"github.com/gagliardetto/solana-go"

	"escrow-market/pkg/safe"
)

// Share is one treasury's cut of a fee.
type Share struct {
	Address solana.PublicKey `json:"address"`
	Rate    uint64           `json:"rate"`
	Amount  uint64           `json:"amount"`
}

// Distribution is the split of a gross price between the recipient and the
// treasuries. Dust is the floor-division residue that nobody receives.
type Distribution struct {
	Price   uint64  `json:"price"`
	FeeRate uint64  `json:"fee_rate"`
	Fee     uint64  `json:"fee"`
	Net     uint64  `json:"net"`
	Shares  []Share `json:"shares"`
	Dust    uint64  `json:"dust"`
}

// Paid returns Net plus every share.
func (d Distribution) Paid() uint64 {
	total := d.Net
	for _, s := range d.Shares {
		total += s.Amount
	}
	return total
}

// Distribute splits price between the recipient and the treasuries.
//
//	fee     = floor(price * feeRate / 10000)
//	net     = price - fee
//	share_i = floor(fee * rate_i / 10000)
//
// net + sum(share_i) never exceeds price.
func Distribute(price, feeRateBps uint64, treasuries []Treasury) (Distribution, error) {
	if feeRateBps >= Permyriad {
		return Distribution{}, errorf(CodeInvalidFeeRate, "fee rate %d must be below %d", feeRateBps, Permyriad)
	}

	fee, err := safe.MulDiv(price, feeRateBps, Permyriad)
	if err != nil {
		return Distribution{}, arith(err, "fee computation")
	}
	net, err := safe.Sub(price, fee)
	if err != nil {
		return Distribution{}, arith(err, "net computation")
	}

	d := Distribution{
		Price:   price,
		FeeRate: feeRateBps,
		Fee:     fee,
		Net:     net,
		Shares:  make([]Share, 0, len(treasuries)),
	}

	var paid uint64
	for _, t := range treasuries {
		if t.Rate == 0 || t.Rate > Permyriad {
			return Distribution{}, errorf(CodeInvalidTreasuryRate, "treasury %s has rate %d", t.Address, t.Rate)
		}
		amount, err := safe.MulDiv(fee, t.Rate, Permyriad)
		if err != nil {
			return Distribution{}, arith(err, "treasury share")
		}
		if paid, err = safe.Add(paid, amount); err != nil {
			return Distribution{}, arith(err, "treasury share sum")
		}
		d.Shares = append(d.Shares, Share{Address: t.Address, Rate: t.Rate, Amount: amount})
	}

	// Rates summing above 100% would pay out more than the fee.
	if d.Dust, err = safe.Sub(fee, paid); err != nil {
		return Distribution{}, errorf(CodeTreasuryRateSum, "treasury shares %d exceed fee %d", paid, fee)
	}
	return d, nil
}

// ValidateBeneficiaries checks that refs name the stored treasuries in stored
// order. The count is checked before any address.
func ValidateBeneficiaries(treasuries []Treasury, refs []solana.PublicKey) error {
	if len(refs) != len(treasuries) {
		return errorf(CodeTreasuryMismatch, "expected %d treasury references, got %d", len(treasuries), len(refs))
	}
	for i, t := range treasuries {
		if !refs[i].Equals(t.Address) {
			return errorf(CodeTreasuryMismatch, "treasury reference %d is %s, expected %s", i, refs[i], t.Address)
		}
	}
	return nil
}
