package models

import (
	"fmt"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// LamportDecimals is the number of decimals of one SOL.
const LamportDecimals = 9

// DecimalFromString creates a decimal from string with error handling
func DecimalFromString(value string) decimal.Decimal {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// DecimalFromUint64 creates a decimal holding an exact uint64
func DecimalFromUint64(value uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(value), 0)
}

// Uint64FromDecimal converts a stored amount back to minor units. It fails on
// fractions, negatives and values beyond uint64.
func Uint64FromDecimal(d decimal.Decimal) (uint64, error) {
	if !d.IsInteger() {
		return 0, fmt.Errorf("amount %s is not an integer", d)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("amount %s is negative", d)
	}
	b := d.BigInt()
	if !b.IsUint64() {
		return 0, fmt.Errorf("amount %s overflows uint64", d)
	}
	return b.Uint64(), nil
}

// ToDisplay renders minor units with the given number of decimals.
func ToDisplay(amount uint64, decimals int32) decimal.Decimal {
	return DecimalFromUint64(amount).Shift(-decimals)
}

// LamportsToSOL renders lamports as SOL.
func LamportsToSOL(lamports uint64) decimal.Decimal {
	return ToDisplay(lamports, LamportDecimals)
}

// KeyString encodes a key, leaving the zero key empty.
func KeyString(k solana.PublicKey) string {
	if k.IsZero() {
		return ""
	}
	return k.String()
}

// ParseKey is the inverse of KeyString.
func ParseKey(s string) (solana.PublicKey, error) {
	if s == "" {
		return solana.PublicKey{}, nil
	}
	k, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return k, nil
}

// keyReader collects the first parse failure so conversions stay linear.
type keyReader struct{ err error }

func (r *keyReader) key(s string) solana.PublicKey {
	k, err := ParseKey(s)
	if err != nil && r.err == nil {
		r.err = err
	}
	return k
}

func (r *keyReader) amount(a Amount) uint64 {
	v, err := a.Uint64()
	if err != nil && r.err == nil {
		r.err = err
	}
	return v
}
