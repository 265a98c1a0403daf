package safe

import (
	"math/big"
	"testing"
)

// FuzzMulDiv checks MulDiv against math/big.
func FuzzMulDiv(f *testing.F) {
	f.Add(uint64(0), uint64(0), uint64(1))
	f.Add(uint64(1000), uint64(250), uint64(10_000))
	f.Add(uint64(18446744073709551615), uint64(9_999), uint64(10_000))
	f.Add(uint64(18446744073709551615), uint64(18446744073709551615), uint64(3))

	f.Fuzz(func(t *testing.T, a, b, c uint64) {
		got, err := MulDiv(a, b, c)
		if c == 0 {
			if err != ErrDivByZero {
				t.Fatalf("MulDiv(%d, %d, 0) err = %v", a, b, err)
			}
			return
		}
		want := new(big.Int).Mul(new(big.Int).SetUint64(a), new(big.Int).SetUint64(b))
		want.Quo(want, new(big.Int).SetUint64(c))
		if !want.IsUint64() {
			if err != ErrOverflow {
				t.Fatalf("MulDiv(%d, %d, %d) expected overflow, got %d", a, b, c, got)
			}
			return
		}
		if err != nil || got != want.Uint64() {
			t.Fatalf("MulDiv(%d, %d, %d) = %d, %v; want %s", a, b, c, got, err, want)
		}
	})
}

// FuzzAddSub checks that Add and Sub agree whenever neither fails.
func FuzzAddSub(f *testing.F) {
	f.Add(uint64(0), uint64(0))
	f.Add(uint64(10), uint64(5))
	f.Add(uint64(18446744073709551615), uint64(1))

	f.Fuzz(func(t *testing.T, a, b uint64) {
		sum, err := Add(a, b)
		if err != nil {
			return
		}
		back, err := Sub(sum, b)
		if err != nil || back != a {
			t.Fatalf("Sub(Add(%d, %d), %d) = %d, %v", a, b, b, back, err)
		}
	})
}
