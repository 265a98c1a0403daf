package safe

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckedMath(t *testing.T) {
	tests := []struct {
		name string
		op   func() (uint64, error)
		want uint64
	}{
		{"add", func() (uint64, error) { return Add(10, 20) }, 30},
		{"add boundary", func() (uint64, error) { return Add(math.MaxUint64-1, 1) }, math.MaxUint64},
		{"sub", func() (uint64, error) { return Sub(30, 10) }, 20},
		{"sub to zero", func() (uint64, error) { return Sub(7, 7) }, 0},
		{"mul", func() (uint64, error) { return Mul(5, 6) }, 30},
		{"muldiv floors", func() (uint64, error) { return MulDiv(1000, 250, 10_000) }, 25},
		{"muldiv wide product", func() (uint64, error) { return MulDiv(math.MaxUint64, 9_999, 10_000) }, 18444899399302180659},
		{"sum", func() (uint64, error) { return Sum(1, 2, 3, 4) }, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.op()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheckedMathErrors(t *testing.T) {
	_, err := Add(math.MaxUint64, 1)
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = Sub(1, 2)
	assert.ErrorIs(t, err, ErrUnderflow)

	_, err = Mul(math.MaxUint64, 2)
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = MulDiv(math.MaxUint64, 2, 1)
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = MulDiv(1, 1, 0)
	assert.ErrorIs(t, err, ErrDivByZero)

	_, err = Sum(math.MaxUint64, 0, 1)
	assert.ErrorIs(t, err, ErrOverflow)
}
