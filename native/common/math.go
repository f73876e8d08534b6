package common

import (
	"errors"

	"github.com/holiman/uint256"
)

// ErrArithmeticOverflow is returned whenever a balance computation would wrap.
var ErrArithmeticOverflow = errors.New("arithmetic overflow")

// Amount returns a copy of v, treating nil as zero.
func Amount(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v.Clone()
}

// CheckedAdd returns a+b or ErrArithmeticOverflow.
func CheckedAdd(a, b *uint256.Int) (*uint256.Int, error) {
	sum, overflow := new(uint256.Int).AddOverflow(Amount(a), Amount(b))
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return sum, nil
}

// CheckedMul returns a*b or ErrArithmeticOverflow.
func CheckedMul(a, b *uint256.Int) (*uint256.Int, error) {
	product, overflow := new(uint256.Int).MulOverflow(Amount(a), Amount(b))
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return product, nil
}

// CheckedMulUint64 returns a*b or ErrArithmeticOverflow.
func CheckedMulUint64(a *uint256.Int, b uint64) (*uint256.Int, error) {
	return CheckedMul(a, uint256.NewInt(b))
}

// SaturatingSub returns a-b, clamped at zero.
func SaturatingSub(a, b *uint256.Int) *uint256.Int {
	left, right := Amount(a), Amount(b)
	if left.Lt(right) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(left, right)
}
