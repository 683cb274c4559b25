// Package numeric converts between the unbounded naturals used by the
// accounting layer and the fixed-width integers the EVM and go-ethereum
// expect, and normalizes addresses to a single canonical string form.
package numeric

import (
	"math/big"

	"github.com/holiman/uint256"
)

// ToU256 converts a big.Int to a uint256.Int, clamping negative values to
// zero and overflowing values to the maximum representable uint256. Callers
// in the accounting layer never construct negative amounts, but clamping
// keeps the conversion total instead of panicking.
func ToU256(n *big.Int) *uint256.Int {
	if n == nil || n.Sign() <= 0 {
		return uint256.NewInt(0)
	}
	u, overflow := uint256.FromBig(n)
	if overflow {
		return new(uint256.Int).SetAllOne()
	}
	return u
}

// FromU256 converts a uint256.Int back to a big.Int.
func FromU256(u *uint256.Int) *big.Int {
	if u == nil {
		return new(big.Int)
	}
	return u.ToBig()
}

// ToUint64 extracts the low 64 bits of n. Callers only use this for
// values already known to fit (chain IDs, frequencies).
func ToUint64(n *big.Int) uint64 {
	if n == nil {
		return 0
	}
	return n.Uint64()
}

// SaturatingAdd returns a+b, never overflowing a big.Int (big.Int is already
// arbitrary precision, so this just exists to name the invariant explicitly
// at call sites in the balance ledger).
func SaturatingAdd(a, b *big.Int) *big.Int {
	return new(big.Int).Add(nonNil(a), nonNil(b))
}

// SaturatingSub returns a-b, floored at zero.
func SaturatingSub(a, b *big.Int) *big.Int {
	r := new(big.Int).Sub(nonNil(a), nonNil(b))
	if r.Sign() < 0 {
		return new(big.Int)
	}
	return r
}

func nonNil(n *big.Int) *big.Int {
	if n == nil {
		return new(big.Int)
	}
	return n
}

// MulUint64 multiplies n by a uint64 factor.
func MulUint64(n *big.Int, factor uint64) *big.Int {
	return new(big.Int).Mul(nonNil(n), new(big.Int).SetUint64(factor))
}

// GasPriceWithMultiplier applies the publisher's fixed x1.2 gas-price
// bump, computed as (price/10)*12 in integer arithmetic, so a gas price
// of 9 wei rounds down to zero-tenths first rather than going through
// floating point.
func GasPriceWithMultiplier(price *big.Int) *big.Int {
	tenth := new(big.Int).Div(nonNil(price), big.NewInt(10))
	return new(big.Int).Mul(tenth, big.NewInt(12))
}
