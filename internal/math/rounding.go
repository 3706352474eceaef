package math

import (
	"github.com/holiman/uint256"
)

// RoundingMode selects the rounding direction for a division.
// Every call site picks the direction that can never short-change the ledger:
// round down when bounding what a caller may take, round up when computing
// what must be burned to deliver a requested amount.
type RoundingMode int

const (
	RoundDown RoundingMode = iota
	RoundUp
)

// MulDiv computes a * b / denominator with 256-bit intermediates so the
// product cannot overflow. Panics if denominator is zero — callers guard
// divisors the same way the ledger guards its debt totals.
func MulDiv(a, b, denominator uint64, mode RoundingMode) uint64 {
	if denominator == 0 {
		panic("math: MulDiv division by zero")
	}

	num := new(uint256.Int).Mul(
		uint256.NewInt(a),
		uint256.NewInt(b),
	)
	denom := uint256.NewInt(denominator)

	quo := new(uint256.Int)
	rem := new(uint256.Int)
	quo.DivMod(num, denom, rem)

	if mode == RoundUp && !rem.IsZero() {
		quo.AddUint64(quo, 1)
	}

	// A quotient past the uint64 ceiling saturates rather than truncates.
	// Callers compare results against real balances and capacities, so
	// the clamp always lands on the rejecting side.
	if !quo.IsUint64() {
		return maxUint64
	}
	return quo.Uint64()
}

// FeePrecision is the fixed-point basis for fee percentages: 1e9 = 100%.
const FeePrecision uint64 = 1_000_000_000

// FeeOnRaw returns the fee owed on top of amount such that
// fee / (amount + fee) == feeFrac / FeePrecision, rounded down.
func FeeOnRaw(amount, feeFrac uint64) uint64 {
	if feeFrac == 0 {
		return 0
	}
	return MulDiv(amount, feeFrac, FeePrecision-feeFrac, RoundDown)
}

// NetOfFee reduces gross by the fee fraction, rounded down: the portion of a
// yield balance that remains liquidatable after the fee reservation.
func NetOfFee(gross, feeFrac uint64) uint64 {
	if feeFrac == 0 {
		return gross
	}
	return MulDiv(gross, FeePrecision-feeFrac, FeePrecision, RoundDown)
}

const maxUint64 = 1<<64 - 1

// SaturatingSub returns a-b, clamped at zero.
func SaturatingSub(a, b uint64) uint64 {
	if a < b {
		return 0
	}
	return a - b
}

// SaturatingAdd returns a+b, clamped at the uint64 ceiling. Capacity and
// solvency guards sum with it so a near-ceiling request can never wrap
// below the bound it is checked against.
func SaturatingAdd(a, b uint64) uint64 {
	if a > maxUint64-b {
		return maxUint64
	}
	return a + b
}
