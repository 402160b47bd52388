/*

This is a custom type for resources (lending pools, savings rates, vaults) which contains all the
state needed for validating and scoring allocations against them.

*/

package types

import (
	"cosmossdk.io/math"
)

// ResourceKey identifies a resource, usually the contract address of the venue.
type ResourceKey string

// ResourceKind tags the resource variant. Capabilities are dispatched on it.
type ResourceKind string

const (
	ResourceFixedRate  ResourceKind = "FIXED_RATE"  // Savings rate set by governance, no borrowing
	ResourceLending    ResourceKind = "LENDING"     // Utilization-based lending pool
	ResourceShareVault ResourceKind = "SHARE_VAULT" // Share-based vault exposing max withdrawable
)

// Resource is a read-only snapshot of one venue, synchronized before a scoring round.
type Resource struct {
	Key  ResourceKey  `json:"key"`
	Kind ResourceKind `json:"kind"`

	TotalSupplied   math.Int `json:"total_supplied"`   // Assets supplied to the venue (base units)
	TotalBorrowed   math.Int `json:"total_borrowed"`   // Assets currently borrowed out (lending venues)
	MaxWithdrawable math.Int `json:"max_withdrawable"` // Withdrawable right now (share vaults)
	UserDeposit     math.Int `json:"user_deposit"`     // The requesting party's existing position
	YieldIndex      math.Int `json:"yield_index"`      // Monotonically non-decreasing share price / liquidity index

	// Rate model
	SupplyRate         math.LegacyDec `json:"supply_rate"`         // FIXED_RATE and SHARE_VAULT annual rate
	BaseRate           math.LegacyDec `json:"base_rate"`           // LENDING borrow rate at 0% utilization
	Slope1             math.LegacyDec `json:"slope1"`              // LENDING borrow rate slope below the kink
	Slope2             math.LegacyDec `json:"slope2"`              // LENDING borrow rate slope above the kink
	OptimalUtilization math.LegacyDec `json:"optimal_utilization"` // LENDING kink, in (0,1)
	ReserveFactor      math.LegacyDec `json:"reserve_factor"`      // LENDING share of interest kept by the protocol
}

// AvailableLiquidity returns the amount the venue can pay out right now, floored at zero.
func (r Resource) AvailableLiquidity() math.Int {
	var available math.Int
	switch r.Kind {
	case ResourceShareVault:
		available = IntOrZero(r.MaxWithdrawable)
	default:
		available = IntOrZero(r.TotalSupplied).Sub(IntOrZero(r.TotalBorrowed))
	}
	if available.IsNegative() {
		return math.ZeroInt()
	}
	return available
}

// Shortfall is the amount by which the venue cannot currently honor a withdrawal of UserDeposit.
func (r Resource) Shortfall() math.Int {
	shortfall := IntOrZero(r.UserDeposit).Sub(r.AvailableLiquidity())
	if shortfall.IsNegative() {
		return math.ZeroInt()
	}
	return shortfall
}

// MinimumAllocation is the floor an allocation has to put into this resource.
func (r Resource) MinimumAllocation() math.Int {
	return r.Shortfall()
}

// YieldRate returns the annual supply rate the venue would pay if proposed more units were supplied.
func (r Resource) YieldRate(proposed math.Int) math.LegacyDec {
	proposed = IntOrZero(proposed)
	switch r.Kind {
	case ResourceFixedRate:
		return DecOrZero(r.SupplyRate)

	case ResourceShareVault:
		supplied := IntOrZero(r.TotalSupplied)
		total := supplied.Add(proposed)
		if !total.IsPositive() {
			return DecOrZero(r.SupplyRate)
		}
		return DecOrZero(r.SupplyRate).MulInt(supplied).QuoInt(total)

	case ResourceLending:
		supplied := IntOrZero(r.TotalSupplied).Add(proposed)
		if !supplied.IsPositive() {
			return math.LegacyZeroDec()
		}
		utilization := math.LegacyNewDecFromInt(IntOrZero(r.TotalBorrowed)).QuoInt(supplied)
		if utilization.GT(math.LegacyOneDec()) {
			utilization = math.LegacyOneDec()
		}
		borrowRate := r.borrowRate(utilization)
		return borrowRate.Mul(utilization).Mul(math.LegacyOneDec().Sub(DecOrZero(r.ReserveFactor)))
	}
	return math.LegacyZeroDec()
}

// borrowRate evaluates the kinked interest rate curve of a lending venue.
func (r Resource) borrowRate(utilization math.LegacyDec) math.LegacyDec {
	base := DecOrZero(r.BaseRate)
	slope1 := DecOrZero(r.Slope1)
	slope2 := DecOrZero(r.Slope2)
	optimal := DecOrZero(r.OptimalUtilization)

	if !optimal.IsPositive() || optimal.GTE(math.LegacyOneDec()) {
		return base.Add(slope1.Mul(utilization))
	}
	if utilization.LTE(optimal) {
		return base.Add(slope1.Mul(utilization).Quo(optimal))
	}
	excess := utilization.Sub(optimal).Quo(math.LegacyOneDec().Sub(optimal))
	return base.Add(slope1).Add(slope2.Mul(excess))
}

// IntOrZero maps an unset math.Int to zero so arithmetic never panics on nil.
func IntOrZero(i math.Int) math.Int {
	if i.IsNil() {
		return math.ZeroInt()
	}
	return i
}

// DecOrZero maps an unset math.LegacyDec to zero.
func DecOrZero(d math.LegacyDec) math.LegacyDec {
	if d.IsNil() {
		return math.LegacyZeroDec()
	}
	return d
}
