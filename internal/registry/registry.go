// Package registry is the boundary to the external share-balance ledger:
// per-holder unit balances, total supply with a hard cap, spending
// allowances, and the sponsorship flag that removes a holder's weighting
// from prize eligibility.
package registry

import (
	"errors"

	"github.com/google/uuid"
)

var (
	ErrSupplyCapExceeded     = errors.New("registry: max supply exceeded")
	ErrInsufficientUnits     = errors.New("registry: insufficient unit balance")
	ErrInsufficientAllowance = errors.New("registry: insufficient allowance")
	ErrZeroHolder            = errors.New("registry: zero holder address")
)

type Registry interface {
	// Mint credits units to a holder. Fails with ErrSupplyCapExceeded if
	// the new total supply would pass MaxSupply.
	Mint(holder uuid.UUID, amount uint64) error

	// Burn debits units from a holder.
	Burn(holder uuid.UUID, amount uint64) error

	TotalSupply() uint64
	BalanceOf(holder uuid.UUID) uint64

	// MaxSupply is the registry's hard total-supply bound, set by its
	// storage width. Materially smaller than the asset's numeric range.
	MaxSupply() uint64

	Allowance(owner, spender uuid.UUID) uint64
	Approve(owner, spender uuid.UUID, amount uint64) error
	SpendAllowance(owner, spender uuid.UUID, amount uint64) error

	// Sponsor marks a holder's weighting as non-prize-eligible.
	// Idempotent.
	Sponsor(holder uuid.UUID) error
	IsSponsored(holder uuid.UUID) bool
}
