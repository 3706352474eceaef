package registry

import (
	"fmt"

	"github.com/google/uuid"
)

// DefaultMaxSupply mirrors a 96-bit storage slot scaled into uint64 range.
// Kept far below the uint64 ceiling so conversion intermediates in the vault
// never approach the asset's numeric range.
const DefaultMaxSupply uint64 = 1 << 62

// MemoryRegistry is an in-process Registry backed by maps.
type MemoryRegistry struct {
	maxSupply   uint64
	totalSupply uint64
	balances    map[uuid.UUID]uint64
	allowances  map[uuid.UUID]map[uuid.UUID]uint64
	sponsored   map[uuid.UUID]bool
}

func NewMemoryRegistry(maxSupply uint64) *MemoryRegistry {
	if maxSupply == 0 {
		maxSupply = DefaultMaxSupply
	}
	return &MemoryRegistry{
		maxSupply:  maxSupply,
		balances:   make(map[uuid.UUID]uint64),
		allowances: make(map[uuid.UUID]map[uuid.UUID]uint64),
		sponsored:  make(map[uuid.UUID]bool),
	}
}

func (r *MemoryRegistry) Mint(holder uuid.UUID, amount uint64) error {
	if holder == uuid.Nil {
		return ErrZeroHolder
	}
	// totalSupply never exceeds maxSupply, so the headroom subtraction
	// cannot underflow; comparing against it is wrap-proof where the
	// additive form is not.
	if amount > r.maxSupply-r.totalSupply {
		return fmt.Errorf("%w: supply %d + mint %d > cap %d",
			ErrSupplyCapExceeded, r.totalSupply, amount, r.maxSupply)
	}
	r.totalSupply += amount
	r.balances[holder] += amount
	return nil
}

func (r *MemoryRegistry) Burn(holder uuid.UUID, amount uint64) error {
	if r.balances[holder] < amount {
		return fmt.Errorf("%w: holder %s has %d, burn %d",
			ErrInsufficientUnits, holder, r.balances[holder], amount)
	}
	r.balances[holder] -= amount
	r.totalSupply -= amount
	return nil
}

func (r *MemoryRegistry) TotalSupply() uint64 { return r.totalSupply }

func (r *MemoryRegistry) BalanceOf(holder uuid.UUID) uint64 {
	return r.balances[holder]
}

func (r *MemoryRegistry) MaxSupply() uint64 { return r.maxSupply }

func (r *MemoryRegistry) Allowance(owner, spender uuid.UUID) uint64 {
	return r.allowances[owner][spender]
}

func (r *MemoryRegistry) Approve(owner, spender uuid.UUID, amount uint64) error {
	if spender == uuid.Nil {
		return ErrZeroHolder
	}
	if r.allowances[owner] == nil {
		r.allowances[owner] = make(map[uuid.UUID]uint64)
	}
	r.allowances[owner][spender] = amount
	return nil
}

func (r *MemoryRegistry) SpendAllowance(owner, spender uuid.UUID, amount uint64) error {
	current := r.allowances[owner][spender]
	if current < amount {
		return fmt.Errorf("%w: %s->%s has %d, spend %d",
			ErrInsufficientAllowance, owner, spender, current, amount)
	}
	r.allowances[owner][spender] = current - amount
	return nil
}

func (r *MemoryRegistry) Sponsor(holder uuid.UUID) error {
	if holder == uuid.Nil {
		return ErrZeroHolder
	}
	r.sponsored[holder] = true
	return nil
}

func (r *MemoryRegistry) IsSponsored(holder uuid.UUID) bool {
	return r.sponsored[holder]
}
