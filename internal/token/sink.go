package token

import (
	"errors"

	"github.com/google/uuid"
)

var ErrZeroContribution = errors.New("token: zero contribution")

// Sink receives prize contributions. This is the only point where liquidated
// yield enters the prize-distribution subsystem.
type Sink interface {
	// Account is the address contributions are paid to.
	Account() uuid.UUID

	// Contribute records amount as contributed on behalf of a vault.
	Contribute(onBehalfOf uuid.UUID, amount uint64) error
}

// MemoryPool is an in-process Sink that tallies contributions per vault.
type MemoryPool struct {
	account       uuid.UUID
	contributions map[uuid.UUID]uint64
}

func NewMemoryPool() *MemoryPool {
	return &MemoryPool{
		account:       uuid.New(),
		contributions: make(map[uuid.UUID]uint64),
	}
}

func (p *MemoryPool) Account() uuid.UUID { return p.account }

func (p *MemoryPool) Contribute(onBehalfOf uuid.UUID, amount uint64) error {
	if amount == 0 {
		return ErrZeroContribution
	}
	p.contributions[onBehalfOf] += amount
	return nil
}

// ContributedBy returns the running contribution total for a vault.
func (p *MemoryPool) ContributedBy(vault uuid.UUID) uint64 {
	return p.contributions[vault]
}
