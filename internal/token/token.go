package token

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var ErrInsufficientBalance = errors.New("token: insufficient balance")

// Token is the boundary to a fungible asset ledger. The vault only moves
// whole base units; fee-on-transfer and rebasing assets are unsupported.
type Token interface {
	// ID is the stable identity used for liquidation pair checks.
	ID() uuid.UUID

	BalanceOf(account uuid.UUID) uint64

	// Transfer moves amount from one account to another. Implementations
	// may execute arbitrary code (a remote token can call back into the
	// vault), so callers must order their own state changes defensively.
	Transfer(from, to uuid.UUID, amount uint64) error
}

// MemoryToken is an in-process Token backed by a balance map.
type MemoryToken struct {
	id       uuid.UUID
	balances map[uuid.UUID]uint64

	// TransferHook, when set, runs before each transfer is applied. Tests
	// use it to simulate reentrant calls into the vault.
	TransferHook func(from, to uuid.UUID, amount uint64)
}

func NewMemoryToken() *MemoryToken {
	return &MemoryToken{
		id:       uuid.New(),
		balances: make(map[uuid.UUID]uint64),
	}
}

func (t *MemoryToken) ID() uuid.UUID { return t.id }

func (t *MemoryToken) BalanceOf(account uuid.UUID) uint64 {
	return t.balances[account]
}

func (t *MemoryToken) Transfer(from, to uuid.UUID, amount uint64) error {
	if t.TransferHook != nil {
		t.TransferHook(from, to, amount)
	}
	if t.balances[from] < amount {
		return fmt.Errorf("%w: account %s has %d, need %d",
			ErrInsufficientBalance, from, t.balances[from], amount)
	}
	t.balances[from] -= amount
	t.balances[to] += amount
	return nil
}

// Seed credits an account directly, bypassing transfer checks. Reached
// in production only through logged seed events, so every credit is
// replayable; tests call it for setup.
func (t *MemoryToken) Seed(account uuid.UUID, amount uint64) {
	t.balances[account] += amount
}
