// Package store is the boundary to the external yield-generating store: an
// exchange-rate share vault that accepts the base asset, issues store-shares,
// and may be lossy, capped, paused, or failing at any time.
package store

import (
	"errors"

	"github.com/google/uuid"
)

var (
	ErrStorePaused        = errors.New("store: paused")
	ErrDepositCap         = errors.New("store: deposit cap exceeded")
	ErrWithdrawCap        = errors.New("store: withdraw cap exceeded")
	ErrInsufficientShares = errors.New("store: insufficient share balance")
	ErrPreviewUnavailable = errors.New("store: preview unavailable")
)

// YieldStore is the deposit/withdraw/convert/redeem surface of the external
// store. State-changing calls propagate failures; read-only capacity and
// preview calls may also fail, and callers degrade those to zero capacity.
type YieldStore interface {
	// Deposit pulls assets from owner and credits store-shares to owner.
	Deposit(assets uint64, owner uuid.UUID) (shares uint64, err error)

	// Mint issues exactly shares to owner, pulling the assets they cost.
	// Returns the assets consumed.
	Mint(shares uint64, owner uuid.UUID) (assetsUsed uint64, err error)

	// Withdraw releases exactly assets to owner, burning the shares they
	// cost. Returns the shares burned.
	Withdraw(assets uint64, owner uuid.UUID) (sharesBurned uint64, err error)

	// Redeem burns exactly shares from owner and releases the assets they
	// are worth.
	Redeem(shares uint64, owner uuid.UUID) (assets uint64, err error)

	PreviewDeposit(assets uint64) (shares uint64, err error)
	PreviewMint(shares uint64) (assets uint64, err error)
	PreviewWithdraw(assets uint64) (shares uint64, err error)
	PreviewRedeem(shares uint64) (assets uint64, err error)

	// ConvertToAssets and ConvertToShares are best-effort exchange-rate
	// reads. They cannot fail; under abnormal store conditions they return
	// the last known rate.
	ConvertToAssets(shares uint64) uint64
	ConvertToShares(assets uint64) uint64

	MaxDeposit(receiver uuid.UUID) (uint64, error)
	MaxWithdraw(owner uuid.UUID) (uint64, error)
	MaxRedeem(owner uuid.UUID) (uint64, error)

	// BalanceOf returns the store-share balance of an account.
	BalanceOf(account uuid.UUID) uint64
}
