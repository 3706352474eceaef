package store

import (
	fpmath "YieldVault/internal/math"
	"YieldVault/internal/token"
	"fmt"
	"math"

	"github.com/google/uuid"
)

// MemoryStore is an in-process YieldStore with a proportional exchange rate.
// Test harnesses drive it into every abnormal condition the boundary allows:
// yield accrual, loss (slash), deposit/withdraw caps, pause, and hard preview
// failure.
type MemoryStore struct {
	asset   token.Token
	account uuid.UUID // holds the store's asset balance
	void    uuid.UUID // slashed assets land here

	totalAssets uint64
	totalShares uint64
	shares      map[uuid.UUID]uint64

	depositCap  uint64 // max assets accepted per MaxDeposit query
	withdrawCap uint64 // max assets releasable per MaxWithdraw query
	paused      bool
	previewFail bool
}

func NewMemoryStore(asset token.Token) *MemoryStore {
	return &MemoryStore{
		asset:       asset,
		account:     uuid.New(),
		void:        uuid.New(),
		shares:      make(map[uuid.UUID]uint64),
		depositCap:  math.MaxUint64,
		withdrawCap: math.MaxUint64,
	}
}

// Account is the store's own asset-token account.
func (s *MemoryStore) Account() uuid.UUID { return s.account }

// --- test/scenario controls ---

// Accrue adds yield: assets appear in the store without new shares. The
// asset ledger must be seedable so the store's claimed and actual asset
// balances move together.
func (s *MemoryStore) Accrue(assets uint64) error {
	mt, ok := s.asset.(*token.MemoryToken)
	if !ok {
		return fmt.Errorf("store: accrue needs a seedable asset, have %T", s.asset)
	}
	mt.Seed(s.account, assets)
	s.totalAssets += assets
	return nil
}

// Slash removes assets without burning shares, simulating an external loss.
func (s *MemoryStore) Slash(assets uint64) error {
	if assets > s.totalAssets {
		assets = s.totalAssets
	}
	if err := s.asset.Transfer(s.account, s.void, assets); err != nil {
		return fmt.Errorf("store slash: %w", err)
	}
	s.totalAssets -= assets
	return nil
}

func (s *MemoryStore) SetDepositCap(cap uint64)  { s.depositCap = cap }
func (s *MemoryStore) SetWithdrawCap(cap uint64) { s.withdrawCap = cap }
func (s *MemoryStore) SetPaused(paused bool)     { s.paused = paused }
func (s *MemoryStore) SetPreviewFail(fail bool)  { s.previewFail = fail }

// --- conversion ---

func (s *MemoryStore) toShares(assets uint64, mode fpmath.RoundingMode) uint64 {
	if s.totalShares == 0 || s.totalAssets == 0 {
		return assets
	}
	return fpmath.MulDiv(assets, s.totalShares, s.totalAssets, mode)
}

func (s *MemoryStore) toAssets(shares uint64, mode fpmath.RoundingMode) uint64 {
	if s.totalShares == 0 {
		return shares
	}
	return fpmath.MulDiv(shares, s.totalAssets, s.totalShares, mode)
}

// --- YieldStore ---

func (s *MemoryStore) Deposit(assets uint64, owner uuid.UUID) (uint64, error) {
	if s.paused {
		return 0, ErrStorePaused
	}
	shares := s.toShares(assets, fpmath.RoundDown)
	if err := s.asset.Transfer(owner, s.account, assets); err != nil {
		return 0, fmt.Errorf("store deposit: %w", err)
	}
	s.totalAssets += assets
	s.totalShares += shares
	s.shares[owner] += shares
	return shares, nil
}

func (s *MemoryStore) Mint(shares uint64, owner uuid.UUID) (uint64, error) {
	if s.paused {
		return 0, ErrStorePaused
	}
	assets := s.toAssets(shares, fpmath.RoundUp)
	if err := s.asset.Transfer(owner, s.account, assets); err != nil {
		return 0, fmt.Errorf("store mint: %w", err)
	}
	s.totalAssets += assets
	s.totalShares += shares
	s.shares[owner] += shares
	return assets, nil
}

func (s *MemoryStore) Withdraw(assets uint64, owner uuid.UUID) (uint64, error) {
	if s.paused {
		return 0, ErrStorePaused
	}
	shares := s.toShares(assets, fpmath.RoundUp)
	if s.shares[owner] < shares {
		return 0, fmt.Errorf("%w: have %d, need %d", ErrInsufficientShares, s.shares[owner], shares)
	}
	if err := s.asset.Transfer(s.account, owner, assets); err != nil {
		return 0, fmt.Errorf("store withdraw: %w", err)
	}
	s.shares[owner] -= shares
	s.totalShares -= shares
	s.totalAssets -= assets
	return shares, nil
}

func (s *MemoryStore) Redeem(shares uint64, owner uuid.UUID) (uint64, error) {
	if s.paused {
		return 0, ErrStorePaused
	}
	if s.shares[owner] < shares {
		return 0, fmt.Errorf("%w: have %d, redeem %d", ErrInsufficientShares, s.shares[owner], shares)
	}
	assets := s.toAssets(shares, fpmath.RoundDown)
	if err := s.asset.Transfer(s.account, owner, assets); err != nil {
		return 0, fmt.Errorf("store redeem: %w", err)
	}
	s.shares[owner] -= shares
	s.totalShares -= shares
	s.totalAssets -= assets
	return assets, nil
}

func (s *MemoryStore) PreviewDeposit(assets uint64) (uint64, error) {
	if s.previewFail {
		return 0, ErrPreviewUnavailable
	}
	return s.toShares(assets, fpmath.RoundDown), nil
}

func (s *MemoryStore) PreviewMint(shares uint64) (uint64, error) {
	if s.previewFail {
		return 0, ErrPreviewUnavailable
	}
	return s.toAssets(shares, fpmath.RoundUp), nil
}

func (s *MemoryStore) PreviewWithdraw(assets uint64) (uint64, error) {
	if s.previewFail {
		return 0, ErrPreviewUnavailable
	}
	return s.toShares(assets, fpmath.RoundUp), nil
}

func (s *MemoryStore) PreviewRedeem(shares uint64) (uint64, error) {
	if s.previewFail {
		return 0, ErrPreviewUnavailable
	}
	return s.toAssets(shares, fpmath.RoundDown), nil
}

func (s *MemoryStore) ConvertToAssets(shares uint64) uint64 {
	return s.toAssets(shares, fpmath.RoundDown)
}

func (s *MemoryStore) ConvertToShares(assets uint64) uint64 {
	return s.toShares(assets, fpmath.RoundDown)
}

func (s *MemoryStore) MaxDeposit(uuid.UUID) (uint64, error) {
	if s.previewFail {
		return 0, ErrPreviewUnavailable
	}
	if s.paused {
		return 0, nil
	}
	return s.depositCap, nil
}

func (s *MemoryStore) MaxWithdraw(owner uuid.UUID) (uint64, error) {
	if s.previewFail {
		return 0, ErrPreviewUnavailable
	}
	if s.paused {
		return 0, nil
	}
	held := s.toAssets(s.shares[owner], fpmath.RoundDown)
	if held > s.withdrawCap {
		return s.withdrawCap, nil
	}
	return held, nil
}

func (s *MemoryStore) MaxRedeem(owner uuid.UUID) (uint64, error) {
	if s.previewFail {
		return 0, ErrPreviewUnavailable
	}
	if s.paused {
		return 0, nil
	}
	held := s.shares[owner]
	if s.toAssets(held, fpmath.RoundDown) > s.withdrawCap {
		return s.toShares(s.withdrawCap, fpmath.RoundDown), nil
	}
	return held, nil
}

func (s *MemoryStore) BalanceOf(account uuid.UUID) uint64 {
	return s.shares[account]
}
