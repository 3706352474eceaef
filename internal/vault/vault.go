// Package vault implements the yield-bearing deposit ledger: depositors put
// the base asset in, the vault forwards it to an external yield store, and
// surplus above what is owed to share holders is extracted through a bounded
// liquidation protocol whose proceeds fund prize contributions.
//
// The vault owns one mutable sub-ledger (the yield fee balance and the
// configured roles); everything else is recomputed from the collaborators on
// every call so no cached view can go stale.
package vault

import (
	fpmath "YieldVault/internal/math"
	"YieldVault/internal/registry"
	"YieldVault/internal/store"
	"YieldVault/internal/token"
	"fmt"

	"github.com/google/uuid"
)

// MaxYieldFeeFrac caps the configurable fee at 90% of the 1e9 basis.
const MaxYieldFeeFrac uint64 = 9 * fpmath.FeePrecision / 10

// Config carries the immutable and initial-role parameters of a vault.
type Config struct {
	Owner uuid.UUID

	// YieldBuffer is the slice of yield never liquidated. It absorbs
	// rounding drift so share redemptions stay whole. Immutable.
	YieldBuffer uint64

	FeePercentage    uint64 // 1e9 basis, at most MaxYieldFeeFrac
	FeeRecipient     uuid.UUID
	LiquidationAgent uuid.UUID
	ClaimAgent       uuid.UUID

	// PrizeTokenID is the designated payment token for liquidation
	// payments routed to the prize sink.
	PrizeTokenID uuid.UUID
}

// Vault is the accounting and liquidation engine. Instances are not safe for
// concurrent use: every public operation must run to completion before the
// next starts (the service loop serializes them).
type Vault struct {
	asset token.Token
	store store.YieldStore
	reg   registry.Registry
	sink  token.Sink

	account uuid.UUID // the vault's asset/store-share account
	shareID uuid.UUID // identity of the vault's own share token

	yieldBuffer  uint64
	feeBalance   uint64
	feeFrac      uint64
	feeRecipient uuid.UUID
	liqAgent     uuid.UUID
	claimAgent   uuid.UUID
	owner        uuid.UUID
	prizeTokenID uuid.UUID
}

func New(asset token.Token, ys store.YieldStore, reg registry.Registry, sink token.Sink, cfg Config) (*Vault, error) {
	if asset == nil || ys == nil || reg == nil || sink == nil {
		return nil, fmt.Errorf("vault: nil collaborator")
	}
	if cfg.Owner == uuid.Nil {
		return nil, fmt.Errorf("%w: owner", ErrZeroAddress)
	}
	if cfg.FeePercentage > MaxYieldFeeFrac {
		return nil, fmt.Errorf("%w: %d > %d", ErrFeePercentageHigh, cfg.FeePercentage, MaxYieldFeeFrac)
	}
	if cfg.FeePercentage > 0 && cfg.FeeRecipient == uuid.Nil {
		return nil, fmt.Errorf("%w: fee recipient", ErrZeroAddress)
	}

	return &Vault{
		asset:        asset,
		store:        ys,
		reg:          reg,
		sink:         sink,
		account:      uuid.New(),
		shareID:      uuid.New(),
		yieldBuffer:  cfg.YieldBuffer,
		feeFrac:      cfg.FeePercentage,
		feeRecipient: cfg.FeeRecipient,
		liqAgent:     cfg.LiquidationAgent,
		claimAgent:   cfg.ClaimAgent,
		owner:        cfg.Owner,
		prizeTokenID: cfg.PrizeTokenID,
	}, nil
}

// --- identity and state reads ---

// Account is the vault's own account on the asset token and yield store.
func (v *Vault) Account() uuid.UUID { return v.account }

// ShareTokenID identifies the vault's share token in liquidation pairs.
func (v *Vault) ShareTokenID() uuid.UUID { return v.shareID }

func (v *Vault) YieldBuffer() uint64               { return v.yieldBuffer }
func (v *Vault) FeeBalance() uint64                { return v.feeBalance }
func (v *Vault) FeePercentage() uint64             { return v.feeFrac }
func (v *Vault) FeeRecipient() uuid.UUID           { return v.feeRecipient }
func (v *Vault) LiquidationAgent() uuid.UUID       { return v.liqAgent }
func (v *Vault) ClaimAgent() uuid.UUID             { return v.claimAgent }
func (v *Vault) Owner() uuid.UUID                  { return v.owner }
func (v *Vault) TotalSupply() uint64               { return v.reg.TotalSupply() }
func (v *Vault) BalanceOf(holder uuid.UUID) uint64 { return v.reg.BalanceOf(holder) }

// LatentBalance is the base asset held directly by the vault: rounding dust
// swept into the next deposit and withdrawal float.
func (v *Vault) LatentBalance() uint64 {
	return v.asset.BalanceOf(v.account)
}

// TotalAssets is the approximate value of everything the vault holds: the
// store holding at the best-effort exchange rate plus the latent balance.
// Cannot fail.
func (v *Vault) TotalAssets() uint64 {
	return fpmath.SaturatingAdd(v.store.ConvertToAssets(v.store.BalanceOf(v.account)), v.LatentBalance())
}

// TotalPreciseAssets values the store holding via its redemption preview.
// Fails if the store cannot quote a redemption.
func (v *Vault) TotalPreciseAssets() (uint64, error) {
	redeemable, err := v.store.PreviewRedeem(v.store.BalanceOf(v.account))
	if err != nil {
		return 0, fmt.Errorf("precise total assets: %w", err)
	}
	return fpmath.SaturatingAdd(redeemable, v.LatentBalance()), nil
}

// TotalDebt is what the vault owes: all shares outstanding plus the fee
// balance reserved for the fee recipient.
func (v *Vault) TotalDebt() uint64 {
	return fpmath.SaturatingAdd(v.reg.TotalSupply(), v.feeBalance)
}

// TotalYieldBalance is the surplus above debt, zero when in a loss state.
func (v *Vault) TotalYieldBalance() uint64 {
	return fpmath.SaturatingSub(v.TotalAssets(), v.TotalDebt())
}

// AvailableYieldBalance is the yield that may leave the vault: the surplus
// minus the immutable buffer.
func (v *Vault) AvailableYieldBalance() uint64 {
	return fpmath.SaturatingSub(v.TotalYieldBalance(), v.yieldBuffer)
}

// --- conversions ---

// toShares converts assets to shares. 1:1 while solvent; proportional in a
// loss state so every holder bears the loss pro rata.
func (v *Vault) toShares(assets uint64, mode fpmath.RoundingMode) uint64 {
	totalAssets := v.TotalAssets()
	totalDebt := v.TotalDebt()
	if totalAssets >= totalDebt {
		return assets
	}
	if totalAssets == 0 {
		// Fully insolvent: callers gate on the max queries, which are
		// zero here, so this path only answers previews.
		return 0
	}
	return fpmath.MulDiv(assets, totalDebt, totalAssets, mode)
}

func (v *Vault) toAssets(shares uint64, mode fpmath.RoundingMode) uint64 {
	totalAssets := v.TotalAssets()
	totalDebt := v.TotalDebt()
	if totalAssets >= totalDebt {
		return shares
	}
	return fpmath.MulDiv(shares, totalAssets, totalDebt, mode)
}

// ConvertToShares bounds what a depositor would receive for assets.
func (v *Vault) ConvertToShares(assets uint64) uint64 {
	return v.toShares(assets, fpmath.RoundDown)
}

// ConvertToAssets bounds what a holder may take for shares.
func (v *Vault) ConvertToAssets(shares uint64) uint64 {
	return v.toAssets(shares, fpmath.RoundDown)
}

// PreviewDeposit returns the shares minted for a deposit: always 1:1, since
// lossy deposits are rejected outright.
func (v *Vault) PreviewDeposit(assets uint64) uint64 { return assets }

// PreviewMint returns the assets required to mint shares: always 1:1.
func (v *Vault) PreviewMint(shares uint64) uint64 { return shares }

// PreviewWithdraw returns the shares burned to deliver assets, rounding up so
// the vault is never short-changed.
func (v *Vault) PreviewWithdraw(assets uint64) uint64 {
	return v.toShares(assets, fpmath.RoundUp)
}

// PreviewRedeem returns the assets delivered for burning shares, rounding
// down so the holder can never over-draw.
func (v *Vault) PreviewRedeem(shares uint64) uint64 {
	return v.toAssets(shares, fpmath.RoundDown)
}

// --- max queries (capacity failures degrade to zero, never error) ---

// MaxDeposit is the largest deposit currently accepted: zero in a loss state
// (any deposit would trip the lossy-deposit guard), otherwise the smaller of
// the registry's supply headroom and the store's deposit capacity.
func (v *Vault) MaxDeposit(uuid.UUID) uint64 {
	totalDebt := v.TotalDebt()
	if v.TotalAssets() < totalDebt {
		return 0
	}
	headroom := fpmath.SaturatingSub(v.reg.MaxSupply(), totalDebt)
	storeMax, err := v.store.MaxDeposit(v.account)
	if err != nil {
		return 0
	}
	return minU64(headroom, storeMax)
}

// MaxMint mirrors MaxDeposit under the 1:1 deposit rate.
func (v *Vault) MaxMint(receiver uuid.UUID) uint64 {
	return v.MaxDeposit(receiver)
}

// MaxWithdraw is the most assets an owner can take out right now: their
// convertible balance, bounded by the store's withdrawal capacity plus the
// latent balance.
func (v *Vault) MaxWithdraw(owner uuid.UUID) uint64 {
	ownerAssets := v.toAssets(v.reg.BalanceOf(owner), fpmath.RoundDown)
	storeMax, err := v.store.MaxWithdraw(v.account)
	if err != nil {
		return 0
	}
	return minU64(ownerAssets, fpmath.SaturatingAdd(storeMax, v.LatentBalance()))
}

// MaxRedeem is the most shares an owner can burn right now.
func (v *Vault) MaxRedeem(owner uuid.UUID) uint64 {
	balance := v.reg.BalanceOf(owner)
	storeMax, err := v.store.MaxWithdraw(v.account)
	if err != nil {
		return 0
	}
	capAssets := fpmath.SaturatingAdd(storeMax, v.LatentBalance())
	if v.toAssets(balance, fpmath.RoundDown) <= capAssets {
		return balance
	}
	return v.toShares(capAssets, fpmath.RoundDown)
}

// --- deposit / mint / sponsor ---

// Deposit pulls assets from caller, sweeps them (with any latent dust) into
// the yield store, and credits receiver with the same number of shares.
func (v *Vault) Deposit(caller, receiver uuid.UUID, assets uint64) (uint64, error) {
	return v.depositShares(caller, receiver, assets)
}

// Mint is Deposit expressed in shares; the two are 1:1 at deposit time.
func (v *Vault) Mint(caller, receiver uuid.UUID, shares uint64) (uint64, error) {
	if shares == 0 {
		return 0, ErrZeroShares
	}
	return v.depositShares(caller, receiver, shares)
}

// Sponsor deposits for the caller and marks their weighting non-prize-
// eligible in the registry. The marking is idempotent.
func (v *Vault) Sponsor(caller uuid.UUID, assets uint64) (uint64, error) {
	shares, err := v.depositShares(caller, caller, assets)
	if err != nil {
		return 0, err
	}
	if !v.reg.IsSponsored(caller) {
		if err := v.reg.Sponsor(caller); err != nil {
			return 0, fmt.Errorf("sponsor: %w", err)
		}
	}
	return shares, nil
}

func (v *Vault) depositShares(caller, receiver uuid.UUID, assets uint64) (uint64, error) {
	if assets == 0 {
		return 0, ErrZeroAssets
	}
	if receiver == uuid.Nil {
		return 0, fmt.Errorf("%w: receiver", ErrZeroAddress)
	}

	shares := assets // 1:1 at deposit time
	totalDebt := v.TotalDebt()
	if fpmath.SaturatingAdd(totalDebt, shares) > v.reg.MaxSupply() {
		return 0, fmt.Errorf("%w: debt %d + mint %d > cap %d",
			registry.ErrSupplyCapExceeded, totalDebt, shares, v.reg.MaxSupply())
	}

	// Lossy-deposit guard, simulated from store previews before anything
	// moves: the swept total buys storeShares, which cost assetsUsed and
	// redeem for redeemable; the difference stays latent as dust.
	sweep := fpmath.SaturatingAdd(v.LatentBalance(), assets)
	storeShares, err := v.store.PreviewDeposit(sweep)
	if err != nil {
		return 0, fmt.Errorf("deposit preview: %w", err)
	}
	assetsUsed, err := v.store.PreviewMint(storeShares)
	if err != nil {
		return 0, fmt.Errorf("mint preview: %w", err)
	}
	if assetsUsed > sweep {
		return 0, fmt.Errorf("%w: mint quote %d exceeds swept %d", ErrStoreMisbehaved, assetsUsed, sweep)
	}
	redeemable, err := v.store.PreviewRedeem(v.store.BalanceOf(v.account) + storeShares)
	if err != nil {
		return 0, fmt.Errorf("redeem preview: %w", err)
	}
	if fpmath.SaturatingAdd(redeemable, sweep-assetsUsed) < totalDebt+shares {
		return 0, fmt.Errorf("%w: assets after deposit %d < debt %d",
			ErrLossyDeposit, fpmath.SaturatingAdd(redeemable, sweep-assetsUsed), totalDebt+shares)
	}

	// External pull happens before the share mint, so a reentrant call
	// through the asset token never sees shares without backing assets.
	if err := v.asset.Transfer(caller, v.account, assets); err != nil {
		return 0, fmt.Errorf("deposit pull: %w", err)
	}

	if storeShares > 0 {
		// Mint exactly the previewed store-shares instead of a raw
		// deposit call: the store rounds in its own favor on deposit,
		// and minting keeps the rounding residue latent here rather
		// than donating it.
		if _, err := v.store.Mint(storeShares, v.account); err != nil {
			// Undo the pull; nothing else has moved yet.
			if uerr := v.asset.Transfer(v.account, caller, assets); uerr != nil {
				panic(fmt.Sprintf("vault: deposit unwind failed: %v (after %v)", uerr, err))
			}
			return 0, fmt.Errorf("store mint: %w", err)
		}
	}

	if err := v.reg.Mint(receiver, shares); err != nil {
		// Supply cap and zero receiver were prechecked; a failure here
		// means the registry contradicted its own reads.
		panic(fmt.Sprintf("vault: registry mint failed after store deposit: %v", err))
	}

	v.assertSolvent()
	return shares, nil
}

// --- withdraw / redeem ---

// Withdraw burns the owner's shares needed to cover assets (rounding up) and
// releases assets to receiver. If caller is not owner, the burned shares are
// spent from the caller's allowance.
func (v *Vault) Withdraw(caller, receiver, owner uuid.UUID, assets uint64) (uint64, error) {
	if assets == 0 {
		return 0, ErrZeroAssets
	}
	if assets > v.MaxWithdraw(owner) {
		return 0, fmt.Errorf("%w: %d > %d", ErrExceedsMaxWithdraw, assets, v.MaxWithdraw(owner))
	}
	shares := v.PreviewWithdraw(assets)
	if err := v.burnAndRelease(caller, receiver, owner, shares, assets); err != nil {
		return 0, err
	}
	return shares, nil
}

// Redeem burns exactly shares from owner and releases what they are worth
// (rounding down) to receiver.
func (v *Vault) Redeem(caller, receiver, owner uuid.UUID, shares uint64) (uint64, error) {
	if shares == 0 {
		return 0, ErrZeroShares
	}
	if shares > v.MaxRedeem(owner) {
		return 0, fmt.Errorf("%w: %d > %d", ErrExceedsMaxRedeem, shares, v.MaxRedeem(owner))
	}
	assets := v.PreviewRedeem(shares)
	if assets == 0 {
		return 0, ErrZeroAssets
	}
	if err := v.burnAndRelease(caller, receiver, owner, shares, assets); err != nil {
		return 0, err
	}
	return assets, nil
}

func (v *Vault) burnAndRelease(caller, receiver, owner uuid.UUID, shares, assets uint64) error {
	if caller != owner {
		if err := v.reg.SpendAllowance(owner, caller, shares); err != nil {
			return fmt.Errorf("withdraw allowance: %w", err)
		}
	}

	// Burn before the external release: a reentrant call through the
	// asset transfer can never observe shares outstanding that exceed the
	// assets still claimable.
	if err := v.reg.Burn(owner, shares); err != nil {
		return fmt.Errorf("withdraw burn: %w", err)
	}

	return v.releaseAssets(receiver, assets)
}

// releaseAssets satisfies an asset amount from the latent balance first, then
// redeems exactly the store-shares needed to cover the shortfall.
func (v *Vault) releaseAssets(receiver uuid.UUID, assets uint64) error {
	if latent := v.LatentBalance(); latent < assets {
		shortfall := assets - latent
		storeShares, err := v.store.PreviewWithdraw(shortfall)
		if err != nil {
			return fmt.Errorf("withdraw preview: %w", err)
		}
		if _, err := v.store.Redeem(storeShares, v.account); err != nil {
			return fmt.Errorf("store redeem: %w", err)
		}
	}
	if err := v.asset.Transfer(v.account, receiver, assets); err != nil {
		return fmt.Errorf("withdraw transfer: %w", err)
	}
	return nil
}

// assertSolvent panics if a just-completed deposit left assets below debt.
// The guard prechecks previews, so reaching this means the store executed
// differently from its own quotes — an unrecoverable upstream fault.
func (v *Vault) assertSolvent() {
	precise, err := v.TotalPreciseAssets()
	if err != nil {
		return // cannot verify; the next precise read will
	}
	if debt := v.TotalDebt(); precise < debt {
		panic(fmt.Sprintf("vault: insolvent after deposit: assets %d < debt %d", precise, debt))
	}
}

func minU64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
