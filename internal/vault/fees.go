package vault

import (
	"fmt"

	"github.com/google/uuid"
)

// The fee sub-ledger: fees accrued during liquidation sit in feeBalance until
// the recipient converts them into shares.

// ClaimYieldFeeShares converts shares of the accrued fee balance into minted
// vault shares for the fee recipient. Total debt is unchanged — reserved fee
// becomes outstanding supply.
func (v *Vault) ClaimYieldFeeShares(caller uuid.UUID, shares uint64) error {
	if caller != v.feeRecipient || caller == uuid.Nil {
		return ErrNotFeeRecipient
	}
	if shares == 0 {
		return ErrZeroShares
	}
	if shares > v.feeBalance {
		return fmt.Errorf("%w: claim %d > balance %d", ErrExceedsFeeBalance, shares, v.feeBalance)
	}
	if err := v.reg.Mint(caller, shares); err != nil {
		return fmt.Errorf("fee claim mint: %w", err)
	}
	v.feeBalance -= shares
	return nil
}

// --- owner-gated role setters; each takes effect for subsequent operations only ---

func (v *Vault) SetYieldFeePercentage(caller uuid.UUID, feeFrac uint64) error {
	if caller != v.owner {
		return ErrNotOwner
	}
	if feeFrac > MaxYieldFeeFrac {
		return fmt.Errorf("%w: %d > %d", ErrFeePercentageHigh, feeFrac, MaxYieldFeeFrac)
	}
	if feeFrac > 0 && v.feeRecipient == uuid.Nil {
		return fmt.Errorf("%w: fee recipient unset", ErrZeroAddress)
	}
	v.feeFrac = feeFrac
	return nil
}

func (v *Vault) SetYieldFeeRecipient(caller, recipient uuid.UUID) error {
	if caller != v.owner {
		return ErrNotOwner
	}
	if recipient == uuid.Nil && v.feeFrac > 0 {
		return fmt.Errorf("%w: fee recipient", ErrZeroAddress)
	}
	v.feeRecipient = recipient
	return nil
}

func (v *Vault) SetLiquidationAgent(caller, agent uuid.UUID) error {
	if caller != v.owner {
		return ErrNotOwner
	}
	if agent == uuid.Nil {
		return fmt.Errorf("%w: liquidation agent", ErrZeroAddress)
	}
	v.liqAgent = agent
	return nil
}

func (v *Vault) SetClaimAgent(caller, agent uuid.UUID) error {
	if caller != v.owner {
		return ErrNotOwner
	}
	v.claimAgent = agent
	return nil
}

// RestoreFeeBalance reinstates the persisted fee sub-ledger on recovery.
// Only the boot path may call it, before any operation runs.
func (v *Vault) RestoreFeeBalance(balance uint64) {
	v.feeBalance = balance
}
