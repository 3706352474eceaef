package vault

import (
	fpmath "YieldVault/internal/math"
	"YieldVault/internal/registry"
	"fmt"

	"github.com/google/uuid"
)

// The liquidation engine lets the configured agent convert available yield
// into vault shares or released base assets, paying a token that is routed to
// the prize-contribution sink. A configurable slice of every extraction is
// reserved as the yield fee.

// TargetOf returns the account that receives liquidation payments.
func (v *Vault) TargetOf() uuid.UUID {
	return v.sink.Account()
}

// IsLiquidationPair reports whether tokenOut may currently be liquidated by
// agent.
func (v *Vault) IsLiquidationPair(tokenOut, agent uuid.UUID) bool {
	if agent != v.liqAgent || agent == uuid.Nil {
		return false
	}
	return tokenOut == v.shareID || tokenOut == v.asset.ID()
}

// LiquidatableBalanceOf returns how much of tokenOut the agent could extract
// right now: the fee-reduced available yield, bounded by the capacity of the
// chosen output — registry supply headroom for shares, store withdrawal
// capacity plus latent balance for assets. Unknown tokens yield zero.
func (v *Vault) LiquidatableBalanceOf(tokenOut uuid.UUID) uint64 {
	liquid := fpmath.NetOfFee(v.AvailableYieldBalance(), v.feeFrac)

	var capacity uint64
	switch tokenOut {
	case v.shareID:
		capacity = fpmath.SaturatingSub(v.reg.MaxSupply(), v.TotalDebt())
	case v.asset.ID():
		storeMax, err := v.store.MaxWithdraw(v.account)
		if err != nil {
			storeMax = 0
		}
		capacity = fpmath.SaturatingAdd(storeMax, v.LatentBalance())
	default:
		return 0
	}

	return minU64(liquid, capacity)
}

// TransferTokensOut extracts amount of tokenOut to recipient on behalf of the
// liquidation agent. The fee owed on top of amount is reserved into the fee
// balance, so debt grows by exactly amount + fee.
func (v *Vault) TransferTokensOut(caller, recipient, tokenOut uuid.UUID, amount uint64) (uint64, error) {
	if caller != v.liqAgent || caller == uuid.Nil {
		return 0, ErrNotLiquidationAgent
	}
	if amount == 0 {
		return 0, ErrZeroShares
	}
	if recipient == uuid.Nil {
		return 0, fmt.Errorf("%w: recipient", ErrZeroAddress)
	}

	// fee / (amount + fee) == feeFrac, rounded in the vault's favor.
	// Sums saturate so an amount near the uint64 ceiling cannot wrap
	// below the bound it is checked against.
	fee := fpmath.FeeOnRaw(amount, v.feeFrac)
	if available := v.AvailableYieldBalance(); fpmath.SaturatingAdd(amount, fee) > available {
		return 0, fmt.Errorf("%w: %d + fee %d > available %d", ErrExceedsYield, amount, fee, available)
	}

	switch tokenOut {
	case v.shareID:
		if fpmath.SaturatingAdd(v.TotalDebt(), fpmath.SaturatingAdd(amount, fee)) > v.reg.MaxSupply() {
			return 0, fmt.Errorf("%w: liquidation mint", registry.ErrSupplyCapExceeded)
		}
		if err := v.reg.Mint(recipient, amount); err != nil {
			return 0, fmt.Errorf("liquidation mint: %w", err)
		}
	case v.asset.ID():
		if err := v.releaseAssets(recipient, amount); err != nil {
			return 0, fmt.Errorf("liquidation release: %w", err)
		}
	default:
		return 0, ErrUnsupportedToken
	}

	v.feeBalance += fee
	return fee, nil
}

// VerifyTokensIn checks the payment token the agent sent in exchange for an
// extraction and forwards the amount to the prize-contribution sink on the
// vault's behalf. This is the only path by which value enters the prize
// subsystem.
func (v *Vault) VerifyTokensIn(caller, tokenIn uuid.UUID, amount uint64) error {
	if caller != v.liqAgent || caller == uuid.Nil {
		return ErrNotLiquidationAgent
	}
	if tokenIn != v.prizeTokenID {
		return fmt.Errorf("%w: %s", ErrWrongPaymentToken, tokenIn)
	}
	if err := v.sink.Contribute(v.account, amount); err != nil {
		return fmt.Errorf("contribute: %w", err)
	}
	return nil
}
