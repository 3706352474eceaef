package vault_test

import (
	"YieldVault/internal/vault"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestFees_ClaimFullBalance(t *testing.T) {
	f := newFixture(t, fixtureOpts{feeFrac: tenPct})
	f.vault.Deposit(f.alice, f.alice, 1000)
	f.store.Accrue(10)
	if _, err := f.vault.TransferTokensOut(f.agent, f.bob, f.asset.ID(), 9); err != nil {
		t.Fatalf("seed fee balance: %v", err)
	}

	balance := f.vault.FeeBalance()
	if balance != 1 {
		t.Fatalf("fee balance: got %d, want 1", balance)
	}

	if err := f.vault.ClaimYieldFeeShares(f.feeRcpt, balance); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if got := f.reg.BalanceOf(f.feeRcpt); got != balance {
		t.Errorf("recipient shares: got %d, want %d", got, balance)
	}
	if got := f.vault.FeeBalance(); got != 0 {
		t.Errorf("fee balance after claim: got %d, want 0", got)
	}

	// The same claim again must fail: the sub-ledger is empty
	err := f.vault.ClaimYieldFeeShares(f.feeRcpt, balance)
	if !errors.Is(err, vault.ErrExceedsFeeBalance) {
		t.Errorf("repeat claim: got %v, want ErrExceedsFeeBalance", err)
	}
}

func TestFees_ClaimPreservesDebt(t *testing.T) {
	// Converting reserved fees to shares moves debt between components
	// without changing the total.
	f := newFixture(t, fixtureOpts{feeFrac: tenPct})
	f.vault.Deposit(f.alice, f.alice, 1000)
	f.store.Accrue(10)
	f.vault.TransferTokensOut(f.agent, f.bob, f.asset.ID(), 9)

	debtBefore := f.vault.TotalDebt()
	if err := f.vault.ClaimYieldFeeShares(f.feeRcpt, 1); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if got := f.vault.TotalDebt(); got != debtBefore {
		t.Errorf("debt changed across claim: %d -> %d", debtBefore, got)
	}
}

func TestFees_ClaimValidation(t *testing.T) {
	f := newFixture(t, fixtureOpts{feeFrac: tenPct})

	if err := f.vault.ClaimYieldFeeShares(f.bob, 1); !errors.Is(err, vault.ErrNotFeeRecipient) {
		t.Errorf("non-recipient: got %v, want ErrNotFeeRecipient", err)
	}
	if err := f.vault.ClaimYieldFeeShares(f.feeRcpt, 0); !errors.Is(err, vault.ErrZeroShares) {
		t.Errorf("zero shares: got %v, want ErrZeroShares", err)
	}
	if err := f.vault.ClaimYieldFeeShares(f.feeRcpt, 1); !errors.Is(err, vault.ErrExceedsFeeBalance) {
		t.Errorf("empty sub-ledger: got %v, want ErrExceedsFeeBalance", err)
	}
}

func TestFees_SetPercentage(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	if err := f.vault.SetYieldFeePercentage(f.bob, tenPct); !errors.Is(err, vault.ErrNotOwner) {
		t.Errorf("non-owner: got %v, want ErrNotOwner", err)
	}
	if err := f.vault.SetYieldFeePercentage(f.owner, vault.MaxYieldFeeFrac+1); !errors.Is(err, vault.ErrFeePercentageHigh) {
		t.Errorf("over max: got %v, want ErrFeePercentageHigh", err)
	}
	if err := f.vault.SetYieldFeePercentage(f.owner, vault.MaxYieldFeeFrac); err != nil {
		t.Errorf("at max: %v", err)
	}
	if got := f.vault.FeePercentage(); got != vault.MaxYieldFeeFrac {
		t.Errorf("fee frac: got %d, want %d", got, vault.MaxYieldFeeFrac)
	}
}

func TestFees_SetPercentageRequiresRecipient(t *testing.T) {
	// Fixture starts with a recipient; clear the fee first, then drop the
	// recipient and try to raise the fee again.
	f := newFixture(t, fixtureOpts{})
	if err := f.vault.SetYieldFeeRecipient(f.owner, uuid.Nil); err != nil {
		t.Fatalf("clear recipient with zero fee: %v", err)
	}
	if err := f.vault.SetYieldFeePercentage(f.owner, tenPct); !errors.Is(err, vault.ErrZeroAddress) {
		t.Errorf("fee without recipient: got %v, want ErrZeroAddress", err)
	}
}

func TestFees_SetRecipient(t *testing.T) {
	f := newFixture(t, fixtureOpts{feeFrac: tenPct})

	if err := f.vault.SetYieldFeeRecipient(f.bob, f.bob); !errors.Is(err, vault.ErrNotOwner) {
		t.Errorf("non-owner: got %v, want ErrNotOwner", err)
	}
	// Recipient cannot be cleared while a fee is configured
	if err := f.vault.SetYieldFeeRecipient(f.owner, uuid.Nil); !errors.Is(err, vault.ErrZeroAddress) {
		t.Errorf("clear with fee set: got %v, want ErrZeroAddress", err)
	}
	next := uuid.New()
	if err := f.vault.SetYieldFeeRecipient(f.owner, next); err != nil {
		t.Fatalf("set recipient: %v", err)
	}
	if got := f.vault.FeeRecipient(); got != next {
		t.Errorf("recipient: got %v, want %v", got, next)
	}
}

func TestFees_SetAgents(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	if err := f.vault.SetLiquidationAgent(f.bob, f.bob); !errors.Is(err, vault.ErrNotOwner) {
		t.Errorf("non-owner: got %v, want ErrNotOwner", err)
	}
	if err := f.vault.SetLiquidationAgent(f.owner, uuid.Nil); !errors.Is(err, vault.ErrZeroAddress) {
		t.Errorf("zero agent: got %v, want ErrZeroAddress", err)
	}
	next := uuid.New()
	if err := f.vault.SetLiquidationAgent(f.owner, next); err != nil {
		t.Fatalf("set agent: %v", err)
	}
	if got := f.vault.LiquidationAgent(); got != next {
		t.Errorf("agent: got %v, want %v", got, next)
	}

	claim := uuid.New()
	if err := f.vault.SetClaimAgent(f.owner, claim); err != nil {
		t.Fatalf("set claim agent: %v", err)
	}
	if got := f.vault.ClaimAgent(); got != claim {
		t.Errorf("claim agent: got %v, want %v", got, claim)
	}
}
