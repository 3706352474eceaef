package vault_test

import (
	"YieldVault/internal/vault"
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"
)

func TestLiquidation_ExtractAllYieldNoFee(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.vault.Deposit(f.alice, f.alice, 1000)
	f.store.Accrue(10)

	assetID := f.asset.ID()
	if got := f.vault.LiquidatableBalanceOf(assetID); got != 10 {
		t.Fatalf("liquidatable: got %d, want 10", got)
	}

	fee, err := f.vault.TransferTokensOut(f.agent, f.bob, assetID, 10)
	if err != nil {
		t.Fatalf("transfer out: %v", err)
	}
	if fee != 0 {
		t.Errorf("fee: got %d, want 0", fee)
	}
	if got := f.asset.BalanceOf(f.bob); got != 1_000_010 {
		t.Errorf("recipient balance: got %d, want 1_000_010", got)
	}
	if got := f.vault.AvailableYieldBalance(); got != 0 {
		t.Errorf("available yield after extraction: got %d, want 0", got)
	}
	if got := f.vault.LiquidatableBalanceOf(assetID); got != 0 {
		t.Errorf("liquidatable after extraction: got %d, want 0", got)
	}
}

func TestLiquidation_FeeReservedOnExtraction(t *testing.T) {
	f := newFixture(t, fixtureOpts{feeFrac: tenPct})
	f.vault.Deposit(f.alice, f.alice, 1000)
	f.store.Accrue(10)

	assetID := f.asset.ID()
	// 10% fee leaves 9 extractable of the 10 yield
	if got := f.vault.LiquidatableBalanceOf(assetID); got != 9 {
		t.Fatalf("liquidatable: got %d, want 9", got)
	}

	debtBefore := f.vault.TotalDebt()
	fee, err := f.vault.TransferTokensOut(f.agent, f.bob, assetID, 9)
	if err != nil {
		t.Fatalf("transfer out: %v", err)
	}
	if fee != 1 {
		t.Errorf("fee: got %d, want 1", fee)
	}
	if got := f.vault.FeeBalance(); got != 1 {
		t.Errorf("fee balance: got %d, want 1", got)
	}
	if got := f.vault.TotalDebt(); got != debtBefore+fee {
		t.Errorf("debt: got %d, want %d", got, debtBefore+fee)
	}
}

func TestLiquidation_ExtractionExceedsYield(t *testing.T) {
	f := newFixture(t, fixtureOpts{feeFrac: tenPct})
	f.vault.Deposit(f.alice, f.alice, 1000)
	f.store.Accrue(10)

	// 10 out plus its fee would need 11 of the 10 available
	_, err := f.vault.TransferTokensOut(f.agent, f.bob, f.asset.ID(), 10)
	if !errors.Is(err, vault.ErrExceedsYield) {
		t.Errorf("got %v, want ErrExceedsYield", err)
	}
	if f.vault.FeeBalance() != 0 {
		t.Errorf("fee balance after rejection: got %d, want 0", f.vault.FeeBalance())
	}
}

func TestLiquidation_ShareOutput(t *testing.T) {
	f := newFixture(t, fixtureOpts{feeFrac: tenPct})
	f.vault.Deposit(f.alice, f.alice, 1000)
	f.store.Accrue(10)

	shareID := f.vault.ShareTokenID()
	debtBefore := f.vault.TotalDebt()

	fee, err := f.vault.TransferTokensOut(f.agent, f.bob, shareID, 9)
	if err != nil {
		t.Fatalf("transfer out shares: %v", err)
	}
	if got := f.reg.BalanceOf(f.bob); got != 9 {
		t.Errorf("recipient shares: got %d, want 9", got)
	}
	// Shares stay as debt: supply grows by the amount, fee is reserved on top
	if got := f.vault.TotalDebt(); got != debtBefore+9+fee {
		t.Errorf("debt: got %d, want %d", got, debtBefore+9+fee)
	}
	// Nothing left the store
	if got := f.asset.BalanceOf(f.bob); got != 1_000_000 {
		t.Errorf("recipient assets: got %d, want 1_000_000", got)
	}
}

func TestLiquidation_ShareOutputBoundedBySupplyCap(t *testing.T) {
	f := newFixture(t, fixtureOpts{maxSupply: 1004})
	f.vault.Deposit(f.alice, f.alice, 1000)
	f.store.Accrue(10)

	shareID := f.vault.ShareTokenID()
	// 10 yield available but only 4 shares of headroom
	if got := f.vault.LiquidatableBalanceOf(shareID); got != 4 {
		t.Errorf("liquidatable shares: got %d, want 4", got)
	}
	if _, err := f.vault.TransferTokensOut(f.agent, f.bob, shareID, 4); err != nil {
		t.Errorf("transfer within headroom: %v", err)
	}
}

func TestLiquidation_NearCeilingAmountCannotWrapGuards(t *testing.T) {
	// amount + fee and debt + amount + fee both overflow uint64 for this
	// request; plain addition would wrap them below the available yield
	// and the supply cap, crediting ~1.8e19 shares against 100 of yield.
	f := newFixture(t, fixtureOpts{feeFrac: 1})
	f.asset.Seed(f.alice, 20_000_000_000)
	if _, err := f.vault.Deposit(f.alice, f.alice, 20_000_000_000); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	f.store.Accrue(100)

	supplyBefore := f.vault.TotalSupply()
	const huge = uint64(18_446_744_055_262_807_624)

	for _, tokenOut := range []uuid.UUID{f.vault.ShareTokenID(), f.asset.ID()} {
		if _, err := f.vault.TransferTokensOut(f.agent, f.bob, tokenOut, huge); !errors.Is(err, vault.ErrExceedsYield) {
			t.Errorf("token %s: got %v, want ErrExceedsYield", tokenOut, err)
		}
	}
	if _, err := f.vault.TransferTokensOut(f.agent, f.bob, f.vault.ShareTokenID(), math.MaxUint64); !errors.Is(err, vault.ErrExceedsYield) {
		t.Errorf("max amount: got %v, want ErrExceedsYield", err)
	}

	if got := f.vault.TotalSupply(); got != supplyBefore {
		t.Errorf("supply after rejections: got %d, want %d", got, supplyBefore)
	}
	if got := f.reg.BalanceOf(f.bob); got != 0 {
		t.Errorf("recipient shares: got %d, want 0", got)
	}
	if got := f.vault.FeeBalance(); got != 0 {
		t.Errorf("fee balance: got %d, want 0", got)
	}
}

func TestLiquidation_AuthAndValidation(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.vault.Deposit(f.alice, f.alice, 1000)
	f.store.Accrue(10)
	assetID := f.asset.ID()

	if _, err := f.vault.TransferTokensOut(f.bob, f.bob, assetID, 1); !errors.Is(err, vault.ErrNotLiquidationAgent) {
		t.Errorf("non-agent: got %v, want ErrNotLiquidationAgent", err)
	}
	if _, err := f.vault.TransferTokensOut(f.agent, f.bob, assetID, 0); !errors.Is(err, vault.ErrZeroShares) {
		t.Errorf("zero amount: got %v, want ErrZeroShares", err)
	}
	if _, err := f.vault.TransferTokensOut(f.agent, uuid.Nil, assetID, 1); !errors.Is(err, vault.ErrZeroAddress) {
		t.Errorf("zero recipient: got %v, want ErrZeroAddress", err)
	}
	if _, err := f.vault.TransferTokensOut(f.agent, f.bob, uuid.New(), 1); !errors.Is(err, vault.ErrUnsupportedToken) {
		t.Errorf("unknown token: got %v, want ErrUnsupportedToken", err)
	}
}

func TestLiquidation_PairAndTarget(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	if got := f.vault.TargetOf(); got != f.sink.Account() {
		t.Errorf("target: got %v, want sink account %v", got, f.sink.Account())
	}
	if !f.vault.IsLiquidationPair(f.asset.ID(), f.agent) {
		t.Error("asset/agent should be a liquidation pair")
	}
	if !f.vault.IsLiquidationPair(f.vault.ShareTokenID(), f.agent) {
		t.Error("share/agent should be a liquidation pair")
	}
	if f.vault.IsLiquidationPair(f.asset.ID(), f.bob) {
		t.Error("wrong agent should not be a pair")
	}
	if f.vault.IsLiquidationPair(uuid.New(), f.agent) {
		t.Error("unknown token should not be a pair")
	}
	if got := f.vault.LiquidatableBalanceOf(uuid.New()); got != 0 {
		t.Errorf("unknown token liquidatable: got %d, want 0", got)
	}
}

func TestLiquidation_VerifyTokensIn(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	if err := f.vault.VerifyTokensIn(f.bob, f.prizeToken, 10); !errors.Is(err, vault.ErrNotLiquidationAgent) {
		t.Errorf("non-agent: got %v, want ErrNotLiquidationAgent", err)
	}
	if err := f.vault.VerifyTokensIn(f.agent, uuid.New(), 10); !errors.Is(err, vault.ErrWrongPaymentToken) {
		t.Errorf("wrong token: got %v, want ErrWrongPaymentToken", err)
	}

	if err := f.vault.VerifyTokensIn(f.agent, f.prizeToken, 10); err != nil {
		t.Fatalf("verify in: %v", err)
	}
	if got := f.sink.ContributedBy(f.vault.Account()); got != 10 {
		t.Errorf("contribution recorded: got %d, want 10", got)
	}
}

func TestLiquidation_YieldBufferWithheld(t *testing.T) {
	f := newFixture(t, fixtureOpts{yieldBuffer: 4})
	f.vault.Deposit(f.alice, f.alice, 1000)
	f.store.Accrue(10)

	assetID := f.asset.ID()
	if got := f.vault.LiquidatableBalanceOf(assetID); got != 6 {
		t.Fatalf("liquidatable with buffer: got %d, want 6", got)
	}
	if _, err := f.vault.TransferTokensOut(f.agent, f.bob, assetID, 7); !errors.Is(err, vault.ErrExceedsYield) {
		t.Errorf("over buffer: got %v, want ErrExceedsYield", err)
	}
	if _, err := f.vault.TransferTokensOut(f.agent, f.bob, assetID, 6); err != nil {
		t.Errorf("within buffer: %v", err)
	}
}
