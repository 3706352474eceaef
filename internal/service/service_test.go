package service_test

import (
	"YieldVault/internal/event"
	"YieldVault/internal/registry"
	"YieldVault/internal/service"
	"YieldVault/internal/store"
	"YieldVault/internal/token"
	"YieldVault/internal/vault"
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"
)

// --- Test helpers ---

type testRig struct {
	svc     *service.Service
	vault   *vault.Vault
	asset   *token.MemoryToken
	store   *store.MemoryStore
	persist chan service.Output
	publish chan service.Output

	owner, agent, alice uuid.UUID
}

// newTestRig wires a Service over in-memory collaborators with buffered
// channels and no DB checker.
func newTestRig(t *testing.T) *testRig {
	t.Helper()

	asset := token.NewMemoryToken()
	ys := store.NewMemoryStore(asset)
	reg := registry.NewMemoryRegistry(0)
	sink := token.NewMemoryPool()

	owner := uuid.New()
	agent := uuid.New()
	alice := uuid.New()

	v, err := vault.New(asset, ys, reg, sink, vault.Config{
		Owner:            owner,
		LiquidationAgent: agent,
		PrizeTokenID:     uuid.New(),
	})
	if err != nil {
		t.Fatalf("new vault: %v", err)
	}
	asset.Seed(alice, 1_000_000)

	persist := make(chan service.Output, 1024)
	publish := make(chan service.Output, 1024)
	svc := service.New(v, 0, 1024, persist, publish, nil, nil)
	svc.SetStoreAdjuster(ys)
	svc.SetTokenSeeder(asset)

	return &testRig{
		svc: svc, vault: v, asset: asset, store: ys,
		persist: persist, publish: publish,
		owner: owner, agent: agent, alice: alice,
	}
}

func mustDeposit(caller, receiver uuid.UUID, assets uint64, seq int64) *event.Deposit {
	return &event.Deposit{
		OpID:     uuid.New(),
		Caller:   caller,
		Receiver: receiver,
		Assets:   assets,
		Sequence: seq,
	}
}

func mustWithdraw(caller uuid.UUID, assets uint64, seq int64) *event.Withdraw {
	return &event.Withdraw{
		OpID:     uuid.New(),
		Caller:   caller,
		Receiver: caller,
		Owner:    caller,
		Assets:   assets,
		Sequence: seq,
	}
}

// --- Tests ---

func TestProcessEvent_DepositEmitsEnvelope(t *testing.T) {
	rig := newTestRig(t)

	result, err := rig.svc.ProcessEvent(mustDeposit(rig.alice, rig.alice, 1000, 1))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.Shares != 1000 {
		t.Errorf("shares: got %d, want 1000", result.Shares)
	}

	out := <-rig.persist
	if out.Envelope.Sequence != 0 {
		t.Errorf("sequence: got %d, want 0", out.Envelope.Sequence)
	}
	if out.Envelope.EventType != event.EventTypeDeposit {
		t.Errorf("event type: got %v", out.Envelope.EventType)
	}
	if len(out.Envelope.Payload) == 0 {
		t.Error("payload should carry the serialized event")
	}
	if rig.svc.GetSequence() != 1 {
		t.Errorf("next sequence: got %d, want 1", rig.svc.GetSequence())
	}
}

func TestProcessEvent_DuplicateSkipped(t *testing.T) {
	rig := newTestRig(t)

	evt := mustDeposit(rig.alice, rig.alice, 100, 1)
	if _, err := rig.svc.ProcessEvent(evt); err != nil {
		t.Fatalf("first: %v", err)
	}

	// Same OpID again: rejected as duplicate, state untouched
	_, err := rig.svc.ProcessEvent(evt)
	if !errors.Is(err, service.ErrDuplicateOp) {
		t.Fatalf("got %v, want ErrDuplicateOp", err)
	}
	if got := rig.vault.TotalSupply(); got != 100 {
		t.Errorf("supply after duplicate: got %d, want 100", got)
	}
	if rig.svc.GetSequence() != 1 {
		t.Errorf("sequence advanced on duplicate: %d", rig.svc.GetSequence())
	}
}

func TestProcessEvent_StaleSequenceRejected(t *testing.T) {
	rig := newTestRig(t)

	if _, err := rig.svc.ProcessEvent(mustDeposit(rig.alice, rig.alice, 100, 5)); err != nil {
		t.Fatalf("first: %v", err)
	}
	// A NEW event with an older source sequence on the same partition
	if _, err := rig.svc.ProcessEvent(mustDeposit(rig.alice, rig.alice, 100, 3)); err == nil {
		t.Fatal("stale sequence should be rejected")
	}
	// Gaps are tolerated
	if _, err := rig.svc.ProcessEvent(mustDeposit(rig.alice, rig.alice, 100, 9)); err != nil {
		t.Errorf("gap should be tolerated: %v", err)
	}
}

func TestProcessEvent_RejectedOpConsumesNothing(t *testing.T) {
	rig := newTestRig(t)

	evt := mustWithdraw(rig.alice, 50, 1) // nothing deposited yet
	if _, err := rig.svc.ProcessEvent(evt); err == nil {
		t.Fatal("withdraw without balance should fail")
	}
	if rig.svc.GetSequence() != 0 {
		t.Errorf("sequence advanced on rejection: %d", rig.svc.GetSequence())
	}
	select {
	case out := <-rig.persist:
		t.Errorf("rejected op emitted envelope: %+v", out.Envelope)
	default:
	}

	// The key was not consumed: after a deposit the same withdraw succeeds
	if _, err := rig.svc.ProcessEvent(mustDeposit(rig.alice, rig.alice, 100, 1)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	evt.Sequence = 2
	if _, err := rig.svc.ProcessEvent(evt); err != nil {
		t.Errorf("retry after fix: %v", err)
	}
}

func TestProcessEvent_HashChain(t *testing.T) {
	rig := newTestRig(t)

	if _, err := rig.svc.ProcessEvent(mustDeposit(rig.alice, rig.alice, 100, 1)); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := rig.svc.ProcessEvent(mustDeposit(rig.alice, rig.alice, 200, 2)); err != nil {
		t.Fatalf("second: %v", err)
	}

	first := <-rig.persist
	second := <-rig.persist
	if second.Envelope.PrevHash != first.Envelope.StateHash {
		t.Error("hash chain broken: second.PrevHash != first.StateHash")
	}
	if first.Envelope.StateHash == second.Envelope.StateHash {
		t.Error("consecutive state hashes should differ")
	}
	if rig.svc.GetStateHash() != second.Envelope.StateHash {
		t.Error("chain tip should be the last envelope hash")
	}
}

func TestProcessEvent_LiquidationFlow(t *testing.T) {
	rig := newTestRig(t)

	if _, err := rig.svc.ProcessEvent(mustDeposit(rig.alice, rig.alice, 1000, 1)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	rig.store.Accrue(10)

	extract := &event.YieldExtracted{
		LiquidationID: uuid.New(),
		Agent:         rig.agent,
		Recipient:     rig.alice,
		TokenOut:      rig.asset.ID(),
		Amount:        10,
		Sequence:      1,
	}
	result, err := rig.svc.ProcessEvent(extract)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if result.Fee != 0 {
		t.Errorf("fee: got %d, want 0", result.Fee)
	}
	if extract.Fee != result.Fee {
		t.Error("settled fee should be recorded on the event payload")
	}
	if got := rig.vault.AvailableYieldBalance(); got != 0 {
		t.Errorf("yield after extraction: got %d, want 0", got)
	}
}

func TestProcessEvent_ParamUpdate(t *testing.T) {
	rig := newTestRig(t)

	recipient := uuid.New()
	upd := &event.ParamUpdated{
		UpdateID:     uuid.New(),
		Owner:        rig.owner,
		Kind:         event.ParamFeeRecipient,
		AddressValue: recipient,
		Sequence:     1,
	}
	if _, err := rig.svc.ProcessEvent(upd); err != nil {
		t.Fatalf("param update: %v", err)
	}
	if got := rig.vault.FeeRecipient(); got != recipient {
		t.Errorf("recipient: got %v, want %v", got, recipient)
	}

	// Non-owner rejected
	bad := &event.ParamUpdated{
		UpdateID:     uuid.New(),
		Owner:        uuid.New(),
		Kind:         event.ParamFeeRecipient,
		AddressValue: uuid.New(),
		Sequence:     2,
	}
	if _, err := rig.svc.ProcessEvent(bad); !errors.Is(err, vault.ErrNotOwner) {
		t.Errorf("got %v, want ErrNotOwner", err)
	}
}

func TestProcessEvent_StoreAdjusted(t *testing.T) {
	rig := newTestRig(t)

	rig.svc.ProcessEvent(mustDeposit(rig.alice, rig.alice, 1000, 1))

	accrue := &event.StoreAdjusted{AdjustmentID: uuid.New(), Delta: 25, Sequence: 1}
	result, err := rig.svc.ProcessEvent(accrue)
	if err != nil {
		t.Fatalf("accrue: %v", err)
	}
	if result.Assets != 25 {
		t.Errorf("assets: got %d, want 25", result.Assets)
	}
	if got := rig.vault.AvailableYieldBalance(); got != 25 {
		t.Errorf("yield after accrual: got %d, want 25", got)
	}

	slash := &event.StoreAdjusted{AdjustmentID: uuid.New(), Delta: -10, Sequence: 2}
	if _, err := rig.svc.ProcessEvent(slash); err != nil {
		t.Fatalf("slash: %v", err)
	}
	if got := rig.vault.AvailableYieldBalance(); got != 15 {
		t.Errorf("yield after slash: got %d, want 15", got)
	}

	// A service without an adjuster wired cannot apply adjustments
	bare := service.New(rig.vault, rig.svc.GetSequence(), 1024, rig.persist, rig.publish, nil, nil)
	if _, err := bare.ProcessEvent(&event.StoreAdjusted{AdjustmentID: uuid.New(), Delta: 1, Sequence: 3}); err == nil {
		t.Error("adjustment without adjuster should fail")
	}
}

func TestProcessEvent_StoreAdjustedFloorDelta(t *testing.T) {
	// Plain negation of the int64 floor wraps back to itself; the loss
	// magnitude must still come out as exactly 2^63.
	rig := newTestRig(t)
	rec := &recordingAdjuster{}

	svc := service.New(rig.vault, 0, 1024, rig.persist, rig.publish, nil, nil)
	svc.SetStoreAdjuster(rec)

	result, err := svc.ProcessEvent(&event.StoreAdjusted{
		AdjustmentID: uuid.New(),
		Delta:        math.MinInt64,
		Sequence:     1,
	})
	if err != nil {
		t.Fatalf("floor delta: %v", err)
	}
	if want := uint64(1) << 63; rec.slashed != want || result.Assets != want {
		t.Errorf("slashed %d, result %d, want %d", rec.slashed, result.Assets, want)
	}
	if rec.accrued != 0 {
		t.Errorf("accrued: got %d, want 0", rec.accrued)
	}
}

type recordingAdjuster struct {
	accrued, slashed uint64
}

func (r *recordingAdjuster) Accrue(assets uint64) error { r.accrued += assets; return nil }
func (r *recordingAdjuster) Slash(assets uint64) error  { r.slashed += assets; return nil }

func TestProcessEvent_TokenSeeded(t *testing.T) {
	rig := newTestRig(t)
	carol := uuid.New()

	// Fresh accounts hold nothing, so a deposit before funding fails
	if _, err := rig.svc.ProcessEvent(mustDeposit(carol, carol, 100, 1)); err == nil {
		t.Fatal("deposit from an unfunded account should fail")
	}

	seed := &event.TokenSeeded{SeedID: uuid.New(), Account: carol, Amount: 500, Sequence: 1}
	result, err := rig.svc.ProcessEvent(seed)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if result.Assets != 500 {
		t.Errorf("assets: got %d, want 500", result.Assets)
	}
	if got := rig.asset.BalanceOf(carol); got != 500 {
		t.Errorf("balance after seed: got %d, want 500", got)
	}

	if _, err := rig.svc.ProcessEvent(mustDeposit(carol, carol, 100, 2)); err != nil {
		t.Fatalf("deposit after seed: %v", err)
	}
	if got := rig.vault.BalanceOf(carol); got != 100 {
		t.Errorf("shares after deposit: got %d, want 100", got)
	}

	// A service without a seeder wired cannot apply seeds
	bare := service.New(rig.vault, rig.svc.GetSequence(), 1024, rig.persist, rig.publish, nil, nil)
	if _, err := bare.ProcessEvent(&event.TokenSeeded{SeedID: uuid.New(), Account: carol, Amount: 1, Sequence: 3}); err == nil {
		t.Error("seed without seeder should fail")
	}
}

func TestProcessEvent_YieldObservedFillsSnapshot(t *testing.T) {
	rig := newTestRig(t)

	rig.svc.ProcessEvent(mustDeposit(rig.alice, rig.alice, 1000, 1))
	rig.store.Accrue(25)

	obs := &event.YieldObserved{ObservationID: uuid.New(), Sequence: 1}
	if _, err := rig.svc.ProcessEvent(obs); err != nil {
		t.Fatalf("observe: %v", err)
	}
	if obs.TotalDebt != 1000 {
		t.Errorf("debt: got %d, want 1000", obs.TotalDebt)
	}
	if obs.TotalYield != 25 {
		t.Errorf("yield: got %d, want 25", obs.TotalYield)
	}
}

func TestReplay_RebuildsChain(t *testing.T) {
	rig := newTestRig(t)
	carol := uuid.New()

	// Carol is funded through the log, so the replay side needs no
	// out-of-band balance setup.
	rig.svc.ProcessEvent(&event.TokenSeeded{SeedID: uuid.New(), Account: carol, Amount: 1000, Sequence: 1})
	rig.svc.ProcessEvent(mustDeposit(carol, carol, 300, 1))
	rig.svc.ProcessEvent(mustDeposit(carol, carol, 700, 2))
	seeded := <-rig.persist
	first := <-rig.persist
	second := <-rig.persist

	// A fresh ledger over cold collaborators, same parties
	asset := token.NewMemoryToken()
	ys := store.NewMemoryStore(asset)
	v, err := vault.New(asset, ys, registry.NewMemoryRegistry(0), token.NewMemoryPool(), vault.Config{
		Owner:            rig.owner,
		LiquidationAgent: rig.agent,
		PrizeTokenID:     uuid.New(),
	})
	if err != nil {
		t.Fatalf("new vault: %v", err)
	}

	persist := make(chan service.Output, 16)
	publish := make(chan service.Output, 16)
	replayed := service.New(v, 0, 1024, persist, publish, nil, nil)
	replayed.SetStoreAdjuster(ys)
	replayed.SetTokenSeeder(asset)

	for _, env := range []*event.EventEnvelope{seeded.Envelope, first.Envelope, second.Envelope} {
		evt, perr := event.Parse(env.EventType.String(), env.Payload)
		if perr != nil {
			t.Fatalf("parse: %v", perr)
		}
		if rerr := replayed.Replay(evt); rerr != nil {
			t.Fatalf("replay seq %d: %v", env.Sequence, rerr)
		}
	}

	if replayed.GetSequence() != rig.svc.GetSequence() {
		t.Errorf("sequence: got %d, want %d", replayed.GetSequence(), rig.svc.GetSequence())
	}
	if replayed.GetStateHash() != rig.svc.GetStateHash() {
		t.Error("replayed chain tip should match the original")
	}
	if got := v.TotalSupply(); got != 1000 {
		t.Errorf("supply: got %d, want 1000", got)
	}

	// Replay emits nothing and leaves the keys consumed
	select {
	case <-persist:
		t.Error("replay should not re-emit envelopes")
	default:
	}
	dup, _ := event.Parse(first.Envelope.EventType.String(), first.Envelope.Payload)
	if err := replayed.Replay(dup); !errors.Is(err, service.ErrDuplicateOp) {
		t.Errorf("got %v, want ErrDuplicateOp", err)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	rig := newTestRig(t)

	rig.svc.ProcessEvent(mustDeposit(rig.alice, rig.alice, 500, 1))
	snap := rig.svc.CreateSnapshotState()
	if snap.Sequence != 0 {
		t.Errorf("snapshot sequence: got %d, want 0", snap.Sequence)
	}

	// Fresh service restored from the snapshot continues the chain
	persist := make(chan service.Output, 16)
	publish := make(chan service.Output, 16)
	restored := service.New(rig.vault, 0, 1024, persist, publish, nil, nil)
	restored.RestoreFromSnapshot(snap)
	restored.WarmLRU(snap.IdempotencyKeys)

	if restored.GetSequence() != 1 {
		t.Errorf("restored sequence: got %d, want 1", restored.GetSequence())
	}
	if restored.GetStateHash() != snap.StateHash {
		t.Error("restored chain tip should match snapshot hash")
	}
	if _, err := restored.ProcessEvent(mustDeposit(rig.alice, rig.alice, 100, 2)); err != nil {
		t.Fatalf("process after restore: %v", err)
	}
	out := <-persist
	if out.Envelope.Sequence != 1 {
		t.Errorf("sequence after restore: got %d, want 1", out.Envelope.Sequence)
	}
	if out.Envelope.PrevHash != snap.StateHash {
		t.Error("restored chain should link to snapshot hash")
	}
}
