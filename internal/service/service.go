package service

import (
	"YieldVault/internal/event"
	"YieldVault/internal/observability"
	"YieldVault/internal/vault"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrDuplicateOp marks an operation whose idempotency key was already
// processed. Callers treat it as success of the earlier submission.
var ErrDuplicateOp = errors.New("duplicate operation")

// Result carries the amounts an operation settled at
type Result struct {
	Shares uint64 `json:"shares,omitempty"`
	Assets uint64 `json:"assets,omitempty"`
	Fee    uint64 `json:"fee,omitempty"`
}

// Output is emitted for every applied event
type Output struct {
	Envelope *event.EventEnvelope
	Result   Result
}

// Command pairs an inbound event with a reply channel. Read-only
// queries set Inspect instead of Event: the loop invokes the closure
// with the vault between mutations, so readers never race writers.
type Command struct {
	Event   event.Event
	Inspect func(*vault.Vault)
	Reply   chan<- CommandResult

	// SnapshotReply, when set, receives the loop's snapshot state.
	// Event and Inspect are ignored for snapshot commands.
	SnapshotReply chan<- *SnapshotState
}

type CommandResult struct {
	Result Result
	Err    error
}

// StoreAdjuster applies externally observed store gains and losses.
// Implemented by stores whose balance changes are reported through the
// event log rather than observed in place.
type StoreAdjuster interface {
	Accrue(assets uint64) error
	Slash(assets uint64) error
}

// TokenSeeder credits depositor accounts on the asset ledger. The ledger
// is in-process, so external funding arrives as logged events the same
// way store adjustments do.
type TokenSeeder interface {
	Seed(account uuid.UUID, amount uint64)
}

// Service is the single-threaded operation processor. All vault
// mutations flow through ProcessEvent, which assigns the global
// sequence and maintains the state hash chain.
type Service struct {
	vault        *vault.Vault
	adjuster     StoreAdjuster
	seeder       TokenSeeder
	sequence     int64
	hasher       *StateHasher
	idempotency  *IdempotencyChecker
	seqValidator *SequenceValidator
	metrics      *observability.Metrics

	// last reported eviction count, for the counter delta
	reportedEvictions int64

	now func() time.Time

	persistChan chan<- Output
	publishChan chan<- Output
}

func New(
	v *vault.Vault,
	startSequence int64,
	lruCapacity int,
	persistChan, publishChan chan<- Output,
	dbChecker DBIdempotencyChecker,
	metrics *observability.Metrics,
) *Service {
	return &Service{
		vault:        v,
		sequence:     startSequence,
		hasher:       NewStateHasher(),
		idempotency:  NewIdempotencyChecker(lruCapacity, dbChecker),
		seqValidator: NewSequenceValidator(),
		metrics:      metrics,
		now:          time.Now,
		persistChan:  persistChan,
		publishChan:  publishChan,
	}
}

// SetStoreAdjuster wires the store-adjustment target. Must be called
// before Run; without it StoreAdjusted events are rejected.
func (s *Service) SetStoreAdjuster(adj StoreAdjuster) {
	s.adjuster = adj
}

// SetTokenSeeder wires the asset-ledger funding target. Must be called
// before Run; without it TokenSeeded events are rejected.
func (s *Service) SetTokenSeeder(seeder TokenSeeder) {
	s.seeder = seeder
}

// Run drains the command channel until the context is cancelled.
// This is the ONLY goroutine that touches the vault.
func (s *Service) Run(ctx context.Context, commands <-chan Command) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-commands:
			if cmd.SnapshotReply != nil {
				cmd.SnapshotReply <- s.CreateSnapshotState()
				continue
			}
			if cmd.Inspect != nil {
				cmd.Inspect(s.vault)
				if cmd.Reply != nil {
					cmd.Reply <- CommandResult{}
				}
				continue
			}
			result, err := s.ProcessEvent(cmd.Event)
			if cmd.Reply != nil {
				cmd.Reply <- CommandResult{Result: result, Err: err}
			}
		}
	}
}

// ProcessEvent is the main processing pipeline
func (s *Service) ProcessEvent(evt event.Event) (Result, error) {
	start := time.Now()
	opType := evt.EventType().String()
	idempotencyKey := evt.IdempotencyKey()

	// Step 1: Idempotency check (two-tier)
	isDuplicate, dedupTier := s.idempotency.IsDuplicate(opType, idempotencyKey)

	// Step 2: Sequence validation, partitioned by operation type
	prevGaps := s.seqValidator.Gaps(opType)
	if err := s.seqValidator.ValidateSequence(opType, evt.SourceSequence(), isDuplicate); err != nil {
		if s.metrics != nil {
			s.metrics.OpsRejected.WithLabelValues(opType, "stale").Inc()
			s.metrics.SequenceOutOfOrder.WithLabelValues(opType).Inc()
		}
		return Result{}, fmt.Errorf("sequence validation failed: %w", err)
	}
	if s.metrics != nil && s.seqValidator.Gaps(opType) > prevGaps {
		s.metrics.SequenceGap.WithLabelValues(opType).Inc()
	}

	if isDuplicate {
		if s.metrics != nil {
			s.metrics.OpsRejected.WithLabelValues(opType, "duplicate").Inc()
			s.metrics.IdempotencyDuplicates.WithLabelValues(opType, dedupTier).Inc()
		}
		return Result{}, ErrDuplicateOp
	}

	// Step 3: Dispatch to the vault. A rejected operation produces no
	// envelope and does not consume the idempotency key, so the caller
	// may retry with the same key.
	result, err := s.dispatch(evt)
	if err != nil {
		if s.metrics != nil {
			s.metrics.OpsRejected.WithLabelValues(opType, "rejected").Inc()
		}
		return Result{}, err
	}

	// Step 4: State digest and hash chain
	stateDigest := s.computeStateDigest()
	prevHash := s.hasher.GetPrevHash()
	stateHash := s.hasher.ComputeHash(s.sequence, stateDigest)

	payload, merr := json.Marshal(evt)
	if merr != nil {
		panic(fmt.Sprintf("FATAL: event payload marshal: %v", merr))
	}

	envelope := &event.EventEnvelope{
		Sequence:       s.sequence,
		IdempotencyKey: idempotencyKey,
		EventType:      evt.EventType(),
		Timestamp:      s.now(),
		SourceSequence: evt.SourceSequence(),
		Payload:        payload,
		StateHash:      stateHash,
		PrevHash:       prevHash,
	}
	s.sequence++

	output := Output{Envelope: envelope, Result: result}

	// Step 5: Emit. Persistence uses a BLOCKING send — the loop stalls
	// until the persistence worker drains, so no applied event is lost.
	// Publish uses a NON-BLOCKING send with drop; subscribers can
	// rebuild from the event log.
	select {
	case s.persistChan <- output:
	default:
		if s.metrics != nil {
			s.metrics.PersistBackpressure.Inc()
		}
		s.persistChan <- output
	}

	select {
	case s.publishChan <- output:
	default:
		if s.metrics != nil {
			s.metrics.PublishDrops.Inc()
		}
	}

	// Step 6: Mark as processed
	s.idempotency.MarkProcessed(opType, idempotencyKey)

	if s.metrics != nil {
		s.metrics.OpsApplied.WithLabelValues(opType).Inc()
		s.metrics.OpDuration.WithLabelValues(opType).Observe(time.Since(start).Seconds())
		s.metrics.Sequence.Set(float64(s.sequence))
		s.metrics.DedupLRUSize.Set(float64(s.idempotency.lru.Size()))
		if ev := s.idempotency.lru.Evictions(); ev > s.reportedEvictions {
			s.metrics.DedupLRUEvictions.Add(float64(ev - s.reportedEvictions))
			s.reportedEvictions = ev
		}
		s.updateLedgerGauges()
	}

	return result, nil
}

// Replay applies a logged event during startup recovery. It follows the
// same dispatch and hash-chain path as ProcessEvent but consults only
// the in-memory dedup tier (every logged event is in Postgres by
// definition) and emits nothing: the event is already persisted and
// published.
func (s *Service) Replay(evt event.Event) error {
	opType := evt.EventType().String()
	key := evt.IdempotencyKey()

	if s.idempotency.IsDuplicateLocal(opType, key) {
		return ErrDuplicateOp
	}
	if err := s.seqValidator.ValidateSequence(opType, evt.SourceSequence(), false); err != nil {
		return fmt.Errorf("sequence validation failed: %w", err)
	}

	if _, err := s.dispatch(evt); err != nil {
		return err
	}

	s.hasher.ComputeHash(s.sequence, s.computeStateDigest())
	s.sequence++
	s.idempotency.MarkProcessed(opType, key)
	return nil
}

func (s *Service) dispatch(evt event.Event) (Result, error) {
	switch e := evt.(type) {
	case *event.Deposit:
		shares, err := s.vault.Deposit(e.Caller, e.Receiver, e.Assets)
		if err != nil {
			return Result{}, err
		}
		return Result{Shares: shares, Assets: e.Assets}, nil

	case *event.Mint:
		assets, err := s.vault.Mint(e.Caller, e.Receiver, e.Shares)
		if err != nil {
			return Result{}, err
		}
		return Result{Shares: e.Shares, Assets: assets}, nil

	case *event.Sponsor:
		shares, err := s.vault.Sponsor(e.Caller, e.Assets)
		if err != nil {
			return Result{}, err
		}
		return Result{Shares: shares, Assets: e.Assets}, nil

	case *event.Withdraw:
		shares, err := s.vault.Withdraw(e.Caller, e.Receiver, e.Owner, e.Assets)
		if err != nil {
			return Result{}, err
		}
		return Result{Shares: shares, Assets: e.Assets}, nil

	case *event.Redeem:
		assets, err := s.vault.Redeem(e.Caller, e.Receiver, e.Owner, e.Shares)
		if err != nil {
			return Result{}, err
		}
		return Result{Shares: e.Shares, Assets: assets}, nil

	case *event.YieldExtracted:
		fee, err := s.vault.TransferTokensOut(e.Agent, e.Recipient, e.TokenOut, e.Amount)
		if err != nil {
			return Result{}, err
		}
		// Record the settled fee in the event log payload
		e.Fee = fee
		if s.metrics != nil {
			s.metrics.YieldExtracted.WithLabelValues(e.TokenOut.String()).Add(float64(e.Amount))
			s.metrics.FeesReserved.Add(float64(fee))
		}
		return Result{Assets: e.Amount, Fee: fee}, nil

	case *event.ContributionVerified:
		if err := s.vault.VerifyTokensIn(e.Agent, e.TokenIn, e.Amount); err != nil {
			return Result{}, err
		}
		if s.metrics != nil {
			s.metrics.ContributionsTotal.Add(float64(e.Amount))
		}
		return Result{Assets: e.Amount}, nil

	case *event.FeeClaimed:
		if err := s.vault.ClaimYieldFeeShares(e.Recipient, e.Shares); err != nil {
			return Result{}, err
		}
		if s.metrics != nil {
			s.metrics.FeesClaimed.Add(float64(e.Shares))
		}
		return Result{Shares: e.Shares}, nil

	case *event.ParamUpdated:
		return Result{}, s.applyParamUpdate(e)

	case *event.StoreAdjusted:
		if s.adjuster == nil {
			return Result{}, errors.New("store adjustments unsupported")
		}
		if e.Delta >= 0 {
			if err := s.adjuster.Accrue(uint64(e.Delta)); err != nil {
				return Result{}, err
			}
			return Result{Assets: uint64(e.Delta)}, nil
		}
		// -Delta wraps at the int64 floor; negate via the complement.
		loss := uint64(-(e.Delta + 1)) + 1
		if err := s.adjuster.Slash(loss); err != nil {
			return Result{}, err
		}
		return Result{Assets: loss}, nil

	case *event.TokenSeeded:
		if s.seeder == nil {
			return Result{}, errors.New("token seeding unsupported")
		}
		s.seeder.Seed(e.Account, e.Amount)
		return Result{Assets: e.Amount}, nil

	case *event.YieldObserved:
		// Reporter snapshot: read-only, fill the payload from live state
		e.TotalAssets = s.vault.TotalAssets()
		e.TotalDebt = s.vault.TotalDebt()
		e.TotalYield = s.vault.TotalYieldBalance()
		e.AvailableYield = s.vault.AvailableYieldBalance()
		e.FeeBalance = s.vault.FeeBalance()
		return Result{}, nil

	default:
		return Result{}, fmt.Errorf("unknown event type: %T", evt)
	}
}

func (s *Service) applyParamUpdate(e *event.ParamUpdated) error {
	switch e.Kind {
	case event.ParamFeePercentage:
		return s.vault.SetYieldFeePercentage(e.Owner, e.NumericValue)
	case event.ParamFeeRecipient:
		return s.vault.SetYieldFeeRecipient(e.Owner, e.AddressValue)
	case event.ParamLiquidationAgent:
		return s.vault.SetLiquidationAgent(e.Owner, e.AddressValue)
	case event.ParamClaimAgent:
		return s.vault.SetClaimAgent(e.Owner, e.AddressValue)
	default:
		return fmt.Errorf("unknown param kind: %q", e.Kind)
	}
}

// computeStateDigest creates canonical bytes for the state hash from the
// vault's accounting aggregates.
func (s *Service) computeStateDigest() []byte {
	digest := make([]byte, 0, 40)
	digest = appendUint64LE(digest, s.vault.TotalSupply())
	digest = appendUint64LE(digest, s.vault.FeeBalance())
	digest = appendUint64LE(digest, s.vault.LatentBalance())
	digest = appendUint64LE(digest, s.vault.TotalAssets())
	digest = appendUint64LE(digest, s.vault.FeePercentage())
	return digest
}

func appendUint64LE(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func (s *Service) updateLedgerGauges() {
	s.metrics.TotalSupply.Set(float64(s.vault.TotalSupply()))
	s.metrics.TotalAssets.Set(float64(s.vault.TotalAssets()))
	s.metrics.TotalDebt.Set(float64(s.vault.TotalDebt()))
	s.metrics.FeeBalance.Set(float64(s.vault.FeeBalance()))
	s.metrics.AvailableYield.Set(float64(s.vault.AvailableYieldBalance()))
	s.metrics.LatentBalance.Set(float64(s.vault.LatentBalance()))
}

// --- Snapshot Restore & Startup Methods ---

// SnapshotState holds the serializable loop state for restore.
type SnapshotState struct {
	Sequence        int64
	StateHash       [32]byte
	FeeBalance      uint64
	SequenceState   map[string]int64
	IdempotencyKeys []string
}

// RestoreFromSnapshot restores the loop's state from a snapshot.
// On warm restart: load latest snapshot, then replay events after it.
func (s *Service) RestoreFromSnapshot(snap *SnapshotState) {
	s.sequence = snap.Sequence + 1 // Next sequence to assign
	s.hasher.SetPrevHash(snap.StateHash)
	s.vault.RestoreFeeBalance(snap.FeeBalance)

	for partition, high := range snap.SequenceState {
		s.seqValidator.RestorePartition(partition, high)
	}
}

// WarmLRU loads recent idempotency keys into the LRU cache so restarts
// do not fall through to Postgres on the hot path.
func (s *Service) WarmLRU(keys []string) {
	s.idempotency.lru.WarmFromKeys(keys)
}

// GetSequence returns the current global sequence number.
func (s *Service) GetSequence() int64 {
	return s.sequence
}

// GetStateHash returns the current state hash (chain tip).
func (s *Service) GetStateHash() [32]byte {
	return s.hasher.GetPrevHash()
}

// CreateSnapshotState captures the current loop state for persistence.
func (s *Service) CreateSnapshotState() *SnapshotState {
	return &SnapshotState{
		Sequence:        s.sequence - 1, // Last processed sequence
		StateHash:       s.hasher.GetPrevHash(),
		FeeBalance:      s.vault.FeeBalance(),
		SequenceState:   s.seqValidator.GetAllPartitions(),
		IdempotencyKeys: s.idempotency.lru.GetAllKeys(),
	}
}
