package event

import (
	"github.com/google/uuid"
)

// StoreAdjusted records an externally observed change in the yield
// store's asset balance: a positive delta is accrued yield, a negative
// delta an external loss. Logging these keeps replay deterministic even
// though the gain or loss originates outside the ledger.
type StoreAdjusted struct {
	AdjustmentID uuid.UUID `json:"adjustment_id"`
	Delta        int64     `json:"delta"`
	Sequence     int64     `json:"sequence"`
}

func (a *StoreAdjusted) IdempotencyKey() string {
	return a.AdjustmentID.String()
}

func (a *StoreAdjusted) EventType() EventType {
	return EventTypeStoreAdjusted
}

func (a *StoreAdjusted) SourceSequence() int64 {
	return a.Sequence
}

// TokenSeeded credits a depositor account on the in-process asset
// ledger. External funding has no transfer to observe, so each credit
// is logged the same way store adjustments are; a cold replay then
// rebuilds the balances every later deposit pulls from.
type TokenSeeded struct {
	SeedID   uuid.UUID `json:"seed_id"`
	Account  uuid.UUID `json:"account"`
	Amount   uint64    `json:"amount"`
	Sequence int64     `json:"sequence"`
}

func (s *TokenSeeded) IdempotencyKey() string {
	return s.SeedID.String()
}

func (s *TokenSeeded) EventType() EventType {
	return EventTypeTokenSeeded
}

func (s *TokenSeeded) SourceSequence() int64 {
	return s.Sequence
}
