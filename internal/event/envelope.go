package event

import (
	"time"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeDeposit
	EventTypeMint
	EventTypeSponsor
	EventTypeWithdraw
	EventTypeRedeem
	EventTypeYieldExtracted
	EventTypeContributionVerified
	EventTypeFeeClaimed
	EventTypeParamUpdated
	EventTypeYieldObserved
	EventTypeStoreAdjusted
	EventTypeTokenSeeded
)

// EventEnvelope wraps every event in the log
type EventEnvelope struct {
	// Global monotonic sequence assigned by the service loop
	Sequence int64

	// Stable idempotency key from upstream
	IdempotencyKey string

	// Event type discriminator
	EventType EventType

	// Wall-clock time the envelope was created by the service loop
	Timestamp time.Time

	// Upstream sequence for ordering validation
	SourceSequence int64

	// JSON-encoded event-specific data
	Payload []byte

	// SHA-256 of ledger state AFTER applying this event
	StateHash [32]byte

	// Previous event's state hash (chain integrity)
	PrevHash [32]byte
}

// Event is the interface all event payloads must implement
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// SourceSequence returns upstream ordering key
	SourceSequence() int64
}

func (et EventType) String() string {
	switch et {
	case EventTypeDeposit:
		return "Deposit"
	case EventTypeMint:
		return "Mint"
	case EventTypeSponsor:
		return "Sponsor"
	case EventTypeWithdraw:
		return "Withdraw"
	case EventTypeRedeem:
		return "Redeem"
	case EventTypeYieldExtracted:
		return "YieldExtracted"
	case EventTypeContributionVerified:
		return "ContributionVerified"
	case EventTypeFeeClaimed:
		return "FeeClaimed"
	case EventTypeParamUpdated:
		return "ParamUpdated"
	case EventTypeYieldObserved:
		return "YieldObserved"
	case EventTypeStoreAdjusted:
		return "StoreAdjusted"
	case EventTypeTokenSeeded:
		return "TokenSeeded"
	default:
		return "Unknown"
	}
}
