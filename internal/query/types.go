package query

import "github.com/google/uuid"

// OperationResponse represents an applied operation for API queries.
type OperationResponse struct {
	Sequence     int64     `json:"sequence"`
	OpType       string    `json:"op_type"`
	Actor        uuid.UUID `json:"actor"`
	Receiver     uuid.UUID `json:"receiver"`
	Assets       int64     `json:"assets"`
	Shares       int64     `json:"shares"`
	Fee          int64     `json:"fee"`
	Timestamp    int64     `json:"timestamp"`
	AsOfSequence int64     `json:"as_of_sequence"`
}

// EventResponse is a raw event-log envelope for API queries.
type EventResponse struct {
	Sequence       int64  `json:"sequence"`
	EventType      string `json:"event_type"`
	IdempotencyKey string `json:"idempotency_key"`
	Payload        []byte `json:"payload"`
	StateHash      []byte `json:"state_hash"`
	PrevHash       []byte `json:"prev_hash"`
	Timestamp      int64  `json:"timestamp"`
	SourceSequence int64  `json:"source_sequence"`
}

// VaultStats aggregates the event log by operation type.
type VaultStats struct {
	TotalDeposited  int64 `json:"total_deposited"`
	TotalWithdrawn  int64 `json:"total_withdrawn"`
	TotalExtracted  int64 `json:"total_extracted"`
	TotalFeesPaid   int64 `json:"total_fees_paid"`
	OperationCount  int64 `json:"operation_count"`
	LiquidationRuns int64 `json:"liquidation_runs"`
	AsOfSequence    int64 `json:"as_of_sequence"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy       bool    `json:"is_healthy"`
	HashChainBreaks []int64 `json:"hash_chain_breaks,omitempty"`
}
