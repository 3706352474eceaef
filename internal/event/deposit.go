package event

import "github.com/google/uuid"

// Deposit credits a receiver with shares for assets supplied by the caller.
type Deposit struct {
	OpID     uuid.UUID `json:"op_id"`
	Caller   uuid.UUID `json:"caller"`
	Receiver uuid.UUID `json:"receiver"`
	Assets   uint64    `json:"assets"`
	Sequence int64     `json:"sequence"`
}

func (d *Deposit) IdempotencyKey() string {
	return d.OpID.String()
}

func (d *Deposit) EventType() EventType {
	return EventTypeDeposit
}

func (d *Deposit) SourceSequence() int64 {
	return d.Sequence
}

// Mint is the share-denominated twin of Deposit.
type Mint struct {
	OpID     uuid.UUID `json:"op_id"`
	Caller   uuid.UUID `json:"caller"`
	Receiver uuid.UUID `json:"receiver"`
	Shares   uint64    `json:"shares"`
	Sequence int64     `json:"sequence"`
}

func (m *Mint) IdempotencyKey() string {
	return m.OpID.String()
}

func (m *Mint) EventType() EventType {
	return EventTypeMint
}

func (m *Mint) SourceSequence() int64 {
	return m.Sequence
}

// Sponsor deposits to the caller and flags the holder as sponsored.
type Sponsor struct {
	OpID     uuid.UUID `json:"op_id"`
	Caller   uuid.UUID `json:"caller"`
	Assets   uint64    `json:"assets"`
	Sequence int64     `json:"sequence"`
}

func (s *Sponsor) IdempotencyKey() string {
	return s.OpID.String()
}

func (s *Sponsor) EventType() EventType {
	return EventTypeSponsor
}

func (s *Sponsor) SourceSequence() int64 {
	return s.Sequence
}
