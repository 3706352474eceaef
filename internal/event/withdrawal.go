package event

import "github.com/google/uuid"

// Withdraw burns the owner's shares and releases an exact asset amount
// to the receiver.
type Withdraw struct {
	OpID     uuid.UUID `json:"op_id"`
	Caller   uuid.UUID `json:"caller"`
	Receiver uuid.UUID `json:"receiver"`
	Owner    uuid.UUID `json:"owner"`
	Assets   uint64    `json:"assets"`
	Sequence int64     `json:"sequence"`
}

func (w *Withdraw) IdempotencyKey() string {
	return w.OpID.String()
}

func (w *Withdraw) EventType() EventType {
	return EventTypeWithdraw
}

func (w *Withdraw) SourceSequence() int64 {
	return w.Sequence
}

// Redeem burns an exact share amount and releases the converted assets.
type Redeem struct {
	OpID     uuid.UUID `json:"op_id"`
	Caller   uuid.UUID `json:"caller"`
	Receiver uuid.UUID `json:"receiver"`
	Owner    uuid.UUID `json:"owner"`
	Shares   uint64    `json:"shares"`
	Sequence int64     `json:"sequence"`
}

func (r *Redeem) IdempotencyKey() string {
	return r.OpID.String()
}

func (r *Redeem) EventType() EventType {
	return EventTypeRedeem
}

func (r *Redeem) SourceSequence() int64 {
	return r.Sequence
}
