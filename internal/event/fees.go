package event

import (
	"fmt"

	"github.com/google/uuid"
)

// FeeClaimed records the fee recipient converting reserved fee balance
// into minted shares.
type FeeClaimed struct {
	ClaimID   uuid.UUID `json:"claim_id"`
	Recipient uuid.UUID `json:"recipient"`
	Shares    uint64    `json:"shares"`
	Sequence  int64     `json:"sequence"`
}

func (f *FeeClaimed) IdempotencyKey() string {
	return f.ClaimID.String()
}

func (f *FeeClaimed) EventType() EventType {
	return EventTypeFeeClaimed
}

func (f *FeeClaimed) SourceSequence() int64 {
	return f.Sequence
}

// ParamKind names an owner-tunable vault parameter.
type ParamKind string

const (
	ParamFeePercentage    ParamKind = "fee_percentage"
	ParamFeeRecipient     ParamKind = "fee_recipient"
	ParamLiquidationAgent ParamKind = "liquidation_agent"
	ParamClaimAgent       ParamKind = "claim_agent"
)

// ParamUpdated records an owner changing a vault parameter.
type ParamUpdated struct {
	UpdateID uuid.UUID `json:"update_id"`
	Owner    uuid.UUID `json:"owner"`
	Kind     ParamKind `json:"kind"`
	// Exactly one of the two is meaningful, per Kind
	NumericValue uint64    `json:"numeric_value"`
	AddressValue uuid.UUID `json:"address_value"`
	Sequence     int64     `json:"sequence"`
}

func (p *ParamUpdated) IdempotencyKey() string {
	return fmt.Sprintf("%s:%s", p.UpdateID, p.Kind)
}

func (p *ParamUpdated) EventType() EventType {
	return EventTypeParamUpdated
}

func (p *ParamUpdated) SourceSequence() int64 {
	return p.Sequence
}

// YieldObserved is a periodic snapshot of the vault's yield position,
// emitted by the reporter rather than by a caller.
type YieldObserved struct {
	ObservationID  uuid.UUID `json:"observation_id"`
	TotalAssets    uint64    `json:"total_assets"`
	TotalDebt      uint64    `json:"total_debt"`
	TotalYield     uint64    `json:"total_yield"`
	AvailableYield uint64    `json:"available_yield"`
	FeeBalance     uint64    `json:"fee_balance"`
	Sequence       int64     `json:"sequence"`
}

func (y *YieldObserved) IdempotencyKey() string {
	return y.ObservationID.String()
}

func (y *YieldObserved) EventType() EventType {
	return EventTypeYieldObserved
}

func (y *YieldObserved) SourceSequence() int64 {
	return y.Sequence
}
