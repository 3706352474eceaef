package event

import (
	"fmt"

	"github.com/google/uuid"
)

// YieldExtracted records a liquidation agent pulling surplus yield out of
// the vault, in shares or in the underlying asset.
type YieldExtracted struct {
	LiquidationID uuid.UUID `json:"liquidation_id"`
	Agent         uuid.UUID `json:"agent"`
	Recipient     uuid.UUID `json:"recipient"`
	TokenOut      uuid.UUID `json:"token_out"`
	Amount        uint64    `json:"amount"`
	Fee           uint64    `json:"fee"`
	Sequence      int64     `json:"sequence"`
}

func (y *YieldExtracted) IdempotencyKey() string {
	return y.LiquidationID.String()
}

func (y *YieldExtracted) EventType() EventType {
	return EventTypeYieldExtracted
}

func (y *YieldExtracted) SourceSequence() int64 {
	return y.Sequence
}

// ContributionVerified records the inbound leg of a liquidation: prize
// tokens routed to the contribution sink on the vault's behalf.
type ContributionVerified struct {
	LiquidationID uuid.UUID `json:"liquidation_id"`
	Agent         uuid.UUID `json:"agent"`
	TokenIn       uuid.UUID `json:"token_in"`
	Amount        uint64    `json:"amount"`
	Sequence      int64     `json:"sequence"`
}

func (c *ContributionVerified) IdempotencyKey() string {
	return fmt.Sprintf("%s:in", c.LiquidationID)
}

func (c *ContributionVerified) EventType() EventType {
	return EventTypeContributionVerified
}

func (c *ContributionVerified) SourceSequence() int64 {
	return c.Sequence
}
