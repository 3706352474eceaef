package event

import (
	"encoding/json"
	"fmt"
)

// EventTypeFromString maps a stored discriminator back to its enum value.
func EventTypeFromString(s string) EventType {
	switch s {
	case "Deposit":
		return EventTypeDeposit
	case "Mint":
		return EventTypeMint
	case "Sponsor":
		return EventTypeSponsor
	case "Withdraw":
		return EventTypeWithdraw
	case "Redeem":
		return EventTypeRedeem
	case "YieldExtracted":
		return EventTypeYieldExtracted
	case "ContributionVerified":
		return EventTypeContributionVerified
	case "FeeClaimed":
		return EventTypeFeeClaimed
	case "ParamUpdated":
		return EventTypeParamUpdated
	case "YieldObserved":
		return EventTypeYieldObserved
	case "StoreAdjusted":
		return EventTypeStoreAdjusted
	case "TokenSeeded":
		return EventTypeTokenSeeded
	default:
		return EventTypeUnknown
	}
}

// Parse decodes a stored payload back into its typed event. Used during
// replay, where events re-enter the service loop exactly as first seen.
func Parse(eventType string, data []byte) (Event, error) {
	var evt Event
	switch EventTypeFromString(eventType) {
	case EventTypeDeposit:
		evt = &Deposit{}
	case EventTypeMint:
		evt = &Mint{}
	case EventTypeSponsor:
		evt = &Sponsor{}
	case EventTypeWithdraw:
		evt = &Withdraw{}
	case EventTypeRedeem:
		evt = &Redeem{}
	case EventTypeYieldExtracted:
		evt = &YieldExtracted{}
	case EventTypeContributionVerified:
		evt = &ContributionVerified{}
	case EventTypeFeeClaimed:
		evt = &FeeClaimed{}
	case EventTypeParamUpdated:
		evt = &ParamUpdated{}
	case EventTypeYieldObserved:
		evt = &YieldObserved{}
	case EventTypeStoreAdjusted:
		evt = &StoreAdjusted{}
	case EventTypeTokenSeeded:
		evt = &TokenSeeded{}
	default:
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}

	if err := json.Unmarshal(data, evt); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", eventType, err)
	}
	return evt, nil
}
