package vault

import "errors"

// Every rejection leaves the ledger untouched: mutating entry points validate
// against previews before any external call, and post-operation invariant
// checks treat a store that deviates from its own previews as fatal.
var (
	ErrZeroAssets = errors.New("vault: zero asset amount")
	ErrZeroShares = errors.New("vault: zero share amount")

	ErrZeroAddress = errors.New("vault: zero address")

	// ErrLossyDeposit rejects a deposit that would leave total assets below
	// total debt, compounding an external store loss onto the new depositor.
	ErrLossyDeposit = errors.New("vault: deposit would be lossy")

	ErrExceedsMaxWithdraw = errors.New("vault: exceeds max withdraw")
	ErrExceedsMaxRedeem   = errors.New("vault: exceeds max redeem")

	ErrNotOwner            = errors.New("vault: caller is not the owner")
	ErrNotLiquidationAgent = errors.New("vault: caller is not the liquidation agent")
	ErrNotFeeRecipient     = errors.New("vault: caller is not the fee recipient")

	ErrUnsupportedToken  = errors.New("vault: unsupported liquidation token")
	ErrWrongPaymentToken = errors.New("vault: wrong payment token")
	ErrExceedsYield      = errors.New("vault: exceeds available yield")
	ErrExceedsFeeBalance = errors.New("vault: exceeds fee balance")
	ErrFeePercentageHigh = errors.New("vault: fee percentage above maximum")

	// ErrStoreMisbehaved surfaces a store whose quotes are inconsistent
	// (e.g. a mint quote above the assets being swept in).
	ErrStoreMisbehaved = errors.New("vault: yield store misbehaved")
)
