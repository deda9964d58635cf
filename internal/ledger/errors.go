package ledger

import "errors"

// Admission and execution error kinds. Callers type-switch or use
// errors.Is against these sentinels; they are never wrapped away.
var (
	ErrUnknownAccountClass = errors.New("ledger: unknown account class")
	ErrAssetNotRegistered  = errors.New("ledger: asset not registered")
	ErrNonceMismatch       = errors.New("ledger: nonce mismatch")
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	ErrBalanceOverflow     = errors.New("ledger: balance overflow")
	ErrUnbalancedJournal   = errors.New("ledger: unbalanced journal")
	ErrInvalidAddress      = errors.New("ledger: invalid address")
	ErrInvalidAsset        = errors.New("ledger: invalid asset id")
	ErrInvalidAmount       = errors.New("ledger: amount must be strictly positive")
	ErrUnknownNature       = errors.New("ledger: unknown transaction nature")
	ErrMemoTooLong         = errors.New("ledger: memo exceeds bound")
	ErrChainIdMismatch     = errors.New("ledger: chain id mismatch")
)
