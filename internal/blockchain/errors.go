package blockchain

import "errors"

// Execution/verification error kinds. None of these are admission errors:
// by the time a transaction reaches block assembly it already cleared
// Mempool admission, so a failure here means the provisional state
// diverged or a proposer produced an invalid header, not a bad submission.
var (
	ErrJournalRootMismatch      = errors.New("blockchain: journal_root mismatch")
	ErrStateRootMismatch        = errors.New("blockchain: state_root mismatch")
	ErrProposerSignatureInvalid = errors.New("blockchain: proposer signature invalid")
	ErrBlockLinkage             = errors.New("blockchain: block linkage invalid")
	ErrEmptyMempool             = errors.New("blockchain: no transactions available to assemble")
)
