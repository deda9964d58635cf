package consensus

import "errors"

// Consensus error kinds.
var (
	ErrNoQuorum        = errors.New("consensus: no quorum")
	ErrTermMismatch    = errors.New("consensus: term mismatch")
	ErrUnknownProposer = errors.New("consensus: unknown or non-leader proposer")
	ErrUnknownVoter    = errors.New("consensus: vote from unknown validator")
	ErrForkDetected    = errors.New("consensus: fork detected")
	ErrSyncRejected    = errors.New("consensus: sync request rejected by peer")
	ErrStaleProposal   = errors.New("consensus: duplicate proposal for this term/round")
	ErrInvalidSignature = errors.New("consensus: message signature invalid")
)
