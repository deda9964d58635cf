package aec

import "errors"

var (
	// ErrSegmentChecksumFail is returned by verifySegment when a closed
	// segment's trailer does not match the BLAKE3 digest of its contents.
	ErrSegmentChecksumFail = errors.New("aec: segment checksum mismatch")
	// ErrIndexCorrupt is returned when the in-memory index points at a
	// location whose on-disk length prefix disagrees with the indexed
	// length.
	ErrIndexCorrupt = errors.New("aec: index points at corrupt location")
	// ErrNoSuchAccount is returned by Tail/WalkBack when an address has no
	// recorded events.
	ErrNoSuchAccount = errors.New("aec: account has no recorded events")
	// ErrNoSuchEntry is returned by Load when (address, entryId) is not in
	// the index.
	ErrNoSuchEntry = errors.New("aec: entry not found for account")
)
