package mempool

import "errors"

var (
	ErrAlreadyPresent     = errors.New("mempool: tx_hash already present")
	ErrInvalidSignature   = errors.New("mempool: signature verification failed")
	ErrChainIdMismatch    = errors.New("mempool: chain id mismatch")
	ErrTooLarge           = errors.New("mempool: transaction exceeds size bound")
	ErrNonceTooLow        = errors.New("mempool: nonce already committed or superseded")
	ErrUnderfunded        = errors.New("mempool: balance cannot cover max possible fee")
	ErrSenderCapExceeded  = errors.New("mempool: per-sender pending cap exceeded")
	ErrGlobalCapExceeded  = errors.New("mempool: global mempool cap exceeded")
	ErrFeeTooLowToReplace = errors.New("mempool: replacement fee not strictly higher")
	ErrNotFound           = errors.New("mempool: transaction not found")
)
