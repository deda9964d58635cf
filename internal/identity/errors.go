package identity

import "errors"

var ErrInvalidPrivateKey = errors.New("identity: invalid private key material")

// ErrSelfTestFailed is returned by SelfTest when a freshly generated
// keypair fails to verify its own signature, or a tampered message
// incorrectly verifies.
var ErrSelfTestFailed = errors.New("identity: sign/verify self-test failed")
