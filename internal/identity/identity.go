// Package identity implements the concrete Authenticator: ECDSA secp256k1
// keypairs that sign and verify every protocol message requiring
// authentication — transactions, proposals, votes, heartbeats. Other
// packages depend only on the narrow Signer/Verifier interfaces, so this
// is swappable behind them.
package identity

import (
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"

	"github.com/BrunoAwdd/atlasDb/internal/codec"
)

// Signer is the capability Mempool/Block Assembler/Consensus Engine need to
// authenticate outgoing messages under a node or wallet identity.
type Signer interface {
	Sign(msg []byte) ([]byte, error)
	PublicKeyBytes() []byte
}

// Verifier is the capability Mempool/Block Assembler/Consensus Engine need
// to check an inbound message's signature. mempool.Verifier and the
// blockchain/consensus packages' own verifier dependencies are satisfied by
// the package-level Verify function below.
type Verifier interface {
	Verify(pubKey, msg, sig []byte) bool
}

// KeyPair is a secp256k1 identity: a node's validator key, or a wallet's
// signing key. The zero value is not usable; construct with Generate or
// FromPrivateKeyBytes.
type KeyPair struct {
	priv *btcec.PrivateKey
}

// Generate creates a fresh keypair from a cryptographically secure random
// source, for first-run node identity material or new wallet creation.
func Generate() (*KeyPair, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	return &KeyPair{priv: priv}, nil
}

// FromPrivateKeyBytes reconstructs a keypair from a raw 32-byte secp256k1
// scalar, as loaded from the node's keys/ directory.
func FromPrivateKeyBytes(b []byte) (*KeyPair, error) {
	if len(b) != 32 {
		return nil, ErrInvalidPrivateKey
	}
	priv, pub := btcec.PrivKeyFromBytes(b)
	_ = pub
	return &KeyPair{priv: priv}, nil
}

// PrivateKeyBytes returns the raw 32-byte scalar, for persisting to keys/.
func (k *KeyPair) PrivateKeyBytes() []byte {
	return k.priv.Serialize()
}

// PublicKeyBytes returns the 33-byte SEC1-compressed public key used
// everywhere a wire message carries a public_key field (Transaction,
// ProposalMessage, VoteMessage).
func (k *KeyPair) PublicKeyBytes() []byte {
	return k.priv.PubKey().SerializeCompressed()
}

// Id is the hex-encoded compressed public key, used as the node/voter
// identifier in Proposal/Vote messages (voter_id, proposer_id).
func (k *KeyPair) Id() string {
	return hex.EncodeToString(k.PublicKeyBytes())
}

// Sign produces a DER-encoded ECDSA signature over BLAKE3(msg). Every
// protocol message's CanonicalBytes() is the msg argument here — callers
// never sign raw, unhashed payloads.
func (k *KeyPair) Sign(msg []byte) ([]byte, error) {
	digest := codec.Sum(msg)
	sig := ecdsa.Sign(k.priv, digest[:])
	return sig.Serialize(), nil
}

// Verify checks a DER-encoded signature against a compressed public key and
// the original (unhashed) message, re-deriving BLAKE3(msg) internally. It is
// the package-level entry point satisfying mempool.Verifier and every other
// package's narrow Verifier dependency, so none of them import package
// identity directly — only this function's signature.
func Verify(pubKey, msg, sig []byte) bool {
	pub, err := btcec.ParsePubKey(pubKey)
	if err != nil {
		return false
	}
	parsed, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return false
	}
	digest := codec.Sum(msg)
	return parsed.Verify(digest[:], pub)
}

// PubKeyFromId recovers the raw compressed public key bytes from a node or
// voter id, which is always the hex encoding produced by (*KeyPair).Id().
// Consensus/transport code uses this to verify a signature against the id
// carried in a message without needing a separate id->pubkey directory.
func PubKeyFromId(id string) ([]byte, error) {
	out, err := hex.DecodeString(id)
	if err != nil {
		return nil, ErrInvalidPrivateKey
	}
	return out, nil
}

// SelfTest generates a fresh keypair, signs a fixed probe message, and
// verifies the signature, returning an error on any failure. It backs the
// node binary's `--test-auth` flag, letting an operator confirm the
// Authenticator's crypto stack works on a given host before joining a
// cluster with it.
func SelfTest() error {
	kp, err := Generate()
	if err != nil {
		return err
	}
	msg := []byte("atlasdb-test-auth-probe")
	sig, err := kp.Sign(msg)
	if err != nil {
		return err
	}
	if !Verify(kp.PublicKeyBytes(), msg, sig) {
		return ErrSelfTestFailed
	}
	if Verify(kp.PublicKeyBytes(), []byte("tampered"), sig) {
		return ErrSelfTestFailed
	}
	return nil
}

