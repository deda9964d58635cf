package ledger

import (
	"github.com/BrunoAwdd/atlasDb/internal/codec"
)

// Nature tags a transaction's intrinsic leg template.
// Transfer is the only nature a wallet ever submits directly; the rest are
// produced internally by the Accounting Engine or the Consensus Engine's
// reward/slashing machinery.
type Nature uint8

const (
	NatureTransfer Nature = iota
	NatureFee
	NatureBurn
	NatureStakingReward
	NatureSlashing
	NatureReversal
)

// Transaction is a signed request to move value between two addresses.
// Signature verification and canonical-byte computation for TxHash happen
// here; actual signature checking against an Authenticator is the
// Mempool's admission job, not the Transaction type's.
type Transaction struct {
	From      Address
	To        Address
	Amount    uint64
	Asset     AssetId
	Nonce     uint64
	Timestamp uint64
	Memo      string
	HasMemo   bool
	Nature    Nature

	// FeePayer, when set, sponsors the fee leg; both From and FeePayer must
	// sign (see DESIGN.md "Sponsored transaction delegation").
	FeePayer    Address
	HasFeePayer bool
	FeeAmount   uint64
	FeeAsset    AssetId

	// GasLimit, when present, scales mempool priority as fee_amount ×
	// gas_limit; it has no effect on execution or on the fee leg amount,
	// which is always FeeAmount.
	GasLimit    uint64
	HasGasLimit bool

	Signature []byte
	PublicKey []byte
	// FeePayerSignature/FeePayerPubKey are present only when HasFeePayer.
	FeePayerSignature []byte
	FeePayerPubKey    []byte

	ChainId string
}

// CanonicalBytes is the byte-deterministic encoding hashed for TxHash:
// every field preceding Signature.
func (t *Transaction) CanonicalBytes() []byte {
	w := codec.NewWriter()
	w.String(t.ChainId)
	w.U8(uint8(t.Nature))
	w.String(t.From.String())
	w.String(t.To.String())
	w.U64(t.Amount)
	w.String(t.Asset.String())
	w.U64(t.Nonce)
	w.U64(t.Timestamp)
	w.OptString(t.HasMemo, t.Memo)
	w.OptString(t.HasFeePayer, t.FeePayer.String())
	w.U64(t.FeeAmount)
	w.String(t.FeeAsset.String())
	w.Blob(t.PublicKey)
	return w.Bytes()
}

func (t *Transaction) Hash() codec.Hash {
	return codec.Sum(t.CanonicalBytes())
}

// Validate performs the structural checks the Mempool's stateless
// admission pass requires before ever consulting state: well-formed
// fields, positive amount, memo bound, chain id presence.
func (t *Transaction) Validate(chainId string, maxMemo int) error {
	if t.ChainId != chainId {
		return ErrChainIdMismatch
	}
	if _, err := ParseAddress(t.From.String()); err != nil {
		return err
	}
	if _, err := ParseAddress(t.To.String()); err != nil {
		return err
	}
	if t.Amount == 0 {
		return ErrInvalidAmount
	}
	if _, err := ParseAssetId(t.Asset.String()); err != nil {
		return err
	}
	if t.HasMemo && len(t.Memo) > maxMemo {
		return ErrMemoTooLong
	}
	if t.HasFeePayer {
		if _, err := ParseAddress(t.FeePayer.String()); err != nil {
			return err
		}
	}
	return nil
}

// Receipt is returned to the submitter after execution.
type Receipt struct {
	TxHash        codec.Hash
	Status        ReceiptStatus
	LedgerEntryId codec.Hash
	HasEntry      bool
	Memo          string
	Err           string
}

type ReceiptStatus uint8

const (
	StatusCommitted ReceiptStatus = iota
	StatusRejected
)
