package blockchain

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BrunoAwdd/atlasDb/internal/codec"
	"github.com/BrunoAwdd/atlasDb/internal/ledger"
)

// Store persists committed blocks under data_dir/blocks/: one
// JSON file per height plus a tip.json naming the committed tip. JSON
// (rather than the canonical binary codec) is used for on-disk blocks,
// matching the teacher's own WAL/snapshot persistence in core/ledger.go —
// canonical bytes are only for hash/signature inputs, never for storage
// format, which is free to be human-inspectable.
type Store struct {
	dir string
}

// OpenStore creates (if needed) dir and returns a Store rooted there.
func OpenStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blockchain: mkdir blocks dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

type tipFile struct {
	Height    uint64 `json:"height"`
	BlockHash string `json:"block_hash"`
}

type wireLeg struct {
	Account string `json:"account"`
	Asset   string `json:"asset"`
	Kind    uint8  `json:"kind"`
	Amount  uint64 `json:"amount"`
}

type wireEntry struct {
	EntryId          string            `json:"entry_id"`
	Legs             []wireLeg         `json:"legs"`
	TxHash           string            `json:"tx_hash"`
	Memo             string            `json:"memo,omitempty"`
	BlockHeight      uint64            `json:"block_height"`
	Timestamp        uint64            `json:"timestamp"`
	PrevForAccount   map[string]string `json:"prev_for_account,omitempty"`
	NonceBumpAccount string            `json:"nonce_bump_account,omitempty"`
}

type wireBlock struct {
	Height      uint64      `json:"height"`
	Round       uint64      `json:"round"`
	Proposer    string      `json:"proposer"`
	PrevHash    string      `json:"prev_hash"`
	StateRoot   string      `json:"state_root"`
	JournalRoot string      `json:"journal_root"`
	Timestamp   uint64      `json:"timestamp"`
	Signature   string      `json:"signature"`
	BlockHash   string      `json:"block_hash"`
	Journal     []wireEntry `json:"journal"`
}

func toWire(b *Block) wireBlock {
	w := wireBlock{
		Height:      b.Header.Height,
		Round:       b.Header.Round,
		Proposer:    b.Header.Proposer,
		PrevHash:    b.Header.PrevHash.Hex(),
		StateRoot:   b.Header.StateRoot.Hex(),
		JournalRoot: b.Header.JournalRoot.Hex(),
		Timestamp:   b.Header.Timestamp,
		Signature:   hex.EncodeToString(b.Header.Signature),
		BlockHash:   b.Header.BlockHash.Hex(),
	}
	for _, e := range b.Journal {
		we := wireEntry{
			EntryId:     e.EntryId.Hex(),
			TxHash:      e.TxHash.Hex(),
			Memo:        e.Memo,
			BlockHeight: e.BlockHeight,
			Timestamp:   e.Timestamp,
		}
		for _, l := range e.Legs {
			we.Legs = append(we.Legs, wireLeg{Account: l.Account.String(), Asset: l.Asset.String(), Kind: uint8(l.Kind), Amount: l.Amount})
		}
		if len(e.PrevForAccount) > 0 {
			we.PrevForAccount = make(map[string]string, len(e.PrevForAccount))
			for acc, h := range e.PrevForAccount {
				we.PrevForAccount[acc.String()] = h.Hex()
			}
		}
		if e.HasNonceBump {
			we.NonceBumpAccount = e.NonceBumpAccount.String()
		}
		w.Journal = append(w.Journal, we)
	}
	return w
}

func fromWire(w wireBlock) (*Block, error) {
	prevHash, err := codec.HashFromHex(w.PrevHash)
	if err != nil {
		return nil, err
	}
	stateRoot, err := codec.HashFromHex(w.StateRoot)
	if err != nil {
		return nil, err
	}
	journalRoot, err := codec.HashFromHex(w.JournalRoot)
	if err != nil {
		return nil, err
	}
	blockHash, err := codec.HashFromHex(w.BlockHash)
	if err != nil {
		return nil, err
	}
	sig, err := hex.DecodeString(w.Signature)
	if err != nil {
		return nil, fmt.Errorf("blockchain: %w", err)
	}

	b := &Block{Header: Header{
		Height:      w.Height,
		Round:       w.Round,
		Proposer:    w.Proposer,
		PrevHash:    prevHash,
		StateRoot:   stateRoot,
		JournalRoot: journalRoot,
		Timestamp:   w.Timestamp,
		Signature:   sig,
		BlockHash:   blockHash,
	}}
	for _, we := range w.Journal {
		entryId, err := codec.HashFromHex(we.EntryId)
		if err != nil {
			return nil, err
		}
		txHash, err := codec.HashFromHex(we.TxHash)
		if err != nil {
			return nil, err
		}
		e := &ledger.LedgerEntry{
			EntryId:     entryId,
			TxHash:      txHash,
			Memo:        we.Memo,
			HasMemo:     we.Memo != "",
			BlockHeight: we.BlockHeight,
			Timestamp:   we.Timestamp,
		}
		for _, wl := range we.Legs {
			e.Legs = append(e.Legs, ledger.Leg{
				Account: ledger.Address(wl.Account),
				Asset:   ledger.AssetId(wl.Asset),
				Kind:    ledger.LegKind(wl.Kind),
				Amount:  wl.Amount,
			})
		}
		if len(we.PrevForAccount) > 0 {
			e.PrevForAccount = make(map[ledger.Address]codec.Hash, len(we.PrevForAccount))
			for acc, h := range we.PrevForAccount {
				hh, err := codec.HashFromHex(h)
				if err != nil {
					return nil, err
				}
				e.PrevForAccount[ledger.Address(acc)] = hh
			}
		}
		if we.NonceBumpAccount != "" {
			e.NonceBumpAccount = ledger.Address(we.NonceBumpAccount)
			e.HasNonceBump = true
		}
		b.Journal = append(b.Journal, e)
	}
	return b, nil
}

// MarshalBlock encodes a block to the same JSON wire shape Store persists,
// for use by the consensus layer's ProposalMessage content where a block
// travels over the network rather than to disk.
func MarshalBlock(b *Block) ([]byte, error) {
	return json.Marshal(toWire(b))
}

// UnmarshalBlock decodes a block previously produced by MarshalBlock.
func UnmarshalBlock(data []byte) (*Block, error) {
	var w wireBlock
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	return fromWire(w)
}

func (s *Store) heightPath(height uint64) string {
	return filepath.Join(s.dir, fmt.Sprintf("%020d.json", height))
}

// Put writes block to its height file and advances tip.json. An existing
// file for that height is overwritten without any comparison of content.
func (s *Store) Put(block *Block) error {
	data, err := json.MarshalIndent(toWire(block), "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.heightPath(block.Header.Height), data, 0o644); err != nil {
		return fmt.Errorf("blockchain: write block %d: %w", block.Header.Height, err)
	}
	tip := tipFile{Height: block.Header.Height, BlockHash: block.Header.BlockHash.Hex()}
	tipData, err := json.MarshalIndent(tip, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(s.dir, "tip.json"), tipData, 0o644); err != nil {
		return fmt.Errorf("blockchain: write tip: %w", err)
	}
	return nil
}

// Get loads the block committed at height.
func (s *Store) Get(height uint64) (*Block, error) {
	data, err := os.ReadFile(s.heightPath(height))
	if err != nil {
		return nil, err
	}
	var w wireBlock
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	return fromWire(w)
}

// Tip returns the height and hash of the most recently committed block, or
// ok=false if no block has been committed yet (fresh data_dir).
func (s *Store) Tip() (height uint64, hash codec.Hash, ok bool, err error) {
	data, rerr := os.ReadFile(filepath.Join(s.dir, "tip.json"))
	if rerr != nil {
		if os.IsNotExist(rerr) {
			return 0, codec.Hash{}, false, nil
		}
		return 0, codec.Hash{}, false, rerr
	}
	var t tipFile
	if err := json.Unmarshal(data, &t); err != nil {
		return 0, codec.Hash{}, false, err
	}
	h, err := codec.HashFromHex(t.BlockHash)
	if err != nil {
		return 0, codec.Hash{}, false, err
	}
	return t.Height, h, true, nil
}

// DeleteFrom removes every committed block at height >= from, used by fork
// recovery's rollback path, which discards divergent blocks. The caller
// is responsible for re-pointing tip.json afterward via Put of the
// retained tip, or via RewriteTip if rolling back to a height with no new
// block to Put yet.
func (s *Store) DeleteFrom(from uint64) error {
	for h := from; ; h++ {
		path := s.heightPath(h)
		if _, err := os.Stat(path); err != nil {
			break
		}
		if err := os.Remove(path); err != nil {
			return err
		}
	}
	return nil
}

// RewriteTip overwrites tip.json to point at an already-retained block,
// for use after DeleteFrom rolls back past the previous tip.
func (s *Store) RewriteTip(height uint64, hash codec.Hash) error {
	tip := tipFile{Height: height, BlockHash: hash.Hex()}
	data, err := json.MarshalIndent(tip, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dir, "tip.json"), data, 0o644)
}
