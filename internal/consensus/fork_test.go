package consensus

import (
	"path/filepath"
	"testing"

	"github.com/BrunoAwdd/atlasDb/internal/aec"
	"github.com/BrunoAwdd/atlasDb/internal/blockchain"
	"github.com/BrunoAwdd/atlasDb/internal/identity"
	"github.com/BrunoAwdd/atlasDb/internal/ledger"
)

func TestRollbackReproducesStateRoot(t *testing.T) {
	chart := ledger.NewChart()
	assets := ledger.NewAssetRegistry()
	asset := ledger.MustAssetId("wallet:mint/ATL")
	vault := ledger.MustAddress("vault:issuance:main")
	wallet := ledger.MustAddress("wallet:alice:main")
	assets.Register(ledger.AssetMetadata{Id: asset, Name: "Atlas", Decimals: 6, Issuer: vault})

	genesisFn := func(s *ledger.StateStore) error {
		eng := ledger.NewEngine(chart, s, assets, nil)
		return eng.GenesisMint(vault, asset, 1_000_000)
	}

	state := ledger.NewStateStore(chart)
	if err := genesisFn(state); err != nil {
		t.Fatalf("genesisFn: %v", err)
	}

	kp, err := identity.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	dir := t.TempDir()
	blocks, err := blockchain.OpenStore(filepath.Join(dir, "blocks"))
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	store, err := aec.Open(aec.Config{Dir: filepath.Join(dir, "aec")})
	if err != nil {
		t.Fatalf("aec.Open: %v", err)
	}
	assembler := &blockchain.Assembler{Chart: chart, Assets: assets, Pool: &emptyPool{}, Signer: kp, MaxTxPerBlock: 10}

	eng, err := NewEngine(Config{NodeId: kp.Id(), Quorum: QuorumPolicy{QuorumFraction: 0.5, MinVoters: 1}}, Deps{
		Transport: &fakeTransport{},
		Signer:    kp,
		Verify:    identity.Verify,
		PubKeyOf:  identity.PubKeyFromId,
		Assembler: assembler,
		Executor: &blockchain.Executor{
			Chart: chart, Assets: assets, Verify: identity.Verify, ProposerPubKey: identity.PubKeyFromId,
		},
		Blocks:  blocks,
		State:   state,
		AEC:     store,
		Genesis: genesisFn,
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	commitTransfer := func(amount, nonce uint64) {
		t.Helper()
		tx := &ledger.Transaction{
			ChainId: "atlasdb-test", Nature: ledger.NatureTransfer,
			From: vault, To: wallet, Amount: amount, Asset: asset, Nonce: nonce, FeeAsset: asset,
		}
		tx.PublicKey = kp.PublicKeyBytes()
		sig, err := kp.Sign(tx.CanonicalBytes())
		if err != nil {
			t.Fatalf("Sign: %v", err)
		}
		tx.Signature = sig
		assembler.Pool = &fixedPool{txs: []*ledger.Transaction{tx}}
		prevHeader := &blockchain.Header{Height: eng.lastHeight, BlockHash: eng.lastBlockHash}
		block, err := assembler.Assemble(prevHeader, kp.Id(), 0, 1000+nonce, eng.state)
		if err != nil {
			t.Fatalf("Assemble: %v", err)
		}
		if err := blockchain.Commit(eng.state, eng.aec, block); err != nil {
			t.Fatalf("Commit: %v", err)
		}
		if err := eng.blocks.Put(block); err != nil {
			t.Fatalf("Put: %v", err)
		}
		eng.lastHeight = block.Header.Height
		eng.lastBlockHash = block.Header.BlockHash
	}

	commitTransfer(1000, 1) // height 1
	stateRootAtHeight1 := blockchain.StateRoot(eng.state)
	commitTransfer(2000, 2) // height 2 — this is the block we'll discard

	if err := eng.Rollback(1); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	if eng.lastHeight != 1 {
		t.Fatalf("lastHeight after rollback = %d, want 1", eng.lastHeight)
	}
	if got := blockchain.StateRoot(eng.state); got != stateRootAtHeight1 {
		t.Fatalf("state_root after rollback does not match height-1 state_root")
	}
	if _, err := eng.blocks.Get(2); err == nil {
		t.Fatalf("expected block 2 to be discarded by Rollback")
	}
	if got := eng.state.Balance(wallet, asset); got != 1000 {
		t.Fatalf("wallet balance after rollback = %d, want 1000", got)
	}
}

type fixedPool struct {
	txs []*ledger.Transaction
}

func (p *fixedPool) Select(n int) []*ledger.Transaction {
	if n > len(p.txs) {
		n = len(p.txs)
	}
	return p.txs[:n]
}
