package rpc

import (
	"io"
	"testing"

	"github.com/BrunoAwdd/atlasDb/internal/aec"
	"github.com/BrunoAwdd/atlasDb/internal/ledger"
)

type fakePool struct {
	added []*ledger.Transaction
	err   error
}

func (p *fakePool) Add(tx *ledger.Transaction) error {
	if p.err != nil {
		return p.err
	}
	p.added = append(p.added, tx)
	return nil
}

type fakeStatus struct {
	leader   bool
	role     string
	term     uint64
	height   uint64
	leaderId string
}

func (f *fakeStatus) IsLeader() bool   { return f.leader }
func (f *fakeStatus) Role() string     { return f.role }
func (f *fakeStatus) Term() uint64     { return f.term }
func (f *fakeStatus) Height() uint64   { return f.height }
func (f *fakeStatus) LeaderId() string { return f.leaderId }

func newTestService(t *testing.T, status *fakeStatus, pool *fakePool) (*Service, ledger.Address, ledger.AssetId) {
	t.Helper()
	chart := ledger.NewChart()
	assets := ledger.NewAssetRegistry()
	atlas := ledger.MustAssetId("wallet:mint/ATLAS")
	assets.Register(ledger.AssetMetadata{Id: atlas, Name: "Atlas", Decimals: 0})
	state := ledger.NewStateStore(chart)

	store, err := aec.Open(aec.Config{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("aec.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	eng := ledger.NewEngine(chart, state, assets, store)
	vault, err := ledger.ParseAddress("vault:issuance:main")
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	if err := eng.GenesisMint(vault, atlas, 1_000_000); err != nil {
		t.Fatalf("GenesisMint: %v", err)
	}

	svc := New(Deps{
		Pool: pool, State: state, Chart: chart, Assets: assets, AEC: store,
		Status: status, ChainId: "atlas-test",
	})
	return svc, vault, atlas
}

func TestGetBalanceReturnsClassifiedView(t *testing.T) {
	svc, vault, atlas := newTestService(t, &fakeStatus{leader: true}, &fakePool{})

	resp, err := svc.GetBalance(vault.String(), atlas.String())
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if resp.Balance != 1_000_000 {
		t.Fatalf("Balance = %d, want 1000000", resp.Balance)
	}
	if resp.Nonce != 0 {
		t.Fatalf("Nonce = %d, want 0", resp.Nonce)
	}
	if resp.View.Liabilities[atlas.String()] != 1_000_000 {
		t.Fatalf("view.liabilities missing vault balance: %+v", resp.View)
	}
}

func TestSubmitTransactionRejectsOnFollower(t *testing.T) {
	pool := &fakePool{}
	svc, vault, atlas := newTestService(t, &fakeStatus{leader: false, leaderId: "nodeA"}, pool)

	_, err := svc.SubmitTransaction(SubmitTxRequest{
		From: vault.String(), To: "wallet:user:alice", Amount: 10, Asset: atlas.String(),
		Nonce: 1, ChainId: "atlas-test",
	})
	if err == nil {
		t.Fatalf("expected ErrNotLeader")
	}
	if notLeader, ok := err.(*ErrNotLeader); !ok || notLeader.LeaderId != "nodeA" {
		t.Fatalf("err = %v, want *ErrNotLeader{LeaderId: nodeA}", err)
	}
	if len(pool.added) != 0 {
		t.Fatalf("pool should not have received a transaction on a follower")
	}
}

func TestSubmitTransactionEnqueuesOnLeader(t *testing.T) {
	pool := &fakePool{}
	svc, vault, atlas := newTestService(t, &fakeStatus{leader: true}, pool)

	resp, err := svc.SubmitTransaction(SubmitTxRequest{
		From: vault.String(), To: "wallet:user:alice", Amount: 10, Asset: atlas.String(),
		Nonce: 1, ChainId: "atlas-test",
	})
	if err != nil {
		t.Fatalf("SubmitTransaction: %v", err)
	}
	if !resp.Success {
		t.Fatalf("resp.Success = false, ErrorMessage = %q", resp.ErrorMessage)
	}
	if len(pool.added) != 1 {
		t.Fatalf("pool received %d transactions, want 1", len(pool.added))
	}
	if pool.added[0].From != vault {
		t.Fatalf("enqueued tx.From = %v, want %v", pool.added[0].From, vault)
	}
}

func TestGetTokensExportsRegistry(t *testing.T) {
	svc, _, atlas := newTestService(t, &fakeStatus{leader: true}, &fakePool{})

	tokens := svc.GetTokens()
	meta, ok := tokens[atlas.String()]
	if !ok {
		t.Fatalf("GetTokens missing %s", atlas.String())
	}
	if meta.Name != "Atlas" {
		t.Fatalf("meta.Name = %q, want Atlas", meta.Name)
	}
}

func TestStreamAccountSegmentsReturnsRawBytes(t *testing.T) {
	svc, vault, atlas := newTestService(t, &fakeStatus{leader: true}, &fakePool{})

	eng := ledger.NewEngine(svc.deps.Chart, svc.deps.State, svc.deps.Assets, svc.deps.AEC)
	alice, err := ledger.ParseAddress("wallet:user:alice")
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	tx := &ledger.Transaction{
		ChainId: "atlas-test", Nature: ledger.NatureTransfer,
		From: vault, To: alice, Amount: 100, Asset: atlas, Nonce: 1, Timestamp: 1,
	}
	if _, _, err := eng.Execute(tx, 1, 1); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	stream, err := svc.StreamAccountSegments(alice.String(), 0, ^uint64(0))
	if err != nil {
		t.Fatalf("StreamAccountSegments: %v", err)
	}
	raw, err := io.ReadAll(stream)
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	if len(raw) == 0 {
		t.Fatalf("expected non-empty raw segment bytes for alice")
	}
}

func TestGetClusterStatusReflectsStatusAdapter(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeStatus{leader: true, role: "leader", term: 3, height: 7, leaderId: "self"}, &fakePool{})

	status := svc.GetClusterStatus()
	if status.Role != "leader" || status.Term != 3 || status.Height != 7 || status.LeaderId != "self" {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.ChainId != "atlas-test" {
		t.Fatalf("ChainId = %q, want atlas-test", status.ChainId)
	}
}
