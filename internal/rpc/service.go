// Package rpc implements the RPC Service: a synchronous request/response
// surface wallets and block explorers use to submit transactions and query
// ledger state. Wire types here are the JSON shape served over HTTP;
// internal hash/signature material still goes through internal/codec's
// canonical encoding, never through encoding/json.
package rpc

import (
	"encoding/hex"
	"io"

	"github.com/BrunoAwdd/atlasDb/internal/aec"
	"github.com/BrunoAwdd/atlasDb/internal/ledger"
)

// Pool is the narrow mempool capability SubmitTransaction needs.
type Pool interface {
	Add(tx *ledger.Transaction) error
}

// ConsensusStatus is the narrow status snapshot the Consensus Engine
// exposes for GetClusterStatus and SubmitTransaction's leader check.
// consensus.Engine satisfies this shape through the adapter returned by
// orchestrator.NewConsensusStatus (its Role method returns a Role, not a
// string); rpc
// depends on the interface, not the package, to avoid an import cycle
// (consensus already imports blockchain/ledger, and the Orchestrator is
// the only thing that needs to know about both consensus and rpc).
type ConsensusStatus interface {
	IsLeader() bool
	Role() string
	Term() uint64
	Height() uint64
	LeaderId() string
}

// Deps bundles every collaborator the service reads from.
type Deps struct {
	Pool      Pool
	State     *ledger.StateStore
	Chart     *ledger.Chart
	Assets    *ledger.AssetRegistry
	AEC       *aec.Store
	Status    ConsensusStatus
	ChainId   string
}

// Service implements the read/write RPC surface. It holds no mutable
// state of its own — every call reads a consistent snapshot off State/AEC,
// so reads never block writes.
type Service struct {
	deps Deps
}

func New(deps Deps) *Service { return &Service{deps: deps} }

// SubmitTxRequest/Response mirror the wire transaction shape a wallet
// posts to POST /api/tx.
type SubmitTxRequest struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Amount    uint64 `json:"amount"`
	Asset     string `json:"asset"`
	Nonce     uint64 `json:"nonce"`
	Timestamp uint64 `json:"timestamp"`
	Memo      string `json:"memo,omitempty"`

	FeePayer  string `json:"fee_payer,omitempty"`
	FeeAmount uint64 `json:"fee_amount,omitempty"`
	FeeAsset  string `json:"fee_asset,omitempty"`
	GasLimit  uint64 `json:"gas_limit,omitempty"`

	ChainId string `json:"chain_id"`

	Signature string `json:"signature"`
	PublicKey string `json:"public_key"`

	FeePayerSignature string `json:"fee_payer_signature,omitempty"`
	FeePayerPublicKey string `json:"fee_payer_public_key,omitempty"`
}

type SubmitTxResponse struct {
	Success      bool   `json:"success"`
	TxHash       string `json:"tx_hash,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// ErrNotLeader is returned by SubmitTransaction on a follower node. AtlasDB
// could instead forward a submission to the leader; it rejects and names
// the current leader so the wallet/CLI can redial directly, avoiding
// giving the RPC layer its own outbound HTTP-client dependency on every
// follower (see DESIGN.md).
type ErrNotLeader struct {
	LeaderId string
}

func (e *ErrNotLeader) Error() string {
	if e.LeaderId == "" {
		return "rpc: this node is not the leader and no leader is currently known"
	}
	return "rpc: this node is not the leader; current leader is " + e.LeaderId
}

// SubmitTransaction decodes, verifies structure, and enqueues a wallet's
// transaction into the Mempool. It returns immediately; commitment happens
// asynchronously via consensus.
func (s *Service) SubmitTransaction(req SubmitTxRequest) (SubmitTxResponse, error) {
	if !s.deps.Status.IsLeader() {
		return SubmitTxResponse{}, &ErrNotLeader{LeaderId: s.deps.Status.LeaderId()}
	}

	tx, err := decodeTx(req, s.deps.ChainId)
	if err != nil {
		return SubmitTxResponse{Success: false, ErrorMessage: err.Error()}, nil
	}
	if err := s.deps.Pool.Add(tx); err != nil {
		return SubmitTxResponse{Success: false, TxHash: tx.Hash().Hex(), ErrorMessage: err.Error()}, nil
	}
	return SubmitTxResponse{Success: true, TxHash: tx.Hash().Hex()}, nil
}

// BalanceView is the classified view of an account's balances — assets,
// liabilities, and equity — computed via the Chart of accounts.
type BalanceView struct {
	Assets      map[string]uint64 `json:"assets"`
	Liabilities map[string]uint64 `json:"liabilities"`
	Equity      map[string]uint64 `json:"equity"`
}

type GetBalanceResponse struct {
	Address  string            `json:"address"`
	Asset    string            `json:"asset"`
	Balance  uint64            `json:"balance"`
	Balances map[string]uint64 `json:"balances"`
	Nonce    uint64            `json:"nonce"`
	View     BalanceView       `json:"view"`
}

// GetBalance reads addr's current state under a consistent StateStore
// snapshot and classifies every held balance via the Chart.
func (s *Service) GetBalance(addrStr, assetStr string) (GetBalanceResponse, error) {
	addr, err := ledger.ParseAddress(addrStr)
	if err != nil {
		return GetBalanceResponse{}, err
	}
	st := s.deps.State.Get(addr)

	view := BalanceView{Assets: map[string]uint64{}, Liabilities: map[string]uint64{}, Equity: map[string]uint64{}}
	balances := make(map[string]uint64, len(st.Balances))
	for asset, amount := range st.Balances {
		balances[asset.String()] = amount
		class, err := s.deps.Chart.Classify(addr)
		if err != nil {
			continue
		}
		switch class.Class {
		case ledger.ClassAsset:
			view.Assets[asset.String()] = amount
		case ledger.ClassLiability:
			view.Liabilities[asset.String()] = amount
		case ledger.ClassEquity, ledger.ClassRevenue:
			view.Equity[asset.String()] = amount
		}
	}

	var asset ledger.AssetId
	var balance uint64
	if assetStr != "" {
		asset, err = ledger.ParseAssetId(assetStr)
		if err != nil {
			return GetBalanceResponse{}, err
		}
		balance = st.Balances[asset]
	}

	return GetBalanceResponse{
		Address:  addr.String(),
		Asset:    asset.String(),
		Balance:  balance,
		Balances: balances,
		Nonce:    st.Nonce,
		View:     view,
	}, nil
}

// StatementEntry is one transaction-shaped row of GetStatement's output. A
// LedgerEntry may hold more than two legs (fee natures add a second
// debit/credit pair); StatementEntry reports only the leg pair
// touching the queried address, which is what a wallet/explorer displays
// as "the transaction that moved my balance".
type StatementEntry struct {
	TxHash    string `json:"tx_hash"`
	From      string `json:"from"`
	To        string `json:"to"`
	Amount    uint64 `json:"amount"`
	Asset     string `json:"asset"`
	Timestamp uint64 `json:"timestamp"`
	Memo      string `json:"memo,omitempty"`
	FeePayer  string `json:"fee_payer,omitempty"`
}

type GetStatementResponse struct {
	Transactions []StatementEntry `json:"transactions"`
}

// GetStatement walks addr's AEC chain backward from its tail.
func (s *Service) GetStatement(addrStr string, limit int) (GetStatementResponse, error) {
	addr, err := ledger.ParseAddress(addrStr)
	if err != nil {
		return GetStatementResponse{}, err
	}
	entries, err := s.deps.AEC.WalkBack(addr, limit)
	if err != nil {
		return GetStatementResponse{}, err
	}
	out := make([]StatementEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, toStatementEntry(addr, e))
	}
	return GetStatementResponse{Transactions: out}, nil
}

// StreamAccountSegments returns the raw AEC segment bytes recorded for
// addr in [fromTick, toTick], for bulk account export and audit tooling
// that wants exact on-disk bytes rather than decoded statement rows.
func (s *Service) StreamAccountSegments(addrStr string, fromTick, toTick uint64) (io.Reader, error) {
	addr, err := ledger.ParseAddress(addrStr)
	if err != nil {
		return nil, err
	}
	return s.deps.AEC.Stream(addr, fromTick, toTick)
}

func toStatementEntry(addr ledger.Address, e *ledger.LedgerEntry) StatementEntry {
	se := StatementEntry{
		TxHash:    e.TxHash.Hex(),
		Timestamp: e.Timestamp,
	}
	if e.HasMemo {
		se.Memo = e.Memo
	}
	for _, l := range e.Legs {
		if l.Account != addr {
			continue
		}
		se.Asset = l.Asset.String()
		se.Amount = l.Amount
		break
	}
	var debitAcc, creditAcc ledger.Address
	for _, l := range e.Legs {
		if l.Asset.String() != se.Asset {
			continue
		}
		if l.Kind == ledger.Debit && debitAcc == "" {
			debitAcc = l.Account
		}
		if l.Kind == ledger.Credit && creditAcc == "" {
			creditAcc = l.Account
		}
	}
	se.From = debitAcc.String()
	se.To = creditAcc.String()
	return se
}

// GetAccounts exports the full account-state map for admin/explorer use.
func (s *Service) GetAccounts() map[string]ledger.AccountState {
	snap := s.deps.State.Snapshot()
	out := make(map[string]ledger.AccountState, len(snap))
	for addr, st := range snap {
		out[addr.String()] = st
	}
	return out
}

// GetTokens exports the asset registry.
func (s *Service) GetTokens() map[string]ledger.AssetMetadata {
	all := s.deps.Assets.All()
	out := make(map[string]ledger.AssetMetadata, len(all))
	for id, m := range all {
		out[id.String()] = m
	}
	return out
}

// ClusterStatusResponse answers the cluster status RPC operation.
type ClusterStatusResponse struct {
	Role     string `json:"role"`
	Term     uint64 `json:"term"`
	Height   uint64 `json:"height"`
	LeaderId string `json:"leader_id"`
	ChainId  string `json:"chain_id"`
}

func (s *Service) GetClusterStatus() ClusterStatusResponse {
	return ClusterStatusResponse{
		Role:     s.deps.Status.Role(),
		Term:     s.deps.Status.Term(),
		Height:   s.deps.Status.Height(),
		LeaderId: s.deps.Status.LeaderId(),
		ChainId:  s.deps.ChainId,
	}
}

func decodeTx(req SubmitTxRequest, chainId string) (*ledger.Transaction, error) {
	from, err := ledger.ParseAddress(req.From)
	if err != nil {
		return nil, err
	}
	to, err := ledger.ParseAddress(req.To)
	if err != nil {
		return nil, err
	}
	asset, err := ledger.ParseAssetId(req.Asset)
	if err != nil {
		return nil, err
	}
	sig, err := hexDecode(req.Signature)
	if err != nil {
		return nil, err
	}
	pub, err := hexDecode(req.PublicKey)
	if err != nil {
		return nil, err
	}

	tx := &ledger.Transaction{
		From:      from,
		To:        to,
		Amount:    req.Amount,
		Asset:     asset,
		Nonce:     req.Nonce,
		Timestamp: req.Timestamp,
		Memo:      req.Memo,
		HasMemo:   req.Memo != "",
		Nature:    ledger.NatureTransfer,
		Signature: sig,
		PublicKey: pub,
		ChainId:   chainId,
	}

	if req.FeePayer != "" {
		feePayer, err := ledger.ParseAddress(req.FeePayer)
		if err != nil {
			return nil, err
		}
		feeAsset := asset
		if req.FeeAsset != "" {
			feeAsset, err = ledger.ParseAssetId(req.FeeAsset)
			if err != nil {
				return nil, err
			}
		}
		feePayerSig, err := hexDecode(req.FeePayerSignature)
		if err != nil {
			return nil, err
		}
		feePayerPub, err := hexDecode(req.FeePayerPublicKey)
		if err != nil {
			return nil, err
		}
		tx.HasFeePayer = true
		tx.FeePayer = feePayer
		tx.FeeAmount = req.FeeAmount
		tx.FeeAsset = feeAsset
		tx.FeePayerSignature = feePayerSig
		tx.FeePayerPubKey = feePayerPub
	}
	if req.GasLimit > 0 {
		tx.HasGasLimit = true
		tx.GasLimit = req.GasLimit
	}
	return tx, nil
}

// hexDecode decodes a variable-length signature/public-key hex string,
// treating an empty string as absent rather than an error.
func hexDecode(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	return hex.DecodeString(s)
}
