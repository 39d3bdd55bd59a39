package drivetest

import (
	"context"
	"testing"
	"time"

	"github.com/blockberries/drive"
	"github.com/blockberries/drive/dpp"
	"github.com/blockberries/drive/server"
	"github.com/blockberries/drive/types"
)

// genesisTime is the genesis time of DefaultGenesis. Block n is produced
// blockInterval * n later.
var genesisTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

const blockInterval = 5 * time.Second

// Harness drives an application through the lifecycle guard so tests
// observe the same call-order enforcement as a running node. Every
// failing call ends the test.
type Harness struct {
	t      *testing.T
	ctx    context.Context
	srv    *server.Server
	height uint64
}

// NewHarness creates a harness for app.
func NewHarness(t *testing.T, app drive.Lifecycle) *Harness {
	t.Helper()
	return &Harness{t: t, ctx: context.Background(), srv: server.New(app)}
}

// Server returns the guarded server.
func (h *Harness) Server() *server.Server {
	return h.srv
}

func (h *Harness) must(err error, format string, args ...any) {
	h.t.Helper()
	if err != nil {
		h.t.Fatalf(format+": %v", append(args, err)...)
	}
}

// Genesis starts the chain from genesis.
func (h *Harness) Genesis(genesis types.GenesisDoc) types.HandshakeResponse {
	h.t.Helper()
	resp, err := h.srv.Handshake(h.ctx, types.HandshakeRequest{Genesis: &genesis})
	h.must(err, "genesis handshake for chain %q", genesis.ChainID)
	h.height = 0
	if genesis.InitialHeight > 0 {
		h.height = genesis.InitialHeight - 1
	}
	return resp
}

// GenesisDefault starts the chain from DefaultGenesis.
func (h *Harness) GenesisDefault() types.HandshakeResponse {
	h.t.Helper()
	return h.Genesis(DefaultGenesis())
}

// ExecuteBlock executes block without committing it.
func (h *Harness) ExecuteBlock(block types.FinalizedBlock) types.BlockOutcome {
	h.t.Helper()
	outcome, err := h.srv.ExecuteBlock(h.ctx, block)
	h.must(err, "execute block %d", block.Height)
	if len(outcome.TxOutcomes) != len(block.Txs) {
		h.t.Fatalf("block %d: %d outcomes for %d transactions", block.Height, len(outcome.TxOutcomes), len(block.Txs))
	}
	return outcome
}

// Commit commits the executed block.
func (h *Harness) Commit() types.CommitResult {
	h.t.Helper()
	result, err := h.srv.Commit(h.ctx)
	h.must(err, "commit")
	return result
}

// ExecuteAndCommit executes block and commits it.
func (h *Harness) ExecuteAndCommit(block types.FinalizedBlock) types.BlockOutcome {
	h.t.Helper()
	outcome := h.ExecuteBlock(block)
	h.Commit()
	h.height = block.Height
	return outcome
}

// NextBlock executes and commits txs in the block following the last one
// committed through the harness.
func (h *Harness) NextBlock(txs ...types.Tx) types.BlockOutcome {
	h.t.Helper()
	return h.ExecuteAndCommit(MakeBlock(h.height+1, txs...))
}

// CheckTx runs the mempool gate on a newly seen transaction.
func (h *Harness) CheckTx(tx types.Tx) types.GateVerdict {
	h.t.Helper()
	verdict, err := h.srv.CheckTx(h.ctx, tx, types.MempoolFirstSeen)
	h.must(err, "check tx")
	return verdict
}

// MustAcceptTx fails the test unless tx enters the mempool.
func (h *Harness) MustAcceptTx(tx types.Tx) types.GateVerdict {
	h.t.Helper()
	v := h.CheckTx(tx)
	if !v.Accepted() {
		h.t.Fatalf("expected tx accepted, got code=%d info=%q", v.Code, v.Info)
	}
	return v
}

// MustRejectTx fails the test unless tx is rejected with code.
func (h *Harness) MustRejectTx(tx types.Tx, code uint32) types.GateVerdict {
	h.t.Helper()
	v := h.CheckTx(tx)
	if v.Code != code {
		h.t.Fatalf("expected tx rejected with code=%d, got code=%d info=%q", code, v.Code, v.Info)
	}
	return v
}

// Query reads committed state at path.
func (h *Harness) Query(path types.QueryPath, data []byte) types.StateQueryResult {
	h.t.Helper()
	result, err := h.srv.Query(h.ctx, types.StateQuery{Path: path, Data: data})
	h.must(err, "query %s", path)
	return result
}

// Identity returns the committed identity with id and fails the test when
// it is absent.
func (h *Harness) Identity(id string) dpp.RawIdentity {
	h.t.Helper()
	result := h.Query(types.QueryPath("/identities/"+id), nil)
	if result.Code != types.QueryCodeOK {
		h.t.Fatalf("identity %s: query code=%d info=%q", id, result.Code, result.Info)
	}
	var raw dpp.RawIdentity
	h.must(dpp.Decode(result.Value, &raw), "decode identity %s", id)
	return raw
}

// DefaultGenesis returns the genesis document of the test chain.
func DefaultGenesis() types.GenesisDoc {
	return types.GenesisDoc{
		ChainID:       "drive-test",
		GenesisTime:   types.NewTimestamp(genesisTime),
		InitialHeight: 1,
	}
}

// MakeBlock returns the finalized block at height carrying txs.
func MakeBlock(height uint64, txs ...types.Tx) types.FinalizedBlock {
	return types.FinalizedBlock{
		Height: height,
		Time:   types.NewTimestamp(genesisTime.Add(time.Duration(height) * blockInterval)),
		Txs:    txs,
	}
}

// MakeEmptyBlock returns the finalized block at height without
// transactions.
func MakeEmptyBlock(height uint64) types.FinalizedBlock {
	return MakeBlock(height)
}
