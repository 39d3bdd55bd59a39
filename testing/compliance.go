package drivetest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/blockberries/drive"
	"github.com/blockberries/drive/server"
	"github.com/blockberries/drive/types"
)

// malformedTx does not decode as a state transition.
var malformedTx = types.Tx([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08})

// RunComplianceSuite runs a standard compliance test suite against
// a drive application to verify correct lifecycle behavior.
//
// The factory function should return a fresh application instance
// for each call.
func RunComplianceSuite(t *testing.T, factory func() drive.Lifecycle) {
	t.Helper()

	t.Run("genesis_handshake", func(t *testing.T) {
		h := NewHarness(t, factory())
		resp := h.GenesisDefault()
		if resp.LastBlock != nil {
			t.Error("genesis handshake should return nil LastBlock")
		}
		if resp.AppHash == nil {
			t.Error("genesis handshake should return a non-nil AppHash")
		}
	})

	t.Run("execute_commit_cycle", func(t *testing.T) {
		h := NewHarness(t, factory())
		h.GenesisDefault()

		for i := uint64(1); i <= 5; i++ {
			outcome := h.ExecuteAndCommit(MakeEmptyBlock(i))
			if outcome.AppHash == (types.AppHash{}) {
				t.Errorf("height %d: zero app hash", i)
			}
		}
	})

	t.Run("commit_without_execute_rejected", func(t *testing.T) {
		h := NewHarness(t, factory())
		h.GenesisDefault()

		_, err := h.Server().Commit(context.Background())
		var orderErr *server.OrderError
		if !errors.As(err, &orderErr) {
			t.Fatalf("expected OrderError, got %v", err)
		}
	})

	t.Run("empty_blocks_deterministic", func(t *testing.T) {
		h1 := NewHarness(t, factory())
		h1.GenesisDefault()
		h2 := NewHarness(t, factory())
		h2.GenesisDefault()

		for i := uint64(1); i <= 3; i++ {
			block := MakeEmptyBlock(i)
			o1 := h1.ExecuteAndCommit(block)
			o2 := h2.ExecuteAndCommit(block)

			if o1.AppHash != o2.AppHash {
				t.Errorf("height %d: non-deterministic: %x != %x",
					i, o1.AppHash, o2.AppHash)
			}
		}
	})

	t.Run("deterministic_with_txs", func(t *testing.T) {
		h1 := NewHarness(t, factory())
		h1.GenesisDefault()
		h2 := NewHarness(t, factory())
		h2.GenesisDefault()

		block := MakeBlock(1, malformedTx)
		o1 := h1.ExecuteAndCommit(block)
		o2 := h2.ExecuteAndCommit(block)

		if o1.AppHash != o2.AppHash {
			t.Errorf("non-deterministic with txs: %x != %x",
				o1.AppHash, o2.AppHash)
		}
		if len(o1.TxOutcomes) != len(o2.TxOutcomes) {
			t.Fatalf("outcome count mismatch: %d != %d",
				len(o1.TxOutcomes), len(o2.TxOutcomes))
		}
		if o1.TxOutcomes[0].Code != o2.TxOutcomes[0].Code {
			t.Errorf("code mismatch: %d != %d",
				o1.TxOutcomes[0].Code, o2.TxOutcomes[0].Code)
		}
	})

	t.Run("malformed_tx_rejected", func(t *testing.T) {
		h := NewHarness(t, factory())
		h.GenesisDefault()

		h.MustRejectTx(malformedTx, drive.CodeInvalidArgument)
		h.MustRejectTx(types.Tx{}, drive.CodeInvalidArgument)

		outcome := h.ExecuteAndCommit(MakeBlock(1, malformedTx))
		if outcome.TxOutcomes[0].Code != drive.CodeInvalidArgument {
			t.Errorf("expected code %d, got %d", drive.CodeInvalidArgument, outcome.TxOutcomes[0].Code)
		}
	})

	t.Run("concurrent_checktx_after_handshake", func(t *testing.T) {
		h := NewHarness(t, factory())
		h.GenesisDefault()

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := h.Server().CheckTx(context.Background(), malformedTx, types.MempoolFirstSeen)
				if err != nil {
					t.Errorf("concurrent CheckTx failed: %v", err)
				}
			}()
		}
		wg.Wait()
	})

	t.Run("concurrent_query_after_handshake", func(t *testing.T) {
		h := NewHarness(t, factory())
		h.GenesisDefault()

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := h.Server().Query(context.Background(), types.StateQuery{
					Path: "/test",
				})
				if err != nil {
					t.Errorf("concurrent Query failed: %v", err)
				}
			}()
		}
		wg.Wait()
	})

	t.Run("query_returns_height", func(t *testing.T) {
		h := NewHarness(t, factory())
		h.GenesisDefault()

		h.ExecuteAndCommit(MakeEmptyBlock(1))
		h.ExecuteAndCommit(MakeEmptyBlock(2))

		result := h.Query("/test", nil)
		if result.Height != 2 {
			t.Errorf("query height should be 2 after committing, got %d", result.Height)
		}
	})

	t.Run("tx_outcome_indices", func(t *testing.T) {
		h := NewHarness(t, factory())
		h.GenesisDefault()

		txs := []types.Tx{
			{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08},
			{0x02, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08},
			{0x03, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08},
		}
		outcome := h.ExecuteAndCommit(MakeBlock(1, txs...))

		if len(outcome.TxOutcomes) != 3 {
			t.Fatalf("expected 3 tx outcomes, got %d", len(outcome.TxOutcomes))
		}
		for i, o := range outcome.TxOutcomes {
			if o.Index != uint32(i) {
				t.Errorf("tx %d: expected index %d, got %d", i, i, o.Index)
			}
		}
	})
}
