package local

import (
	"context"
	"errors"
	"testing"

	"github.com/blockberries/drive"
	"github.com/blockberries/drive/dpp/dpptest"
	"github.com/blockberries/drive/server"
	drivetest "github.com/blockberries/drive/testing"
	"github.com/blockberries/drive/types"
)

func TestLocalConnection_FullCycle(t *testing.T) {
	env := drivetest.NewApp(t)
	conn := NewConnection(env.App)
	defer conn.Close()

	_, err := conn.Handshake(context.Background(), types.HandshakeRequest{
		Genesis: &types.GenesisDoc{ChainID: "test"},
	})
	if err != nil {
		t.Fatalf("handshake failed: %v", err)
	}

	create, _ := dpptest.IdentityCreateTransition()
	tx, err := create.Serialize()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}

	verdict, err := conn.CheckTx(context.Background(), tx, types.MempoolFirstSeen)
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if !verdict.Accepted() {
		t.Fatalf("tx rejected: %s", verdict.Info)
	}

	outcome, err := conn.ExecuteBlock(context.Background(), types.FinalizedBlock{
		Height: 1,
		Txs:    []types.Tx{tx},
	})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if !outcome.TxOutcomes[0].OK() {
		t.Fatalf("tx failed: %s", outcome.TxOutcomes[0].Info)
	}

	if _, err := conn.Commit(context.Background()); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	result, err := conn.Query(context.Background(), types.StateQuery{
		Path: types.QueryPath("/identities/" + create.IdentityID()),
	})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if result.Code != types.QueryCodeOK {
		t.Errorf("expected identity to be found, got code=%d", result.Code)
	}
	if result.Height != 1 {
		t.Errorf("expected height=1, got %d", result.Height)
	}

	// The same identity cannot be created twice.
	outcome, err = conn.ExecuteBlock(context.Background(), types.FinalizedBlock{
		Height: 2,
		Txs:    []types.Tx{tx},
	})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if outcome.TxOutcomes[0].Code != drive.CodeInvalidArgument {
		t.Errorf("expected code=%d for a duplicate identity, got %d", drive.CodeInvalidArgument, outcome.TxOutcomes[0].Code)
	}
}

func TestLocalConnection_EnforcesOrder(t *testing.T) {
	conn := NewConnection(&drivetest.MockApp{})

	_, err := conn.CheckTx(context.Background(), types.Tx{0x01}, types.MempoolFirstSeen)
	var orderErr *server.OrderError
	if !errors.As(err, &orderErr) {
		t.Fatalf("expected OrderError before handshake, got %v", err)
	}
}

func TestLocalConnection_CheckTxConcurrent(t *testing.T) {
	mock := &drivetest.MockApp{}
	conn := NewConnection(mock)

	_, err := conn.Handshake(context.Background(), types.HandshakeRequest{
		Genesis: &types.GenesisDoc{ChainID: "test"},
	})
	if err != nil {
		t.Fatalf("handshake failed: %v", err)
	}

	done := make(chan struct{})
	for i := 0; i < 20; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			_, err := conn.CheckTx(context.Background(), types.Tx{0x01}, types.MempoolFirstSeen)
			if err != nil {
				t.Errorf("CheckTx error: %v", err)
			}
		}()
	}
	for i := 0; i < 20; i++ {
		<-done
	}
	if got := mock.CheckTxCalls.Load(); got != 20 {
		t.Errorf("expected 20 CheckTx calls, got %d", got)
	}
}
