package drivegrpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/blockberries/drive"
	"github.com/blockberries/drive/server"
	"github.com/blockberries/drive/types"
)

// Compile-time interface check.
var _ drive.Connection = (*Client)(nil)

// Client implements drive.Connection for a remote application
// over gRPC using cramberry serialization.
type Client struct {
	cc    *grpc.ClientConn
	guard *server.LifecycleGuard
}

// Dial connects to a remote drive application.
func Dial(ctx context.Context, addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append(opts, grpc.WithDefaultCallOptions(
		grpc.ForceCodec(CramberryCodec{}),
	))
	cc, err := grpc.DialContext(ctx, addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("drive client: dial %s: %w", addr, err)
	}
	return &Client{
		cc:    cc,
		guard: server.NewLifecycleGuard(),
	}, nil
}

func (c *Client) Close() error {
	return c.cc.Close()
}

// --- Lifecycle ---

func (c *Client) Handshake(ctx context.Context, req types.HandshakeRequest) (types.HandshakeResponse, error) {
	if err := c.guard.AcquireHandshake(); err != nil {
		return types.HandshakeResponse{}, err
	}

	resp := new(types.HandshakeResponse)
	err := c.cc.Invoke(ctx, fullMethod("Handshake"), &req, resp)
	if err != nil {
		c.guard.FailHandshake()
		return types.HandshakeResponse{}, err
	}

	c.guard.CompleteHandshake()
	return *resp, nil
}

func (c *Client) CheckTx(ctx context.Context, tx types.Tx, mctx types.MempoolContext) (types.GateVerdict, error) {
	if err := c.guard.CheckConcurrent("CheckTx"); err != nil {
		return types.GateVerdict{}, err
	}

	req := &CheckTxRequest{Tx: tx, Context: mctx}
	resp := new(types.GateVerdict)
	if err := c.cc.Invoke(ctx, fullMethod("CheckTx"), req, resp); err != nil {
		return types.GateVerdict{}, err
	}
	return *resp, nil
}

// ExecuteBlock executes block remotely. A halted application is reported
// as a *drive.HaltError.
func (c *Client) ExecuteBlock(ctx context.Context, block types.FinalizedBlock) (types.BlockOutcome, error) {
	if err := c.guard.AcquireExecute(); err != nil {
		return types.BlockOutcome{}, err
	}

	resp := new(types.BlockOutcome)
	err := c.cc.Invoke(ctx, fullMethod("ExecuteBlock"), &block, resp)
	if err != nil {
		if status.Code(err) == codes.Aborted {
			c.guard.HaltExecute()
			return types.BlockOutcome{}, drive.WrapHalt(block.Height, "remote application halted", err)
		}
		c.guard.FailExecute()
		return types.BlockOutcome{}, err
	}

	c.guard.CompleteExecute()
	return *resp, nil
}

func (c *Client) Commit(ctx context.Context) (types.CommitResult, error) {
	if err := c.guard.AcquireCommit(); err != nil {
		return types.CommitResult{}, err
	}

	req := &CommitRequest{}
	resp := new(types.CommitResult)
	err := c.cc.Invoke(ctx, fullMethod("Commit"), req, resp)
	c.guard.CompleteCommit()
	if err != nil {
		return types.CommitResult{}, err
	}
	return *resp, nil
}

func (c *Client) Query(ctx context.Context, req types.StateQuery) (types.StateQueryResult, error) {
	if err := c.guard.CheckConcurrent("Query"); err != nil {
		return types.StateQueryResult{}, err
	}

	resp := new(types.StateQueryResult)
	if err := c.cc.Invoke(ctx, fullMethod("Query"), &req, resp); err != nil {
		return types.StateQueryResult{}, err
	}
	return *resp, nil
}
