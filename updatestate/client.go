// Package updatestate is the client of the remote state service that
// applies document and data contract transitions and serves data
// contracts.
package updatestate

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/blockberries/drive/dpp"
	drivegrpc "github.com/blockberries/drive/grpc"
)

// Client calls the state service over gRPC with cramberry serialization.
type Client struct {
	cc *grpc.ClientConn
}

// Dial connects to the state service at addr.
func Dial(ctx context.Context, addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append(opts, grpc.WithDefaultCallOptions(
		grpc.ForceCodec(drivegrpc.CramberryCodec{}),
	))
	cc, err := grpc.DialContext(ctx, addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("update state client: dial %s: %w", addr, err)
	}
	return &Client{cc: cc}, nil
}

func (c *Client) Close() error {
	return c.cc.Close()
}

// ApplyStateTransition applies a state transition. A rejected call returns
// a *StatusError.
func (c *Client) ApplyStateTransition(ctx context.Context, req *ApplyStateTransitionRequest) (*ApplyStateTransitionResponse, error) {
	var trailer metadata.MD
	resp := new(ApplyStateTransitionResponse)
	if err := c.cc.Invoke(ctx, fullMethod("ApplyStateTransition"), req, resp, grpc.Trailer(&trailer)); err != nil {
		return nil, fromCall(err, trailer)
	}
	return resp, nil
}

// FetchDataContract returns the data contract with id, or nil when the
// service does not know it.
func (c *Client) FetchDataContract(ctx context.Context, id string) (*dpp.DataContract, error) {
	var trailer metadata.MD
	resp := new(FetchDataContractResponse)
	if err := c.cc.Invoke(ctx, fullMethod("FetchDataContract"), &FetchDataContractRequest{ID: id}, resp, grpc.Trailer(&trailer)); err != nil {
		return nil, fromCall(err, trailer)
	}
	if !resp.Found {
		return nil, nil
	}
	var raw dpp.RawDataContract
	if err := dpp.Decode(resp.DataContract, &raw); err != nil {
		return nil, fmt.Errorf("decode data contract %s: %w", id, err)
	}
	contract := dpp.DataContract(raw)
	return &contract, nil
}
