package drivegrpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"

	"github.com/blockberries/drive/types"
)

const serviceName = "github.com/blockberries/drive.v1.DriveService"

// DriveServiceServer is the server-side interface for the drive gRPC
// service.
type DriveServiceServer interface {
	Handshake(context.Context, *types.HandshakeRequest) (*types.HandshakeResponse, error)
	CheckTx(context.Context, *CheckTxRequest) (*types.GateVerdict, error)
	ExecuteBlock(context.Context, *types.FinalizedBlock) (*types.BlockOutcome, error)
	Commit(context.Context, *CommitRequest) (*types.CommitResult, error)
	Query(context.Context, *types.StateQuery) (*types.StateQueryResult, error)
}

// RegisterDriveServiceServer registers the DriveServiceServer on a gRPC
// server.
func RegisterDriveServiceServer(s *grpc.Server, srv DriveServiceServer) {
	s.RegisterService(&serviceDesc, srv)
}

// --- Handler functions ---

func handlerHandshake(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	req := new(types.HandshakeRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	return srv.(DriveServiceServer).Handshake(ctx, req)
}

func handlerCheckTx(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	req := new(CheckTxRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	return srv.(DriveServiceServer).CheckTx(ctx, req)
}

func handlerExecuteBlock(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	req := new(types.FinalizedBlock)
	if err := dec(req); err != nil {
		return nil, err
	}
	return srv.(DriveServiceServer).ExecuteBlock(ctx, req)
}

func handlerCommit(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	req := new(CommitRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	return srv.(DriveServiceServer).Commit(ctx, req)
}

func handlerQuery(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	req := new(types.StateQuery)
	if err := dec(req); err != nil {
		return nil, err
	}
	return srv.(DriveServiceServer).Query(ctx, req)
}

func fullMethod(method string) string {
	return fmt.Sprintf("/%s/%s", serviceName, method)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*DriveServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Handshake", Handler: handlerHandshake},
		{MethodName: "CheckTx", Handler: handlerCheckTx},
		{MethodName: "ExecuteBlock", Handler: handlerExecuteBlock},
		{MethodName: "Commit", Handler: handlerCommit},
		{MethodName: "Query", Handler: handlerQuery},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "github.com/blockberries/drive/v1/service.cram",
}
