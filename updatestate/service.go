package updatestate

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
)

const serviceName = "github.com/blockberries/drive.v1.UpdateStateService"

// UpdateStateServiceServer is the server-side interface of the state
// service.
type UpdateStateServiceServer interface {
	ApplyStateTransition(context.Context, *ApplyStateTransitionRequest) (*ApplyStateTransitionResponse, error)
	FetchDataContract(context.Context, *FetchDataContractRequest) (*FetchDataContractResponse, error)
}

// RegisterUpdateStateServiceServer registers srv on a gRPC server.
func RegisterUpdateStateServiceServer(s *grpc.Server, srv UpdateStateServiceServer) {
	s.RegisterService(&serviceDesc, srv)
}

func handlerApplyStateTransition(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	req := new(ApplyStateTransitionRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	return srv.(UpdateStateServiceServer).ApplyStateTransition(ctx, req)
}

func handlerFetchDataContract(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	req := new(FetchDataContractRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	return srv.(UpdateStateServiceServer).FetchDataContract(ctx, req)
}

func fullMethod(method string) string {
	return fmt.Sprintf("/%s/%s", serviceName, method)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*UpdateStateServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ApplyStateTransition", Handler: handlerApplyStateTransition},
		{MethodName: "FetchDataContract", Handler: handlerFetchDataContract},
	},
	Metadata: "github.com/blockberries/drive/v1/update_state.cram",
}
