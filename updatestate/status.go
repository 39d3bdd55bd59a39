package updatestate

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// StatusError is a failed call to the state service together with the
// trailing metadata the service attached to it.
type StatusError struct {
	Code    codes.Code
	Message string
	md      metadata.MD
}

// NewStatusError builds a StatusError with metadata md.
func NewStatusError(code codes.Code, message string, md map[string]string) *StatusError {
	return &StatusError{Code: code, Message: message, md: metadata.New(md)}
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("update state: %s: %s", e.Code, e.Message)
}

// GRPCStatus lets status.FromError and status.Code see the original code.
func (e *StatusError) GRPCStatus() *status.Status {
	return status.New(e.Code, e.Message)
}

// Metadata returns the trailing metadata as a map. Keys with one value map
// to a string, keys with several to a []string. The map is never nil.
func (e *StatusError) Metadata() map[string]any {
	out := make(map[string]any, len(e.md))
	for k, vs := range e.md {
		switch len(vs) {
		case 0:
		case 1:
			out[k] = vs[0]
		default:
			out[k] = append([]string(nil), vs...)
		}
	}
	return out
}

// fromCall converts the error of a call into a StatusError. Errors that
// carry no gRPC status are returned unchanged.
func fromCall(err error, trailer metadata.MD) error {
	s, ok := status.FromError(err)
	if !ok {
		return err
	}
	return &StatusError{Code: s.Code(), Message: s.Message(), md: trailer}
}

// InvalidArgument is used by state service implementations to reject a
// state transition. md is sent as trailing metadata.
func InvalidArgument(ctx context.Context, message string, md map[string]string) error {
	if len(md) > 0 {
		if err := grpc.SetTrailer(ctx, metadata.New(md)); err != nil {
			return status.Errorf(codes.Internal, "set trailer: %v", err)
		}
	}
	return status.Error(codes.InvalidArgument, message)
}
