package drivetest

import (
	"context"
	"sync"

	"google.golang.org/grpc/status"

	"github.com/blockberries/drive/dpp"
	"github.com/blockberries/drive/updatestate"
)

var _ updatestate.UpdateStateServiceServer = (*StateService)(nil)

// StateService is an in-memory remote state service. Data contract
// transitions it applies become fetchable.
type StateService struct {
	mu        sync.Mutex
	contracts map[string]*dpp.DataContract
	applied   []*updatestate.ApplyStateTransitionRequest

	// ApplyErr, when set, fails every ApplyStateTransition call.
	ApplyErr error
}

// NewStateService creates a service that knows contracts.
func NewStateService(contracts ...*dpp.DataContract) *StateService {
	s := &StateService{contracts: make(map[string]*dpp.DataContract)}
	for _, c := range contracts {
		s.contracts[c.ID] = c
	}
	return s
}

func (s *StateService) ApplyStateTransition(ctx context.Context, req *updatestate.ApplyStateTransitionRequest) (*updatestate.ApplyStateTransitionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ApplyErr != nil {
		return nil, s.ApplyErr
	}

	var raw dpp.RawStateTransition
	if err := dpp.Decode(req.StateTransition, &raw); err != nil {
		return nil, updatestate.InvalidArgument(ctx, "could not decode state transition", nil)
	}
	if raw.Type == dpp.TypeDataContract && raw.DataContract != nil {
		contract := dpp.DataContract(*raw.DataContract)
		s.contracts[contract.ID] = &contract
	}
	s.applied = append(s.applied, req)
	return &updatestate.ApplyStateTransitionResponse{}, nil
}

func (s *StateService) FetchDataContract(_ context.Context, req *updatestate.FetchDataContractRequest) (*updatestate.FetchDataContractResponse, error) {
	s.mu.Lock()
	contract, ok := s.contracts[req.ID]
	s.mu.Unlock()
	if !ok {
		return &updatestate.FetchDataContractResponse{}, nil
	}
	data, err := contract.Serialize()
	if err != nil {
		return nil, err
	}
	return &updatestate.FetchDataContractResponse{Found: true, DataContract: data}, nil
}

// Applied returns the requests applied so far.
func (s *StateService) Applied() []*updatestate.ApplyStateTransitionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*updatestate.ApplyStateTransitionRequest(nil), s.applied...)
}

// Client returns an in-process client of the service.
func (s *StateService) Client() *StateClient {
	return &StateClient{svc: s}
}

// StateClient calls a StateService without a network hop.
type StateClient struct {
	svc *StateService
}

// ApplyStateTransition reports rejections as *updatestate.StatusError,
// like the network client.
func (c *StateClient) ApplyStateTransition(ctx context.Context, req *updatestate.ApplyStateTransitionRequest) (*updatestate.ApplyStateTransitionResponse, error) {
	resp, err := c.svc.ApplyStateTransition(ctx, req)
	if err != nil {
		if s, ok := status.FromError(err); ok {
			return nil, updatestate.NewStatusError(s.Code(), s.Message(), nil)
		}
		return nil, err
	}
	return resp, nil
}

func (c *StateClient) FetchDataContract(ctx context.Context, id string) (*dpp.DataContract, error) {
	resp, err := c.svc.FetchDataContract(ctx, &updatestate.FetchDataContractRequest{ID: id})
	if err != nil || !resp.Found {
		return nil, err
	}
	var raw dpp.RawDataContract
	if err := dpp.Decode(resp.DataContract, &raw); err != nil {
		return nil, err
	}
	contract := dpp.DataContract(raw)
	return &contract, nil
}
