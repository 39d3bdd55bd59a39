package updatestate

// ApplyStateTransitionRequest asks the state service to apply a serialized
// state transition on top of the given block.
type ApplyStateTransitionRequest struct {
	BlockHeight     uint64 `cramberry:"1"`
	BlockHash       []byte `cramberry:"2"`
	StateTransition []byte `cramberry:"3"`
}

// ApplyStateTransitionResponse is the (empty) reply to
// ApplyStateTransitionRequest.
type ApplyStateTransitionResponse struct{}

// FetchDataContractRequest asks for a data contract by id.
type FetchDataContractRequest struct {
	ID string `cramberry:"1"`
}

// FetchDataContractResponse carries the serialized data contract, if the
// service knows it.
type FetchDataContractResponse struct {
	Found        bool   `cramberry:"1"`
	DataContract []byte `cramberry:"2"`
}
