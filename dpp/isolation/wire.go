package isolation

import (
	"fmt"

	"github.com/blockberries/cramberry/pkg/cramberry"

	"github.com/blockberries/drive/dpp"
)

// Everything crossing the isolation boundary is a cramberry envelope;
// entity payloads inside it are canonical CBOR. No Go values are shared.

type callEnvelope struct {
	Method string `cramberry:"1"`
	Args   []byte `cramberry:"2"`
}

// errorKind tags the typed error an isolated call failed with.
type errorKind uint8

const (
	errorNone errorKind = iota
	errorInvalidDataContract
	errorInvalidDocument
	errorInvalidIdentity
	errorInvalidStateTransition
	errorFault
)

type wireConsensusError struct {
	Code   uint32 `cramberry:"1" cbor:"code"`
	Fields []byte `cramberry:"2" cbor:"fields"`
}

type resultEnvelope struct {
	Payload []byte               `cramberry:"1"`
	Kind    errorKind            `cramberry:"2"`
	Errors  []wireConsensusError `cramberry:"3"`
	Raw     []byte               `cramberry:"4"`
	Fault   string               `cramberry:"5"`
}

const (
	proxyFetchDataContract = "fetchDataContract"
	proxyFetchIdentity     = "fetchIdentity"
)

type proxyCall struct {
	Method string `cramberry:"1"`
	ID     string `cramberry:"2"`
}

type proxyReply struct {
	Found  bool   `cramberry:"1"`
	Entity []byte `cramberry:"2"`
	Fault  string `cramberry:"3"`
}

func encodeConsensusErrors(errs []dpp.ConsensusError) ([]wireConsensusError, error) {
	out := make([]wireConsensusError, len(errs))
	for i, e := range errs {
		fields, err := dpp.EncodeConsensusError(e)
		if err != nil {
			return nil, fmt.Errorf("could not encode consensus error %d: %w", e.Code(), err)
		}
		out[i] = wireConsensusError{Code: e.Code(), Fields: fields}
	}
	return out, nil
}

func decodeConsensusErrors(wire []wireConsensusError) ([]dpp.ConsensusError, error) {
	out := make([]dpp.ConsensusError, len(wire))
	for i, w := range wire {
		e, err := dpp.DecodeConsensusError(w.Code, w.Fields)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

// encodeResult converts the outcome of an in-context call to an envelope.
func encodeResult(result any, callErr error) ([]byte, error) {
	env := resultEnvelope{}
	var (
		errs []dpp.ConsensusError
		raw  any
	)
	switch e := callErr.(type) {
	case nil:
		payload, err := dpp.Encode(result)
		if err != nil {
			return nil, fmt.Errorf("could not encode result: %w", err)
		}
		env.Payload = payload
	case *dpp.InvalidDataContractError:
		env.Kind, errs, raw = errorInvalidDataContract, e.Errors, e.Raw
	case *dpp.InvalidDocumentError:
		env.Kind, errs, raw = errorInvalidDocument, e.Errors, e.Raw
	case *dpp.InvalidIdentityError:
		env.Kind, errs, raw = errorInvalidIdentity, e.Errors, e.Raw
	case *dpp.InvalidStateTransitionError:
		env.Kind, errs = errorInvalidStateTransition, e.Errors
		if e.Raw != nil {
			raw = e.Raw
		}
	default:
		env.Kind, env.Fault = errorFault, callErr.Error()
	}
	if errs != nil {
		wire, err := encodeConsensusErrors(errs)
		if err != nil {
			return nil, err
		}
		env.Errors = wire
	}
	if raw != nil {
		data, err := dpp.Encode(raw)
		if err != nil {
			return nil, fmt.Errorf("could not encode raw entity: %w", err)
		}
		env.Raw = data
	}
	return cramberry.Marshal(env)
}

// decodeError rebuilds the typed validation error an envelope carries.
func decodeError(env resultEnvelope) (error, error) {
	errs, err := decodeConsensusErrors(env.Errors)
	if err != nil {
		return nil, err
	}
	decodeRaw := func(v any) error {
		if len(env.Raw) == 0 {
			return nil
		}
		return dpp.Decode(env.Raw, v)
	}
	switch env.Kind {
	case errorInvalidDataContract:
		e := &dpp.InvalidDataContractError{Errors: errs}
		return e, decodeRaw(&e.Raw)
	case errorInvalidDocument:
		e := &dpp.InvalidDocumentError{Errors: errs}
		return e, decodeRaw(&e.Raw)
	case errorInvalidIdentity:
		e := &dpp.InvalidIdentityError{Errors: errs}
		return e, decodeRaw(&e.Raw)
	case errorInvalidStateTransition:
		e := &dpp.InvalidStateTransitionError{Errors: errs}
		if len(env.Raw) > 0 {
			e.Raw = &dpp.RawStateTransition{}
		}
		return e, decodeRaw(e.Raw)
	default:
		return nil, fmt.Errorf("unexpected error kind %d", env.Kind)
	}
}
