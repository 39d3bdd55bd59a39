package isolation

import (
	"context"
	"fmt"

	"github.com/blockberries/drive/dpp"
)

// method runs one engine entry point inside an isolate. Arguments arrive
// CBOR-encoded; the result is encoded by the caller.
type method func(ctx context.Context, engine dpp.Protocol, args []byte) (any, error)

func handle[A, R any](fn func(ctx context.Context, engine dpp.Protocol, args A) (R, error)) method {
	return func(ctx context.Context, engine dpp.Protocol, data []byte) (any, error) {
		var args A
		if err := dpp.Decode(data, &args); err != nil {
			return nil, fmt.Errorf("could not decode arguments: %w", err)
		}
		return fn(ctx, engine, args)
	}
}

const (
	methodDataContractCreate                = "dataContract.create"
	methodDataContractCreateFromObject      = "dataContract.createFromObject"
	methodDataContractCreateFromSerialized  = "dataContract.createFromSerialized"
	methodDataContractValidate              = "dataContract.validate"
	methodDataContractCreateStateTransition = "dataContract.createStateTransition"

	methodDocumentCreate                = "document.create"
	methodDocumentCreateFromObject      = "document.createFromObject"
	methodDocumentCreateFromSerialized  = "document.createFromSerialized"
	methodDocumentValidate              = "document.validate"
	methodDocumentCreateStateTransition = "document.createStateTransition"

	methodIdentityCreate               = "identity.create"
	methodIdentityCreateFromObject     = "identity.createFromObject"
	methodIdentityCreateFromSerialized = "identity.createFromSerialized"
	methodIdentityValidate             = "identity.validate"
	methodIdentityApplyStateTransition = "identity.applyStateTransition"

	methodStateTransitionCreateFromObject     = "stateTransition.createFromObject"
	methodStateTransitionCreateFromSerialized = "stateTransition.createFromSerialized"
	methodStateTransitionValidate             = "stateTransition.validate"
	methodStateTransitionValidateData         = "stateTransition.validateData"
)

type dataContractCreateArgs struct {
	OwnerID   string                        `cbor:"ownerId"`
	Documents map[string]dpp.DocumentSchema `cbor:"documents"`
}

type documentCreateArgs struct {
	DataContract dpp.RawDataContract `cbor:"dataContract"`
	OwnerID      string              `cbor:"ownerId"`
	DocumentType string              `cbor:"type"`
	Data         map[string]any      `cbor:"data"`
}

type documentsTransitionArgs struct {
	Actions   []dpp.DocumentAction `cbor:"actions"`
	Documents []dpp.RawDocument    `cbor:"documents"`
}

type identityCreateArgs struct {
	LockedOutPoint []byte                  `cbor:"lockedOutPoint"`
	PublicKeys     []dpp.IdentityPublicKey `cbor:"publicKeys"`
}

type validationResult struct {
	Errors []wireConsensusError `cbor:"errors"`
}

func encodeValidationResult(r dpp.ValidationResult, err error) (validationResult, error) {
	if err != nil {
		return validationResult{}, err
	}
	wire, err := encodeConsensusErrors(r.Errors())
	if err != nil {
		return validationResult{}, err
	}
	return validationResult{Errors: wire}, nil
}

var methods = map[string]method{
	methodDataContractCreate: handle(func(ctx context.Context, e dpp.Protocol, a dataContractCreateArgs) (dpp.RawDataContract, error) {
		c, err := e.DataContract().Create(ctx, a.OwnerID, a.Documents)
		if err != nil {
			return dpp.RawDataContract{}, err
		}
		return c.ToObject(), nil
	}),
	methodDataContractCreateFromObject: handle(func(ctx context.Context, e dpp.Protocol, raw dpp.RawDataContract) (dpp.RawDataContract, error) {
		c, err := e.DataContract().CreateFromObject(ctx, raw)
		if err != nil {
			return dpp.RawDataContract{}, err
		}
		return c.ToObject(), nil
	}),
	methodDataContractCreateFromSerialized: handle(func(ctx context.Context, e dpp.Protocol, data []byte) (dpp.RawDataContract, error) {
		c, err := e.DataContract().CreateFromSerialized(ctx, data)
		if err != nil {
			return dpp.RawDataContract{}, err
		}
		return c.ToObject(), nil
	}),
	methodDataContractValidate: handle(func(ctx context.Context, e dpp.Protocol, raw dpp.RawDataContract) (validationResult, error) {
		return encodeValidationResult(e.DataContract().Validate(ctx, raw))
	}),
	methodDataContractCreateStateTransition: handle(func(ctx context.Context, e dpp.Protocol, raw dpp.RawDataContract) (dpp.RawStateTransition, error) {
		c := dpp.DataContract(raw)
		st, err := e.DataContract().CreateStateTransition(ctx, &c)
		if err != nil {
			return dpp.RawStateTransition{}, err
		}
		return st.ToObject(), nil
	}),

	methodDocumentCreate: handle(func(ctx context.Context, e dpp.Protocol, a documentCreateArgs) (dpp.RawDocument, error) {
		c := dpp.DataContract(a.DataContract)
		d, err := e.Document().Create(ctx, &c, a.OwnerID, a.DocumentType, a.Data)
		if err != nil {
			return dpp.RawDocument{}, err
		}
		return d.ToObject(), nil
	}),
	methodDocumentCreateFromObject: handle(func(ctx context.Context, e dpp.Protocol, raw dpp.RawDocument) (dpp.RawDocument, error) {
		d, err := e.Document().CreateFromObject(ctx, raw)
		if err != nil {
			return dpp.RawDocument{}, err
		}
		return d.ToObject(), nil
	}),
	methodDocumentCreateFromSerialized: handle(func(ctx context.Context, e dpp.Protocol, data []byte) (dpp.RawDocument, error) {
		d, err := e.Document().CreateFromSerialized(ctx, data)
		if err != nil {
			return dpp.RawDocument{}, err
		}
		return d.ToObject(), nil
	}),
	methodDocumentValidate: handle(func(ctx context.Context, e dpp.Protocol, raw dpp.RawDocument) (validationResult, error) {
		return encodeValidationResult(e.Document().Validate(ctx, raw))
	}),
	methodDocumentCreateStateTransition: handle(func(ctx context.Context, e dpp.Protocol, a documentsTransitionArgs) (dpp.RawStateTransition, error) {
		docs := make([]*dpp.Document, len(a.Documents))
		for i, raw := range a.Documents {
			d := dpp.Document(raw)
			docs[i] = &d
		}
		st, err := e.Document().CreateStateTransition(ctx, a.Actions, docs)
		if err != nil {
			return dpp.RawStateTransition{}, err
		}
		return st.ToObject(), nil
	}),

	methodIdentityCreate: handle(func(ctx context.Context, e dpp.Protocol, a identityCreateArgs) (dpp.RawIdentity, error) {
		i, err := e.Identity().Create(ctx, a.LockedOutPoint, a.PublicKeys)
		if err != nil {
			return dpp.RawIdentity{}, err
		}
		return i.ToObject(), nil
	}),
	methodIdentityCreateFromObject: handle(func(ctx context.Context, e dpp.Protocol, raw dpp.RawIdentity) (dpp.RawIdentity, error) {
		i, err := e.Identity().CreateFromObject(ctx, raw)
		if err != nil {
			return dpp.RawIdentity{}, err
		}
		return i.ToObject(), nil
	}),
	methodIdentityCreateFromSerialized: handle(func(ctx context.Context, e dpp.Protocol, data []byte) (dpp.RawIdentity, error) {
		i, err := e.Identity().CreateFromSerialized(ctx, data)
		if err != nil {
			return dpp.RawIdentity{}, err
		}
		return i.ToObject(), nil
	}),
	methodIdentityValidate: handle(func(ctx context.Context, e dpp.Protocol, raw dpp.RawIdentity) (validationResult, error) {
		return encodeValidationResult(e.Identity().Validate(ctx, raw))
	}),
	methodIdentityApplyStateTransition: handle(func(ctx context.Context, e dpp.Protocol, raw dpp.RawStateTransition) (dpp.RawIdentity, error) {
		st, err := dpp.RestoreStateTransition(raw)
		if err != nil {
			return dpp.RawIdentity{}, err
		}
		i, err := e.Identity().ApplyStateTransition(ctx, st)
		if err != nil {
			return dpp.RawIdentity{}, err
		}
		return i.ToObject(), nil
	}),

	methodStateTransitionCreateFromObject: handle(func(ctx context.Context, e dpp.Protocol, raw dpp.RawStateTransition) (dpp.RawStateTransition, error) {
		st, err := e.StateTransition().CreateFromObject(ctx, raw)
		if err != nil {
			return dpp.RawStateTransition{}, err
		}
		return st.ToObject(), nil
	}),
	methodStateTransitionCreateFromSerialized: handle(func(ctx context.Context, e dpp.Protocol, data []byte) (dpp.RawStateTransition, error) {
		st, err := e.StateTransition().CreateFromSerialized(ctx, data)
		if err != nil {
			return dpp.RawStateTransition{}, err
		}
		return st.ToObject(), nil
	}),
	methodStateTransitionValidate: handle(func(ctx context.Context, e dpp.Protocol, raw dpp.RawStateTransition) (validationResult, error) {
		return encodeValidationResult(e.StateTransition().Validate(ctx, raw))
	}),
	methodStateTransitionValidateData: handle(func(ctx context.Context, e dpp.Protocol, raw dpp.RawStateTransition) (validationResult, error) {
		st, err := dpp.RestoreStateTransition(raw)
		if err != nil {
			return validationResult{}, err
		}
		return encodeValidationResult(e.StateTransition().ValidateData(ctx, st))
	}),
}
