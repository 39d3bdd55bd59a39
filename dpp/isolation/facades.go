package isolation

import (
	"context"
	"fmt"

	"github.com/blockberries/drive/dpp"
)

// invoke calls method in an isolate and decodes its result into R.
func invoke[R any](ctx context.Context, d *IsolatedDpp, method string, args any) (R, error) {
	var result R
	payload, err := d.call(ctx, method, args)
	if err != nil {
		return result, err
	}
	if err := dpp.Decode(payload, &result); err != nil {
		return result, fmt.Errorf("could not decode %s result: %w", method, err)
	}
	return result, nil
}

func invokeValidation(ctx context.Context, d *IsolatedDpp, method string, args any) (dpp.ValidationResult, error) {
	r, err := invoke[validationResult](ctx, d, method, args)
	if err != nil {
		return dpp.ValidationResult{}, err
	}
	errs, err := decodeConsensusErrors(r.Errors)
	if err != nil {
		return dpp.ValidationResult{}, err
	}
	return dpp.NewValidationResult(errs...), nil
}

func invokeStateTransition(ctx context.Context, d *IsolatedDpp, method string, args any) (dpp.StateTransition, error) {
	raw, err := invoke[dpp.RawStateTransition](ctx, d, method, args)
	if err != nil {
		return nil, err
	}
	return dpp.RestoreStateTransition(raw)
}

type dataContractFacade struct {
	d *IsolatedDpp
}

func (f *dataContractFacade) contract(ctx context.Context, method string, args any) (*dpp.DataContract, error) {
	raw, err := invoke[dpp.RawDataContract](ctx, f.d, method, args)
	if err != nil {
		return nil, err
	}
	c := dpp.DataContract(raw)
	return &c, nil
}

func (f *dataContractFacade) Create(ctx context.Context, ownerID string, documents map[string]dpp.DocumentSchema) (*dpp.DataContract, error) {
	return f.contract(ctx, methodDataContractCreate, dataContractCreateArgs{OwnerID: ownerID, Documents: documents})
}

func (f *dataContractFacade) CreateFromObject(ctx context.Context, raw dpp.RawDataContract) (*dpp.DataContract, error) {
	return f.contract(ctx, methodDataContractCreateFromObject, raw)
}

func (f *dataContractFacade) CreateFromSerialized(ctx context.Context, data []byte) (*dpp.DataContract, error) {
	return f.contract(ctx, methodDataContractCreateFromSerialized, data)
}

func (f *dataContractFacade) Validate(ctx context.Context, raw dpp.RawDataContract) (dpp.ValidationResult, error) {
	return invokeValidation(ctx, f.d, methodDataContractValidate, raw)
}

func (f *dataContractFacade) CreateStateTransition(ctx context.Context, contract *dpp.DataContract) (dpp.StateTransition, error) {
	return invokeStateTransition(ctx, f.d, methodDataContractCreateStateTransition, contract.ToObject())
}

type documentFacade struct {
	d *IsolatedDpp
}

func (f *documentFacade) document(ctx context.Context, method string, args any) (*dpp.Document, error) {
	raw, err := invoke[dpp.RawDocument](ctx, f.d, method, args)
	if err != nil {
		return nil, err
	}
	doc := dpp.Document(raw)
	return &doc, nil
}

func (f *documentFacade) Create(ctx context.Context, contract *dpp.DataContract, ownerID, documentType string, data map[string]any) (*dpp.Document, error) {
	return f.document(ctx, methodDocumentCreate, documentCreateArgs{
		DataContract: contract.ToObject(),
		OwnerID:      ownerID,
		DocumentType: documentType,
		Data:         data,
	})
}

func (f *documentFacade) CreateFromObject(ctx context.Context, raw dpp.RawDocument) (*dpp.Document, error) {
	return f.document(ctx, methodDocumentCreateFromObject, raw)
}

func (f *documentFacade) CreateFromSerialized(ctx context.Context, data []byte) (*dpp.Document, error) {
	return f.document(ctx, methodDocumentCreateFromSerialized, data)
}

func (f *documentFacade) Validate(ctx context.Context, raw dpp.RawDocument) (dpp.ValidationResult, error) {
	return invokeValidation(ctx, f.d, methodDocumentValidate, raw)
}

func (f *documentFacade) CreateStateTransition(ctx context.Context, actions []dpp.DocumentAction, documents []*dpp.Document) (dpp.StateTransition, error) {
	raws := make([]dpp.RawDocument, len(documents))
	for i, doc := range documents {
		raws[i] = doc.ToObject()
	}
	return invokeStateTransition(ctx, f.d, methodDocumentCreateStateTransition, documentsTransitionArgs{Actions: actions, Documents: raws})
}

type identityFacade struct {
	d *IsolatedDpp
}

func (f *identityFacade) identity(ctx context.Context, method string, args any) (*dpp.Identity, error) {
	raw, err := invoke[dpp.RawIdentity](ctx, f.d, method, args)
	if err != nil {
		return nil, err
	}
	identity := dpp.Identity(raw)
	return &identity, nil
}

func (f *identityFacade) Create(ctx context.Context, lockedOutPoint []byte, publicKeys []dpp.IdentityPublicKey) (*dpp.Identity, error) {
	return f.identity(ctx, methodIdentityCreate, identityCreateArgs{LockedOutPoint: lockedOutPoint, PublicKeys: publicKeys})
}

func (f *identityFacade) CreateFromObject(ctx context.Context, raw dpp.RawIdentity) (*dpp.Identity, error) {
	return f.identity(ctx, methodIdentityCreateFromObject, raw)
}

func (f *identityFacade) CreateFromSerialized(ctx context.Context, data []byte) (*dpp.Identity, error) {
	return f.identity(ctx, methodIdentityCreateFromSerialized, data)
}

func (f *identityFacade) Validate(ctx context.Context, raw dpp.RawIdentity) (dpp.ValidationResult, error) {
	return invokeValidation(ctx, f.d, methodIdentityValidate, raw)
}

func (f *identityFacade) ApplyStateTransition(ctx context.Context, st dpp.StateTransition) (*dpp.Identity, error) {
	return f.identity(ctx, methodIdentityApplyStateTransition, st.ToObject())
}

type stateTransitionFacade struct {
	d *IsolatedDpp
}

func (f *stateTransitionFacade) CreateFromObject(ctx context.Context, raw dpp.RawStateTransition) (dpp.StateTransition, error) {
	return invokeStateTransition(ctx, f.d, methodStateTransitionCreateFromObject, raw)
}

func (f *stateTransitionFacade) CreateFromSerialized(ctx context.Context, data []byte) (dpp.StateTransition, error) {
	return invokeStateTransition(ctx, f.d, methodStateTransitionCreateFromSerialized, data)
}

func (f *stateTransitionFacade) Validate(ctx context.Context, raw dpp.RawStateTransition) (dpp.ValidationResult, error) {
	return invokeValidation(ctx, f.d, methodStateTransitionValidate, raw)
}

func (f *stateTransitionFacade) ValidateData(ctx context.Context, st dpp.StateTransition) (dpp.ValidationResult, error) {
	return invokeValidation(ctx, f.d, methodStateTransitionValidateData, st.ToObject())
}
