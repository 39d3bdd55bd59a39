package dpp_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockberries/drive/dpp"
	"github.com/blockberries/drive/dpp/dpptest"
)

type fixture struct {
	ctx      context.Context
	provider *dpptest.DataProvider
	engine   *dpp.DPP
	contract *dpp.DataContract
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	provider := dpptest.NewDataProvider()
	contract := dpptest.DataContract()
	provider.AddDataContract(contract)
	return &fixture{
		ctx:      context.Background(),
		provider: provider,
		engine:   dpp.New(provider),
		contract: contract,
	}
}

func requireSchemaError(t *testing.T, err dpp.ConsensusError, keyword, path string) {
	t.Helper()
	var schemaErr *dpp.JSONSchemaError
	require.True(t, errors.As(err, &schemaErr), "expected JSONSchemaError, got %T", err)
	assert.Equal(t, keyword, schemaErr.Keyword)
	assert.Equal(t, path, schemaErr.DataPath)
}

func TestDataContract_CreateIsDeterministic(t *testing.T) {
	f := newFixture(t)

	a, err := f.engine.DataContract().Create(f.ctx, dpptest.OwnerID, dpptest.DocumentDefinitions())
	require.NoError(t, err)
	b, err := f.engine.DataContract().Create(f.ctx, dpptest.OwnerID, dpptest.DocumentDefinitions())
	require.NoError(t, err)

	assert.Equal(t, a.ToObject(), b.ToObject())
	assert.Equal(t, f.contract.ID, a.ID)
	assert.True(t, dpp.IsValidID(a.ID))
}

func TestDataContract_CreateFromSerialized(t *testing.T) {
	f := newFixture(t)

	data, err := f.contract.Serialize()
	require.NoError(t, err)

	got, err := f.engine.DataContract().CreateFromSerialized(f.ctx, data)
	require.NoError(t, err)
	assert.Equal(t, f.contract.ToObject(), got.ToObject())
}

func TestDataContract_MissingOwnerID(t *testing.T) {
	f := newFixture(t)

	raw := f.contract.ToObject()
	raw.OwnerID = ""
	data, err := dpp.Encode(raw)
	require.NoError(t, err)

	_, err = f.engine.DataContract().CreateFromSerialized(f.ctx, data)
	var invalid *dpp.InvalidDataContractError
	require.ErrorAs(t, err, &invalid)
	require.Len(t, invalid.Errors, 1)
	requireSchemaError(t, invalid.Errors[0], "required", ".ownerId")
	assert.Equal(t, raw.ID, invalid.Raw.ID)
}

func TestDataContract_RequiredPropertyNotDefined(t *testing.T) {
	f := newFixture(t)

	raw := f.contract.ToObject()
	raw.Documents = map[string]dpp.DocumentSchema{
		"note": {
			Properties: map[string]dpp.PropertySchema{"text": {Type: "string"}},
			Required:   []string{"title"},
		},
	}

	result, err := f.engine.DataContract().Validate(f.ctx, raw)
	require.NoError(t, err)
	require.False(t, result.IsValid())
	requireSchemaError(t, result.Errors()[0], "required", ".documents[note].properties")
}

func TestDataContract_Garbage(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.DataContract().CreateFromSerialized(f.ctx, []byte{0xff, 0x00, 0x13})
	var invalid *dpp.InvalidDataContractError
	require.ErrorAs(t, err, &invalid)
	assert.IsType(t, &dpp.SerializationError{}, invalid.Errors[0])
}

func TestDocument_CreateFromSerialized(t *testing.T) {
	f := newFixture(t)
	doc := dpptest.Documents(f.contract)[0]

	data, err := doc.Serialize()
	require.NoError(t, err)

	got, err := f.engine.Document().CreateFromSerialized(f.ctx, data)
	require.NoError(t, err)
	assert.Equal(t, doc.ToObject(), got.ToObject())
}

func TestDocument_MissingType(t *testing.T) {
	f := newFixture(t)
	raw := dpptest.Documents(f.contract)[0].ToObject()
	raw.Type = ""

	data, err := dpp.Encode(raw)
	require.NoError(t, err)

	_, err = f.engine.Document().CreateFromSerialized(f.ctx, data)
	var invalid *dpp.InvalidDocumentError
	require.ErrorAs(t, err, &invalid)
	require.Len(t, invalid.Errors, 1)
	assert.IsType(t, &dpp.InvalidDocumentTypeError{}, invalid.Errors[0])
}

func TestDocument_UnknownContract(t *testing.T) {
	f := newFixture(t)
	raw := dpptest.Documents(f.contract)[0].ToObject()

	engine := dpp.New(dpptest.NewDataProvider())
	_, err := engine.Document().CreateFromObject(f.ctx, raw)
	var invalid *dpp.InvalidDocumentError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, &dpp.DataContractNotPresentError{DataContractID: f.contract.ID}, invalid.Errors[0])
}

func TestDocument_DataViolatesSchema(t *testing.T) {
	f := newFixture(t)
	raw := dpptest.Documents(f.contract)[2].ToObject()
	raw.Data = map[string]any{"age": "seven", "nickname": "x"}

	result, err := f.engine.Document().Validate(f.ctx, raw)
	require.NoError(t, err)
	require.Len(t, result.Errors(), 3)

	reasons := make([]string, 0, 3)
	for _, e := range result.Errors() {
		var dataErr *dpp.DocumentDataError
		require.ErrorAs(t, e, &dataErr)
		reasons = append(reasons, dataErr.Property+" "+dataErr.Reason)
	}
	assert.Equal(t, []string{"lastName is required", "age should be integer", "nickname is not allowed"}, reasons)
}

func TestDocument_CreateUndefinedType(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Document().Create(f.ctx, f.contract, dpptest.OwnerID, "uglyDocument", nil)
	var invalid *dpp.InvalidDocumentError
	require.ErrorAs(t, err, &invalid)
	assert.IsType(t, &dpp.InvalidDocumentTypeError{}, invalid.Errors[0])
}

func TestIdentity_CreateFromSerialized(t *testing.T) {
	f := newFixture(t)
	identity := dpptest.Identity()

	data, err := identity.Serialize()
	require.NoError(t, err)

	got, err := f.engine.Identity().CreateFromSerialized(f.ctx, data)
	require.NoError(t, err)
	assert.Equal(t, identity.ToObject(), got.ToObject())
}

func TestIdentity_MissingID(t *testing.T) {
	f := newFixture(t)
	raw := dpptest.Identity().ToObject()
	raw.ID = ""

	data, err := dpp.Encode(raw)
	require.NoError(t, err)

	_, err = f.engine.Identity().CreateFromSerialized(f.ctx, data)
	var invalid *dpp.InvalidIdentityError
	require.ErrorAs(t, err, &invalid)
	requireSchemaError(t, invalid.Errors[0], "required", ".id")
}

func TestIdentity_InvalidPublicKeys(t *testing.T) {
	f := newFixture(t)
	raw := dpptest.Identity().ToObject()
	raw.PublicKeys = append(raw.PublicKeys, dpp.IdentityPublicKey{
		ID:   raw.PublicKeys[0].ID,
		Type: dpp.KeyTypeECDSASecp256k1,
		Data: "AAAA",
	})

	result, err := f.engine.Identity().Validate(f.ctx, raw)
	require.NoError(t, err)
	require.Len(t, result.Errors(), 2)
	assert.Equal(t, &dpp.DuplicatedIdentityPublicKeyIDError{IDs: []uint32{1}}, result.Errors()[0])
	assert.IsType(t, &dpp.InvalidIdentityPublicKeyDataError{}, result.Errors()[1])
}

func TestStateTransition_IdentityCreateRoundTrip(t *testing.T) {
	f := newFixture(t)
	st, _ := dpptest.IdentityCreateTransition()

	data, err := st.Serialize()
	require.NoError(t, err)

	got, err := f.engine.StateTransition().CreateFromSerialized(f.ctx, data)
	require.NoError(t, err)
	assert.Equal(t, dpp.TypeIdentityCreate, got.Type())
	assert.Equal(t, st.ToObject(), got.ToObject())
	assert.Equal(t, st.IdentityID(), got.SubmitterID())

	result, err := f.engine.StateTransition().ValidateData(f.ctx, got)
	require.NoError(t, err)
	assert.True(t, result.IsValid())
}

func TestStateTransition_IdentityCreateMissingLockedOutPoint(t *testing.T) {
	f := newFixture(t)
	st, _ := dpptest.IdentityCreateTransition()
	raw := st.ToObject()
	raw.LockedOutPoint = ""

	data, err := dpp.Encode(raw)
	require.NoError(t, err)

	_, err = f.engine.StateTransition().CreateFromSerialized(f.ctx, data)
	var invalid *dpp.InvalidStateTransitionError
	require.ErrorAs(t, err, &invalid)
	requireSchemaError(t, invalid.Errors[0], "required", ".lockedOutPoint")
	require.NotNil(t, invalid.Raw)
}

func TestStateTransition_IdentityCreateWrongSigner(t *testing.T) {
	f := newFixture(t)
	st, _ := dpptest.IdentityCreateTransition()
	key := st.PublicKeys()[0]
	require.NoError(t, st.Sign(key, dpptest.PrivateKey()))

	result, err := f.engine.StateTransition().ValidateData(f.ctx, st)
	require.NoError(t, err)
	require.False(t, result.IsValid())
	assert.IsType(t, &dpp.InvalidStateTransitionSignatureError{}, result.Errors()[0])
}

func TestStateTransition_IdentityAlreadyExists(t *testing.T) {
	f := newFixture(t)
	st, _ := dpptest.IdentityCreateTransition()
	f.provider.AddIdentity(&dpp.Identity{ID: st.IdentityID()})

	result, err := f.engine.StateTransition().ValidateData(f.ctx, st)
	require.NoError(t, err)
	assert.Equal(t, []dpp.ConsensusError{&dpp.IdentityAlreadyExistsError{IdentityID: st.IdentityID()}}, result.Errors())
}

func TestStateTransition_UnknownType(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.StateTransition().CreateFromObject(f.ctx, dpp.RawStateTransition{Type: 42})
	var invalid *dpp.InvalidStateTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, &dpp.InvalidStateTransitionTypeError{Type: 42}, invalid.Errors[0])
}

func TestStateTransition_Documents(t *testing.T) {
	f := newFixture(t)
	docs := dpptest.Documents(f.contract)
	actions := []dpp.DocumentAction{dpp.DocumentActionCreate, dpp.DocumentActionCreate, dpp.DocumentActionCreate}

	st, err := f.engine.Document().CreateStateTransition(f.ctx, actions, docs)
	require.NoError(t, err)
	assert.Equal(t, dpptest.OwnerID, st.SubmitterID())

	data, err := st.Serialize()
	require.NoError(t, err)

	got, err := f.engine.StateTransition().CreateFromSerialized(f.ctx, data)
	require.NoError(t, err)
	assert.Equal(t, st.ToObject(), got.ToObject())

	result, err := f.engine.StateTransition().Validate(f.ctx, got.ToObject())
	require.NoError(t, err)
	assert.True(t, result.IsValid())
}

func TestStateTransition_DataContract(t *testing.T) {
	f := newFixture(t)

	st, err := f.engine.DataContract().CreateStateTransition(f.ctx, f.contract)
	require.NoError(t, err)
	assert.Equal(t, dpptest.OwnerID, st.SubmitterID())

	// The fixture contract is already published.
	result, err := f.engine.StateTransition().ValidateData(f.ctx, st)
	require.NoError(t, err)
	assert.Equal(t, []dpp.ConsensusError{&dpp.DataContractAlreadyPresentError{DataContractID: f.contract.ID}}, result.Errors())

	raw := st.ToObject()
	raw.DataContract.OwnerID = ""
	_, err = f.engine.StateTransition().CreateFromObject(f.ctx, raw)
	var invalid *dpp.InvalidStateTransitionError
	require.ErrorAs(t, err, &invalid)
	requireSchemaError(t, invalid.Errors[0], "required", ".ownerId")
}

func TestIdentity_ApplyStateTransition(t *testing.T) {
	f := newFixture(t)
	st, _ := dpptest.IdentityCreateTransition()

	identity, err := f.engine.Identity().ApplyStateTransition(f.ctx, st)
	require.NoError(t, err)
	assert.Equal(t, st.IdentityID(), identity.ID)
	assert.Equal(t, st.PublicKeys(), identity.PublicKeys)

	docsST, err := f.engine.DataContract().CreateStateTransition(f.ctx, f.contract)
	require.NoError(t, err)
	_, err = f.engine.Identity().ApplyStateTransition(f.ctx, docsST)
	require.Error(t, err)
}

type failingMeter struct{ err error }

func (m failingMeter) MeterMemory(dpp.MemoryKind, uint64) error { return m.err }
func (m failingMeter) Checkpoint() error                        { return m.err }

func TestMeterErrorsPropagate(t *testing.T) {
	f := newFixture(t)
	limit := errors.New("limit")
	ctx := dpp.WithExecutionMeter(f.ctx, failingMeter{err: limit})

	data, err := f.contract.Serialize()
	require.NoError(t, err)

	_, err = f.engine.DataContract().CreateFromSerialized(ctx, data)
	assert.ErrorIs(t, err, limit)
}

func TestConsensusErrorCodec(t *testing.T) {
	original := &dpp.JSONSchemaError{Keyword: "required", DataPath: ".ownerId"}

	fields, err := dpp.EncodeConsensusError(original)
	require.NoError(t, err)

	decoded, err := dpp.DecodeConsensusError(original.Code(), fields)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)

	_, err = dpp.DecodeConsensusError(1, fields)
	assert.Error(t, err)
}

type recordingMeter struct {
	intensities map[dpp.MemoryKind]uint64
}

func (m *recordingMeter) MeterMemory(kind dpp.MemoryKind, intensity uint64) error {
	m.intensities[kind] += intensity
	return nil
}

func (m *recordingMeter) Checkpoint() error { return nil }

func TestDocumentValidate_MetersDecodedData(t *testing.T) {
	f := newFixture(t)
	meter := &recordingMeter{intensities: map[dpp.MemoryKind]uint64{}}
	ctx := dpp.WithExecutionMeter(f.ctx, meter)

	raw := dpptest.Documents(f.contract)[0].ToObject()
	raw.Data = map[string]any{
		"name":  "Cutie",
		"extra": []any{uint64(1), "ab", map[any]any{"k": true}},
	}
	result, err := f.engine.Document().Validate(ctx, raw)
	require.NoError(t, err)
	require.Len(t, result.Errors(), 1, "extra is not allowed")

	assert.Equal(t, map[dpp.MemoryKind]uint64{
		dpp.MemoryKindDocument:        1,
		dpp.MemoryKindMapEntry:        3,
		dpp.MemoryKindListElement:     3,
		dpp.MemoryKindStringByte:      uint64(len("name") + len("Cutie") + len("extra") + len("ab") + len("k")),
		dpp.MemoryKindValue:           2,
		dpp.MemoryKindValidationError: 1,
	}, meter.intensities)
}

func TestDataContractValidate_MetersSchemaProperties(t *testing.T) {
	f := newFixture(t)
	meter := &recordingMeter{intensities: map[dpp.MemoryKind]uint64{}}
	ctx := dpp.WithExecutionMeter(f.ctx, meter)

	_, err := f.engine.DataContract().Validate(ctx, f.contract.ToObject())
	require.NoError(t, err)

	// niceDocument: 1 property; prettyDocument: 2 properties, 1 required.
	assert.Equal(t, uint64(4), meter.intensities[dpp.MemoryKindSchemaProperty])
}
