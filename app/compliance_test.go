package app_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockberries/drive"
	"github.com/blockberries/drive/dpp"
	"github.com/blockberries/drive/dpp/dpptest"
	drivetest "github.com/blockberries/drive/testing"
	"github.com/blockberries/drive/types"
)

func TestCompliance(t *testing.T) {
	drivetest.RunComplianceSuite(t, func() drive.Lifecycle {
		return drivetest.NewApp(t, dpptest.DataContract()).App
	})
}

func TestHarness_DataContractThenDocuments(t *testing.T) {
	env := drivetest.NewApp(t)
	h := drivetest.NewHarness(t, env.App)
	h.GenesisDefault()

	contract := dpptest.DataContract()
	st, err := dpp.New(dpptest.NewDataProvider()).DataContract().CreateStateTransition(context.Background(), contract)
	require.NoError(t, err)
	contractTx, err := st.Serialize()
	require.NoError(t, err)

	h.MustAcceptTx(contractTx)
	outcome := h.ExecuteAndCommit(drivetest.MakeBlock(1, contractTx))
	require.Len(t, outcome.TxOutcomes, 1)
	assert.True(t, outcome.TxOutcomes[0].OK())
	require.Len(t, env.Remote.Applied(), 1)

	// The contract published in block 1 now validates documents.
	result := h.Query(types.QueryPath("/dataContracts/"+contract.ID), nil)
	assert.Equal(t, types.QueryCodeOK, result.Code)
	assert.Equal(t, uint64(1), result.Height)

	docs := dpptest.Documents(contract)
	actions := make([]dpp.DocumentAction, len(docs))
	for i := range actions {
		actions[i] = dpp.DocumentActionCreate
	}
	docsST, err := dpp.New(dpptest.NewDataProvider()).Document().CreateStateTransition(context.Background(), actions, docs)
	require.NoError(t, err)
	docsTx, err := docsST.Serialize()
	require.NoError(t, err)

	h.MustAcceptTx(docsTx)
	outcome = h.ExecuteAndCommit(drivetest.MakeBlock(2, docsTx))
	assert.True(t, outcome.TxOutcomes[0].OK())

	applied := env.Remote.Applied()
	require.Len(t, applied, 2)
	assert.Equal(t, uint64(1), applied[0].BlockHeight)
	assert.Equal(t, uint64(2), applied[1].BlockHeight)
}

func TestHarness_IdentityQuery(t *testing.T) {
	env := drivetest.NewApp(t)
	h := drivetest.NewHarness(t, env.App)
	h.GenesisDefault()

	create, _ := dpptest.IdentityCreateTransition()
	tx, err := create.Serialize()
	require.NoError(t, err)

	h.MustAcceptTx(tx)
	outcome := h.NextBlock(tx, tx)
	assert.True(t, outcome.TxOutcomes[0].OK())
	assert.Equal(t, drive.CodeInvalidArgument, outcome.TxOutcomes[1].Code, "second create in the same block")

	identity := h.Identity(create.IdentityID())
	assert.Equal(t, create.IdentityID(), identity.ID)
	assert.Empty(t, env.Remote.Applied())

	outcome = h.NextBlock(tx)
	assert.Equal(t, drive.CodeInvalidArgument, outcome.TxOutcomes[0].Code)
}
