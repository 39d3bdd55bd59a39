package dpp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateTransitionKinds_EveryTypeRegistered(t *testing.T) {
	for _, typ := range Types() {
		kind, ok := stateTransitionKinds[typ]
		if assert.True(t, ok, "type %d is not registered", typ) {
			assert.NotEmpty(t, kind.name)
			assert.NotNil(t, kind.validateStructure)
			assert.NotNil(t, kind.build)
			assert.NotNil(t, kind.validateData)
		}
	}
	assert.Len(t, stateTransitionKinds, len(Types()))
}

func TestDataPath(t *testing.T) {
	assert.Equal(t, ".ownerId", dataPath("RawDataContract.ownerId"))
	assert.Equal(t, ".publicKeys[0].data", dataPath("RawIdentity.publicKeys[0].data"))
	assert.Equal(t, "", dataPath("RawIdentity"))
}
