package agentcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextState_HappyPath(t *testing.T) {
	path := []State{StateUnattached, StateDetecting, StateHooked, StateReady, StateDetaching, StateDetached}
	for i := 0; i < len(path)-1; i++ {
		assert.NoError(t, nextState(path[i], path[i+1]), "%s -> %s", path[i], path[i+1])
	}
}

func TestNextState_DetectionFailureRoutesToFailedThenDetaching(t *testing.T) {
	assert.NoError(t, nextState(StateDetecting, StateFailed))
	assert.NoError(t, nextState(StateFailed, StateDetaching))
}

func TestNextState_RejectsSkippingHookedState(t *testing.T) {
	err := nextState(StateUnattached, StateReady)
	assert.Error(t, err)
}

func TestNextState_RejectsDoubleDetach(t *testing.T) {
	err := nextState(StateDetached, StateDetached)
	assert.Error(t, err)
}

func TestState_StringIsStable(t *testing.T) {
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "unattached", StateUnattached.String())
}
