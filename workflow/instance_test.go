package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstanceTransitionRecordsResult(t *testing.T) {
	inst := NewInstance("wf-1", "test", nil)

	res := Result{Success: true, SubStatus: SubStatusSuccess, Message: "done"}
	require.NoError(t, inst.Transition(context.Background(), StatusCompleted, res))

	assert.Equal(t, StatusCompleted, inst.Status)
	require.NotNil(t, inst.Result)
	assert.Equal(t, res, *inst.Result)
	assert.NotNil(t, inst.CompletedAt)
}

func TestInstanceTerminalTransitionHappensExactlyOnce(t *testing.T) {
	inst := NewInstance("wf-1", "test", nil)

	require.NoError(t, inst.Transition(context.Background(), StatusCancelled, Result{SubStatus: SubStatusCancelled}))

	err := inst.Transition(context.Background(), StatusCompleted, Result{Success: true})
	require.Error(t, err)
	assert.Equal(t, StatusCancelled, inst.Status)
	assert.Equal(t, SubStatusCancelled, inst.Result.SubStatus)
}

func TestInstanceTransitionRejectsNonTerminalTarget(t *testing.T) {
	inst := NewInstance("wf-1", "test", nil)
	require.Error(t, inst.Transition(context.Background(), StatusRunning, Result{}))
}

func TestStatusIsTerminal(t *testing.T) {
	assert.False(t, StatusRunning.IsTerminal())
	for _, s := range []Status{StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut} {
		assert.True(t, s.IsTerminal(), string(s))
	}
}
