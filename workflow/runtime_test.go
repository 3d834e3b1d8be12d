package workflow

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testDefinition struct {
	typ Type
	fn  func(c *Context, input json.RawMessage) (Result, error)
}

func (d *testDefinition) Type() Type { return d.typ }

func (d *testDefinition) Execute(c *Context, input json.RawMessage) (Result, error) {
	return d.fn(c, input)
}

func waitForStatus(t *testing.T, rt *Runtime, id string, want Status) *Instance {
	t.Helper()
	var inst *Instance
	require.Eventually(t, func() bool {
		got, err := rt.GetStatus(context.Background(), id)
		if err != nil {
			return false
		}
		inst = got
		return got.Status == want
	}, 3*time.Second, 5*time.Millisecond)
	return inst
}

func TestRuntimeRejectsDuplicateStart(t *testing.T) {
	rt := NewRuntime(NewMemoryStore())
	defer rt.Shutdown(context.Background())

	released := make(chan struct{})
	rt.Register(&testDefinition{typ: "blocking", fn: func(c *Context, _ json.RawMessage) (Result, error) {
		<-released
		return Result{Success: true, SubStatus: SubStatusSuccess}, nil
	}})

	ctx := context.Background()
	require.NoError(t, rt.Start(ctx, "wf-1", "blocking", nil))

	err := rt.Start(ctx, "wf-1", "blocking", nil)
	require.ErrorIs(t, err, ErrAlreadyExists)
	close(released)

	waitForStatus(t, rt, "wf-1", StatusCompleted)
}

func TestRuntimeRejectsUnregisteredType(t *testing.T) {
	rt := NewRuntime(NewMemoryStore())
	defer rt.Shutdown(context.Background())

	err := rt.Start(context.Background(), "wf-1", "unknown", nil)
	require.Error(t, err)
}

func TestRuntimeRecordsFailureSubStatus(t *testing.T) {
	rt := NewRuntime(NewMemoryStore())
	defer rt.Shutdown(context.Background())

	rt.Register(&testDefinition{typ: "declined", fn: func(c *Context, _ json.RawMessage) (Result, error) {
		return Result{Success: false, SubStatus: SubStatusFailed, Message: "card declined"}, nil
	}})

	require.NoError(t, rt.Start(context.Background(), "wf-1", "declined", nil))

	inst := waitForStatus(t, rt, "wf-1", StatusCompleted)
	require.NotNil(t, inst.Result)
	assert.False(t, inst.Result.Success)
	assert.Equal(t, SubStatusFailed, inst.Result.SubStatus)
	assert.Equal(t, "card declined", inst.Result.Message)
}

func TestRuntimeMarksUnhandledErrorAsFailed(t *testing.T) {
	rt := NewRuntime(NewMemoryStore())
	defer rt.Shutdown(context.Background())

	rt.Register(&testDefinition{typ: "panicking", fn: func(c *Context, _ json.RawMessage) (Result, error) {
		panic("boom")
	}})

	require.NoError(t, rt.Start(context.Background(), "wf-1", "panicking", nil))

	inst := waitForStatus(t, rt, "wf-1", StatusFailed)
	require.NotNil(t, inst.Result)
	assert.Contains(t, inst.Result.Message, "boom")
}

func TestRuntimeAwaitTimeout(t *testing.T) {
	rt := NewRuntime(NewMemoryStore())
	defer rt.Shutdown(context.Background())

	rt.Register(&testDefinition{typ: "waiting", fn: func(c *Context, _ json.RawMessage) (Result, error) {
		ok, err := c.AwaitSignal(30*time.Millisecond, func(Signal) {}, func() bool { return false })
		if err != nil {
			return Result{}, err
		}
		if !ok {
			return Result{Success: false, SubStatus: SubStatusTimedOut, Message: "gave up waiting"}, nil
		}
		return Result{Success: true, SubStatus: SubStatusSuccess}, nil
	}})

	require.NoError(t, rt.Start(context.Background(), "wf-1", "waiting", nil))

	inst := waitForStatus(t, rt, "wf-1", StatusTimedOut)
	require.NotNil(t, inst.Result)
	assert.False(t, inst.Result.Success)
	assert.Equal(t, SubStatusTimedOut, inst.Result.SubStatus)
}

func TestRuntimeDeliversSignalsInOrder(t *testing.T) {
	rt := NewRuntime(NewMemoryStore())
	defer rt.Shutdown(context.Background())

	rt.Register(&testDefinition{typ: "collecting", fn: func(c *Context, _ json.RawMessage) (Result, error) {
		var got []string
		_, err := c.AwaitSignal(5*time.Second, func(sig Signal) {
			var v string
			if uerr := sig.Unmarshal(&v); uerr == nil {
				got = append(got, v)
			}
		}, func() bool { return len(got) >= 3 })
		if err != nil {
			return Result{}, err
		}
		return Result{Success: true, SubStatus: SubStatusSuccess, Message: strings.Join(got, ",")}, nil
	}})

	ctx := context.Background()
	require.NoError(t, rt.Start(ctx, "wf-1", "collecting", nil))

	for _, v := range []string{"one", "two", "three"} {
		require.NoError(t, rt.Signal(ctx, "wf-1", "item", v))
	}

	inst := waitForStatus(t, rt, "wf-1", StatusCompleted)
	assert.Equal(t, "one,two,three", inst.Result.Message)
}

func TestRuntimeDropsSignalForUnknownInstance(t *testing.T) {
	rt := NewRuntime(NewMemoryStore())
	defer rt.Shutdown(context.Background())

	err := rt.Signal(context.Background(), "nope", "item", nil)
	require.ErrorIs(t, err, ErrInstanceNotRunning)
}

func TestRuntimeSuspendsAndResumesWithoutReinvokingActivities(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var calls int32
	def := func() *testDefinition {
		return &testDefinition{typ: "durable", fn: func(c *Context, _ json.RawMessage) (Result, error) {
			if err := Run(c, "Count", fastPolicy, func(context.Context) error {
				atomic.AddInt32(&calls, 1)
				return nil
			}); err != nil {
				return Result{}, err
			}
			released := false
			if _, err := c.AwaitSignal(time.Minute, func(sig Signal) {
				if sig.Type == "release" {
					released = true
				}
			}, func() bool { return released }); err != nil {
				return Result{}, err
			}
			return Result{Success: true, SubStatus: SubStatusSuccess}, nil
		}}
	}

	rt1 := NewRuntime(store)
	rt1.Register(def())
	require.NoError(t, rt1.Start(ctx, "wf-1", "durable", nil))

	// Wait for the activity to run, then shut down mid-await
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, rt1.Shutdown(ctx))

	inst, err := store.GetInstance(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, inst.Status)

	// A fresh runtime over the same store replays the recorded history
	rt2 := NewRuntime(store)
	defer rt2.Shutdown(context.Background())
	rt2.Register(def())
	require.NoError(t, rt2.Resume(ctx))

	require.Eventually(t, func() bool {
		return rt2.Signal(ctx, "wf-1", "release", nil) == nil
	}, 2*time.Second, 5*time.Millisecond)

	waitForStatus(t, rt2, "wf-1", StatusCompleted)

	// The recorded result was served from history, not re-executed
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestRuntimeDetectsNonDeterministicReplay(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	makeDef := func(activity string) *testDefinition {
		return &testDefinition{typ: "flaky", fn: func(c *Context, _ json.RawMessage) (Result, error) {
			if err := Run(c, activity, fastPolicy, func(context.Context) error { return nil }); err != nil {
				return Result{}, err
			}
			waiting := true
			if _, err := c.AwaitSignal(time.Minute, func(Signal) { waiting = false }, func() bool { return !waiting }); err != nil {
				return Result{}, err
			}
			return Result{Success: true, SubStatus: SubStatusSuccess}, nil
		}}
	}

	rt1 := NewRuntime(store)
	rt1.Register(makeDef("StepA"))
	require.NoError(t, rt1.Start(ctx, "wf-1", "flaky", nil))
	require.Eventually(t, func() bool {
		history, err := store.ListDecisions(ctx, "wf-1")
		return err == nil && len(history) > 0
	}, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, rt1.Shutdown(ctx))

	// Resuming with different step logic must fail loudly, not corrupt state
	rt2 := NewRuntime(store)
	defer rt2.Shutdown(context.Background())
	rt2.Register(makeDef("StepB"))
	require.NoError(t, rt2.Resume(ctx))

	inst := waitForStatus(t, rt2, "wf-1", StatusFailed)
	assert.Contains(t, inst.Result.Message, "history does not match")
}
