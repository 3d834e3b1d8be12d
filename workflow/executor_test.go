package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastPolicy = RetryPolicy{
	MaxAttempts:        3,
	InitialInterval:    time.Millisecond,
	BackoffCoefficient: 2.0,
	Timeout:            time.Second,
}

func TestExecutorReturnsResultOnFirstSuccess(t *testing.T) {
	e := NewExecutor(nil)

	calls := 0
	out, err := e.Execute(context.Background(), "GetCart", fastPolicy, func(ctx context.Context) (interface{}, error) {
		calls++
		return "cart", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "cart", out)
	assert.Equal(t, 1, calls)
}

func TestExecutorRetriesTransientFailures(t *testing.T) {
	e := NewExecutor(nil)

	calls := 0
	out, err := e.Execute(context.Background(), "ReserveInventory", fastPolicy, func(ctx context.Context) (interface{}, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("connection reset")
		}
		return "reserved", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "reserved", out)
	assert.Equal(t, 3, calls)
}

func TestExecutorExhaustsAttempts(t *testing.T) {
	e := NewExecutor(nil)

	calls := 0
	cause := errors.New("connection reset")
	_, err := e.Execute(context.Background(), "ReserveInventory", fastPolicy, func(ctx context.Context) (interface{}, error) {
		calls++
		return nil, cause
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)

	var aerr *ActivityError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, "ReserveInventory", aerr.Name)
	assert.Equal(t, 3, aerr.Attempts)
	assert.ErrorIs(t, err, cause)
}

func TestExecutorDoesNotRetryBusinessErrors(t *testing.T) {
	e := NewExecutor(nil)

	calls := 0
	_, err := e.Execute(context.Background(), "CapturePayment", fastPolicy, func(ctx context.Context) (interface{}, error) {
		calls++
		return nil, NewBusinessError("PAYMENT_DECLINED", "card declined")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, IsBusinessError(err))

	var aerr *ActivityError
	assert.False(t, errors.As(err, &aerr))
}

func TestExecutorSurfacesParentCancellation(t *testing.T) {
	e := NewExecutor(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Execute(ctx, "GetCart", fastPolicy, func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("connection reset")
	})

	require.ErrorIs(t, err, context.Canceled)
}

func TestPolicyBackoffGrowsExponentially(t *testing.T) {
	b := policyBackoff(RetryPolicy{
		InitialInterval:    time.Millisecond,
		BackoffCoefficient: 2.0,
	})

	var intervals []time.Duration
	for i := 0; i < 3; i++ {
		d, stop := b.Next()
		require.False(t, stop)
		intervals = append(intervals, d)
	}

	assert.Equal(t, []time.Duration{
		time.Millisecond,
		2 * time.Millisecond,
		4 * time.Millisecond,
	}, intervals)
}
