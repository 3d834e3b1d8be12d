package workflow

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSagaCompensatesInReverseOrder(t *testing.T) {
	s := NewSaga(nil)

	var order []string
	s.Add("first", func() error { order = append(order, "first"); return nil })
	s.Add("second", func() error { order = append(order, "second"); return nil })
	s.Add("third", func() error { order = append(order, "third"); return nil })

	require.NoError(t, s.Compensate())
	assert.Equal(t, []string{"third", "second", "first"}, order)
	assert.Zero(t, s.Len())
}

func TestSagaContinuesOnError(t *testing.T) {
	s := NewSaga(nil)

	var order []string
	s.Add("first", func() error { order = append(order, "first"); return nil })
	s.Add("second", func() error { return errors.New("release failed") })
	s.Add("third", func() error { order = append(order, "third"); return nil })

	err := s.Compensate()
	require.Error(t, err)

	var cerr *CompensationError
	require.ErrorAs(t, err, &cerr)
	assert.Len(t, cerr.Failures, 1)

	// Siblings still ran despite the failure in the middle
	assert.Equal(t, []string{"third", "first"}, order)
}

func TestSagaAbortsOnErrorWhenConfigured(t *testing.T) {
	s := NewSaga(nil, WithAbortOnError())

	var order []string
	s.Add("first", func() error { order = append(order, "first"); return nil })
	s.Add("second", func() error { return errors.New("refund failed") })
	s.Add("third", func() error { order = append(order, "third"); return nil })

	err := s.Compensate()
	require.Error(t, err)
	assert.Equal(t, []string{"third"}, order)
}

func TestSagaPropagatesSuspension(t *testing.T) {
	s := NewSaga(nil)

	var ran bool
	s.Add("first", func() error { ran = true; return nil })
	s.Add("second", func() error { return errSuspended })

	err := s.Compensate()
	require.True(t, IsSuspended(err))
	// The unwind stopped where it suspended so a resume replays from there
	assert.False(t, ran)
}

func TestSagaCompensateEmptyIsNoop(t *testing.T) {
	s := NewSaga(nil)
	require.NoError(t, s.Compensate())
}
