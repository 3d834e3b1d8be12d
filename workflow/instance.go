package workflow

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/qmuntal/stateless"
)

// Instance is one durable, resumable execution of a workflow definition for
// a business key. It is exclusively owned and mutated by its own step logic.
type Instance struct {
	ID          string          `json:"id"`
	Type        Type            `json:"type"`
	Status      Status          `json:"status"`
	Input       json.RawMessage `json:"input"`
	Result      *Result         `json:"result,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// NewInstance creates a Running instance for the given id and input.
func NewInstance(id string, t Type, input json.RawMessage) *Instance {
	now := time.Now()
	return &Instance{
		ID:        id,
		Type:      t,
		Status:    StatusRunning,
		Input:     input,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Status transition triggers.
const (
	triggerComplete = "complete"
	triggerFail     = "fail"
	triggerCancel   = "cancel"
	triggerTimeout  = "timeout"
)

// newStatusMachine builds the lifecycle state machine. Terminal states have
// no outgoing transitions, so a terminal status is reached exactly once.
func newStatusMachine(current Status) *stateless.StateMachine {
	sm := stateless.NewStateMachine(current)

	sm.Configure(StatusRunning).
		Permit(triggerComplete, StatusCompleted).
		Permit(triggerFail, StatusFailed).
		Permit(triggerCancel, StatusCancelled).
		Permit(triggerTimeout, StatusTimedOut)

	sm.Configure(StatusCompleted)
	sm.Configure(StatusFailed)
	sm.Configure(StatusCancelled)
	sm.Configure(StatusTimedOut)

	return sm
}

// Transition moves the instance to a terminal status, recording the result.
// A second terminal transition is rejected.
func (i *Instance) Transition(ctx context.Context, to Status, res Result) error {
	trigger, ok := map[Status]string{
		StatusCompleted: triggerComplete,
		StatusFailed:    triggerFail,
		StatusCancelled: triggerCancel,
		StatusTimedOut:  triggerTimeout,
	}[to]
	if !ok {
		return errors.Errorf("invalid terminal status %q", to)
	}

	sm := newStatusMachine(i.Status)
	if err := sm.FireCtx(ctx, trigger); err != nil {
		return errors.Wrapf(err, "instance %s already in terminal status %s", i.ID, i.Status)
	}

	now := time.Now()
	i.Status = to
	i.Result = &res
	i.UpdatedAt = now
	i.CompletedAt = &now
	return nil
}
