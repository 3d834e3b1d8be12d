package workflow

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Context drives one workflow instance through its step logic. Execution is
// strictly sequential: the instance cooperatively suspends only inside
// AwaitSignal and while an activity call is in flight.
//
// The Context consults the recorded decision history before every activity
// call, signal wait, and side effect; on resumption after a crash the cached
// outcome is returned instead of re-invoking the collaborator.
type Context struct {
	root     context.Context
	runtime  *Runtime
	instance *Instance
	signals  chan Signal
	log      *slog.Logger

	history []Decision
	cursor  int
	seq     int
}

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newContext(root context.Context, rt *Runtime, inst *Instance, history []Decision, signals chan Signal) *Context {
	return &Context{
		root:     root,
		runtime:  rt,
		instance: inst,
		signals:  signals,
		history:  history,
		log:      rt.log.With("workflow_id", inst.ID, "workflow_type", inst.Type),
	}
}

// InstanceID returns the id of the executing instance.
func (c *Context) InstanceID() string {
	return c.instance.ID
}

// Logger returns the instance logger. While replaying recorded history it
// discards output so resumed instances do not duplicate log lines.
func (c *Context) Logger() *slog.Logger {
	if c.replaying() {
		return discardLogger
	}
	return c.log
}

func (c *Context) replaying() bool {
	return c.cursor < len(c.history)
}

// nextRecorded peeks the history entry for the current seq, if any.
func (c *Context) nextRecorded() (Decision, bool) {
	if c.cursor < len(c.history) {
		return c.history[c.cursor], true
	}
	return Decision{}, false
}

func (c *Context) consume() {
	c.cursor++
	c.seq++
}

// record appends one decision at the current seq. History is append-only;
// a persistence failure aborts the step, since continuing would make the
// execution unreplayable.
func (c *Context) record(d Decision) error {
	d.Seq = c.seq
	d.RecordedAt = time.Now()
	if err := c.runtime.store.AppendDecision(c.root, c.instance.ID, d); err != nil {
		return errors.Wrapf(err, "failed to record decision seq %d", d.Seq)
	}
	c.seq++
	return nil
}

// decisionError reconstructs the recorded activity failure with the same
// error class, so replayed control flow matches the original run.
func decisionError(d Decision) error {
	if d.Error == "" {
		return nil
	}
	if d.ErrorKind == errKindBusiness {
		return &BusinessError{Message: d.Error}
	}
	return errors.New(d.Error)
}

// execute runs one named activity through the executor, recording its
// outcome once and returning the cached outcome on replay.
func (c *Context) execute(name string, p RetryPolicy, fn ActivityFunc) (json.RawMessage, error) {
	if d, ok := c.nextRecorded(); ok {
		if d.Kind != DecisionActivity || d.Name != name {
			return nil, errors.Wrapf(ErrNonDeterministic,
				"seq %d: recorded %s %q, step logic expected activity %q", d.Seq, d.Kind, d.Name, name)
		}
		c.consume()
		return d.Output, decisionError(d)
	}

	out, err := c.runtime.executor.Execute(c.root, name, p, fn)
	if err != nil {
		if c.root.Err() != nil && !IsBusinessError(err) {
			return nil, errSuspended
		}
		kind := errKindActivity
		if IsBusinessError(err) {
			kind = errKindBusiness
		}
		if rerr := c.record(Decision{Kind: DecisionActivity, Name: name, Error: err.Error(), ErrorKind: kind}); rerr != nil {
			return nil, rerr
		}
		return nil, err
	}

	raw, err := json.Marshal(out)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to marshal result of activity %s", name)
	}
	if rerr := c.record(Decision{Kind: DecisionActivity, Name: name, Output: raw}); rerr != nil {
		return nil, rerr
	}
	return raw, nil
}

// SideEffect records a non-deterministic read (clock, id generation) so
// replay reproduces it identically.
func (c *Context) SideEffect(name string, fn func() interface{}) (json.RawMessage, error) {
	if d, ok := c.nextRecorded(); ok {
		if d.Kind != DecisionSideEffect || d.Name != name {
			return nil, errors.Wrapf(ErrNonDeterministic,
				"seq %d: recorded %s %q, step logic expected side effect %q", d.Seq, d.Kind, d.Name, name)
		}
		c.consume()
		return d.Output, nil
	}

	raw, err := json.Marshal(fn())
	if err != nil {
		return nil, errors.Wrapf(err, "failed to marshal side effect %s", name)
	}
	if rerr := c.record(Decision{Kind: DecisionSideEffect, Name: name, Output: raw}); rerr != nil {
		return nil, rerr
	}
	return raw, nil
}

// Now returns the recorded wall-clock time of this step.
func (c *Context) Now() (time.Time, error) {
	raw, err := c.SideEffect("now", func() interface{} { return time.Now() })
	if err != nil {
		return time.Time{}, err
	}
	var t time.Time
	if err := json.Unmarshal(raw, &t); err != nil {
		return time.Time{}, errors.Wrap(err, "failed to decode recorded time")
	}
	return t, nil
}

// NewID returns a recorded unique id.
func (c *Context) NewID() (string, error) {
	raw, err := c.SideEffect("new_id", func() interface{} { return uuid.New().String() })
	if err != nil {
		return "", err
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return "", errors.Wrap(err, "failed to decode recorded id")
	}
	return id, nil
}

// AwaitSignal cooperatively suspends the instance until predicate holds or
// the timeout elapses, returning false on timeout. Every delivered signal is
// passed to handle, which owns the guard logic and mutates the definition's
// per-attempt state; premature or duplicate signals are its no-ops. The wait
// deadline is itself a recorded decision, so a resumed wait keeps its
// original deadline instead of restarting the timer.
func (c *Context) AwaitSignal(timeout time.Duration, handle func(Signal), predicate func() bool) (bool, error) {
	raw, err := c.SideEffect("await_deadline", func() interface{} { return time.Now().Add(timeout) })
	if err != nil {
		return false, err
	}
	var deadline time.Time
	if err := json.Unmarshal(raw, &deadline); err != nil {
		return false, errors.Wrap(err, "failed to decode await deadline")
	}

	for {
		if d, ok := c.nextRecorded(); ok {
			switch d.Kind {
			case DecisionSignal:
				c.consume()
				handle(Signal{Type: d.Name, Payload: d.Output, ArrivedAt: d.RecordedAt})
				continue
			case DecisionAwait:
				c.consume()
				return !d.TimedOut, nil
			default:
				return false, errors.Wrapf(ErrNonDeterministic,
					"seq %d: recorded %s %q during signal wait", d.Seq, d.Kind, d.Name)
			}
		}

		if predicate() {
			if err := c.record(Decision{Kind: DecisionAwait}); err != nil {
				return false, err
			}
			return true, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			if err := c.record(Decision{Kind: DecisionAwait, TimedOut: true}); err != nil {
				return false, err
			}
			return false, nil
		}

		timer := time.NewTimer(remaining)
		select {
		case sig := <-c.signals:
			timer.Stop()
			// Persist before applying: replay re-applies the same signals
			// in the same order to rebuild per-attempt state.
			if err := c.record(Decision{Kind: DecisionSignal, Name: sig.Type, Output: sig.Payload}); err != nil {
				return false, err
			}
			handle(sig)
		case <-timer.C:
			if err := c.record(Decision{Kind: DecisionAwait, TimedOut: true}); err != nil {
				return false, err
			}
			return false, nil
		case <-c.root.Done():
			timer.Stop()
			return false, errSuspended
		}
	}
}

// ExecuteActivity runs a typed activity through the workflow context. The
// result is JSON round-tripped on the live path as well, keeping live and
// replayed values identical.
func ExecuteActivity[T any](c *Context, name string, p RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	raw, err := c.execute(name, p, func(ctx context.Context) (interface{}, error) {
		return fn(ctx)
	})
	if err != nil {
		return zero, err
	}
	if len(raw) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return zero, errors.Wrapf(err, "failed to decode result of activity %s", name)
	}
	return v, nil
}

// Run executes a typed activity that produces no result.
func Run(c *Context, name string, p RetryPolicy, fn func(ctx context.Context) error) error {
	_, err := ExecuteActivity(c, name, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
