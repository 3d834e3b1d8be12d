package workflow

import (
	"log/slog"
)

// Saga is a stack of compensating actions registered while forward steps
// execute. On failure the actions run in strict reverse-of-registration
// order. Compensation bodies must themselves be idempotent and should run
// through the workflow Context so a crash mid-compensation resumes by
// replaying from the last recorded decision.
type Saga struct {
	log             *slog.Logger
	continueOnError bool
	steps           []sagaStep
}

type sagaStep struct {
	description string
	compensate  func() error
}

// SagaOption configures a Saga.
type SagaOption func(*Saga)

// WithAbortOnError makes Compensate stop at the first failing compensation
// instead of the default continue-on-error policy.
func WithAbortOnError() SagaOption {
	return func(s *Saga) { s.continueOnError = false }
}

// NewSaga creates an empty compensation stack.
func NewSaga(log *slog.Logger, opts ...SagaOption) *Saga {
	if log == nil {
		log = slog.Default()
	}
	s := &Saga{log: log, continueOnError: true}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add pushes a compensating action. The closure must capture the ids it
// needs at registration time.
func (s *Saga) Add(description string, fn func() error) {
	s.steps = append(s.steps, sagaStep{description: description, compensate: fn})
}

// Len returns the number of registered compensations.
func (s *Saga) Len() int {
	return len(s.steps)
}

// Compensate pops and invokes the registered actions in reverse order.
// Under continue-on-error a failing compensation is logged and the rest
// still run; the failures are reported as one CompensationError. Otherwise
// the first failure aborts the unwind.
func (s *Saga) Compensate() error {
	var failures []error

	for i := len(s.steps) - 1; i >= 0; i-- {
		step := s.steps[i]
		s.log.Info("running compensation", "step", step.description)

		if err := step.compensate(); err != nil {
			if IsSuspended(err) {
				return err
			}
			s.log.Error("compensation failed", "step", step.description, "error", err)
			if !s.continueOnError {
				return &CompensationError{Failures: []error{err}}
			}
			failures = append(failures, err)
		}
	}

	s.steps = s.steps[:0]
	if len(failures) > 0 {
		return &CompensationError{Failures: failures}
	}
	return nil
}
