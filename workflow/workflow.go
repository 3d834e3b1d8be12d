// Package workflow implements a durable, replay-safe saga orchestrator.
//
// A workflow instance is a single-threaded, deterministic execution of a
// registered Definition, keyed by a business id. Every side effect an
// instance performs (activity call, signal application, await resolution,
// clock or id read) is appended to a decision history; after a crash the
// instance is re-driven through that history and resumes at the exact
// suspended point without re-invoking collaborators.
package workflow

import (
	"encoding/json"
	"time"
)

// Type identifies a registered workflow definition.
type Type string

// Status is the lifecycle state of a workflow instance.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusTimedOut  Status = "timed_out"
)

// IsTerminal reports whether the status admits no further transitions.
func (s Status) IsTerminal() bool {
	return s != StatusRunning && s != ""
}

// Terminal sub-statuses carried by a Result.
const (
	SubStatusSuccess   = "success"
	SubStatusFailed    = "failed"
	SubStatusCancelled = "cancelled"
	SubStatusTimedOut  = "timed_out"
)

// Result is the typed outcome of a finished workflow instance. Callers only
// ever observe Running or a Result; retry and compensation detail stays
// internal.
type Result struct {
	Success   bool   `json:"success"`
	SubStatus string `json:"sub_status"`
	Message   string `json:"message,omitempty"`
}

// statusForResult maps a definition's result to the instance terminal status.
func statusForResult(res Result) Status {
	switch res.SubStatus {
	case SubStatusCancelled:
		return StatusCancelled
	case SubStatusTimedOut:
		return StatusTimedOut
	default:
		return StatusCompleted
	}
}

// Definition is a deterministic workflow state machine. Execute must be a
// pure function of (input, recorded history): all side effects go through
// the Context so they are recorded and replayed.
type Definition interface {
	Type() Type
	Execute(c *Context, input json.RawMessage) (Result, error)
}

// Signal is an asynchronously delivered external event consumed by a
// specific waiting instance. A signal is consumed at most once; it is
// buffered if it arrives before the matching wait.
type Signal struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	ArrivedAt time.Time       `json:"arrived_at"`
}

// Unmarshal decodes the signal payload into v.
func (s Signal) Unmarshal(v interface{}) error {
	return json.Unmarshal(s.Payload, v)
}

// DecisionKind discriminates recorded history entries.
type DecisionKind string

const (
	DecisionActivity   DecisionKind = "activity"
	DecisionSignal     DecisionKind = "signal"
	DecisionAwait      DecisionKind = "await"
	DecisionSideEffect DecisionKind = "side_effect"
)

// Error kinds recorded alongside failed activity decisions so replay
// reconstructs an error of the same class.
const (
	errKindBusiness = "business"
	errKindActivity = "activity"
)

// Decision is one recorded entry of an instance's append-only history,
// keyed by (instance id, seq).
type Decision struct {
	Seq        int             `json:"seq"`
	Kind       DecisionKind    `json:"kind"`
	Name       string          `json:"name,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	Error      string          `json:"error,omitempty"`
	ErrorKind  string          `json:"error_kind,omitempty"`
	TimedOut   bool            `json:"timed_out,omitempty"`
	RecordedAt time.Time       `json:"recorded_at"`
}
