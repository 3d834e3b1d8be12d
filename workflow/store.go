package workflow

import (
	"context"
)

// Store persists workflow instances and their append-only decision
// histories. Each instance is mutated by a single writer (its own
// execution), so per-instance access only needs to be serializable, not
// locked across instances.
type Store interface {
	// CreateInstance persists a new Running instance. It returns
	// ErrAlreadyExists when any instance already holds the id, which
	// guarantees at most one active instance per business key.
	CreateInstance(ctx context.Context, inst *Instance) error

	// GetInstance returns the instance or ErrNotFound.
	GetInstance(ctx context.Context, id string) (*Instance, error)

	// UpdateStatus records a status transition together with the typed
	// result for terminal states.
	UpdateStatus(ctx context.Context, inst *Instance) error

	// AppendDecision appends one history entry. Seq values are assigned by
	// the execution core and must be strictly increasing per instance.
	AppendDecision(ctx context.Context, instanceID string, d Decision) error

	// ListDecisions returns the full history in seq order.
	ListDecisions(ctx context.Context, instanceID string) ([]Decision, error)

	// ListRunning returns all non-terminal instances, used for crash
	// recovery at startup.
	ListRunning(ctx context.Context) ([]*Instance, error)
}
