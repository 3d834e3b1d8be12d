package workflow

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/bidmarket/checkout-system/shared/telemetry"
)

const defaultSignalBuffer = 64

// Runtime hosts workflow executions: it starts instances, routes signals to
// them, recovers Running instances after a restart, and answers status
// queries. Many instances execute concurrently, fully isolated from one
// another except through the Store.
type Runtime struct {
	store    Store
	executor *Executor
	log      *slog.Logger

	defs map[Type]Definition

	mu     sync.RWMutex
	active map[string]*execution

	wg      sync.WaitGroup
	rootCtx context.Context
	cancel  context.CancelFunc
}

// execution is the live side of one Running instance: its goroutine and
// FIFO signal buffer.
type execution struct {
	instance *Instance
	signals  chan Signal
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger sets the runtime logger.
func WithLogger(log *slog.Logger) Option {
	return func(r *Runtime) { r.log = log }
}

// NewRuntime creates a Runtime over the given store.
func NewRuntime(store Store, opts ...Option) *Runtime {
	rootCtx, cancel := context.WithCancel(context.Background())
	r := &Runtime{
		store:   store,
		log:     slog.Default(),
		defs:    make(map[Type]Definition),
		active:  make(map[string]*execution),
		rootCtx: rootCtx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.executor = NewExecutor(r.log)
	return r
}

// Register adds a workflow definition. Not safe to call after Start.
func (r *Runtime) Register(def Definition) {
	r.defs[def.Type()] = def
}

// Start creates a Running instance for the id and begins step execution.
// A duplicate start returns ErrAlreadyExists.
func (r *Runtime) Start(ctx context.Context, id string, t Type, input interface{}) error {
	if _, ok := r.defs[t]; !ok {
		return errors.Errorf("no workflow definition registered for type %q", t)
	}

	raw, err := json.Marshal(input)
	if err != nil {
		return errors.Wrap(err, "failed to marshal workflow input")
	}

	inst := NewInstance(id, t, raw)
	if err := r.store.CreateInstance(ctx, inst); err != nil {
		return err
	}

	r.log.Info("workflow started", "workflow_id", id, "workflow_type", t)
	telemetry.RecordCounter(ctx, "workflow_started_total", "Workflow instances started", 1,
		attribute.String("workflow_type", string(t)))

	r.launch(inst)
	return nil
}

// Resume reloads all Running instances from the store and re-drives them
// through their recorded histories. Called once at startup.
func (r *Runtime) Resume(ctx context.Context) error {
	instances, err := r.store.ListRunning(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to list running instances")
	}

	for _, inst := range instances {
		if _, ok := r.defs[inst.Type]; !ok {
			r.log.Warn("no definition registered for stored instance",
				"workflow_id", inst.ID, "workflow_type", inst.Type)
			continue
		}
		r.log.Info("resuming workflow", "workflow_id", inst.ID, "workflow_type", inst.Type)
		r.launch(inst)
	}
	return nil
}

// Signal delivers an external event to the running instance with the given
// id. If the instance does not exist or is not running the signal is dropped
// with a warning, never queued indefinitely.
func (r *Runtime) Signal(_ context.Context, id, signalType string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "failed to marshal signal payload")
	}

	r.mu.RLock()
	ex, ok := r.active[id]
	r.mu.RUnlock()
	if !ok {
		r.log.Warn("signal dropped: no running instance",
			"workflow_id", id, "signal", signalType)
		return errors.Wrapf(ErrInstanceNotRunning, "id %s", id)
	}

	select {
	case ex.signals <- Signal{Type: signalType, Payload: raw, ArrivedAt: time.Now()}:
		return nil
	default:
		return errors.Errorf("signal buffer full for instance %s", id)
	}
}

// GetStatus returns the stored instance: Running, or terminal with its
// typed Result.
func (r *Runtime) GetStatus(ctx context.Context, id string) (*Instance, error) {
	return r.store.GetInstance(ctx, id)
}

// Shutdown stops accepting work and waits for in-flight executions to
// suspend. Suspended instances stay Running in the store and are picked up
// by the next Resume.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "timed out waiting for workflow executions")
	}
}

func (r *Runtime) launch(inst *Instance) {
	r.mu.Lock()
	if _, ok := r.active[inst.ID]; ok {
		r.mu.Unlock()
		return
	}
	ex := &execution{
		instance: inst,
		signals:  make(chan Signal, defaultSignalBuffer),
	}
	r.active[inst.ID] = ex
	r.mu.Unlock()

	r.wg.Add(1)
	go r.run(ex)
}

func (r *Runtime) run(ex *execution) {
	defer r.wg.Done()
	inst := ex.instance
	defer func() {
		r.mu.Lock()
		delete(r.active, inst.ID)
		r.mu.Unlock()
	}()

	def := r.defs[inst.Type]

	history, err := r.store.ListDecisions(r.rootCtx, inst.ID)
	if err != nil {
		r.log.Error("failed to load decision history", "workflow_id", inst.ID, "error", err)
		return
	}

	c := newContext(r.rootCtx, r, inst, history, ex.signals)
	res, err := r.safeExecute(def, c, inst.Input)

	if err != nil {
		if IsSuspended(err) || r.rootCtx.Err() != nil {
			r.log.Info("workflow suspended", "workflow_id", inst.ID)
			return
		}
		// Unhandled failure: the instance halts as Failed.
		r.log.Error("workflow failed", "workflow_id", inst.ID, "error", err)
		res = Result{Success: false, SubStatus: SubStatusFailed, Message: err.Error()}
	}

	terminal := StatusFailed
	if err == nil {
		terminal = statusForResult(res)
	}

	// Never abort the terminal write on runtime shutdown; the outcome is
	// already decided.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if terr := inst.Transition(ctx, terminal, res); terr != nil {
		r.log.Error("terminal transition rejected", "workflow_id", inst.ID, "error", terr)
		return
	}
	if uerr := r.store.UpdateStatus(ctx, inst); uerr != nil {
		r.log.Error("failed to persist terminal status", "workflow_id", inst.ID, "error", uerr)
		return
	}

	r.log.Info("workflow finished",
		"workflow_id", inst.ID, "status", terminal, "sub_status", res.SubStatus)
	telemetry.RecordCounter(ctx, "workflow_finished_total", "Workflow instances finished", 1,
		attribute.String("workflow_type", string(inst.Type)),
		attribute.String("status", string(terminal)))
	telemetry.RecordDuration(ctx, "workflow_duration_seconds", "Workflow wall-clock duration", inst.CreatedAt,
		attribute.String("workflow_type", string(inst.Type)),
		attribute.String("status", string(terminal)))
}

func (r *Runtime) safeExecute(def Definition, c *Context, input json.RawMessage) (res Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Errorf("workflow panic: %v", p)
		}
	}()
	return def.Execute(c, input)
}
