package workflow

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

// PostgresStore implements Store using PostgreSQL.
//
// Schema:
//
//	CREATE TABLE workflow_instances (
//	    id           TEXT PRIMARY KEY,
//	    type         TEXT NOT NULL,
//	    status       TEXT NOT NULL,
//	    input        JSONB,
//	    result       JSONB,
//	    created_at   TIMESTAMPTZ NOT NULL,
//	    updated_at   TIMESTAMPTZ NOT NULL,
//	    completed_at TIMESTAMPTZ
//	);
//	CREATE TABLE workflow_decisions (
//	    instance_id TEXT NOT NULL REFERENCES workflow_instances (id),
//	    seq         INT  NOT NULL,
//	    kind        TEXT NOT NULL,
//	    name        TEXT,
//	    output      JSONB,
//	    error       TEXT,
//	    error_kind  TEXT,
//	    timed_out   BOOLEAN NOT NULL DEFAULT FALSE,
//	    recorded_at TIMESTAMPTZ NOT NULL,
//	    PRIMARY KEY (instance_id, seq)
//	);
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// postgresInstance represents a workflow instance in the database
type postgresInstance struct {
	ID          string     `db:"id"`
	Type        string     `db:"type"`
	Status      string     `db:"status"`
	Input       []byte     `db:"input"`
	Result      []byte     `db:"result"`
	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
	CompletedAt *time.Time `db:"completed_at"`
}

// postgresDecision represents a decision history entry in the database
type postgresDecision struct {
	InstanceID string    `db:"instance_id"`
	Seq        int       `db:"seq"`
	Kind       string    `db:"kind"`
	Name       *string   `db:"name"`
	Output     []byte    `db:"output"`
	Error      *string   `db:"error"`
	ErrorKind  *string   `db:"error_kind"`
	TimedOut   bool      `db:"timed_out"`
	RecordedAt time.Time `db:"recorded_at"`
}

func (s *PostgresStore) CreateInstance(ctx context.Context, inst *Instance) error {
	query := `
		INSERT INTO workflow_instances (
			id, type, status, input, result, created_at, updated_at, completed_at
		) VALUES (
			:id, :type, :status, :input, :result, :created_at, :updated_at, :completed_at
		)`

	pgInst, err := toPostgresInstance(inst)
	if err != nil {
		return err
	}

	_, err = s.db.NamedExecContext(ctx, query, pgInst)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return errors.Wrapf(ErrAlreadyExists, "id %s", inst.ID)
		}
		return errors.Wrap(err, "failed to insert workflow instance")
	}
	return nil
}

func (s *PostgresStore) GetInstance(ctx context.Context, id string) (*Instance, error) {
	query := `
		SELECT id, type, status, input, result, created_at, updated_at, completed_at
		FROM workflow_instances
		WHERE id = $1`

	var pgInst postgresInstance
	err := s.db.GetContext(ctx, &pgInst, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(ErrNotFound, "id %s", id)
		}
		return nil, errors.Wrap(err, "failed to get workflow instance")
	}
	return toInstance(&pgInst)
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, inst *Instance) error {
	query := `
		UPDATE workflow_instances
		SET status = :status, result = :result, updated_at = :updated_at, completed_at = :completed_at
		WHERE id = :id`

	pgInst, err := toPostgresInstance(inst)
	if err != nil {
		return err
	}

	res, err := s.db.NamedExecContext(ctx, query, pgInst)
	if err != nil {
		return errors.Wrap(err, "failed to update workflow instance")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check update result")
	}
	if affected == 0 {
		return errors.Wrapf(ErrNotFound, "id %s", inst.ID)
	}
	return nil
}

func (s *PostgresStore) AppendDecision(ctx context.Context, instanceID string, d Decision) error {
	query := `
		INSERT INTO workflow_decisions (
			instance_id, seq, kind, name, output, error, error_kind, timed_out, recorded_at
		) VALUES (
			:instance_id, :seq, :kind, :name, :output, :error, :error_kind, :timed_out, :recorded_at
		)`

	_, err := s.db.NamedExecContext(ctx, query, toPostgresDecision(instanceID, d))
	if err != nil {
		return errors.Wrap(err, "failed to append workflow decision")
	}
	return nil
}

func (s *PostgresStore) ListDecisions(ctx context.Context, instanceID string) ([]Decision, error) {
	query := `
		SELECT instance_id, seq, kind, name, output, error, error_kind, timed_out, recorded_at
		FROM workflow_decisions
		WHERE instance_id = $1
		ORDER BY seq ASC`

	var pgDecisions []postgresDecision
	err := s.db.SelectContext(ctx, &pgDecisions, query, instanceID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list workflow decisions")
	}

	decisions := make([]Decision, len(pgDecisions))
	for i, pgDec := range pgDecisions {
		decisions[i] = toDecision(&pgDec)
	}
	return decisions, nil
}

func (s *PostgresStore) ListRunning(ctx context.Context) ([]*Instance, error) {
	query := `
		SELECT id, type, status, input, result, created_at, updated_at, completed_at
		FROM workflow_instances
		WHERE status = $1
		ORDER BY created_at ASC`

	var pgInstances []postgresInstance
	err := s.db.SelectContext(ctx, &pgInstances, query, string(StatusRunning))
	if err != nil {
		return nil, errors.Wrap(err, "failed to list running instances")
	}

	instances := make([]*Instance, len(pgInstances))
	for i, pgInst := range pgInstances {
		inst, err := toInstance(&pgInst)
		if err != nil {
			return nil, err
		}
		instances[i] = inst
	}
	return instances, nil
}

func toPostgresInstance(inst *Instance) (*postgresInstance, error) {
	var result []byte
	if inst.Result != nil {
		var err error
		result, err = json.Marshal(inst.Result)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal workflow result")
		}
	}

	return &postgresInstance{
		ID:          inst.ID,
		Type:        string(inst.Type),
		Status:      string(inst.Status),
		Input:       inst.Input,
		Result:      result,
		CreatedAt:   inst.CreatedAt,
		UpdatedAt:   inst.UpdatedAt,
		CompletedAt: inst.CompletedAt,
	}, nil
}

func toInstance(pgInst *postgresInstance) (*Instance, error) {
	inst := &Instance{
		ID:          pgInst.ID,
		Type:        Type(pgInst.Type),
		Status:      Status(pgInst.Status),
		Input:       pgInst.Input,
		CreatedAt:   pgInst.CreatedAt,
		UpdatedAt:   pgInst.UpdatedAt,
		CompletedAt: pgInst.CompletedAt,
	}
	if len(pgInst.Result) > 0 {
		var res Result
		if err := json.Unmarshal(pgInst.Result, &res); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal workflow result")
		}
		inst.Result = &res
	}
	return inst, nil
}

func toPostgresDecision(instanceID string, d Decision) *postgresDecision {
	pgDec := &postgresDecision{
		InstanceID: instanceID,
		Seq:        d.Seq,
		Kind:       string(d.Kind),
		Output:     d.Output,
		TimedOut:   d.TimedOut,
		RecordedAt: d.RecordedAt,
	}
	if d.Name != "" {
		pgDec.Name = &d.Name
	}
	if d.Error != "" {
		pgDec.Error = &d.Error
	}
	if d.ErrorKind != "" {
		pgDec.ErrorKind = &d.ErrorKind
	}
	return pgDec
}

func toDecision(pgDec *postgresDecision) Decision {
	d := Decision{
		Seq:        pgDec.Seq,
		Kind:       DecisionKind(pgDec.Kind),
		Output:     pgDec.Output,
		TimedOut:   pgDec.TimedOut,
		RecordedAt: pgDec.RecordedAt,
	}
	if pgDec.Name != nil {
		d.Name = *pgDec.Name
	}
	if pgDec.Error != nil {
		d.Error = *pgDec.Error
	}
	if pgDec.ErrorKind != nil {
		d.ErrorKind = *pgDec.ErrorKind
	}
	return d
}
