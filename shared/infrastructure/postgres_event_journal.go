package infrastructure

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/bidmarket/checkout-system/shared/events"
	"github.com/bidmarket/checkout-system/shared/models"
)

var _ events.Journal = (*PostgresEventJournal)(nil)

// PostgresEventJournal keeps an append-only record of published events.
//
// Schema:
//
//	CREATE TABLE event_journal (
//	    id             UUID PRIMARY KEY,
//	    aggregate_id   UUID NOT NULL,
//	    event_type     VARCHAR(128) NOT NULL,
//	    version        VARCHAR(16) NOT NULL,
//	    data           JSONB NOT NULL,
//	    metadata       JSONB NOT NULL,
//	    correlation_id UUID,
//	    published_at   TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX idx_event_journal_aggregate ON event_journal (aggregate_id, published_at);
type PostgresEventJournal struct {
	db *sqlx.DB
}

// NewPostgresEventJournal creates a journal over the given database.
func NewPostgresEventJournal(db *sqlx.DB) *PostgresEventJournal {
	return &PostgresEventJournal{db: db}
}

type journalRow struct {
	ID            string    `db:"id"`
	AggregateID   string    `db:"aggregate_id"`
	EventType     string    `db:"event_type"`
	Version       string    `db:"version"`
	Data          []byte    `db:"data"`
	Metadata      []byte    `db:"metadata"`
	CorrelationID *string   `db:"correlation_id"`
	PublishedAt   time.Time `db:"published_at"`
}

// Append records the events in a single transaction.
func (j *PostgresEventJournal) Append(ctx context.Context, evts ...*events.Event) error {
	if len(evts) == 0 {
		return nil
	}

	tx, err := j.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning journal transaction")
	}
	defer tx.Rollback()

	const query = `
		INSERT INTO event_journal (
			id, aggregate_id, event_type, version, data, metadata,
			correlation_id, published_at
		) VALUES (
			:id, :aggregate_id, :event_type, :version, :data, :metadata,
			:correlation_id, :published_at
		)`

	for _, event := range evts {
		row, err := toJournalRow(event)
		if err != nil {
			return err
		}
		if _, err := tx.NamedExecContext(ctx, query, row); err != nil {
			return errors.Wrap(err, "appending event to journal")
		}
	}

	return errors.Wrap(tx.Commit(), "committing journal transaction")
}

// ByAggregate returns the recorded events of one aggregate, oldest first.
func (j *PostgresEventJournal) ByAggregate(ctx context.Context, aggregateID models.ID) ([]*events.Event, error) {
	const query = `
		SELECT id, aggregate_id, event_type, version, data, metadata,
		       correlation_id, published_at
		FROM event_journal
		WHERE aggregate_id = $1
		ORDER BY published_at ASC`

	var rows []journalRow
	if err := j.db.SelectContext(ctx, &rows, query, aggregateID.String()); err != nil {
		return nil, errors.Wrap(err, "querying journal by aggregate")
	}
	return toEvents(rows)
}

func toJournalRow(event *events.Event) (*journalRow, error) {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return nil, errors.Wrap(err, "marshalling event data")
	}
	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return nil, errors.Wrap(err, "marshalling event metadata")
	}

	row := &journalRow{
		ID:          event.ID.String(),
		AggregateID: event.AggregateID.String(),
		EventType:   event.EventType,
		Version:     event.Version,
		Data:        data,
		Metadata:    metadata,
		PublishedAt: event.Timestamp,
	}
	if !event.CorrelationID.IsZero() {
		s := event.CorrelationID.String()
		row.CorrelationID = &s
	}
	return row, nil
}

func toEvents(rows []journalRow) ([]*events.Event, error) {
	out := make([]*events.Event, len(rows))
	for i := range rows {
		event, err := toEvent(&rows[i])
		if err != nil {
			return nil, err
		}
		out[i] = event
	}
	return out, nil
}

func toEvent(row *journalRow) (*events.Event, error) {
	id, err := models.NewID(row.ID)
	if err != nil {
		return nil, errors.Wrap(err, "invalid event id")
	}
	aggregateID, err := models.NewID(row.AggregateID)
	if err != nil {
		return nil, errors.Wrap(err, "invalid aggregate id")
	}

	var data interface{}
	if err := json.Unmarshal(row.Data, &data); err != nil {
		return nil, errors.Wrap(err, "unmarshalling event data")
	}
	metadata := make(events.Metadata)
	if err := json.Unmarshal(row.Metadata, &metadata); err != nil {
		return nil, errors.Wrap(err, "unmarshalling event metadata")
	}

	var correlationID models.ID
	if row.CorrelationID != nil {
		correlationID, err = models.NewID(*row.CorrelationID)
		if err != nil {
			return nil, errors.Wrap(err, "invalid correlation id")
		}
	}

	topic, _ := events.NewTopic(row.EventType)
	return &events.Event{
		ID:            id,
		AggregateID:   aggregateID,
		Topic:         topic,
		EventType:     row.EventType,
		Version:       row.Version,
		Data:          data,
		Metadata:      metadata,
		Timestamp:     row.PublishedAt,
		CorrelationID: correlationID,
	}, nil
}

// JournalingPublisher records events in the journal before delegating to the
// wrapped publisher. A journal failure stops the publish, so every delivered
// event has a journal entry.
type JournalingPublisher struct {
	journal events.Journal
	next    events.Publisher
}

// NewJournalingPublisher wraps next with journal writes.
func NewJournalingPublisher(journal events.Journal, next events.Publisher) *JournalingPublisher {
	return &JournalingPublisher{journal: journal, next: next}
}

// Publish implements events.Publisher.
func (p *JournalingPublisher) Publish(ctx context.Context, evts ...*events.Event) error {
	if err := p.journal.Append(ctx, evts...); err != nil {
		return err
	}
	return p.next.Publish(ctx, evts...)
}
