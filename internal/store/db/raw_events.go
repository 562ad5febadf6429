package db

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

type InsertRawEventParams struct {
	ID              pgtype.UUID
	AppID           pgtype.UUID // zero value when the tenant could not be resolved
	EventType       string
	UpstreamEventID pgtype.Text
	Payload         json.RawMessage
}

// InsertRawEvent performs the idempotent queue insert: a duplicate
// upstream event id is a silent no-op that returns the
// existing row rather than an error, so two concurrent deliveries of the
// same event both see success.
func (q *Queries) InsertRawEvent(ctx context.Context, arg InsertRawEventParams) (bool, RawEvent, error) {
	if arg.UpstreamEventID.Valid {
		const query = `
			INSERT INTO raw_events (id, app_id, event_type, upstream_event_id, payload, received_at)
			VALUES ($1, $2, $3, $4, $5, now())
			ON CONFLICT (upstream_event_id) WHERE upstream_event_id IS NOT NULL DO NOTHING
			RETURNING id, app_id, event_type, upstream_event_id, payload, received_at, processed_at`
		var r RawEvent
		err := q.db.QueryRow(ctx, query, arg.ID, nullableUUID(arg.AppID), arg.EventType, arg.UpstreamEventID, arg.Payload).Scan(
			&r.ID, &r.AppID, &r.EventType, &r.UpstreamEventID, &r.Payload, &r.ReceivedAt, &r.ProcessedAt,
		)
		if errors.Is(err, pgx.ErrNoRows) {
			existing, getErr := q.getRawEventByUpstreamEventID(ctx, arg.UpstreamEventID)
			return false, existing, getErr
		}
		return true, r, err
	}

	const insertOnly = `
		INSERT INTO raw_events (id, app_id, event_type, upstream_event_id, payload, received_at)
		VALUES ($1, $2, $3, NULL, $4, now())
		RETURNING id, app_id, event_type, upstream_event_id, payload, received_at, processed_at`
	var r RawEvent
	err := q.db.QueryRow(ctx, insertOnly, arg.ID, nullableUUID(arg.AppID), arg.EventType, arg.Payload).Scan(
		&r.ID, &r.AppID, &r.EventType, &r.UpstreamEventID, &r.Payload, &r.ReceivedAt, &r.ProcessedAt,
	)
	return true, r, err
}

func (q *Queries) getRawEventByUpstreamEventID(ctx context.Context, upstreamEventID pgtype.Text) (RawEvent, error) {
	const query = `
		SELECT id, app_id, event_type, upstream_event_id, payload, received_at, processed_at
		FROM raw_events WHERE upstream_event_id = $1`
	var r RawEvent
	err := q.db.QueryRow(ctx, query, upstreamEventID).Scan(
		&r.ID, &r.AppID, &r.EventType, &r.UpstreamEventID, &r.Payload, &r.ReceivedAt, &r.ProcessedAt,
	)
	return r, err
}

// LeasePendingRawEvents selects up to limit unprocessed events ordered by
// receipt, skipping rows already locked by a concurrent dispatcher. This
// is the non-negotiable exclusivity mechanism: it must run inside a
// transaction the caller commits or rolls back after processing.
func (q *Queries) LeasePendingRawEvents(ctx context.Context, limit int32) ([]RawEvent, error) {
	const query = `
		SELECT id, app_id, event_type, upstream_event_id, payload, received_at, processed_at
		FROM raw_events
		WHERE processed_at IS NULL
		ORDER BY received_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED`
	rows, err := q.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RawEvent
	for rows.Next() {
		var r RawEvent
		if err := rows.Scan(&r.ID, &r.AppID, &r.EventType, &r.UpstreamEventID, &r.Payload, &r.ReceivedAt, &r.ProcessedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (q *Queries) MarkRawEventProcessed(ctx context.Context, id pgtype.UUID) error {
	const query = `UPDATE raw_events SET processed_at = now() WHERE id = $1 AND processed_at IS NULL`
	_, err := q.db.Exec(ctx, query, id)
	return err
}

// QueueStats summarizes the pending raw event backlog for /metrics and
// /health: how many rows are waiting, and how long the oldest of them has
// been waiting.
type QueueStats struct {
	PendingCount    int64
	OldestPendingAt pgtype.Timestamptz
}

func (q *Queries) GetQueueStats(ctx context.Context) (QueueStats, error) {
	const query = `SELECT count(*), min(received_at) FROM raw_events WHERE processed_at IS NULL`
	var s QueueStats
	err := q.db.QueryRow(ctx, query).Scan(&s.PendingCount, &s.OldestPendingAt)
	return s, err
}

// nullableUUID passes a SQL NULL when the tenant could not be resolved
// at ingest time, rather than a zero-filled UUID that would collide with
// a real row.
func nullableUUID(id pgtype.UUID) interface{} {
	if !id.Valid {
		return nil
	}
	return id
}
