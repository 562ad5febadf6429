package db

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

type GetCallByUpstreamIDParams struct {
	AppID          pgtype.UUID
	UpstreamCallID string
}

func (q *Queries) GetCallByUpstreamID(ctx context.Context, arg GetCallByUpstreamIDParams) (Call, error) {
	const query = `
		SELECT id, app_id, upstream_call_id, direction, status, from_number, to_number, upstream_user_id,
		       started_at, ended_at, duration_seconds, recording_url, voicemail_url, voicemail_transcript,
		       payload, created_at, updated_at
		FROM calls WHERE app_id = $1 AND upstream_call_id = $2`
	return scanCall(q.db.QueryRow(ctx, query, arg.AppID, arg.UpstreamCallID))
}

type GetCallByIDParams struct {
	AppID pgtype.UUID
	ID    pgtype.UUID
}

// GetCallByID scopes by app_id as well as id so that a call belonging to
// another tenant returns ErrNotFound rather than leaking its existence —
// a cross-tenant lookup must be indistinguishable from a missing row.
func (q *Queries) GetCallByID(ctx context.Context, arg GetCallByIDParams) (Call, error) {
	const query = `
		SELECT id, app_id, upstream_call_id, direction, status, from_number, to_number, upstream_user_id,
		       started_at, ended_at, duration_seconds, recording_url, voicemail_url, voicemail_transcript,
		       payload, created_at, updated_at
		FROM calls WHERE app_id = $1 AND id = $2`
	return scanCall(q.db.QueryRow(ctx, query, arg.AppID, arg.ID))
}

type InsertCallParams struct {
	ID                  pgtype.UUID
	AppID               pgtype.UUID
	UpstreamCallID      string
	Direction           pgtype.Text
	Status              string
	FromNumber          pgtype.Text
	ToNumber            pgtype.Text
	UpstreamUserID      pgtype.Text
	StartedAt           pgtype.Timestamptz
	EndedAt             pgtype.Timestamptz
	DurationSeconds     pgtype.Int4
	RecordingURL        pgtype.Text
	VoicemailURL        pgtype.Text
	VoicemailTranscript pgtype.Text
	Payload             json.RawMessage
}

// InsertCall creates a new call row. Callers are responsible for having
// already confirmed no row exists for (app_id, upstream_call_id); the
// unique index still backstops a race at the database.
func (q *Queries) InsertCall(ctx context.Context, arg InsertCallParams) (Call, error) {
	const query = `
		INSERT INTO calls (id, app_id, upstream_call_id, direction, status, from_number, to_number,
		                    upstream_user_id, started_at, ended_at, duration_seconds, recording_url,
		                    voicemail_url, voicemail_transcript, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, now(), now())
		RETURNING id, app_id, upstream_call_id, direction, status, from_number, to_number, upstream_user_id,
		          started_at, ended_at, duration_seconds, recording_url, voicemail_url, voicemail_transcript,
		          payload, created_at, updated_at`
	row := q.db.QueryRow(ctx, query,
		arg.ID, arg.AppID, arg.UpstreamCallID, arg.Direction, arg.Status, arg.FromNumber, arg.ToNumber,
		arg.UpstreamUserID, arg.StartedAt, arg.EndedAt, arg.DurationSeconds, arg.RecordingURL,
		arg.VoicemailURL, arg.VoicemailTranscript, arg.Payload,
	)
	return scanCall(row)
}

// UpdateCallFields applies an in-place transition to an existing call
// row. Status is always written; every other field (direction, numbers,
// user id, timestamps, duration, voicemail media and transcript, payload)
// is only overwritten when the caller supplies a non-null value. The
// recording URL is not touched here; AttachRecordingURL sets it.
type UpdateCallFieldsParams struct {
	ID                  pgtype.UUID
	Status              string
	Direction           pgtype.Text
	FromNumber          pgtype.Text
	ToNumber            pgtype.Text
	UpstreamUserID      pgtype.Text
	StartedAt           pgtype.Timestamptz
	EndedAt             pgtype.Timestamptz
	DurationSeconds     pgtype.Int4
	VoicemailURL        pgtype.Text
	VoicemailTranscript pgtype.Text
	Payload             json.RawMessage
}

func (q *Queries) UpdateCallFields(ctx context.Context, arg UpdateCallFieldsParams) (Call, error) {
	const query = `
		UPDATE calls SET
			status               = $2,
			direction            = COALESCE($3, direction),
			from_number          = COALESCE($4, from_number),
			to_number            = COALESCE($5, to_number),
			upstream_user_id     = COALESCE($6, upstream_user_id),
			started_at           = COALESCE($7, started_at),
			ended_at             = COALESCE($8, ended_at),
			duration_seconds     = COALESCE($9, duration_seconds),
			voicemail_url        = COALESCE($10, voicemail_url),
			voicemail_transcript = COALESCE($11, voicemail_transcript),
			payload              = COALESCE($12, payload),
			updated_at           = now()
		WHERE id = $1
		RETURNING id, app_id, upstream_call_id, direction, status, from_number, to_number, upstream_user_id,
		          started_at, ended_at, duration_seconds, recording_url, voicemail_url, voicemail_transcript,
		          payload, created_at, updated_at`
	row := q.db.QueryRow(ctx, query,
		arg.ID, arg.Status, arg.Direction, arg.FromNumber, arg.ToNumber, arg.UpstreamUserID,
		arg.StartedAt, arg.EndedAt, arg.DurationSeconds, arg.VoicemailURL, arg.VoicemailTranscript, arg.Payload,
	)
	return scanCall(row)
}

type AttachRecordingURLParams struct {
	AppID          pgtype.UUID
	UpstreamCallID string
	RecordingURL   string
}

// AttachRecordingURL never inserts: a recording-completed event for a
// call that does not exist is logged and dropped, not materialized.
func (q *Queries) AttachRecordingURL(ctx context.Context, arg AttachRecordingURLParams) (Call, error) {
	const query = `
		UPDATE calls SET recording_url = $3, updated_at = now()
		WHERE app_id = $1 AND upstream_call_id = $2
		RETURNING id, app_id, upstream_call_id, direction, status, from_number, to_number, upstream_user_id,
		          started_at, ended_at, duration_seconds, recording_url, voicemail_url, voicemail_transcript,
		          payload, created_at, updated_at`
	row := q.db.QueryRow(ctx, query, arg.AppID, arg.UpstreamCallID, arg.RecordingURL)
	return scanCall(row)
}

type ListCallsByAppParams struct {
	AppID  pgtype.UUID
	Limit  int32
	Offset int32
}

func (q *Queries) ListCallsByApp(ctx context.Context, arg ListCallsByAppParams) ([]Call, error) {
	const query = `
		SELECT id, app_id, upstream_call_id, direction, status, from_number, to_number, upstream_user_id,
		       started_at, ended_at, duration_seconds, recording_url, voicemail_url, voicemail_transcript,
		       payload, created_at, updated_at
		FROM calls WHERE app_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`
	rows, err := q.db.Query(ctx, query, arg.AppID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCalls(rows)
}

func (q *Queries) ListActiveCallsByApp(ctx context.Context, appID pgtype.UUID) ([]Call, error) {
	const query = `
		SELECT id, app_id, upstream_call_id, direction, status, from_number, to_number, upstream_user_id,
		       started_at, ended_at, duration_seconds, recording_url, voicemail_url, voicemail_transcript,
		       payload, created_at, updated_at
		FROM calls
		WHERE app_id = $1 AND status NOT IN ('ended', 'missed', 'rejected', 'voicemail')
		ORDER BY created_at DESC`
	rows, err := q.db.Query(ctx, query, appID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCalls(rows)
}

func scanCall(row pgx.Row) (Call, error) {
	var c Call
	err := row.Scan(
		&c.ID, &c.AppID, &c.UpstreamCallID, &c.Direction, &c.Status, &c.FromNumber, &c.ToNumber, &c.UpstreamUserID,
		&c.StartedAt, &c.EndedAt, &c.DurationSeconds, &c.RecordingURL, &c.VoicemailURL, &c.VoicemailTranscript,
		&c.Payload, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Call{}, ErrNotFound
	}
	return c, err
}

func scanCalls(rows pgx.Rows) ([]Call, error) {
	var out []Call
	for rows.Next() {
		c, err := scanCallRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCallRow(rows pgx.Rows) (Call, error) {
	var c Call
	err := rows.Scan(
		&c.ID, &c.AppID, &c.UpstreamCallID, &c.Direction, &c.Status, &c.FromNumber, &c.ToNumber, &c.UpstreamUserID,
		&c.StartedAt, &c.EndedAt, &c.DurationSeconds, &c.RecordingURL, &c.VoicemailURL, &c.VoicemailTranscript,
		&c.Payload, &c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}
