package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

type GetVoicemailByCallIDParams struct {
	AppID          pgtype.UUID
	UpstreamCallID string
}

func (q *Queries) GetVoicemailByCallID(ctx context.Context, arg GetVoicemailByCallIDParams) (Voicemail, error) {
	const query = `
		SELECT id, app_id, upstream_call_id, upstream_user_id, from_number, to_number, recording_url, transcript, duration_seconds, created_at
		FROM voicemails WHERE app_id = $1 AND upstream_call_id = $2`
	return scanVoicemail(q.db.QueryRow(ctx, query, arg.AppID, arg.UpstreamCallID))
}

type FindRecentOrphanVoicemailParams struct {
	AppID          pgtype.UUID
	UpstreamUserID pgtype.Text
	FromNumber     pgtype.Text
}

// FindRecentOrphanVoicemail backs the orphan-duplicate guard: a second
// orphan delivery for the same (tenant, recipient, origin number)
// within 60 seconds is treated as a duplicate of the first.
func (q *Queries) FindRecentOrphanVoicemail(ctx context.Context, arg FindRecentOrphanVoicemailParams) (Voicemail, error) {
	const query = `
		SELECT id, app_id, upstream_call_id, upstream_user_id, from_number, to_number, recording_url, transcript, duration_seconds, created_at
		FROM voicemails
		WHERE app_id = $1 AND upstream_call_id IS NULL
		  AND upstream_user_id IS NOT DISTINCT FROM $2
		  AND from_number IS NOT DISTINCT FROM $3
		  AND created_at > now() - interval '60 seconds'
		ORDER BY created_at DESC
		LIMIT 1`
	return scanVoicemail(q.db.QueryRow(ctx, query, arg.AppID, arg.UpstreamUserID, arg.FromNumber))
}

type InsertVoicemailParams struct {
	ID              pgtype.UUID
	AppID           pgtype.UUID
	UpstreamCallID  pgtype.Text
	UpstreamUserID  pgtype.Text
	FromNumber      pgtype.Text
	ToNumber        pgtype.Text
	RecordingURL    pgtype.Text
	Transcript      pgtype.Text
	DurationSeconds pgtype.Int4
}

func (q *Queries) InsertVoicemail(ctx context.Context, arg InsertVoicemailParams) (Voicemail, error) {
	const query = `
		INSERT INTO voicemails (id, app_id, upstream_call_id, upstream_user_id, from_number, to_number,
		                         recording_url, transcript, duration_seconds, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		RETURNING id, app_id, upstream_call_id, upstream_user_id, from_number, to_number, recording_url, transcript, duration_seconds, created_at`
	row := q.db.QueryRow(ctx, query,
		arg.ID, arg.AppID, arg.UpstreamCallID, arg.UpstreamUserID, arg.FromNumber, arg.ToNumber,
		arg.RecordingURL, arg.Transcript, arg.DurationSeconds,
	)
	return scanVoicemail(row)
}

type UpdateVoicemailParams struct {
	ID              pgtype.UUID
	RecordingURL    pgtype.Text
	Transcript      pgtype.Text
	DurationSeconds pgtype.Int4
}

func (q *Queries) UpdateVoicemail(ctx context.Context, arg UpdateVoicemailParams) (Voicemail, error) {
	const query = `
		UPDATE voicemails SET recording_url = $2, transcript = $3, duration_seconds = $4
		WHERE id = $1
		RETURNING id, app_id, upstream_call_id, upstream_user_id, from_number, to_number, recording_url, transcript, duration_seconds, created_at`
	row := q.db.QueryRow(ctx, query, arg.ID, arg.RecordingURL, arg.Transcript, arg.DurationSeconds)
	return scanVoicemail(row)
}

// PruneOrphanVoicemails deletes orphan voicemail rows (no call cross-link)
// older than retention, well past the 60-second duplicate-guard window, and
// reports how many rows were removed. This backs the scheduler's GC tick —
// the duplicate guard only needs a short lookback, so older orphans are pure
// housekeeping.
func (q *Queries) PruneOrphanVoicemails(ctx context.Context, retention time.Duration) (int64, error) {
	const query = `
		DELETE FROM voicemails
		WHERE upstream_call_id IS NULL
		  AND created_at < now() - make_interval(secs => $1)`
	tag, err := q.db.Exec(ctx, query, retention.Seconds())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanVoicemail(row pgx.Row) (Voicemail, error) {
	var v Voicemail
	err := row.Scan(&v.ID, &v.AppID, &v.UpstreamCallID, &v.UpstreamUserID, &v.FromNumber, &v.ToNumber, &v.RecordingURL, &v.Transcript, &v.DurationSeconds, &v.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Voicemail{}, ErrNotFound
	}
	return v, err
}
