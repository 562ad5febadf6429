package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

type UpsertMessageParams struct {
	ID                pgtype.UUID
	AppID             pgtype.UUID
	UpstreamMessageID string
	Direction         pgtype.Text
	FromNumber        pgtype.Text
	ToNumber          pgtype.Text
	Body              pgtype.Text
	UpstreamUserID    pgtype.Text
	SentAt            pgtype.Timestamptz
}

// UpsertMessage is a plain idempotent upsert keyed by (app_id,
// upstream_message_id); redelivery just republishes the same fields.
func (q *Queries) UpsertMessage(ctx context.Context, arg UpsertMessageParams) (Message, error) {
	const query = `
		INSERT INTO messages (id, app_id, upstream_message_id, direction, from_number, to_number, body,
		                       upstream_user_id, sent_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (app_id, upstream_message_id) DO UPDATE SET
			direction        = COALESCE(EXCLUDED.direction, messages.direction),
			from_number      = COALESCE(EXCLUDED.from_number, messages.from_number),
			to_number        = COALESCE(EXCLUDED.to_number, messages.to_number),
			body             = COALESCE(EXCLUDED.body, messages.body),
			upstream_user_id = COALESCE(EXCLUDED.upstream_user_id, messages.upstream_user_id),
			sent_at          = COALESCE(EXCLUDED.sent_at, messages.sent_at)
		RETURNING id, app_id, upstream_message_id, direction, from_number, to_number, body, upstream_user_id, sent_at, created_at`
	var m Message
	err := q.db.QueryRow(ctx, query,
		arg.ID, arg.AppID, arg.UpstreamMessageID, arg.Direction, arg.FromNumber, arg.ToNumber, arg.Body,
		arg.UpstreamUserID, arg.SentAt,
	).Scan(&m.ID, &m.AppID, &m.UpstreamMessageID, &m.Direction, &m.FromNumber, &m.ToNumber, &m.Body, &m.UpstreamUserID, &m.SentAt, &m.CreatedAt)
	return m, err
}

type ListMessagesByAppParams struct {
	AppID  pgtype.UUID
	Limit  int32
	Offset int32
}

func (q *Queries) ListMessagesByApp(ctx context.Context, arg ListMessagesByAppParams) ([]Message, error) {
	const query = `
		SELECT id, app_id, upstream_message_id, direction, from_number, to_number, body, upstream_user_id, sent_at, created_at
		FROM messages WHERE app_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`
	rows, err := q.db.Query(ctx, query, arg.AppID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.AppID, &m.UpstreamMessageID, &m.Direction, &m.FromNumber, &m.ToNumber, &m.Body, &m.UpstreamUserID, &m.SentAt, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
