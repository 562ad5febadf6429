package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

type UpsertUserMappingParams struct {
	ID             pgtype.UUID
	AppID          pgtype.UUID
	UpstreamUserID string
	CRMUserID      string
}

func (q *Queries) UpsertUserMapping(ctx context.Context, arg UpsertUserMappingParams) (UserMapping, error) {
	const query = `
		INSERT INTO user_mappings (id, app_id, upstream_user_id, crm_user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT (app_id, upstream_user_id) DO UPDATE SET
			crm_user_id = EXCLUDED.crm_user_id,
			updated_at  = now()
		RETURNING id, app_id, upstream_user_id, crm_user_id, created_at, updated_at`
	var m UserMapping
	err := q.db.QueryRow(ctx, query, arg.ID, arg.AppID, arg.UpstreamUserID, arg.CRMUserID).Scan(
		&m.ID, &m.AppID, &m.UpstreamUserID, &m.CRMUserID, &m.CreatedAt, &m.UpdatedAt,
	)
	return m, err
}

type GetUserMappingByUpstreamIDParams struct {
	AppID          pgtype.UUID
	UpstreamUserID string
}

func (q *Queries) GetUserMappingByUpstreamID(ctx context.Context, arg GetUserMappingByUpstreamIDParams) (UserMapping, error) {
	const query = `
		SELECT id, app_id, upstream_user_id, crm_user_id, created_at, updated_at
		FROM user_mappings WHERE app_id = $1 AND upstream_user_id = $2`
	var m UserMapping
	err := q.db.QueryRow(ctx, query, arg.AppID, arg.UpstreamUserID).Scan(
		&m.ID, &m.AppID, &m.UpstreamUserID, &m.CRMUserID, &m.CreatedAt, &m.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserMapping{}, ErrNotFound
	}
	return m, err
}
