package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

func (q *Queries) GetUpstreamBindingByOrgID(ctx context.Context, upstreamOrgID string) (UpstreamBinding, error) {
	const query = `
		SELECT id, app_id, upstream_org_id, access_token, refresh_token, token_expires_at, environment, created_at, updated_at
		FROM upstream_bindings WHERE upstream_org_id = $1`
	var b UpstreamBinding
	err := q.db.QueryRow(ctx, query, upstreamOrgID).Scan(
		&b.ID, &b.AppID, &b.UpstreamOrgID, &b.AccessToken, &b.RefreshToken, &b.TokenExpiresAt, &b.Environment, &b.CreatedAt, &b.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return UpstreamBinding{}, ErrNotFound
	}
	return b, err
}

func (q *Queries) GetUpstreamBindingByAppID(ctx context.Context, appID pgtype.UUID) (UpstreamBinding, error) {
	const query = `
		SELECT id, app_id, upstream_org_id, access_token, refresh_token, token_expires_at, environment, created_at, updated_at
		FROM upstream_bindings WHERE app_id = $1`
	var b UpstreamBinding
	err := q.db.QueryRow(ctx, query, appID).Scan(
		&b.ID, &b.AppID, &b.UpstreamOrgID, &b.AccessToken, &b.RefreshToken, &b.TokenExpiresAt, &b.Environment, &b.CreatedAt, &b.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return UpstreamBinding{}, ErrNotFound
	}
	return b, err
}

// ListUpstreamBindingsNearingExpiry returns every binding whose access
// token expires within window of now, for the scheduler's refresh sweep.
func (q *Queries) ListUpstreamBindingsNearingExpiry(ctx context.Context, window time.Duration) ([]UpstreamBinding, error) {
	const query = `
		SELECT id, app_id, upstream_org_id, access_token, refresh_token, token_expires_at, environment, created_at, updated_at
		FROM upstream_bindings
		WHERE token_expires_at <= now() + make_interval(secs => $1)
		ORDER BY token_expires_at ASC`
	rows, err := q.db.Query(ctx, query, window.Seconds())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UpstreamBinding
	for rows.Next() {
		var b UpstreamBinding
		if err := rows.Scan(&b.ID, &b.AppID, &b.UpstreamOrgID, &b.AccessToken, &b.RefreshToken, &b.TokenExpiresAt, &b.Environment, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

type UpdateUpstreamBindingTokensParams struct {
	AppID          pgtype.UUID
	AccessToken    string
	RefreshToken   string
	TokenExpiresAt time.Time
}

func (q *Queries) UpdateUpstreamBindingTokens(ctx context.Context, arg UpdateUpstreamBindingTokensParams) error {
	const query = `
		UPDATE upstream_bindings
		SET access_token = $2, refresh_token = $3, token_expires_at = $4, updated_at = now()
		WHERE app_id = $1`
	tag, err := q.db.Exec(ctx, query, arg.AppID, arg.AccessToken, arg.RefreshToken, arg.TokenExpiresAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
