package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// ErrNotFound is returned when a lookup by id finds no row. Callers map it
// to a 404 at the API boundary.
var ErrNotFound = errors.New("db: not found")

type CreateAppParams struct {
	ID   pgtype.UUID
	Name string
}

const appColumns = "id, name, active, api_key_hash, api_key_lookup_hash, api_key_hint, last_rotated_at, created_at"

func (q *Queries) CreateApp(ctx context.Context, arg CreateAppParams) (App, error) {
	query := `
		INSERT INTO apps (id, name, active, created_at)
		VALUES ($1, $2, true, now())
		RETURNING ` + appColumns
	var a App
	err := q.db.QueryRow(ctx, query, arg.ID, arg.Name).Scan(
		&a.ID, &a.Name, &a.Active, &a.APIKeyHash, &a.APIKeyLookupHash, &a.APIKeyHint, &a.LastRotatedAt, &a.CreatedAt,
	)
	return a, err
}

func (q *Queries) GetApp(ctx context.Context, id pgtype.UUID) (App, error) {
	query := `SELECT ` + appColumns + ` FROM apps WHERE id = $1`
	var a App
	err := q.db.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.Name, &a.Active, &a.APIKeyHash, &a.APIKeyLookupHash, &a.APIKeyHint, &a.LastRotatedAt, &a.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return App{}, ErrNotFound
	}
	return a, err
}

// GetAppByAPIKeyLookupHash is the O(1) candidate-narrowing path: the
// HMAC lookup index (keyed by a server-side pepper) picks the single
// candidate tenant before the adaptive-hash compare runs.
func (q *Queries) GetAppByAPIKeyLookupHash(ctx context.Context, lookupHash string) (App, error) {
	query := `SELECT ` + appColumns + ` FROM apps WHERE api_key_lookup_hash = $1`
	var a App
	err := q.db.QueryRow(ctx, query, lookupHash).Scan(
		&a.ID, &a.Name, &a.Active, &a.APIKeyHash, &a.APIKeyLookupHash, &a.APIKeyHint, &a.LastRotatedAt, &a.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return App{}, ErrNotFound
	}
	return a, err
}

// ListActiveAppsWithKeyHash supports the fallback verification path: when
// the HMAC lookup index misses (e.g. pepper rotation in flight) the
// Credential Manager enumerates active candidates and runs the adaptive
// hash compare against each.
func (q *Queries) ListActiveAppsWithKeyHash(ctx context.Context) ([]App, error) {
	query := `SELECT ` + appColumns + ` FROM apps WHERE active = true AND api_key_hash IS NOT NULL`
	rows, err := q.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []App
	for rows.Next() {
		var a App
		if err := rows.Scan(&a.ID, &a.Name, &a.Active, &a.APIKeyHash, &a.APIKeyLookupHash, &a.APIKeyHint, &a.LastRotatedAt, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type SetAppAPIKeyParams struct {
	ID               pgtype.UUID
	APIKeyHash       string
	APIKeyLookupHash string
	// APIKeyHint is this key's first-8/last-4 redaction, stored on the row
	// so the next rotation or revocation can audit the real prior hint.
	APIKeyHint string
}

func (q *Queries) SetAppAPIKey(ctx context.Context, arg SetAppAPIKeyParams) error {
	const query = `
		UPDATE apps SET api_key_hash = $2, api_key_lookup_hash = $3, api_key_hint = $4, last_rotated_at = now()
		WHERE id = $1`
	tag, err := q.db.Exec(ctx, query, arg.ID, arg.APIKeyHash, arg.APIKeyLookupHash, arg.APIKeyHint)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (q *Queries) RevokeAppAPIKey(ctx context.Context, id pgtype.UUID) error {
	const query = `UPDATE apps SET api_key_hash = NULL, api_key_lookup_hash = NULL, api_key_hint = NULL WHERE id = $1`
	tag, err := q.db.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type InsertCredentialAuditEntryParams struct {
	ID         pgtype.UUID
	AppID      pgtype.UUID
	Action     string
	OldKeyHint pgtype.Text
	NewKeyHint pgtype.Text
}

func (q *Queries) InsertCredentialAuditEntry(ctx context.Context, arg InsertCredentialAuditEntryParams) error {
	const query = `
		INSERT INTO credential_audit_entries (id, app_id, action, old_key_hint, new_key_hint, created_at)
		VALUES ($1, $2, $3, $4, $5, now())`
	_, err := q.db.Exec(ctx, query, arg.ID, arg.AppID, arg.Action, arg.OldKeyHint, arg.NewKeyHint)
	return err
}

// ListCredentialAuditEntriesParams pages backward (most recent first)
// through a tenant's audit trail with a keyset cursor on (created_at,
// id) rather than an offset, so a page boundary stays stable even as
// new entries are inserted ahead of it. BeforeCreatedAt left invalid
// requests the first page.
type ListCredentialAuditEntriesParams struct {
	AppID           pgtype.UUID
	BeforeCreatedAt pgtype.Timestamptz
	BeforeID        pgtype.UUID
	Limit           int32
}

func (q *Queries) ListCredentialAuditEntries(ctx context.Context, arg ListCredentialAuditEntriesParams) ([]CredentialAuditEntry, error) {
	const query = `
		SELECT id, app_id, action, old_key_hint, new_key_hint, created_at
		FROM credential_audit_entries
		WHERE app_id = $1
		  AND ($2::timestamptz IS NULL OR (created_at, id) < ($2, $3))
		ORDER BY created_at DESC, id DESC
		LIMIT $4`
	rows, err := q.db.Query(ctx, query, arg.AppID, arg.BeforeCreatedAt, arg.BeforeID, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CredentialAuditEntry
	for rows.Next() {
		var e CredentialAuditEntry
		if err := rows.Scan(&e.ID, &e.AppID, &e.Action, &e.OldKeyHint, &e.NewKeyHint, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
