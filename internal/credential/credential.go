// Package credential implements the Credential Manager: issuance,
// verification, rotation, revocation, and audit of per-tenant API keys.
// Adapted from the raw-token-plus-fingerprint idiom in the iam-service's
// api key handler, upgraded to keep verification cost flat: a bcrypt
// adaptive hash is the record of truth, and a pepper-keyed
// HMAC lookup index narrows verification to a single candidate tenant
// instead of enumerating every active tenant. Issue and Revoke follow
// iam-service's roles_handler.go pool/WithTx shape so the key write and
// its audit entry commit together.
package credential

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/arc-self/dialpad-broker/internal/store/db"
)

const (
	keyPrefix = "raw_"
	// bcryptCost is the adaptive-hash work factor for stored API keys.
	bcryptCost = 12
)

var (
	// ErrInactiveApp is returned by Issue when the tenant's active flag is
	// false.
	ErrInactiveApp = errors.New("credential: app is inactive")
	// ErrInvalidKey is returned when the presented key fails verification.
	ErrInvalidKey = errors.New("credential: invalid api key")
)

// Manager issues and verifies tenant API keys against the store. pool is
// held alongside querier so Issue and Revoke can open their own
// transaction for the key write and its audit entry; every other method
// reads through querier directly, pool or tx-bound alike.
type Manager struct {
	pool    *pgxpool.Pool
	querier db.Querier
	pepper  string
}

// NewManager constructs a Manager. pool is used to open the transaction
// Issue and Revoke run their writes in, and must be the same pool querier
// was built from. pepper is a server-side secret mixed into the HMAC
// lookup index; it must never be exposed and is distinct from the webhook
// signing secret and the internal admin secret.
func NewManager(pool *pgxpool.Pool, q db.Querier, pepper string) *Manager {
	return &Manager{pool: pool, querier: q, pepper: pepper}
}

// Status describes a tenant's current credential state.
type Status struct {
	HasActiveKey  bool
	Hint          string
	LastRotatedAt pgtype.Timestamptz
}

func generateRawKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate random key material: %w", err)
	}
	return keyPrefix + hex.EncodeToString(buf), nil
}

// hint redacts a raw key to its first 8 and last 4 characters.
func hint(raw string) string {
	if len(raw) < 12 {
		return "***"
	}
	return raw[:8] + "..." + raw[len(raw)-4:]
}

func (m *Manager) lookupHash(raw string) string {
	mac := hmac.New(sha256.New, []byte(m.pepper))
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}

// IssuedKey is returned to the caller exactly once; the plaintext is
// never stored or logged beyond this value.
type IssuedKey struct {
	RawKey string
	Hint   string
}

func newAuditID() (pgtype.UUID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return pgtype.UUID{}, fmt.Errorf("generate audit id: %w", err)
	}
	var out pgtype.UUID
	if err := out.Scan(id.String()); err != nil {
		return pgtype.UUID{}, err
	}
	return out, nil
}

// Issue mints a new API key for appID, replacing any existing key
// atomically with respect to verification (the old hash stops validating
// the instant the UPDATE commits) and recording an audit entry in the
// same transaction. action is "created" when the app had no prior key, or
// "rotated" otherwise — callers determine this by checking Status first.
func (m *Manager) Issue(ctx context.Context, appID pgtype.UUID, action string) (IssuedKey, error) {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return IssuedKey{}, err
	}
	defer tx.Rollback(ctx)

	qtx := m.querier.(*db.Queries).WithTx(tx)

	issued, err := m.issue(ctx, qtx, appID, action)
	if err != nil {
		return IssuedKey{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return IssuedKey{}, err
	}
	return issued, nil
}

// issue is the mock-testable core of Issue: every write runs through q,
// whatever that happens to be bound to.
func (m *Manager) issue(ctx context.Context, q db.Querier, appID pgtype.UUID, action string) (IssuedKey, error) {
	app, err := q.GetApp(ctx, appID)
	if err != nil {
		return IssuedKey{}, err
	}
	if !app.Active {
		return IssuedKey{}, ErrInactiveApp
	}

	raw, err := generateRawKey()
	if err != nil {
		return IssuedKey{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcryptCost)
	if err != nil {
		return IssuedKey{}, fmt.Errorf("hash api key: %w", err)
	}

	// The prior key's real hint, persisted on the row at its own issuance
	// time — plaintext can't be recovered here, so this is the only way
	// the audit entry carries a genuine redaction instead of a placeholder.
	var oldHint pgtype.Text
	if app.APIKeyHash.Valid {
		oldHint = app.APIKeyHint
	}
	newHint := hint(raw)

	if err := q.SetAppAPIKey(ctx, db.SetAppAPIKeyParams{
		ID:               appID,
		APIKeyHash:       string(hash),
		APIKeyLookupHash: m.lookupHash(raw),
		APIKeyHint:       newHint,
	}); err != nil {
		return IssuedKey{}, err
	}

	auditID, err := newAuditID()
	if err != nil {
		return IssuedKey{}, err
	}
	if err := q.InsertCredentialAuditEntry(ctx, db.InsertCredentialAuditEntryParams{
		ID:         auditID,
		AppID:      appID,
		Action:     action,
		OldKeyHint: oldHint,
		NewKeyHint: pgtype.Text{String: newHint, Valid: true},
	}); err != nil {
		return IssuedKey{}, err
	}

	return IssuedKey{RawKey: raw, Hint: newHint}, nil
}

// Revoke nulls the stored hash, lookup index, and hint, and records an
// audit entry in the same transaction. Subsequent Verify calls fail until
// a new key is issued.
func (m *Manager) Revoke(ctx context.Context, appID pgtype.UUID) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	qtx := m.querier.(*db.Queries).WithTx(tx)

	if err := m.revoke(ctx, qtx, appID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// revoke is the mock-testable core of Revoke.
func (m *Manager) revoke(ctx context.Context, q db.Querier, appID pgtype.UUID) error {
	app, err := q.GetApp(ctx, appID)
	if err != nil {
		return err
	}
	if !app.APIKeyHash.Valid {
		return nil // already revoked; idempotent
	}
	oldHint := app.APIKeyHint

	if err := q.RevokeAppAPIKey(ctx, appID); err != nil {
		return err
	}

	auditID, err := newAuditID()
	if err != nil {
		return err
	}
	return q.InsertCredentialAuditEntry(ctx, db.InsertCredentialAuditEntryParams{
		ID:         auditID,
		AppID:      appID,
		Action:     "revoked",
		OldKeyHint: oldHint,
	})
}

// Verify resolves raw to its owning app id. It first tries the HMAC
// lookup index for O(1) candidate selection; if that misses (e.g. a
// pepper rotation in flight) it falls back to enumerating active
// tenants and running the adaptive-hash compare against each — a
// bounded search. bcrypt's own constant-time compare
// bounds timing variance within a candidate; the fallback path does not
// short-circuit on the first match attempt order to avoid leaking which
// candidate matched via response latency.
func (m *Manager) Verify(ctx context.Context, raw string) (pgtype.UUID, error) {
	app, err := m.querier.GetAppByAPIKeyLookupHash(ctx, m.lookupHash(raw))
	if err == nil {
		return m.verifyAgainst(app, raw)
	}
	if !errors.Is(err, db.ErrNotFound) {
		return pgtype.UUID{}, err
	}

	candidates, err := m.querier.ListActiveAppsWithKeyHash(ctx)
	if err != nil {
		return pgtype.UUID{}, err
	}

	var matched pgtype.UUID
	found := false
	for _, cand := range candidates {
		id, verr := m.verifyAgainst(cand, raw)
		if verr == nil {
			matched = id
			found = true
		}
	}
	if !found {
		return pgtype.UUID{}, ErrInvalidKey
	}
	return matched, nil
}

func (m *Manager) verifyAgainst(app db.App, raw string) (pgtype.UUID, error) {
	if !app.Active || !app.APIKeyHash.Valid {
		return pgtype.UUID{}, ErrInvalidKey
	}
	if err := bcrypt.CompareHashAndPassword([]byte(app.APIKeyHash.String), []byte(raw)); err != nil {
		return pgtype.UUID{}, ErrInvalidKey
	}
	return app.ID, nil
}

// GetStatus reports whether appID currently has an active key.
func (m *Manager) GetStatus(ctx context.Context, appID pgtype.UUID) (Status, error) {
	app, err := m.querier.GetApp(ctx, appID)
	if err != nil {
		return Status{}, err
	}
	st := Status{
		HasActiveKey:  app.APIKeyHash.Valid,
		LastRotatedAt: app.LastRotatedAt,
	}
	if app.APIKeyHint.Valid {
		st.Hint = app.APIKeyHint.String
	}
	return st, nil
}

// ListAudit pages backward through the append-only credential audit log
// for appID, most recent first. beforeCreatedAt/beforeID form the
// opaque cursor of the prior page's last entry; pass a zero-value
// pgtype.Timestamptz (Valid: false) to fetch the first page.
func (m *Manager) ListAudit(ctx context.Context, appID pgtype.UUID, beforeCreatedAt pgtype.Timestamptz, beforeID pgtype.UUID, limit int32) ([]db.CredentialAuditEntry, error) {
	return m.querier.ListCredentialAuditEntries(ctx, db.ListCredentialAuditEntriesParams{
		AppID:           appID,
		BeforeCreatedAt: beforeCreatedAt,
		BeforeID:        beforeID,
		Limit:           limit,
	})
}
