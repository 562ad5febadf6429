// Package tenant resolves an inbound webhook delivery, or an API
// request, to exactly one tenant.
package tenant

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/arc-self/dialpad-broker/internal/credential"
	"github.com/arc-self/dialpad-broker/internal/store/db"
)

// ErrUnresolved is returned when neither resolution path identifies a
// tenant. The caller (Ingestor) still persists the event with a null
// tenant rather than treating this as a hard failure.
var ErrUnresolved = errors.New("tenant: could not resolve")

// upstreamOrgIDAliases enumerates the payload paths tried, in order, to
// find the upstream organization id. A fixed list, rather than probing
// at runtime against arbitrary keys.
var upstreamOrgIDAliases = []string{
	"organization_id",
	"org_id",
	"company_id",
	"account_id",
}

// Resolver maps a webhook delivery to a tenant id.
type Resolver struct {
	q    db.Querier
	cred *credential.Manager
}

// NewResolver constructs a Resolver.
func NewResolver(q db.Querier, cred *credential.Manager) *Resolver {
	return &Resolver{q: q, cred: cred}
}

// ByOrgID resolves a tenant from the upstream organization id carried in
// a decoded payload. payload is a generic map, as the event shape is
// provider-defined and opaque to this layer.
func (r *Resolver) ByOrgID(ctx context.Context, payload map[string]interface{}) (pgtype.UUID, error) {
	orgID, ok := firstStringAlias(payload, upstreamOrgIDAliases)
	if !ok {
		return pgtype.UUID{}, ErrUnresolved
	}
	binding, err := r.q.GetUpstreamBindingByOrgID(ctx, orgID)
	if errors.Is(err, db.ErrNotFound) {
		return pgtype.UUID{}, ErrUnresolved
	}
	if err != nil {
		return pgtype.UUID{}, err
	}
	return binding.AppID, nil
}

// ByAPIKey resolves a tenant from a presented API key header value.
func (r *Resolver) ByAPIKey(ctx context.Context, rawKey string) (pgtype.UUID, error) {
	if rawKey == "" {
		return pgtype.UUID{}, ErrUnresolved
	}
	appID, err := r.cred.Verify(ctx, rawKey)
	if errors.Is(err, credential.ErrInvalidKey) {
		return pgtype.UUID{}, ErrUnresolved
	}
	if err != nil {
		return pgtype.UUID{}, err
	}
	return appID, nil
}

// Resolve applies the full fallback ladder: organization id in the
// payload, then the API key header. Returns ErrUnresolved if neither
// path identifies a tenant.
func (r *Resolver) Resolve(ctx context.Context, payload map[string]interface{}, apiKeyHeader string) (pgtype.UUID, error) {
	if appID, err := r.ByOrgID(ctx, payload); err == nil {
		return appID, nil
	} else if !errors.Is(err, ErrUnresolved) {
		return pgtype.UUID{}, err
	}

	if appID, err := r.ByAPIKey(ctx, apiKeyHeader); err == nil {
		return appID, nil
	} else if !errors.Is(err, ErrUnresolved) {
		return pgtype.UUID{}, err
	}

	return pgtype.UUID{}, ErrUnresolved
}

func firstStringAlias(payload map[string]interface{}, keys []string) (string, bool) {
	for _, k := range keys {
		v, ok := payload[k]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case string:
			if t != "" {
				return t, true
			}
		case float64:
			return formatFloatID(t), true
		}
	}
	return "", false
}

func formatFloatID(f float64) string {
	// organization_id frequently arrives as a JSON number; normalize to
	// the same string form used when the upstream binding was stored.
	i := int64(f)
	if float64(i) == f {
		return strconv.FormatInt(i, 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
