package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

type UpsertWebhookRegistrationParams struct {
	ID                 pgtype.UUID
	AppID              pgtype.UUID
	UpstreamWebhookID  string
	DeliveryURL        string
	SigningSecret      string
	SignatureAlgorithm string
	SignaturePlacement string
}

func (q *Queries) UpsertWebhookRegistration(ctx context.Context, arg UpsertWebhookRegistrationParams) (WebhookRegistration, error) {
	const query = `
		INSERT INTO webhook_registrations
			(id, app_id, upstream_webhook_id, delivery_url, signing_secret, signature_algorithm, signature_placement, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (upstream_webhook_id) DO UPDATE SET
			delivery_url = EXCLUDED.delivery_url,
			signing_secret = EXCLUDED.signing_secret,
			signature_algorithm = EXCLUDED.signature_algorithm,
			signature_placement = EXCLUDED.signature_placement
		RETURNING id, app_id, upstream_webhook_id, delivery_url, signing_secret, signature_algorithm, signature_placement, created_at`
	var w WebhookRegistration
	err := q.db.QueryRow(ctx, query,
		arg.ID, arg.AppID, arg.UpstreamWebhookID, arg.DeliveryURL, arg.SigningSecret, arg.SignatureAlgorithm, arg.SignaturePlacement,
	).Scan(&w.ID, &w.AppID, &w.UpstreamWebhookID, &w.DeliveryURL, &w.SigningSecret, &w.SignatureAlgorithm, &w.SignaturePlacement, &w.CreatedAt)
	return w, err
}
