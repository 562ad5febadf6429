package db

import (
	"encoding/json"

	"github.com/jackc/pgx/v5/pgtype"
)

// App is the tenant row.
type App struct {
	ID               pgtype.UUID
	Name             string
	Active           bool
	APIKeyHash       pgtype.Text
	APIKeyLookupHash pgtype.Text
	// APIKeyHint is the first-8/last-4 redaction of the currently active
	// key, stored so the next rotation or revocation can write a real
	// old_key_hint into the audit log instead of a placeholder — the raw
	// key itself is never persisted or recoverable.
	APIKeyHint       pgtype.Text
	LastRotatedAt    pgtype.Timestamptz
	CreatedAt        pgtype.Timestamptz
}

// UpstreamBinding is the one-per-tenant upstream provider linkage row.
type UpstreamBinding struct {
	ID             pgtype.UUID
	AppID          pgtype.UUID
	UpstreamOrgID  string
	AccessToken    string
	RefreshToken   string
	TokenExpiresAt pgtype.Timestamptz
	Environment    string
	CreatedAt      pgtype.Timestamptz
	UpdatedAt      pgtype.Timestamptz
}

// WebhookRegistration records a webhook configured with the upstream
// provider on behalf of a tenant.
type WebhookRegistration struct {
	ID                 pgtype.UUID
	AppID              pgtype.UUID
	UpstreamWebhookID  string
	DeliveryURL        string
	SigningSecret      string
	SignatureAlgorithm string
	SignaturePlacement string
	CreatedAt          pgtype.Timestamptz
}

// RawEvent is a durable queue entry holding a verbatim upstream delivery.
type RawEvent struct {
	ID              pgtype.UUID
	AppID           pgtype.UUID
	EventType       string
	UpstreamEventID pgtype.Text
	Payload         json.RawMessage
	ReceivedAt      pgtype.Timestamptz
	ProcessedAt     pgtype.Timestamptz
}

// Call is the per-call state machine row.
type Call struct {
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
	CreatedAt           pgtype.Timestamptz
	UpdatedAt           pgtype.Timestamptz
}

// Message is an SMS/MMS row; no state machine.
type Message struct {
	ID                pgtype.UUID
	AppID             pgtype.UUID
	UpstreamMessageID string
	Direction         pgtype.Text
	FromNumber        pgtype.Text
	ToNumber          pgtype.Text
	Body              pgtype.Text
	UpstreamUserID    pgtype.Text
	SentAt            pgtype.Timestamptz
	CreatedAt         pgtype.Timestamptz
}

// Voicemail is its own identity with an optional cross-link to a call.
type Voicemail struct {
	ID              pgtype.UUID
	AppID           pgtype.UUID
	UpstreamCallID  pgtype.Text
	UpstreamUserID  pgtype.Text
	FromNumber      pgtype.Text
	ToNumber        pgtype.Text
	RecordingURL    pgtype.Text
	Transcript      pgtype.Text
	DurationSeconds pgtype.Int4
	CreatedAt       pgtype.Timestamptz
}

// UserMapping maps an upstream user id to a tenant-defined CRM user id.
type UserMapping struct {
	ID             pgtype.UUID
	AppID          pgtype.UUID
	UpstreamUserID string
	CRMUserID      string
	CreatedAt      pgtype.Timestamptz
	UpdatedAt      pgtype.Timestamptz
}

// CredentialAuditEntry is an append-only credential lifecycle log row.
type CredentialAuditEntry struct {
	ID         pgtype.UUID
	AppID      pgtype.UUID
	Action     string
	OldKeyHint pgtype.Text
	NewKeyHint pgtype.Text
	CreatedAt  pgtype.Timestamptz
}
