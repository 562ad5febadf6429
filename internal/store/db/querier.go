package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// Querier is the full persistence surface used by every component above
// the store. Queries (a *Queries bound to either the pool or a live
// transaction) is the only implementation.
type Querier interface {
	// Apps / Credential Manager
	CreateApp(ctx context.Context, arg CreateAppParams) (App, error)
	GetApp(ctx context.Context, id pgtype.UUID) (App, error)
	GetAppByAPIKeyLookupHash(ctx context.Context, lookupHash string) (App, error)
	ListActiveAppsWithKeyHash(ctx context.Context) ([]App, error)
	SetAppAPIKey(ctx context.Context, arg SetAppAPIKeyParams) error
	RevokeAppAPIKey(ctx context.Context, id pgtype.UUID) error
	InsertCredentialAuditEntry(ctx context.Context, arg InsertCredentialAuditEntryParams) error
	ListCredentialAuditEntries(ctx context.Context, arg ListCredentialAuditEntriesParams) ([]CredentialAuditEntry, error)

	// Upstream bindings / tenant resolution
	GetUpstreamBindingByOrgID(ctx context.Context, upstreamOrgID string) (UpstreamBinding, error)
	GetUpstreamBindingByAppID(ctx context.Context, appID pgtype.UUID) (UpstreamBinding, error)
	UpdateUpstreamBindingTokens(ctx context.Context, arg UpdateUpstreamBindingTokensParams) error
	ListUpstreamBindingsNearingExpiry(ctx context.Context, window time.Duration) ([]UpstreamBinding, error)

	// Webhook registrations
	UpsertWebhookRegistration(ctx context.Context, arg UpsertWebhookRegistrationParams) (WebhookRegistration, error)

	// Raw events / Ingestor / Dispatcher
	InsertRawEvent(ctx context.Context, arg InsertRawEventParams) (insertedNew bool, row RawEvent, err error)
	LeasePendingRawEvents(ctx context.Context, limit int32) ([]RawEvent, error)
	MarkRawEventProcessed(ctx context.Context, id pgtype.UUID) error
	GetQueueStats(ctx context.Context) (QueueStats, error)

	// Calls
	GetCallByUpstreamID(ctx context.Context, arg GetCallByUpstreamIDParams) (Call, error)
	InsertCall(ctx context.Context, arg InsertCallParams) (Call, error)
	UpdateCallFields(ctx context.Context, arg UpdateCallFieldsParams) (Call, error)
	AttachRecordingURL(ctx context.Context, arg AttachRecordingURLParams) (Call, error)
	ListCallsByApp(ctx context.Context, arg ListCallsByAppParams) ([]Call, error)
	ListActiveCallsByApp(ctx context.Context, appID pgtype.UUID) ([]Call, error)
	GetCallByID(ctx context.Context, arg GetCallByIDParams) (Call, error)

	// Messages
	UpsertMessage(ctx context.Context, arg UpsertMessageParams) (Message, error)
	ListMessagesByApp(ctx context.Context, arg ListMessagesByAppParams) ([]Message, error)

	// Voicemails
	GetVoicemailByCallID(ctx context.Context, arg GetVoicemailByCallIDParams) (Voicemail, error)
	FindRecentOrphanVoicemail(ctx context.Context, arg FindRecentOrphanVoicemailParams) (Voicemail, error)
	InsertVoicemail(ctx context.Context, arg InsertVoicemailParams) (Voicemail, error)
	UpdateVoicemail(ctx context.Context, arg UpdateVoicemailParams) (Voicemail, error)
	PruneOrphanVoicemails(ctx context.Context, retention time.Duration) (int64, error)

	// User mappings
	UpsertUserMapping(ctx context.Context, arg UpsertUserMappingParams) (UserMapping, error)
	GetUserMappingByUpstreamID(ctx context.Context, arg GetUserMappingByUpstreamIDParams) (UserMapping, error)
}
