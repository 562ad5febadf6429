package credential

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/arc-self/dialpad-broker/internal/store/db"
	"github.com/arc-self/dialpad-broker/internal/store/dbmock"
)

func mustPgUUID(t *testing.T, s string) pgtype.UUID {
	t.Helper()
	var u pgtype.UUID
	require.NoError(t, u.Scan(s))
	return u
}

// Credential lifecycle: a freshly issued key verifies back to its app, a
// "created" audit entry is written, and the returned hint does not carry
// the key's middle section. Issue/Revoke's transactional wrapper opens a
// real pool transaction and isn't exercised here — see the comment on
// Manager; this tests the mock-testable core (issue/verify/revoke) the
// wrapper calls with a tx-bound Querier.
func TestIssueThenVerify_RoundTrips(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockQ := dbmock.NewMockQuerier(ctrl)
	appID := mustPgUUID(t, "11111111-1111-1111-1111-111111111111")

	mgr := NewManager(nil, mockQ, "pepper-secret")

	mockQ.EXPECT().GetApp(gomock.Any(), appID).Return(db.App{ID: appID, Active: true}, nil)

	var storedHash, storedLookup string
	mockQ.EXPECT().SetAppAPIKey(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, arg db.SetAppAPIKeyParams) error {
			storedHash = arg.APIKeyHash
			storedLookup = arg.APIKeyLookupHash
			return nil
		},
	)
	mockQ.EXPECT().InsertCredentialAuditEntry(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, arg db.InsertCredentialAuditEntryParams) error {
			assert.Equal(t, "created", arg.Action)
			assert.False(t, arg.OldKeyHint.Valid)
			return nil
		},
	)

	issued, err := mgr.issue(context.Background(), mockQ, appID, "created")
	require.NoError(t, err)
	assert.NotEmpty(t, issued.RawKey)
	assert.Contains(t, issued.Hint, "...")
	assert.NotContains(t, issued.Hint, issued.RawKey[8:len(issued.RawKey)-4])

	mockQ.EXPECT().GetAppByAPIKeyLookupHash(gomock.Any(), storedLookup).Return(
		db.App{ID: appID, Active: true, APIKeyHash: pgtype.Text{String: storedHash, Valid: true}}, nil,
	)

	gotID, err := mgr.Verify(context.Background(), issued.RawKey)
	require.NoError(t, err)
	assert.Equal(t, appID, gotID)
}

// TestIssue_RotationCarriesRealOldHint asserts the audit entry's
// old_key_hint is the prior key's actual stored redaction, not a
// placeholder.
func TestIssue_RotationCarriesRealOldHint(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockQ := dbmock.NewMockQuerier(ctrl)
	appID := mustPgUUID(t, "11111111-1111-1111-1111-111111111111")
	mgr := NewManager(nil, mockQ, "pepper-secret")

	mockQ.EXPECT().GetApp(gomock.Any(), appID).Return(db.App{
		ID:         appID,
		Active:     true,
		APIKeyHash: pgtype.Text{String: "oldhash", Valid: true},
		APIKeyHint: pgtype.Text{String: "raw_abcd...wxyz", Valid: true},
	}, nil)
	mockQ.EXPECT().SetAppAPIKey(gomock.Any(), gomock.Any()).Return(nil)
	mockQ.EXPECT().InsertCredentialAuditEntry(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, arg db.InsertCredentialAuditEntryParams) error {
			assert.Equal(t, "rotated", arg.Action)
			assert.Equal(t, "raw_abcd...wxyz", arg.OldKeyHint.String)
			return nil
		},
	)

	_, err := mgr.issue(context.Background(), mockQ, appID, "rotated")
	require.NoError(t, err)
}

func TestVerify_WrongKeyFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockQ := dbmock.NewMockQuerier(ctrl)
	mgr := NewManager(nil, mockQ, "pepper-secret")

	mockQ.EXPECT().GetAppByAPIKeyLookupHash(gomock.Any(), gomock.Any()).Return(db.App{}, db.ErrNotFound)
	mockQ.EXPECT().ListActiveAppsWithKeyHash(gomock.Any()).Return(nil, nil)

	_, err := mgr.Verify(context.Background(), "raw_totallywrongkey")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestRevoke_IsIdempotent(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockQ := dbmock.NewMockQuerier(ctrl)
	appID := mustPgUUID(t, "11111111-1111-1111-1111-111111111111")
	mgr := NewManager(nil, mockQ, "pepper-secret")

	mockQ.EXPECT().GetApp(gomock.Any(), appID).Return(db.App{ID: appID, APIKeyHash: pgtype.Text{Valid: false}}, nil)

	err := mgr.revoke(context.Background(), mockQ, appID)
	require.NoError(t, err)
}

// TestRevoke_CarriesRealOldHint asserts the audit entry for a revocation
// carries the real stored hint of the key being revoked.
func TestRevoke_CarriesRealOldHint(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockQ := dbmock.NewMockQuerier(ctrl)
	appID := mustPgUUID(t, "11111111-1111-1111-1111-111111111111")
	mgr := NewManager(nil, mockQ, "pepper-secret")

	mockQ.EXPECT().GetApp(gomock.Any(), appID).Return(db.App{
		ID:         appID,
		APIKeyHash: pgtype.Text{String: "somehash", Valid: true},
		APIKeyHint: pgtype.Text{String: "raw_abcd...wxyz", Valid: true},
	}, nil)
	mockQ.EXPECT().RevokeAppAPIKey(gomock.Any(), appID).Return(nil)
	mockQ.EXPECT().InsertCredentialAuditEntry(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, arg db.InsertCredentialAuditEntryParams) error {
			assert.Equal(t, "revoked", arg.Action)
			assert.Equal(t, "raw_abcd...wxyz", arg.OldKeyHint.String)
			return nil
		},
	)

	err := mgr.revoke(context.Background(), mockQ, appID)
	require.NoError(t, err)
}

func TestGetStatus_PopulatesHint(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockQ := dbmock.NewMockQuerier(ctrl)
	appID := mustPgUUID(t, "11111111-1111-1111-1111-111111111111")
	mgr := NewManager(nil, mockQ, "pepper-secret")

	mockQ.EXPECT().GetApp(gomock.Any(), appID).Return(db.App{
		ID:         appID,
		APIKeyHash: pgtype.Text{String: "somehash", Valid: true},
		APIKeyHint: pgtype.Text{String: "raw_abcd...wxyz", Valid: true},
	}, nil)

	st, err := mgr.GetStatus(context.Background(), appID)
	require.NoError(t, err)
	assert.True(t, st.HasActiveKey)
	assert.Equal(t, "raw_abcd...wxyz", st.Hint)
}
