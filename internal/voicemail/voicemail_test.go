package voicemail

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"github.com/arc-self/dialpad-broker/internal/store/db"
	"github.com/arc-self/dialpad-broker/internal/store/dbmock"
)

func mustUUID(t *testing.T, s string) pgtype.UUID {
	t.Helper()
	var u pgtype.UUID
	require.NoError(t, u.Scan(s))
	return u
}

func rawEvent(t *testing.T, payload map[string]interface{}) db.RawEvent {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return db.RawEvent{
		ID:        mustUUID(t, "11111111-1111-1111-1111-111111111111"),
		AppID:     mustUUID(t, "22222222-2222-2222-2222-222222222222"),
		EventType: "voicemail.delivered",
		Payload:   body,
	}
}

// A voicemail with a call id updates the existing voicemail row and
// transitions the linked call to voicemail when the matrix permits.
func TestHandle_LinkedVoicemail_UpdatesExistingRowAndCrossLinksCall(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockQ := dbmock.NewMockQuerier(ctrl)
	h := NewHandlers(nil, zap.NewNop())

	event := rawEvent(t, map[string]interface{}{
		"call_id":       "call-1",
		"recording_url": "https://example.com/vm.wav",
		"transcript":    "hi there",
		"duration":      float64(12),
	})

	existingVM := db.Voicemail{ID: mustUUID(t, "33333333-3333-3333-3333-333333333333")}
	mockQ.EXPECT().GetVoicemailByCallID(gomock.Any(), gomock.Any()).Return(existingVM, nil)
	mockQ.EXPECT().UpdateVoicemail(gomock.Any(), gomock.Any()).Return(existingVM, nil)

	existingCall := db.Call{
		ID:             mustUUID(t, "44444444-4444-4444-4444-444444444444"),
		UpstreamCallID: "call-1",
		Status:         "active",
	}
	mockQ.EXPECT().GetCallByUpstreamID(gomock.Any(), gomock.Any()).Return(existingCall, nil)
	mockQ.EXPECT().
		UpdateCallFields(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, arg db.UpdateCallFieldsParams) (db.Call, error) {
			assert.Equal(t, "voicemail", arg.Status)
			assert.Equal(t, "https://example.com/vm.wav", arg.VoicemailURL.String)
			return existingCall, nil
		})

	err := h.Handle(context.Background(), mockQ, event)
	require.NoError(t, err)
}

// A linked voicemail whose call is already in a terminal state other
// than voicemail leaves the call row untouched (the matrix drops it).
func TestHandle_LinkedVoicemail_DropsCrossLinkWhenCallEnded(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockQ := dbmock.NewMockQuerier(ctrl)
	h := NewHandlers(nil, zap.NewNop())

	event := rawEvent(t, map[string]interface{}{
		"call_id":       "call-2",
		"recording_url": "https://example.com/vm2.wav",
	})

	mockQ.EXPECT().GetVoicemailByCallID(gomock.Any(), gomock.Any()).Return(db.Voicemail{}, db.ErrNotFound)
	mockQ.EXPECT().InsertVoicemail(gomock.Any(), gomock.Any()).Return(db.Voicemail{UpstreamCallID: pgtype.Text{String: "call-2", Valid: true}}, nil)

	mockQ.EXPECT().GetCallByUpstreamID(gomock.Any(), gomock.Any()).
		Return(db.Call{Status: "ended", UpstreamCallID: "call-2"}, nil)
	// No UpdateCallFields / InsertCall expectation: the matrix drop must
	// skip both.

	err := h.Handle(context.Background(), mockQ, event)
	require.NoError(t, err)
}

// An orphan voicemail (no call id) with no prior recent delivery is
// inserted fresh and does not attempt any call cross-link.
func TestHandle_OrphanVoicemail_InsertsFresh(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockQ := dbmock.NewMockQuerier(ctrl)
	h := NewHandlers(nil, zap.NewNop())

	event := rawEvent(t, map[string]interface{}{
		"user_id":       "12345",
		"from":          "+15550001111",
		"recording_url": "https://example.com/vm3.wav",
	})

	mockQ.EXPECT().FindRecentOrphanVoicemail(gomock.Any(), gomock.Any()).Return(db.Voicemail{}, db.ErrNotFound)
	mockQ.EXPECT().
		InsertVoicemail(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, arg db.InsertVoicemailParams) (db.Voicemail, error) {
			assert.False(t, arg.UpstreamCallID.Valid)
			assert.Equal(t, "12345", arg.UpstreamUserID.String)
			return db.Voicemail{ID: arg.ID}, nil
		})
	// No GetCallByUpstreamID expectation: orphan deliveries never
	// attempt a cross-link.

	err := h.Handle(context.Background(), mockQ, event)
	require.NoError(t, err)
}

// The same orphan voicemail delivered twice within the duplicate-guard
// window resolves to exactly one row, and the duplicate delivery is not
// re-inserted or re-emitted.
func TestHandle_OrphanVoicemail_DuplicateWithinWindowIsDropped(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockQ := dbmock.NewMockQuerier(ctrl)
	h := NewHandlers(nil, zap.NewNop())

	event := rawEvent(t, map[string]interface{}{
		"user_id": "12345",
		"from":    "+15550001111",
	})

	existing := db.Voicemail{ID: mustUUID(t, "55555555-5555-5555-5555-555555555555")}
	mockQ.EXPECT().FindRecentOrphanVoicemail(gomock.Any(), gomock.Any()).Return(existing, nil)
	// No InsertVoicemail call: the duplicate must not create a second row.

	err := h.Handle(context.Background(), mockQ, event)
	require.NoError(t, err)
}
