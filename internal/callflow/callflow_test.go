package callflow

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"github.com/arc-self/dialpad-broker/internal/store/db"
	"github.com/arc-self/dialpad-broker/internal/store/dbmock"
)

func TestValidate_TransitionMatrix(t *testing.T) {
	cases := []struct {
		from, to string
		want     Decision
	}{
		{statusNone, StatusRinging, DecisionAccept},
		{statusNone, StatusEnded, DecisionAccept},
		{statusNone, StatusVoicemail, DecisionAccept},
		{StatusRinging, StatusActive, DecisionAccept},
		{StatusRinging, StatusEnded, DecisionAccept},
		{StatusRinging, StatusMissed, DecisionAccept},
		{StatusRinging, StatusRejected, DecisionAccept},
		{StatusRinging, StatusVoicemail, DecisionAccept},
		{StatusRinging, StatusRinging, DecisionSame},
		{StatusActive, StatusEnded, DecisionAccept},
		{StatusActive, StatusVoicemail, DecisionAccept},
		{StatusActive, StatusRinging, DecisionDrop},
		{StatusActive, StatusActive, DecisionSame},
		{StatusEnded, StatusRinging, DecisionDrop},
		{StatusEnded, StatusActive, DecisionDrop},
		{StatusEnded, StatusEnded, DecisionSame},
		{StatusMissed, StatusActive, DecisionDrop},
		{StatusRejected, StatusActive, DecisionDrop},
		{StatusVoicemail, StatusActive, DecisionDrop},
	}

	for _, c := range cases {
		got := Validate(c.from, c.to)
		assert.Equalf(t, c.want, got, "Validate(%q, %q)", c.from, c.to)
	}
}

func TestNormalizeDirection(t *testing.T) {
	cases := []struct {
		raw     string
		want    string
		matched bool
	}{
		{"incoming", "inbound", true},
		{"IN ", "inbound", true},
		{"Outgoing", "outbound", true},
		{"outbound", "outbound", true},
		{"  inbound", "inbound", true},
		{"sideways", "", false},
		{"", "", false},
	}

	for _, c := range cases {
		got, ok := NormalizeDirection(c.raw)
		assert.Equalf(t, c.matched, ok, "NormalizeDirection(%q) ok", c.raw)
		if c.matched {
			assert.Equal(t, c.want, got.String)
			assert.True(t, got.Valid)
		}
	}
}

func TestParseFields_AliasesAndNestedCallObject(t *testing.T) {
	payload := map[string]interface{}{
		"call": map[string]interface{}{
			"call_id":   "abc-123",
			"direction": "Outgoing",
			"caller":    "+15551230000",
			"to_number": "+15559998888",
			"agent_id":  "u-42",
			"duration":  float64(90),
		},
	}

	f := ParseFields(payload)
	assert.Equal(t, "abc-123", f.UpstreamCallID)
	assert.Equal(t, "outbound", f.Direction.String)
	assert.Equal(t, "+15551230000", f.FromNumber.String)
	assert.Equal(t, "+15559998888", f.ToNumber.String)
	assert.Equal(t, "u-42", f.UpstreamUserID.String)
	assert.EqualValues(t, 90, f.DurationSec.Int32)
}

func TestParseFields_TopLevelFallback(t *testing.T) {
	payload := map[string]interface{}{
		"id":               "vm-1",
		"voicemail_url":    "https://example.com/vm.wav",
		"transcript":       "hello",
		"duration_seconds": "45",
	}

	f := ParseFields(payload)
	assert.Equal(t, "vm-1", f.UpstreamCallID)
	assert.Equal(t, "https://example.com/vm.wav", f.VoicemailURL.String)
	assert.Equal(t, "hello", f.Transcript.String)
	assert.EqualValues(t, 45, f.DurationSec.Int32)
}

// An 11-element array, depth 7 nesting, a 1000-character transcript,
// and a 30-key metadata object must all be bounded by SanitizePayload.
func TestSanitizePayload_BoundsDepthArraysTranscriptAndMetadata(t *testing.T) {
	deepest := map[string]interface{}{"leaf": "value"}
	var nested interface{} = deepest
	for i := 0; i < 6; i++ {
		nested = map[string]interface{}{"nested": nested}
	}

	arr := make([]interface{}, 11)
	for i := range arr {
		arr[i] = i
	}

	metadata := make(map[string]interface{}, 30)
	for i := 0; i < 30; i++ {
		metadata[string(rune('a'+i%26))+string(rune('0'+i/26))] = i
	}

	transcript := strings.Repeat("x", 1000)

	payload := map[string]interface{}{
		"items":      arr,
		"deep":       nested,
		"transcript": transcript,
		"metadata":   metadata,
		"audio_data": "base64stuffhere",
	}

	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	sanitizedRaw, err := SanitizePayload(raw)
	require.NoError(t, err)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(sanitizedRaw, &out))

	items, ok := out["items"].([]interface{})
	require.True(t, ok)
	require.Len(t, items, maxArrayLen+1)
	marker, ok := items[maxArrayLen].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, marker["_truncated"])
	assert.EqualValues(t, 11, marker["original_length"])

	txt, ok := out["transcript"].(string)
	require.True(t, ok)
	assert.True(t, strings.HasSuffix(txt, truncationSuffix))
	assert.LessOrEqual(t, len(txt), maxTranscriptLen+len(truncationSuffix))

	meta, ok := out["metadata"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, meta["_summary"])
	assert.EqualValues(t, 30, meta["total_keys"])
	sampleKeys, ok := meta["sample_keys"].([]interface{})
	require.True(t, ok)
	assert.Len(t, sampleKeys, metadataSampleLen)

	assert.Equal(t, binaryPlaceholder, out["audio_data"])

	deepOut, ok := out["deep"].(map[string]interface{})
	require.True(t, ok)
	for i := 0; i < maxDepth-1; i++ {
		next, ok := deepOut["nested"].(map[string]interface{})
		require.Truef(t, ok, "expected nested map at level %d", i)
		deepOut = next
	}
	assert.Equal(t, true, deepOut["_depth_truncated"])
}

func TestSanitizePayload_SmallMetadataPassesThroughUnsummarized(t *testing.T) {
	payload := map[string]interface{}{
		"metadata": map[string]interface{}{"a": 1, "b": 2},
	}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	sanitizedRaw, err := SanitizePayload(raw)
	require.NoError(t, err)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(sanitizedRaw, &out))
	meta, ok := out["metadata"].(map[string]interface{})
	require.True(t, ok)
	assert.Nil(t, meta["_summary"])
	assert.EqualValues(t, 1, meta["a"])
}

func mustUUID(t *testing.T, s string) pgtype.UUID {
	t.Helper()
	var u pgtype.UUID
	require.NoError(t, u.Scan(s))
	return u
}

func rawEvent(t *testing.T, eventType string, payload map[string]interface{}) db.RawEvent {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return db.RawEvent{
		ID:        mustUUID(t, "11111111-1111-1111-1111-111111111111"),
		AppID:     mustUUID(t, "22222222-2222-2222-2222-222222222222"),
		EventType: eventType,
		Payload:   body,
	}
}

// Ring creates a fresh call row in the ringing state when none exists.
func TestHandlers_Ring_InsertsNewRow(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockQ := dbmock.NewMockQuerier(ctrl)
	h := NewHandlers(nil, zap.NewNop())

	event := rawEvent(t, "call.ring", map[string]interface{}{
		"call_id":   "call-1",
		"direction": "inbound",
		"from":      "+15550000000",
		"to":        "+15551111111",
	})

	mockQ.EXPECT().
		GetCallByUpstreamID(gomock.Any(), gomock.Any()).
		Return(db.Call{}, db.ErrNotFound)
	mockQ.EXPECT().
		InsertCall(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, arg db.InsertCallParams) (db.Call, error) {
			assert.Equal(t, StatusRinging, arg.Status)
			assert.Equal(t, "call-1", arg.UpstreamCallID)
			return db.Call{
				ID: mustUUID(t, "33333333-3333-3333-3333-333333333333"), AppID: event.AppID,
				UpstreamCallID: arg.UpstreamCallID, Status: arg.Status, Direction: arg.Direction,
			}, nil
		})

	err := h.Ring(context.Background(), mockQ, event)
	require.NoError(t, err)
}

// Ended prefers UPDATE over INSERT, and writes duration/ended_at.
func TestHandlers_Ended_UpdatesExistingActiveCall(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockQ := dbmock.NewMockQuerier(ctrl)
	h := NewHandlers(nil, zap.NewNop())

	existing := db.Call{
		ID:             mustUUID(t, "33333333-3333-3333-3333-333333333333"),
		AppID:          mustUUID(t, "22222222-2222-2222-2222-222222222222"),
		UpstreamCallID: "call-2",
		Status:         StatusActive,
	}
	event := rawEvent(t, "call.ended", map[string]interface{}{
		"call_id":  "call-2",
		"duration": float64(120),
	})

	mockQ.EXPECT().GetCallByUpstreamID(gomock.Any(), gomock.Any()).Return(existing, nil)
	mockQ.EXPECT().
		UpdateCallFields(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, arg db.UpdateCallFieldsParams) (db.Call, error) {
			assert.Equal(t, StatusEnded, arg.Status)
			assert.Equal(t, existing.ID, arg.ID)
			assert.True(t, arg.EndedAt.Valid)
			assert.EqualValues(t, 120, arg.DurationSeconds.Int32)
			existing.Status = StatusEnded
			return existing, nil
		})

	err := h.Ended(context.Background(), mockQ, event)
	require.NoError(t, err)
}

// An ended event for a call that never rang is still materialized,
// directly in the ended state.
func TestHandlers_Ended_InsertsMinimalRowWhenMissing(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockQ := dbmock.NewMockQuerier(ctrl)
	h := NewHandlers(nil, zap.NewNop())

	event := rawEvent(t, "call.ended", map[string]interface{}{"call_id": "call-3"})

	mockQ.EXPECT().GetCallByUpstreamID(gomock.Any(), gomock.Any()).Return(db.Call{}, db.ErrNotFound)
	mockQ.EXPECT().
		InsertCall(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, arg db.InsertCallParams) (db.Call, error) {
			assert.Equal(t, StatusEnded, arg.Status)
			return db.Call{ID: mustUUID(t, "44444444-4444-4444-4444-444444444444"), Status: StatusEnded}, nil
		})

	err := h.Ended(context.Background(), mockQ, event)
	require.NoError(t, err)
}

// A transition that the matrix forbids (ended -> active) is dropped
// silently: no write is issued.
func TestHandlers_Started_DropsIllegalTransitionFromEnded(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockQ := dbmock.NewMockQuerier(ctrl)
	h := NewHandlers(nil, zap.NewNop())

	existing := db.Call{
		ID: mustUUID(t, "33333333-3333-3333-3333-333333333333"), Status: StatusEnded,
		UpstreamCallID: "call-4",
	}
	event := rawEvent(t, "call.started", map[string]interface{}{"call_id": "call-4"})

	mockQ.EXPECT().GetCallByUpstreamID(gomock.Any(), gomock.Any()).Return(existing, nil)
	// No InsertCall / UpdateCallFields expectation: any call fails the test.

	err := h.Started(context.Background(), mockQ, event)
	require.NoError(t, err)
}

// Recording-completed never creates a row; it is logged and dropped
// when no matching call exists.
func TestHandlers_RecordingCompleted_DropsWhenCallMissing(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockQ := dbmock.NewMockQuerier(ctrl)
	h := NewHandlers(nil, zap.NewNop())

	event := rawEvent(t, "call.recording_completed", map[string]interface{}{
		"call_id":       "call-5",
		"recording_url": "https://example.com/rec.wav",
	})

	mockQ.EXPECT().
		AttachRecordingURL(gomock.Any(), gomock.Any()).
		Return(db.Call{}, db.ErrNotFound)

	err := h.RecordingCompleted(context.Background(), mockQ, event)
	require.NoError(t, err)
}

func TestHandlers_RecordingCompleted_AttachesURLToExistingCall(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockQ := dbmock.NewMockQuerier(ctrl)
	h := NewHandlers(nil, zap.NewNop())

	event := rawEvent(t, "call.recording_completed", map[string]interface{}{
		"call_id":       "call-6",
		"recording_url": "https://example.com/rec.wav",
	})

	mockQ.EXPECT().
		AttachRecordingURL(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, arg db.AttachRecordingURLParams) (db.Call, error) {
			assert.Equal(t, "call-6", arg.UpstreamCallID)
			assert.Equal(t, "https://example.com/rec.wav", arg.RecordingURL)
			return db.Call{UpstreamCallID: arg.UpstreamCallID, Status: StatusActive}, nil
		})

	err := h.RecordingCompleted(context.Background(), mockQ, event)
	require.NoError(t, err)
}

// A call event with no resolvable tenant is skipped without touching
// the store at all.
func TestHandlers_Ring_SkipsWhenTenantUnresolved(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockQ := dbmock.NewMockQuerier(ctrl)
	h := NewHandlers(nil, zap.NewNop())

	event := db.RawEvent{
		ID:        mustUUID(t, "11111111-1111-1111-1111-111111111111"),
		EventType: "call.ring",
		Payload:   []byte(`{"call_id":"call-7"}`),
	}

	err := h.Ring(context.Background(), mockQ, event)
	require.NoError(t, err)
}

func TestHandlers_Ring_PropagatesStoreErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockQ := dbmock.NewMockQuerier(ctrl)
	h := NewHandlers(nil, zap.NewNop())

	boom := errors.New("db unavailable")
	event := rawEvent(t, "call.ring", map[string]interface{}{"call_id": "call-8"})
	mockQ.EXPECT().GetCallByUpstreamID(gomock.Any(), gomock.Any()).Return(db.Call{}, boom)

	err := h.Ring(context.Background(), mockQ, event)
	assert.ErrorIs(t, err, boom)
}
