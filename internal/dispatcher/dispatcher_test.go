package dispatcher

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"github.com/arc-self/dialpad-broker/internal/store/db"
	"github.com/arc-self/dialpad-broker/internal/store/dbmock"
)

func mustPgUUID(t *testing.T, s string) pgtype.UUID {
	t.Helper()
	var u pgtype.UUID
	if err := u.Scan(s); err != nil {
		t.Fatal(err)
	}
	return u
}

// An event whose type has no registered handler is still marked
// processed (to avoid queue bloat) but is logged.
func TestProcessOne_UnhandledEventTypeIsMarkedProcessed(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockQ := dbmock.NewMockQuerier(ctrl)
	d := New(nil, 50, 0, zap.NewNop(), nil)

	event := db.RawEvent{ID: mustPgUUID(t, "11111111-1111-1111-1111-111111111111"), EventType: "call.unknown_type"}
	mockQ.EXPECT().MarkRawEventProcessed(gomock.Any(), event.ID).Return(nil)

	d.processOne(context.Background(), mockQ, event)
}

// A handler failure leaves the event unprocessed so it is retried on a
// later pass, rather than surfacing the error to the caller.
func TestProcessOne_HandlerFailureLeavesEventUnprocessed(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockQ := dbmock.NewMockQuerier(ctrl)
	d := New(nil, 50, 0, zap.NewNop(), nil)

	called := false
	d.On("call.ring", func(ctx context.Context, q db.Querier, event db.RawEvent) error {
		called = true
		return errors.New("boom")
	})

	event := db.RawEvent{ID: mustPgUUID(t, "11111111-1111-1111-1111-111111111111"), EventType: "call.ring"}
	// MarkRawEventProcessed must NOT be called on failure.
	d.processOne(context.Background(), mockQ, event)

	assert.True(t, called)
}

func TestProcessOne_HandlerSuccessMarksProcessed(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockQ := dbmock.NewMockQuerier(ctrl)
	d := New(nil, 50, 0, zap.NewNop(), nil)

	d.On("call.ring", func(ctx context.Context, q db.Querier, event db.RawEvent) error {
		return nil
	})

	event := db.RawEvent{ID: mustPgUUID(t, "11111111-1111-1111-1111-111111111111"), EventType: "call.ring"}
	mockQ.EXPECT().MarkRawEventProcessed(gomock.Any(), event.ID).Return(nil)

	d.processOne(context.Background(), mockQ, event)
}

type stubEcho struct {
	eventType string
	payload   []byte
	err       error
}

func (s *stubEcho) Publish(eventType string, payload []byte) error {
	s.eventType = eventType
	s.payload = payload
	return s.err
}

// A successfully processed event is republished onto the domain event
// bus, and the event is still marked processed even if that echo fails.
func TestProcessOne_EchoesProcessedEventAndToleratesPublishFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockQ := dbmock.NewMockQuerier(ctrl)
	echo := &stubEcho{err: errors.New("nats unavailable")}
	d := New(nil, 50, 0, zap.NewNop(), echo)

	d.On("call.ring", func(ctx context.Context, q db.Querier, event db.RawEvent) error {
		return nil
	})

	event := db.RawEvent{
		ID:        mustPgUUID(t, "11111111-1111-1111-1111-111111111111"),
		EventType: "call.ring",
		Payload:   []byte(`{"call_id":"c1"}`),
	}
	mockQ.EXPECT().MarkRawEventProcessed(gomock.Any(), event.ID).Return(nil)

	d.processOne(context.Background(), mockQ, event)

	assert.Equal(t, "call.ring", echo.eventType)
}
