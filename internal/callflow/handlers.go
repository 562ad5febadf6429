package callflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"go.uber.org/zap"

	"github.com/arc-self/dialpad-broker/internal/dispatcher"
	"github.com/arc-self/dialpad-broker/internal/fanout"
	"github.com/arc-self/dialpad-broker/internal/store/db"
)

// Handlers wires the call state machine's dispatcher.Handler funcs to
// their shared dependencies: the fanout registry events are emitted
// onto, and the logger every dropped/illegal transition is warned to.
type Handlers struct {
	fanout *fanout.Registry
	logger *zap.Logger
}

// NewHandlers constructs the call event Handlers. Register its methods
// with a dispatcher.Dispatcher under the event type strings the upstream
// provider uses (e.g. "call.ring", "call.started", "call.ended",
// "call.recording_completed").
func NewHandlers(fan *fanout.Registry, logger *zap.Logger) *Handlers {
	return &Handlers{fanout: fan, logger: logger}
}

func newCallRowID() (pgtype.UUID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return pgtype.UUID{}, fmt.Errorf("generate call row id: %w", err)
	}
	var out pgtype.UUID
	if err := out.Scan(id.String()); err != nil {
		return pgtype.UUID{}, err
	}
	return out, nil
}

// prepared bundles what every call handler needs after decoding and
// validating a raw event: the parsed fields, the sanitized payload, and
// the existing row, if any.
type prepared struct {
	fields    Fields
	sanitized json.RawMessage
	existing  db.Call
	found     bool
}

func (h *Handlers) prepare(ctx context.Context, q db.Querier, event db.RawEvent) (prepared, bool, error) {
	if !event.AppID.Valid {
		h.logger.Warn("call event has no resolved tenant, skipping", zap.String("event_type", event.EventType))
		return prepared{}, false, nil
	}

	payload, err := dispatcher.DecodePayload(event.Payload)
	if err != nil {
		return prepared{}, false, fmt.Errorf("decode call event payload: %w", err)
	}
	fields := ParseFields(payload)
	if fields.UpstreamCallID == "" {
		h.logger.Warn("call event missing upstream call id, skipping",
			zap.String("event_type", event.EventType),
			zap.String("raw_event_id", event.ID.String()),
		)
		return prepared{}, false, nil
	}
	if fields.DirectionRaw != "" && !fields.Direction.Valid {
		h.logger.Warn("unrecognized call direction, leaving null",
			zap.String("raw_direction", fields.DirectionRaw),
			zap.String("upstream_call_id", fields.UpstreamCallID),
		)
	}

	sanitized, err := SanitizePayload(event.Payload)
	if err != nil {
		return prepared{}, false, fmt.Errorf("sanitize call payload: %w", err)
	}

	existing, err := q.GetCallByUpstreamID(ctx, db.GetCallByUpstreamIDParams{
		AppID:          event.AppID,
		UpstreamCallID: fields.UpstreamCallID,
	})
	found := true
	if errors.Is(err, db.ErrNotFound) {
		found = false
	} else if err != nil {
		return prepared{}, false, err
	}

	return prepared{fields: fields, sanitized: sanitized, existing: existing, found: found}, true, nil
}

func currentStatus(p prepared) string {
	if !p.found {
		return statusNone
	}
	return p.existing.Status
}

// Ring handles a "call.ring" event: target status ringing. On insert it
// sets direction, numbers, user, and the sanitized payload.
func (h *Handlers) Ring(ctx context.Context, q db.Querier, event db.RawEvent) error {
	return h.transition(ctx, q, event, StatusRinging, false)
}

// Started handles a "call.started" event: target status active,
// additionally recording started_at.
func (h *Handlers) Started(ctx context.Context, q db.Querier, event db.RawEvent) error {
	return h.transition(ctx, q, event, StatusActive, true)
}

// transition is the shared read-validate-write path for Ring and
// Started: both insert a fresh row when none exists, or update in place
// when the matrix permits, and otherwise log a warning and drop the event.
func (h *Handlers) transition(ctx context.Context, q db.Querier, event db.RawEvent, target string, recordStartedAt bool) error {
	p, ok, err := h.prepare(ctx, q, event)
	if err != nil || !ok {
		return err
	}

	from := currentStatus(p)
	decision := Validate(from, target)
	if decision == DecisionDrop {
		h.logger.Warn("illegal call status transition dropped",
			zap.String("upstream_call_id", p.fields.UpstreamCallID),
			zap.String("from", from),
			zap.String("to", target),
		)
		return nil
	}

	var startedAt pgtype.Timestamptz
	if recordStartedAt {
		startedAt = pgtype.Timestamptz{Time: time.Now().UTC(), Valid: true}
	}

	var call db.Call
	if !p.found {
		rowID, err := newCallRowID()
		if err != nil {
			return err
		}
		call, err = q.InsertCall(ctx, db.InsertCallParams{
			ID:             rowID,
			AppID:          event.AppID,
			UpstreamCallID: p.fields.UpstreamCallID,
			Direction:      p.fields.Direction,
			Status:         target,
			FromNumber:     p.fields.FromNumber,
			ToNumber:       p.fields.ToNumber,
			UpstreamUserID: p.fields.UpstreamUserID,
			StartedAt:      startedAt,
			Payload:        p.sanitized,
		})
		if err != nil {
			return err
		}
	} else {
		call, err = q.UpdateCallFields(ctx, db.UpdateCallFieldsParams{
			ID:             p.existing.ID,
			Status:         target,
			Direction:      p.fields.Direction,
			FromNumber:     p.fields.FromNumber,
			ToNumber:       p.fields.ToNumber,
			UpstreamUserID: p.fields.UpstreamUserID,
			StartedAt:      startedAt,
			Payload:        p.sanitized,
		})
		if err != nil {
			return err
		}
	}

	h.emit(ctx, q, event.EventType, call)
	return nil
}

// Ended handles a "call.ended" event: target status ended. It prefers
// UPDATE over INSERT so richer data from earlier events is not
// overwritten; when the row does not yet exist (the ended event arrived
// first), a minimal row is created directly in the ended state.
func (h *Handlers) Ended(ctx context.Context, q db.Querier, event db.RawEvent) error {
	p, ok, err := h.prepare(ctx, q, event)
	if err != nil || !ok {
		return err
	}

	from := currentStatus(p)
	decision := Validate(from, StatusEnded)
	if decision == DecisionDrop {
		h.logger.Warn("illegal call status transition dropped",
			zap.String("upstream_call_id", p.fields.UpstreamCallID),
			zap.String("from", from),
			zap.String("to", StatusEnded),
		)
		return nil
	}

	endedAt := pgtype.Timestamptz{Time: time.Now().UTC(), Valid: true}

	var call db.Call
	if !p.found {
		rowID, err := newCallRowID()
		if err != nil {
			return err
		}
		call, err = q.InsertCall(ctx, db.InsertCallParams{
			ID:              rowID,
			AppID:           event.AppID,
			UpstreamCallID:  p.fields.UpstreamCallID,
			Direction:       p.fields.Direction,
			Status:          StatusEnded,
			FromNumber:      p.fields.FromNumber,
			ToNumber:        p.fields.ToNumber,
			UpstreamUserID:  p.fields.UpstreamUserID,
			EndedAt:         endedAt,
			DurationSeconds: p.fields.DurationSec,
			Payload:         p.sanitized,
		})
		if err != nil {
			return err
		}
	} else {
		call, err = q.UpdateCallFields(ctx, db.UpdateCallFieldsParams{
			ID:              p.existing.ID,
			Status:          StatusEnded,
			Direction:       p.fields.Direction,
			FromNumber:      p.fields.FromNumber,
			ToNumber:        p.fields.ToNumber,
			UpstreamUserID:  p.fields.UpstreamUserID,
			EndedAt:         endedAt,
			DurationSeconds: p.fields.DurationSec,
			Payload:         p.sanitized,
		})
		if err != nil {
			return err
		}
	}

	h.emit(ctx, q, event.EventType, call)
	return nil
}

// RecordingCompleted handles a "call.recording_completed" event. It does
// not transition status; it only attaches the recording URL to an
// existing call row. When no such row exists, the event is logged and
// dropped — recording alone never materializes a call row.
func (h *Handlers) RecordingCompleted(ctx context.Context, q db.Querier, event db.RawEvent) error {
	if !event.AppID.Valid {
		h.logger.Warn("recording event has no resolved tenant, skipping")
		return nil
	}

	payload, err := dispatcher.DecodePayload(event.Payload)
	if err != nil {
		return fmt.Errorf("decode recording event payload: %w", err)
	}
	fields := ParseFields(payload)
	if fields.UpstreamCallID == "" || !fields.RecordingURL.Valid {
		h.logger.Warn("recording event missing call id or recording url, dropped")
		return nil
	}

	call, err := q.AttachRecordingURL(ctx, db.AttachRecordingURLParams{
		AppID:          event.AppID,
		UpstreamCallID: fields.UpstreamCallID,
		RecordingURL:   fields.RecordingURL.String,
	})
	if errors.Is(err, db.ErrNotFound) {
		h.logger.Info("recording completed for unknown call, dropped",
			zap.String("upstream_call_id", fields.UpstreamCallID),
		)
		return nil
	}
	if err != nil {
		return err
	}

	h.emit(ctx, q, event.EventType, call)
	return nil
}

// emit builds and sends the fanout event for a successful transition,
// including the initial insert.
func (h *Handlers) emit(ctx context.Context, q db.Querier, eventName string, call db.Call) {
	if h.fanout == nil {
		return
	}

	ev := fanout.Event{
		Event:          eventName,
		UpstreamCallID: call.UpstreamCallID,
		Status:         call.Status,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	}
	if call.Direction.Valid {
		ev.Direction = call.Direction.String
	}
	if call.FromNumber.Valid {
		ev.FromNumber = call.FromNumber.String
	}
	if call.ToNumber.Valid {
		ev.ToNumber = call.ToNumber.String
	}
	if call.UpstreamUserID.Valid {
		ev.UpstreamUserID = call.UpstreamUserID.String
	}
	if call.Status == StatusEnded && call.DurationSeconds.Valid {
		d := call.DurationSeconds.Int32
		ev.DurationSec = &d
	}

	h.fanout.Emit(ctx, db.App{ID: call.AppID}, ev)
}
