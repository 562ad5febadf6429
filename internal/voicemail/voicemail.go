// Package voicemail implements the voicemail handler: an upsert keyed
// either by the upstream call id cross-link or, for orphan deliveries, a
// short-window duplicate guard keyed on (tenant, recipient, origin
// number). Built on the same read-validate-write shape as
// internal/callflow, reusing its transition matrix and payload parser
// rather than re-deriving call-field extraction.
package voicemail

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"go.uber.org/zap"

	"github.com/arc-self/dialpad-broker/internal/callflow"
	"github.com/arc-self/dialpad-broker/internal/dispatcher"
	"github.com/arc-self/dialpad-broker/internal/fanout"
	"github.com/arc-self/dialpad-broker/internal/store/db"
)

// Handlers wires the voicemail handler to the fanout registry it emits
// onto, matching internal/callflow.Handlers' dependency shape so both
// can be registered against the same dispatcher.
type Handlers struct {
	fanout *fanout.Registry
	logger *zap.Logger
}

func NewHandlers(fan *fanout.Registry, logger *zap.Logger) *Handlers {
	return &Handlers{fanout: fan, logger: logger}
}

func newRowID() (pgtype.UUID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return pgtype.UUID{}, err
	}
	var out pgtype.UUID
	if err := out.Scan(id.String()); err != nil {
		return pgtype.UUID{}, err
	}
	return out, nil
}

// mediaURL prefers the fixed voicemail-URL aliases, falling back to the
// shared recording-URL aliases call events also use.
func mediaURL(f callflow.Fields) pgtype.Text {
	if f.VoicemailURL.Valid {
		return f.VoicemailURL
	}
	return f.RecordingURL
}

// Handle is the dispatcher.Handler for voicemail delivery events.
func (h *Handlers) Handle(ctx context.Context, q db.Querier, event db.RawEvent) error {
	if !event.AppID.Valid {
		h.logger.Warn("voicemail event has no resolved tenant, skipping")
		return nil
	}

	payload, err := dispatcher.DecodePayload(event.Payload)
	if err != nil {
		return err
	}
	fields := callflow.ParseFields(payload)
	media := mediaURL(fields)

	var (
		vm  db.Voicemail
		dup bool
	)
	if fields.UpstreamCallID != "" {
		vm, err = h.upsertLinked(ctx, q, event.AppID, fields, media)
	} else {
		vm, dup, err = h.upsertOrphan(ctx, q, event.AppID, fields, media)
	}
	if err != nil {
		return err
	}

	if fields.UpstreamCallID != "" {
		if err := h.crossLinkCall(ctx, q, event.AppID, fields, media); err != nil {
			return err
		}
	}

	if !dup {
		h.emit(ctx, q, event.AppID, vm)
	}
	return nil
}

// upsertLinked handles the case where the voicemail carries an upstream
// call id: update the existing row's media/transcript/duration, or
// insert a fresh one keyed on the call id.
func (h *Handlers) upsertLinked(ctx context.Context, q db.Querier, appID pgtype.UUID, fields callflow.Fields, media pgtype.Text) (db.Voicemail, error) {
	existing, err := q.GetVoicemailByCallID(ctx, db.GetVoicemailByCallIDParams{
		AppID:          appID,
		UpstreamCallID: fields.UpstreamCallID,
	})
	if err == nil {
		return q.UpdateVoicemail(ctx, db.UpdateVoicemailParams{
			ID:              existing.ID,
			RecordingURL:    media,
			Transcript:      fields.Transcript,
			DurationSeconds: fields.DurationSec,
		})
	}
	if !errors.Is(err, db.ErrNotFound) {
		return db.Voicemail{}, err
	}

	rowID, err := newRowID()
	if err != nil {
		return db.Voicemail{}, err
	}
	return q.InsertVoicemail(ctx, db.InsertVoicemailParams{
		ID:              rowID,
		AppID:           appID,
		UpstreamCallID:  pgtype.Text{String: fields.UpstreamCallID, Valid: true},
		UpstreamUserID:  fields.UpstreamUserID,
		FromNumber:      fields.FromNumber,
		ToNumber:        fields.ToNumber,
		RecordingURL:    media,
		Transcript:      fields.Transcript,
		DurationSeconds: fields.DurationSec,
	})
}

// upsertOrphan handles a voicemail with no call id: a duplicate
// delivery within the 60-second window returns the existing row
// untouched, rather than inserting a second one.
func (h *Handlers) upsertOrphan(ctx context.Context, q db.Querier, appID pgtype.UUID, fields callflow.Fields, media pgtype.Text) (db.Voicemail, bool, error) {
	existing, err := q.FindRecentOrphanVoicemail(ctx, db.FindRecentOrphanVoicemailParams{
		AppID:          appID,
		UpstreamUserID: fields.UpstreamUserID,
		FromNumber:     fields.FromNumber,
	})
	if err == nil {
		h.logger.Info("duplicate orphan voicemail within window, dropped",
			zap.String("upstream_user_id", fields.UpstreamUserID.String),
		)
		return existing, true, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return db.Voicemail{}, false, err
	}

	rowID, err := newRowID()
	if err != nil {
		return db.Voicemail{}, false, err
	}
	vm, err := q.InsertVoicemail(ctx, db.InsertVoicemailParams{
		ID:              rowID,
		AppID:           appID,
		UpstreamUserID:  fields.UpstreamUserID,
		FromNumber:      fields.FromNumber,
		ToNumber:        fields.ToNumber,
		RecordingURL:    media,
		Transcript:      fields.Transcript,
		DurationSeconds: fields.DurationSec,
	})
	return vm, false, err
}

// crossLinkCall transitions the corresponding call row to the
// voicemail terminal state when the matrix permits and records the
// media onto it for convenience; when no call row exists, an
// informational row is created directly in the voicemail state.
func (h *Handlers) crossLinkCall(ctx context.Context, q db.Querier, appID pgtype.UUID, fields callflow.Fields, media pgtype.Text) error {
	existing, err := q.GetCallByUpstreamID(ctx, db.GetCallByUpstreamIDParams{
		AppID:          appID,
		UpstreamCallID: fields.UpstreamCallID,
	})
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return err
	}

	if errors.Is(err, db.ErrNotFound) {
		rowID, err := newRowID()
		if err != nil {
			return err
		}
		_, err = q.InsertCall(ctx, db.InsertCallParams{
			ID:                  rowID,
			AppID:               appID,
			UpstreamCallID:      fields.UpstreamCallID,
			Status:              callflow.StatusVoicemail,
			FromNumber:          fields.FromNumber,
			ToNumber:            fields.ToNumber,
			UpstreamUserID:      fields.UpstreamUserID,
			VoicemailURL:        media,
			VoicemailTranscript: fields.Transcript,
		})
		return err
	}

	decision := callflow.Validate(existing.Status, callflow.StatusVoicemail)
	if decision == callflow.DecisionDrop {
		h.logger.Warn("illegal call status transition dropped",
			zap.String("upstream_call_id", fields.UpstreamCallID),
			zap.String("from", existing.Status),
			zap.String("to", callflow.StatusVoicemail),
		)
		return nil
	}

	_, err = q.UpdateCallFields(ctx, db.UpdateCallFieldsParams{
		ID:                  existing.ID,
		Status:              callflow.StatusVoicemail,
		VoicemailURL:        media,
		VoicemailTranscript: fields.Transcript,
	})
	return err
}

// emit broadcasts the voicemail delivery; Registry.Emit enriches toward
// the mapped user when one is resolvable and falls back to a tenant-wide
// broadcast otherwise.
func (h *Handlers) emit(ctx context.Context, q db.Querier, appID pgtype.UUID, vm db.Voicemail) {
	if h.fanout == nil {
		return
	}

	ev := fanout.Event{
		Event:     "voicemail.delivered",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if vm.UpstreamCallID.Valid {
		ev.UpstreamCallID = vm.UpstreamCallID.String
	}
	if vm.FromNumber.Valid {
		ev.FromNumber = vm.FromNumber.String
	}
	if vm.ToNumber.Valid {
		ev.ToNumber = vm.ToNumber.String
	}
	if vm.UpstreamUserID.Valid {
		ev.UpstreamUserID = vm.UpstreamUserID.String
	}
	if vm.DurationSeconds.Valid {
		d := vm.DurationSeconds.Int32
		ev.DurationSec = &d
	}

	h.fanout.Emit(ctx, db.App{ID: appID}, ev)
}
