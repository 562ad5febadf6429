// Package message implements the message handler: an idempotent upsert
// keyed on the upstream message id, with no state machine and no fanout.
// Direction is derived first from explicit payload fields, then from the
// event type string, following the same fixed-alias parsing idiom as
// internal/callflow rather than a separate ad hoc lookup.
package message

import (
	"context"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"go.uber.org/zap"

	"github.com/arc-self/dialpad-broker/internal/dispatcher"
	"github.com/arc-self/dialpad-broker/internal/store/db"
)

var (
	messageIDAliases  = []string{"id", "message_id"}
	fromNumberAliases = []string{"from", "from_number", "sender"}
	toNumberAliases   = []string{"to", "to_number", "recipient"}
	bodyAliases       = []string{"text", "body", "message"}
	userIDAliases     = []string{"user_id", "sending_user_id", "agent_id"}
	directionAliases  = []string{"direction"}
)

// Handlers wires the message handler to its logger; unlike call and
// voicemail handlers it does not hold a fanout dependency, since no
// fanout event is emitted by this handler in the current design.
type Handlers struct {
	logger *zap.Logger
}

func NewHandlers(logger *zap.Logger) *Handlers {
	return &Handlers{logger: logger}
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

// Handle is the dispatcher.Handler for inbound/outbound message events.
func (h *Handlers) Handle(ctx context.Context, q db.Querier, event db.RawEvent) error {
	if !event.AppID.Valid {
		h.logger.Warn("message event has no resolved tenant, skipping")
		return nil
	}

	payload, err := dispatcher.DecodePayload(event.Payload)
	if err != nil {
		return err
	}

	messageID, _ := firstString(payload, messageIDAliases)
	if messageID == "" {
		h.logger.Warn("message event missing upstream message id, skipping",
			zap.String("raw_event_id", event.ID.String()),
		)
		return nil
	}

	direction := resolveDirection(payload, event.EventType)

	var body, fromNumber, toNumber, userID pgtype.Text
	if v, ok := firstString(payload, bodyAliases); ok {
		body = pgtype.Text{String: v, Valid: true}
	}
	if v, ok := firstString(payload, fromNumberAliases); ok {
		fromNumber = pgtype.Text{String: v, Valid: true}
	}
	if v, ok := firstString(payload, toNumberAliases); ok {
		toNumber = pgtype.Text{String: v, Valid: true}
	}
	if v, ok := firstString(payload, userIDAliases); ok {
		userID = pgtype.Text{String: v, Valid: true}
	}

	rowID, err := newRowID()
	if err != nil {
		return err
	}

	_, err = q.UpsertMessage(ctx, db.UpsertMessageParams{
		ID:                rowID,
		AppID:             event.AppID,
		UpstreamMessageID: messageID,
		Direction:         direction,
		FromNumber:        fromNumber,
		ToNumber:          toNumber,
		Body:              body,
		UpstreamUserID:    userID,
	})
	return err
}

// resolveDirection tries the explicit payload field first; when absent
// or unrecognized, it falls back to matching substrings of the event
// type string itself. Neither yielding a value leaves the row null
// rather than guessing.
func resolveDirection(payload map[string]interface{}, eventType string) pgtype.Text {
	if raw, ok := firstString(payload, directionAliases); ok {
		switch strings.ToLower(strings.TrimSpace(raw)) {
		case "inbound", "incoming", "in":
			return pgtype.Text{String: "inbound", Valid: true}
		case "outbound", "outgoing", "out":
			return pgtype.Text{String: "outbound", Valid: true}
		}
	}

	lower := strings.ToLower(eventType)
	switch {
	case strings.Contains(lower, "received"), strings.Contains(lower, "inbound"):
		return pgtype.Text{String: "inbound", Valid: true}
	case strings.Contains(lower, "sent"), strings.Contains(lower, "outbound"):
		return pgtype.Text{String: "outbound", Valid: true}
	default:
		return pgtype.Text{}
	}
}

func firstString(obj map[string]interface{}, keys []string) (string, bool) {
	for _, k := range keys {
		v, ok := obj[k]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case string:
			if t != "" {
				return t, true
			}
		case float64:
			i := int64(t)
			if float64(i) == t {
				return strconv.FormatInt(i, 10), true
			}
			return strconv.FormatFloat(t, 'f', -1, 64), true
		}
	}
	return "", false
}
