package callflow

import (
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
)

// Fixed alias lists backing a documented, tagged-variant parser instead
// of runtime path probing. Each list is tried in order; the first
// present, non-empty value wins.
var (
	callIDAliases       = []string{"id", "call_id"}
	fromNumberAliases   = []string{"from", "from_number", "caller"}
	toNumberAliases     = []string{"to", "to_number", "callee"}
	userIDAliases       = []string{"user_id", "dialing_user_id", "agent_id"}
	durationAliases     = []string{"duration", "duration_seconds", "call_duration"}
	recordingAliases    = []string{"recording_url", "recording"}
	voicemailURLAliases = []string{"voicemail_url", "voicemail_recording_url"}
	transcriptAliases   = []string{"transcript", "voicemail_transcript"}
)

// Fields is the tagged-variant projection of a call event's payload: the
// small set of fields every call handler needs, pulled out via the fixed
// alias ladder above.
type Fields struct {
	UpstreamCallID string
	Direction      pgtype.Text
	FromNumber     pgtype.Text
	ToNumber       pgtype.Text
	UpstreamUserID pgtype.Text
	DurationSec    pgtype.Int4
	RecordingURL   pgtype.Text
	VoicemailURL   pgtype.Text
	Transcript     pgtype.Text
	DirectionRaw   string // the raw, un-normalized value, for logging
}

// callObject returns the nested "call" object when present, falling
// back to the top-level payload itself — voicemail and some call events
// carry their fields at the top level rather than nested.
func callObject(payload map[string]interface{}) map[string]interface{} {
	if c, ok := payload["call"].(map[string]interface{}); ok {
		return c
	}
	return payload
}

// ParseFields extracts the fixed set of call fields from a decoded
// webhook payload.
func ParseFields(payload map[string]interface{}) Fields {
	obj := callObject(payload)

	var f Fields
	f.UpstreamCallID, _ = firstString(obj, callIDAliases)
	f.DirectionRaw, _ = firstString(obj, []string{"direction"})
	if norm, ok := NormalizeDirection(f.DirectionRaw); ok {
		f.Direction = norm
	}
	if v, ok := firstString(obj, fromNumberAliases); ok {
		f.FromNumber = pgtype.Text{String: v, Valid: true}
	}
	if v, ok := firstString(obj, toNumberAliases); ok {
		f.ToNumber = pgtype.Text{String: v, Valid: true}
	}
	if v, ok := firstString(obj, userIDAliases); ok {
		f.UpstreamUserID = pgtype.Text{String: v, Valid: true}
	}
	if n, ok := firstInt(obj, durationAliases); ok {
		f.DurationSec = pgtype.Int4{Int32: n, Valid: true}
	}
	if v, ok := firstString(obj, recordingAliases); ok {
		f.RecordingURL = pgtype.Text{String: v, Valid: true}
	}
	if v, ok := firstString(obj, voicemailURLAliases); ok {
		f.VoicemailURL = pgtype.Text{String: v, Valid: true}
	}
	if v, ok := firstString(obj, transcriptAliases); ok {
		f.Transcript = pgtype.Text{String: v, Valid: true}
	}
	return f
}

// NormalizeDirection maps the many spellings a provider uses for call
// direction onto {inbound, outbound}. Anything unrecognized normalizes
// to (zero value, false) so the caller can log a warning and leave
// direction null.
func NormalizeDirection(raw string) (pgtype.Text, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "inbound", "incoming", "in":
		return pgtype.Text{String: "inbound", Valid: true}, true
	case "outbound", "outgoing", "out":
		return pgtype.Text{String: "outbound", Valid: true}, true
	default:
		return pgtype.Text{}, false
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
			return formatFloat(t), true
		}
	}
	return "", false
}

func firstInt(obj map[string]interface{}, keys []string) (int32, bool) {
	for _, k := range keys {
		v, ok := obj[k]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case float64:
			return int32(t), true
		case string:
			if n, err := strconv.Atoi(t); err == nil {
				return int32(n), true
			}
		}
	}
	return 0, false
}

func formatFloat(f float64) string {
	i := int64(f)
	if float64(i) == f {
		return strconv.FormatInt(i, 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
