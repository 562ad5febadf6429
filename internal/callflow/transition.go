// Package callflow implements the per-call state machine: the transition
// matrix, direction normalization, payload sanitization, and the
// ring/started/ended/recording-completed event handlers that upsert the
// calls table under that matrix. The read-existing/validate/write idiom
// follows discovery-service's scan poller (processJob /
// UpdateScanJobStatus), generalized to the matrix below.
package callflow

// Statuses named by the transition matrix.
const (
	StatusRinging   = "ringing"
	StatusActive    = "active"
	StatusEnded     = "ended"
	StatusMissed    = "missed"
	StatusRejected  = "rejected"
	StatusVoicemail = "voicemail"
)

// statusNone represents "no existing row" — the left column of the
// matrix, from which every status is reachable.
const statusNone = ""

// transitions enumerates, for each current status, the set of next
// statuses that are accepted as a genuine transition (excluding
// same-state re-entry, which is always permitted and handled separately
// by Validate). A (from, to) pair absent from this set — and not equal
// to from — is dropped: the existing row is preserved and a warning is
// logged. Terminal states are sticky against late or out-of-order events.
var transitions = map[string]map[string]bool{
	statusNone: {
		StatusRinging: true, StatusActive: true, StatusEnded: true,
		StatusMissed: true, StatusRejected: true, StatusVoicemail: true,
	},
	StatusRinging: {
		StatusActive: true, StatusEnded: true, StatusMissed: true,
		StatusRejected: true, StatusVoicemail: true,
	},
	StatusActive: {
		StatusEnded: true, StatusVoicemail: true,
	},
	StatusEnded:     {},
	StatusMissed:    {},
	StatusRejected:  {},
	StatusVoicemail: {},
}

// Decision is the outcome of validating a proposed transition.
type Decision int

const (
	// DecisionAccept means the row should be written with the new status.
	DecisionAccept Decision = iota
	// DecisionSame means the target status equals the current one; the
	// write is idempotent and permitted, but callers may skip it as a
	// no-op optimization.
	DecisionSame
	// DecisionDrop means the proposed transition is illegal from the
	// current status; the existing row (or absence of one) must be left
	// untouched.
	DecisionDrop
)

// Validate applies the matrix to a proposed (from, to) pair. from is
// statusNone ("") when no call row exists yet.
func Validate(from, to string) Decision {
	if from == to && from != statusNone {
		return DecisionSame
	}
	if transitions[from][to] {
		return DecisionAccept
	}
	return DecisionDrop
}
