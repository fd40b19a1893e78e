// Package agent turns free-text chat turns into at most one store mutation.
// The pipeline is resolver (classifier + catalog), confirmation gate,
// dispatcher, and error translator; every turn is stateless, with gate state
// persisted on the conversation row.
package agent

import (
	"encoding/json"

	"github.com/tasktalk/tasktalk/internal/store"
)

// CandidateAction is a resolved intent: one catalog operation plus the
// extracted parameters. It lives for a single turn unless the gate persists
// it for confirmation.
type CandidateAction struct {
	Op     string         `json:"op"`
	Entity string         `json:"entity"`
	Params map[string]any `json:"params,omitempty"`
}

// Encode marshals the candidate for the conversation's pending-action column.
func (c *CandidateAction) Encode() ([]byte, error) {
	return json.Marshal(c)
}

// DecodeCandidate unmarshals a pending-action payload.
func DecodeCandidate(b []byte) (*CandidateAction, error) {
	var c CandidateAction
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// OutcomeKind tags what a turn produced.
type OutcomeKind string

const (
	OutcomeExecuted    OutcomeKind = "executed"
	OutcomeReply       OutcomeKind = "reply"
	OutcomeConfirm     OutcomeKind = "needs_confirmation"
	OutcomeRejected    OutcomeKind = "rejected"
	OutcomeNotFound    OutcomeKind = "not_found"
	OutcomeAmbiguous   OutcomeKind = "ambiguous"
	OutcomeInvalid     OutcomeKind = "invalid"
	OutcomeUnavailable OutcomeKind = "unavailable"
	OutcomeUnsupported OutcomeKind = "unsupported"
)

// Outcome is the result of resolving and (maybe) dispatching one turn.
// Message is always the user-facing text; the other fields depend on Kind.
type Outcome struct {
	Kind    OutcomeKind
	Message string

	// Executed: the op that ran and what it produced.
	Op     string
	Result any

	// Confirm: the candidate persisted for the next turn.
	Candidate *CandidateAction

	// Ambiguous: the competing candidates.
	Candidates []CandidateAction

	// NotFound: suggested entities of the same kind.
	Suggestions []store.Task
}

// Summary returns a short machine-readable action tag for API responses,
// empty for purely conversational outcomes.
func (o *Outcome) Summary() string {
	switch o.Kind {
	case OutcomeExecuted:
		return o.Op
	case OutcomeConfirm:
		return "confirm:" + o.Candidate.Op
	case OutcomeReply:
		return ""
	default:
		return string(o.Kind)
	}
}
