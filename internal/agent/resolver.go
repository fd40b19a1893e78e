package agent

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/tasktalk/tasktalk/internal/agent/classify"
	otelx "github.com/tasktalk/tasktalk/internal/otel"
	"github.com/tasktalk/tasktalk/internal/store"
)

const systemPrompt = "You are a task management assistant. Map the user's request onto exactly one of the provided tools when they want something done to their tasks or conversations, and answer directly otherwise. Never guess ids or invent parameters."

// Resolver turns one utterance plus bounded history into a candidate action,
// a conversational reply, or an ambiguity verdict.
type Resolver struct {
	Classifier classify.Classifier
	Catalog    *Catalog

	// AmbiguityMargin is the score gap under which two candidates count as a
	// tie. Timeout bounds the classifier call.
	AmbiguityMargin float64
	Timeout         time.Duration
}

// Resolve classifies the utterance. The returned Outcome is one of Reply,
// Ambiguous, Invalid, Unsupported, or Unavailable; a non-nil CandidateAction
// means the caller should continue to the gate.
func (r *Resolver) Resolve(ctx context.Context, utterance string, history []store.Message) (*CandidateAction, *Outcome) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	req := classify.Request{
		System:    systemPrompt,
		Utterance: utterance,
		History:   toTurns(history),
		Tools:     r.Catalog.ToolDefs(),
	}
	started := time.Now()
	res, err := r.Classifier.Classify(ctx, req)
	otelx.RecordClassify(ctx, r.Classifier.Name(), time.Since(started))
	if err != nil {
		slog.Warn("classifier call failed", "classifier", r.Classifier.Name(), "err", err)
		return nil, &Outcome{Kind: OutcomeUnavailable, Message: msgUnavailable}
	}

	if len(res.Calls) == 0 {
		text := res.Text
		if text == "" {
			text = "I didn't catch a task request there. Tell me what you'd like to do, for example \"list my tasks\"."
		}
		return nil, &Outcome{Kind: OutcomeReply, Message: text}
	}

	candidates, verdict := r.vet(res.Calls)
	if verdict != nil {
		return nil, verdict
	}
	if len(candidates) > 1 {
		return nil, &Outcome{
			Kind:       OutcomeAmbiguous,
			Message:    describeAmbiguity(candidates),
			Candidates: candidates,
		}
	}
	return &candidates[0], nil
}

// vet checks every call against the catalog and applies the tie rule: two or
// more surviving candidates, or scores within AmbiguityMargin, are never
// collapsed by picking the first.
func (r *Resolver) vet(calls []classify.ToolCall) ([]CandidateAction, *Outcome) {
	best, runnerUp := topScores(calls)
	if len(calls) > 1 && best-runnerUp > r.AmbiguityMargin {
		// One call stands clearly above the rest.
		calls = []classify.ToolCall{maxCall(calls)}
	}

	candidates := make([]CandidateAction, 0, len(calls))
	for _, call := range calls {
		op := r.Catalog.Lookup(call.Name)
		if op == nil {
			return nil, &Outcome{
				Kind:    OutcomeUnsupported,
				Message: "I can't do that yet. I can create, show, update, delete, and list tasks, and manage conversations.",
			}
		}
		var raw map[string]any
		if call.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Arguments), &raw); err != nil {
				return nil, &Outcome{Kind: OutcomeInvalid, Message: msgBadArguments(op.Name)}
			}
		}
		params, err := op.ExtractParams(raw)
		if err != nil {
			var ve *store.ValidationError
			if errors.As(err, &ve) {
				return nil, &Outcome{Kind: OutcomeInvalid, Message: describeValidation(ve)}
			}
			return nil, &Outcome{Kind: OutcomeInvalid, Message: msgBadArguments(op.Name)}
		}
		candidates = append(candidates, CandidateAction{Op: op.Name, Entity: op.Entity, Params: params})
	}
	return candidates, nil
}

func toTurns(history []store.Message) []classify.Turn {
	turns := make([]classify.Turn, len(history))
	for i, m := range history {
		turns[i] = classify.Turn{Role: m.Role, Content: m.Content}
	}
	return turns
}

func topScores(calls []classify.ToolCall) (best, runnerUp float64) {
	for _, c := range calls {
		if c.Score > best {
			runnerUp = best
			best = c.Score
		} else if c.Score > runnerUp {
			runnerUp = c.Score
		}
	}
	return best, runnerUp
}

func maxCall(calls []classify.ToolCall) classify.ToolCall {
	top := calls[0]
	for _, c := range calls[1:] {
		if c.Score > top.Score {
			top = c
		}
	}
	return top
}
