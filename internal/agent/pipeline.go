package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tasktalk/tasktalk/internal/agent/classify"
	otelx "github.com/tasktalk/tasktalk/internal/otel"
	"github.com/tasktalk/tasktalk/internal/store"
)

// Documented pipeline constants. Options override them per deployment.
const (
	DefaultAmbiguityMargin = 0.15
	DefaultSuggestionLimit = 5
	DefaultClassifyTimeout = 30 * time.Second
	DefaultStoreTimeout    = 5 * time.Second
)

// Options tune the pipeline. Zero values fall back to the documented defaults.
type Options struct {
	HistoryWindow   int
	AmbiguityMargin float64
	SuggestionLimit int
	ConfirmCreates  bool
	ClassifyTimeout time.Duration
	StoreTimeout    time.Duration
}

// Agent is the full turn pipeline: resolver, confirmation gate, dispatcher,
// and error translator over one store and one classifier. It holds no
// per-conversation state; everything a turn needs lives in the store.
type Agent struct {
	store      store.Store
	catalog    *Catalog
	resolver   *Resolver
	dispatcher *Dispatcher
	history    *History

	// storeTimeout bounds the pipeline's own store calls (conversation
	// lookup, message log, pending-action marker), same as the dispatcher's.
	storeTimeout time.Duration
}

// New assembles the pipeline.
func New(st store.Store, cls classify.Classifier, opts Options) *Agent {
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = DefaultHistoryWindow
	}
	if opts.AmbiguityMargin <= 0 {
		opts.AmbiguityMargin = DefaultAmbiguityMargin
	}
	if opts.SuggestionLimit <= 0 {
		opts.SuggestionLimit = DefaultSuggestionLimit
	}
	if opts.ClassifyTimeout <= 0 {
		opts.ClassifyTimeout = DefaultClassifyTimeout
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = DefaultStoreTimeout
	}

	catalog := NewCatalog(opts.ConfirmCreates)
	return &Agent{
		store:   st,
		catalog: catalog,
		resolver: &Resolver{
			Classifier:      cls,
			Catalog:         catalog,
			AmbiguityMargin: opts.AmbiguityMargin,
			Timeout:         opts.ClassifyTimeout,
		},
		dispatcher: &Dispatcher{
			Store:           st,
			Catalog:         catalog,
			SuggestionLimit: opts.SuggestionLimit,
			StoreTimeout:    opts.StoreTimeout,
		},
		history:      &History{Store: st, Window: opts.HistoryWindow, Timeout: opts.StoreTimeout},
		storeTimeout: opts.StoreTimeout,
	}
}

// Catalog exposes the operation catalog for the /tools listing.
func (a *Agent) Catalog() *Catalog { return a.catalog }

// Turn is the result of one processed chat turn.
type Turn struct {
	ConversationID int64
	Outcome        *Outcome
}

// ProcessTurn runs one chat turn. A nil conversationID creates a conversation
// lazily, titled from the message. The user message is persisted before
// resolution; the assistant reply after. Returned errors mean the store could
// not even persist the turn; every agent-level failure comes back as a
// translated Outcome instead.
func (a *Agent) ProcessTurn(ctx context.Context, message string, conversationID *int64) (*Turn, error) {
	started := time.Now()

	message = strings.TrimSpace(message)
	if message == "" {
		return nil, &store.ValidationError{Field: "message", Message: "message must not be empty"}
	}

	convo, err := a.conversationFor(ctx, message, conversationID)
	if err != nil {
		return nil, err
	}

	history, err := a.history.Load(ctx, convo.ConversationID)
	if err != nil {
		return nil, err
	}
	if _, err := a.history.Append(ctx, convo.ConversationID, "user", message); err != nil {
		return nil, err
	}

	outcome := a.resolveTurn(ctx, convo, message, history)

	if _, err := a.history.Append(ctx, convo.ConversationID, "assistant", outcome.Message); err != nil {
		slog.Error("persisting assistant reply failed", "conversation", convo.ConversationID, "err", err)
		return nil, err
	}

	otelx.RecordTurn(ctx, string(outcome.Kind), time.Since(started))
	return &Turn{ConversationID: convo.ConversationID, Outcome: outcome}, nil
}

func (a *Agent) conversationFor(ctx context.Context, message string, conversationID *int64) (store.Conversation, error) {
	ctx, cancel := a.boundStore(ctx)
	defer cancel()
	if conversationID != nil {
		return a.store.GetConversation(ctx, *conversationID)
	}
	return a.store.CreateConversation(ctx, titleFromMessage(message))
}

// boundStore bounds one pipeline-level store call the same way the dispatcher
// bounds its own.
func (a *Agent) boundStore(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.storeTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, a.storeTimeout)
}

// resolveTurn handles the pending-action gate first, then fresh resolution.
func (a *Agent) resolveTurn(ctx context.Context, convo store.Conversation, message string, history []store.Message) *Outcome {
	cctx, cancel := a.boundStore(ctx)
	pending, err := a.store.ConsumePendingAction(cctx, convo.ConversationID)
	cancel()
	if err != nil {
		slog.Error("consuming pending action failed", "conversation", convo.ConversationID, "err", err)
		return &Outcome{Kind: OutcomeUnavailable, Message: msgUnavailable}
	}
	if pending != nil {
		if out := a.settlePending(ctx, convo, message, pending); out != nil {
			return out
		}
		// Neither a yes nor a no: the proposal is dropped and the reply is
		// treated as a fresh request.
	}

	candidate, verdict := a.resolver.Resolve(ctx, message, history)
	if verdict != nil {
		return verdict
	}

	if op := a.catalog.Lookup(candidate.Op); op != nil && op.RequiresConfirmation {
		return a.propose(ctx, convo, candidate)
	}
	return a.dispatcher.Dispatch(ctx, candidate, convo.ConversationID)
}

// settlePending applies the confirmation verdict to a consumed pending
// action. A nil return means the reply was neither yes nor no and the caller
// should resolve it fresh.
func (a *Agent) settlePending(ctx context.Context, convo store.Conversation, message string, pending *store.PendingAction) *Outcome {
	candidate, err := DecodeCandidate(pending.Payload)
	if err != nil {
		slog.Error("undecodable pending action dropped", "conversation", convo.ConversationID, "err", err)
		return nil
	}
	switch ReadConfirmation(message) {
	case VerdictAffirm:
		return a.dispatcher.Dispatch(ctx, candidate, convo.ConversationID)
	case VerdictNegate:
		return &Outcome{
			Kind:    OutcomeRejected,
			Message: fmt.Sprintf("Okay, I won't %s. Nothing was changed.", describeOp(candidate)),
		}
	default:
		return nil
	}
}

// propose persists the candidate as the conversation's pending action and
// asks for confirmation. No mutation happens on this turn.
func (a *Agent) propose(ctx context.Context, convo store.Conversation, candidate *CandidateAction) *Outcome {
	payload, err := candidate.Encode()
	if err != nil {
		return &Outcome{Kind: OutcomeInvalid, Message: msgBadArguments(candidate.Op)}
	}
	cctx, cancel := a.boundStore(ctx)
	defer cancel()
	if err := a.store.SetPendingAction(cctx, convo.ConversationID, payload, convo.MessageCount+1); err != nil {
		slog.Error("persisting pending action failed", "conversation", convo.ConversationID, "err", err)
		return &Outcome{Kind: OutcomeUnavailable, Message: msgUnavailable}
	}
	return &Outcome{
		Kind:      OutcomeConfirm,
		Message:   ConfirmationPrompt(candidate),
		Candidate: candidate,
	}
}

// titleFromMessage derives a lazy conversation title from the first message.
// Truncation backs up to a rune boundary so the title stays valid UTF-8.
func titleFromMessage(message string) string {
	title := strings.Join(strings.Fields(message), " ")
	if len(title) > 60 {
		cut := 60
		for cut > 0 && !utf8.RuneStart(title[cut]) {
			cut--
		}
		title = strings.TrimSpace(title[:cut]) + "…"
	}
	return title
}
