package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	otelx "github.com/tasktalk/tasktalk/internal/otel"
	"github.com/tasktalk/tasktalk/internal/store"
)

// Dispatcher executes one approved candidate against the store. Each op maps
// to exactly one statically known handler; an approved candidate causes at
// most one mutation.
type Dispatcher struct {
	Store   store.Store
	Catalog *Catalog

	// SuggestionLimit caps "did you mean" suggestions on a failed lookup.
	// StoreTimeout bounds each store call.
	SuggestionLimit int
	StoreTimeout    time.Duration
}

// Dispatch re-validates the candidate against the catalog and runs it. The
// conversationID (0 for none) associates created tasks with the chat.
func (d *Dispatcher) Dispatch(ctx context.Context, c *CandidateAction, conversationID int64) *Outcome {
	op := d.Catalog.Lookup(c.Op)
	if op == nil {
		return &Outcome{Kind: OutcomeUnsupported, Message: "That operation isn't available."}
	}
	params, err := op.ExtractParams(c.Params)
	if err != nil {
		var ve *store.ValidationError
		if errors.As(err, &ve) {
			return &Outcome{Kind: OutcomeInvalid, Message: describeValidation(ve)}
		}
		return &Outcome{Kind: OutcomeInvalid, Message: msgBadArguments(c.Op)}
	}

	var out *Outcome
	switch op.Name {
	case "create_task":
		out = d.createTask(ctx, params, conversationID)
	case "get_task":
		out = d.getTask(ctx, params)
	case "update_task":
		out = d.updateTask(ctx, params)
	case "delete_task":
		out = d.deleteTask(ctx, params)
	case "list_tasks":
		out = d.listTasks(ctx, params)
	case "create_conversation":
		out = d.createConversation(ctx, params)
	case "get_conversation":
		out = d.getConversation(ctx, params)
	default:
		return &Outcome{Kind: OutcomeUnsupported, Message: "That operation isn't available."}
	}
	otelx.RecordStoreOp(ctx, op.Name, out.Kind == OutcomeExecuted)
	return out
}

func (d *Dispatcher) createTask(ctx context.Context, params map[string]any, conversationID int64) *Outcome {
	draft := store.TaskDraft{
		Title:       stringParam(params, "title"),
		Description: stringParam(params, "description"),
		Status:      stringParam(params, "status"),
		Priority:    stringParam(params, "priority"),
	}
	if conversationID > 0 {
		draft.ConversationID = &conversationID
	}
	task, err := d.mutateTask(ctx, func(ctx context.Context) (store.Task, error) {
		return d.Store.CreateTask(ctx, draft)
	})
	if err != nil {
		return d.storeFailure(ctx, err, "task")
	}
	return &Outcome{
		Kind:    OutcomeExecuted,
		Op:      "create_task",
		Result:  task,
		Message: fmt.Sprintf("Created task #%d: %q (%s, %s priority).", task.TaskID, task.Title, task.Status, task.Priority),
	}
}

func (d *Dispatcher) getTask(ctx context.Context, params map[string]any) *Outcome {
	id := intParam(params, "task_id")
	task, err := d.readTask(ctx, func(ctx context.Context) (store.Task, error) {
		return d.Store.GetTask(ctx, id)
	})
	if err != nil {
		return d.storeFailure(ctx, err, "task")
	}
	msg := fmt.Sprintf("Task #%d: %q is %s (%s priority).", task.TaskID, task.Title, task.Status, task.Priority)
	if task.Description != "" {
		msg += " " + task.Description
	}
	return &Outcome{Kind: OutcomeExecuted, Op: "get_task", Result: task, Message: msg}
}

func (d *Dispatcher) updateTask(ctx context.Context, params map[string]any) *Outcome {
	id := intParam(params, "task_id")
	update := store.TaskUpdate{
		Title:       stringParamPtr(params, "title"),
		Description: stringParamPtr(params, "description"),
		Status:      stringParamPtr(params, "status"),
		Priority:    stringParamPtr(params, "priority"),
	}
	if update.Title == nil && update.Description == nil && update.Status == nil && update.Priority == nil {
		return &Outcome{Kind: OutcomeInvalid, Message: "Tell me what to change on that task (title, description, status, or priority)."}
	}
	task, err := d.mutateTask(ctx, func(ctx context.Context) (store.Task, error) {
		return d.Store.UpdateTask(ctx, id, update)
	})
	if err != nil {
		return d.storeFailure(ctx, err, "task")
	}
	return &Outcome{
		Kind:    OutcomeExecuted,
		Op:      "update_task",
		Result:  task,
		Message: fmt.Sprintf("Updated task #%d: %q is now %s (%s priority).", task.TaskID, task.Title, task.Status, task.Priority),
	}
}

func (d *Dispatcher) deleteTask(ctx context.Context, params map[string]any) *Outcome {
	id := intParam(params, "task_id")
	task, err := d.mutateTask(ctx, func(ctx context.Context) (store.Task, error) {
		return d.Store.DeleteTask(ctx, id)
	})
	if err != nil {
		return d.storeFailure(ctx, err, "task")
	}
	return &Outcome{
		Kind:    OutcomeExecuted,
		Op:      "delete_task",
		Result:  task,
		Message: fmt.Sprintf("Deleted task #%d: %q.", task.TaskID, task.Title),
	}
}

func (d *Dispatcher) listTasks(ctx context.Context, params map[string]any) *Outcome {
	filter := store.TaskFilter{
		Status:   stringParam(params, "status"),
		Priority: stringParam(params, "priority"),
	}
	var tasks []store.Task
	err := d.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		tasks, err = d.Store.ListTasks(ctx, filter)
		return err
	}, true)
	if err != nil {
		return d.storeFailure(ctx, err, "task")
	}
	return &Outcome{Kind: OutcomeExecuted, Op: "list_tasks", Result: tasks, Message: renderTaskList(tasks, filter)}
}

func (d *Dispatcher) createConversation(ctx context.Context, params map[string]any) *Outcome {
	title := stringParam(params, "title")
	var convo store.Conversation
	err := d.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		convo, err = d.Store.CreateConversation(ctx, title)
		return err
	}, false)
	if err != nil {
		return d.storeFailure(ctx, err, "conversation")
	}
	return &Outcome{
		Kind:    OutcomeExecuted,
		Op:      "create_conversation",
		Result:  convo,
		Message: fmt.Sprintf("Started conversation #%d: %q.", convo.ConversationID, convo.Title),
	}
}

func (d *Dispatcher) getConversation(ctx context.Context, params map[string]any) *Outcome {
	id := intParam(params, "conversation_id")
	var convo store.Conversation
	err := d.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		convo, err = d.Store.GetConversation(ctx, id)
		return err
	}, true)
	if err != nil {
		return d.storeFailure(ctx, err, "conversation")
	}
	return &Outcome{
		Kind:    OutcomeExecuted,
		Op:      "get_conversation",
		Result:  convo,
		Message: fmt.Sprintf("Conversation #%d: %q has %d messages and %d tasks.", convo.ConversationID, convo.Title, convo.MessageCount, convo.TaskCount),
	}
}

// withTimeout bounds one store call. Reads (retriable) get a single retry on
// ErrUnavailable; mutations never retry.
func (d *Dispatcher) withTimeout(ctx context.Context, fn func(context.Context) error, retriable bool) error {
	call := func() error {
		cctx := ctx
		if d.StoreTimeout > 0 {
			var cancel context.CancelFunc
			cctx, cancel = context.WithTimeout(ctx, d.StoreTimeout)
			defer cancel()
		}
		return fn(cctx)
	}
	err := call()
	if err != nil && retriable && errors.Is(err, store.ErrUnavailable) {
		slog.Warn("store read failed, retrying once", "err", err)
		err = call()
	}
	return err
}

func (d *Dispatcher) mutateTask(ctx context.Context, fn func(context.Context) (store.Task, error)) (store.Task, error) {
	var task store.Task
	err := d.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		task, err = fn(ctx)
		return err
	}, false)
	return task, err
}

func (d *Dispatcher) readTask(ctx context.Context, fn func(context.Context) (store.Task, error)) (store.Task, error) {
	var task store.Task
	err := d.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		task, err = fn(ctx)
		return err
	}, true)
	return task, err
}

// storeFailure translates a store error into an Outcome. Raw error text never
// reaches the reply.
func (d *Dispatcher) storeFailure(ctx context.Context, err error, entity string) *Outcome {
	var ve *store.ValidationError
	switch {
	case errors.As(err, &ve):
		return &Outcome{Kind: OutcomeInvalid, Message: describeValidation(ve)}
	case errors.Is(err, store.ErrNotFound):
		msg, suggestions := describeNotFound(ctx, d.Store, entity, d.SuggestionLimit)
		return &Outcome{Kind: OutcomeNotFound, Message: msg, Suggestions: suggestions}
	default:
		slog.Error("store call failed", "entity", entity, "err", err)
		return &Outcome{Kind: OutcomeUnavailable, Message: msgUnavailable}
	}
}

func renderTaskList(tasks []store.Task, filter store.TaskFilter) string {
	if len(tasks) == 0 {
		if filter.Status != "" || filter.Priority != "" {
			return "No tasks match that filter."
		}
		return "You have no tasks yet. Say \"create a task called ...\" to add one."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You have %d task(s):\n", len(tasks))
	for _, t := range tasks {
		fmt.Fprintf(&b, "  #%d %s [%s, %s]\n", t.TaskID, t.Title, t.Status, t.Priority)
	}
	return strings.TrimRight(b.String(), "\n")
}

func stringParam(params map[string]any, key string) string {
	s, _ := params[key].(string)
	return s
}

func stringParamPtr(params map[string]any, key string) *string {
	if s, ok := params[key].(string); ok && s != "" {
		return &s
	}
	return nil
}

func intParam(params map[string]any, key string) int64 {
	switch n := params[key].(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	}
	return 0
}
