// Package httpapi serves the chat endpoint, task and conversation CRUD, the
// tool catalog, and the SSE event stream over a stdlib ServeMux.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tasktalk/tasktalk/internal/agent"
	"github.com/tasktalk/tasktalk/internal/agent/classify"
	"github.com/tasktalk/tasktalk/internal/store"
	"github.com/tasktalk/tasktalk/internal/store/postgres"
	"github.com/tasktalk/tasktalk/internal/ui"
	"github.com/tasktalk/tasktalk/pkg/models"
)

// defaultMaxRequestBodyBytes is the default limit for request body size (1 MiB) to prevent OOM.
const defaultMaxRequestBodyBytes = 1 << 20

// ServerOptions configures the HTTP server (home dir, listen addr, API key, DB, agent).
type ServerOptions struct {
	Home           string
	Addr           string
	Dev            bool
	APIKey         string       // if set, require X-API-Key header or query api_key
	DBDriver       string       // "sqlite" (default) or "postgres"
	DBURL          string       // for postgres: connection string (or set DATABASE_URL env)
	MetricsHandler http.Handler // if set, used for /metrics (e.g. OTel Prometheus handler)
	UseOtelHTTP    bool         // if true, wrap handler with otelhttp for request metrics

	// Classifier backs the chat pipeline; defaults to the scripted keyword
	// classifier when nil. Agent tunes the pipeline constants.
	Classifier classify.Classifier
	Agent      agent.Options
}

// App holds the HTTP server, SSE hub, store, agent pipeline, and home path.
type App struct {
	Server *http.Server
	Hub    *SSEHub
	Store  store.Store
	Agent  *agent.Agent
	Home   string
}

// NewApp creates the HTTP app (server, hub, store, agent) and registers all routes.
func NewApp(opts ServerOptions) (*App, error) {
	hub := NewSSEHub()
	mux := http.NewServeMux()

	var st store.Store
	var err error
	if opts.DBDriver == "postgres" {
		st, err = postgres.Open(opts.DBURL)
	} else {
		st, err = store.Open(opts.Home)
	}
	if err != nil {
		return nil, err
	}
	_ = st.SeedDemo(context.Background())

	cls := opts.Classifier
	if cls == nil {
		cls = classify.Scripted{}
	}
	ag := agent.New(st, cls, opts.Agent)
	app := &App{Hub: hub, Store: st, Agent: ag, Home: opts.Home}

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"ok": true})
	})

	if opts.MetricsHandler != nil {
		mux.Handle("/metrics", opts.MetricsHandler)
	} else {
		mux.HandleFunc("/metrics", app.handlePlainMetrics)
	}

	mux.HandleFunc("/stream", hub.Handler())
	mux.HandleFunc("/chat", app.handleChat)
	mux.HandleFunc("/tools", app.handleTools)
	mux.HandleFunc("/tasks", app.handleTasks)
	mux.HandleFunc("/tasks/", app.handleTaskByID)
	mux.HandleFunc("/conversations", app.handleConversations)
	mux.HandleFunc("/conversations/", app.handleConversationByID)
	mux.Handle("/", ui.Handler())

	var handler http.Handler = mux
	handler = bodyLimitMiddleware(defaultMaxRequestBodyBytes, handler)
	if opts.Dev {
		handler = corsMiddleware(handler)
	}
	if opts.APIKey != "" {
		handler = apiKeyMiddleware(opts.APIKey, handler)
	}
	handler = requestLogMiddleware(handler)
	if opts.UseOtelHTTP {
		handler = otelhttp.NewHandler(handler, "tasktalk")
	}
	srv := &http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	srv.RegisterOnShutdown(func() {
		_ = st.Close()
	})
	app.Server = srv
	return app, nil
}

// handleChat drives one agent turn. Agent-level failures (ambiguity, not
// found, validation) come back as 200 with conversational text; error status
// codes mean the turn could not even be persisted.
func (a *App) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var body models.TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}

	turn, err := a.Agent.ProcessTurn(r.Context(), body.Message, body.ConversationID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	a.Hub.PublishMessage(turn.ConversationID, "assistant")
	if turn.Outcome.Kind == agent.OutcomeExecuted {
		if task, ok := turn.Outcome.Result.(store.Task); ok {
			a.Hub.PublishTaskUpdate(turn.Outcome.Op, task.TaskID, turn.ConversationID)
		}
	}

	writeJSON(w, models.TurnResponse{
		ConversationID: turn.ConversationID,
		ResponseText:   turn.Outcome.Message,
		ActionSummary:  turn.Outcome.Summary(),
	})
}

func (a *App) handleTools(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, map[string]any{"tools": a.Agent.Catalog().Tools()})
}

func (a *App) handleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		filter := store.TaskFilter{
			Status:   r.URL.Query().Get("status"),
			Priority: r.URL.Query().Get("priority"),
		}
		if limit := r.URL.Query().Get("limit"); limit != "" {
			n, err := strconv.Atoi(limit)
			if err != nil {
				writeJSONError(w, http.StatusBadRequest, "invalid limit")
				return
			}
			filter.Limit = n
		}
		tasks, err := a.Store.ListTasks(r.Context(), filter)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, map[string]any{"tasks": toAPITasks(tasks)})
	case http.MethodPost:
		var body struct {
			Title          string `json:"title"`
			Description    string `json:"description"`
			Status         string `json:"status"`
			Priority       string `json:"priority"`
			ConversationID *int64 `json:"conversation_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid json")
			return
		}
		task, err := a.Store.CreateTask(r.Context(), store.TaskDraft{
			Title:          body.Title,
			Description:    body.Description,
			Status:         body.Status,
			Priority:       body.Priority,
			ConversationID: body.ConversationID,
		})
		if err != nil {
			writeStoreError(w, err)
			return
		}
		a.Hub.PublishTaskUpdate("create_task", task.TaskID, derefID(task.ConversationID))
		writeJSONStatus(w, http.StatusCreated, toAPITask(task))
	default:
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (a *App) handleTaskByID(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r.URL.Path, "/tasks/")
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		task, err := a.Store.GetTask(r.Context(), id)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, toAPITask(task))
	case http.MethodPatch:
		var body struct {
			Title       *string `json:"title"`
			Description *string `json:"description"`
			Status      *string `json:"status"`
			Priority    *string `json:"priority"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid json")
			return
		}
		task, err := a.Store.UpdateTask(r.Context(), id, store.TaskUpdate{
			Title:       body.Title,
			Description: body.Description,
			Status:      body.Status,
			Priority:    body.Priority,
		})
		if err != nil {
			writeStoreError(w, err)
			return
		}
		a.Hub.PublishTaskUpdate("update_task", task.TaskID, derefID(task.ConversationID))
		writeJSON(w, toAPITask(task))
	case http.MethodDelete:
		task, err := a.Store.DeleteTask(r.Context(), id)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		a.Hub.PublishTaskUpdate("delete_task", task.TaskID, derefID(task.ConversationID))
		writeJSON(w, map[string]any{"ok": true, "deleted": toAPITask(task)})
	default:
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (a *App) handleConversations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		limit := 0
		if s := r.URL.Query().Get("limit"); s != "" {
			limit, _ = strconv.Atoi(s)
		}
		convos, err := a.Store.ListConversations(r.Context(), limit)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		out := make([]models.Conversation, len(convos))
		for i, c := range convos {
			out[i] = toAPIConversation(c)
		}
		writeJSON(w, map[string]any{"conversations": out})
	case http.MethodPost:
		var body struct {
			Title string `json:"title"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid json")
			return
		}
		convo, err := a.Store.CreateConversation(r.Context(), body.Title)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSONStatus(w, http.StatusCreated, toAPIConversation(convo))
	default:
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (a *App) handleConversationByID(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r.URL.Path, "/conversations/")
	if !ok {
		return
	}
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	convo, err := a.Store.GetConversation(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	msgs, err := a.Store.ListMessages(r.Context(), id, 0)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	out := make([]models.Message, len(msgs))
	for i, m := range msgs {
		out[i] = toAPIMessage(m)
	}
	writeJSON(w, map[string]any{
		"conversation": toAPIConversation(convo),
		"messages":     out,
	})
}

// handlePlainMetrics is the fallback when no OTel Prometheus handler is
// configured: a single task gauge in exposition format.
func (a *App) handlePlainMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	counts := map[string]int64{}
	tasks, _ := a.Store.ListTasks(r.Context(), store.TaskFilter{})
	for _, t := range tasks {
		counts[t.Status]++
	}
	_, _ = fmt.Fprintf(w, "# TYPE tasktalk_tasks_total gauge\n")
	for _, status := range models.TaskStatuses() {
		_, _ = fmt.Fprintf(w, "tasktalk_tasks_total{status=%q} %d\n", status, counts[status])
	}
}

func pathID(w http.ResponseWriter, path, prefix string) (int64, bool) {
	rest := strings.TrimSuffix(strings.TrimPrefix(path, prefix), "/")
	if rest == "" || strings.Contains(rest, "/") {
		writeJSONError(w, http.StatusNotFound, "not found")
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

// writeStoreError maps the store failure contract onto HTTP status codes.
// Raw driver errors are logged, never sent to the client.
func writeStoreError(w http.ResponseWriter, err error) {
	var ve *store.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSONError(w, http.StatusBadRequest, ve.Error())
	case errors.Is(err, store.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrUnavailable):
		slog.Error("store unavailable", "err", err)
		writeJSONError(w, http.StatusServiceUnavailable, "store unavailable")
	default:
		slog.Error("request failed", "err", err)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

func toAPITask(t store.Task) models.Task {
	return models.Task{
		TaskID:         t.TaskID,
		Title:          t.Title,
		Description:    t.Description,
		Status:         t.Status,
		Priority:       t.Priority,
		ConversationID: t.ConversationID,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
}

func toAPITasks(tasks []store.Task) []models.Task {
	out := make([]models.Task, len(tasks))
	for i, t := range tasks {
		out[i] = toAPITask(t)
	}
	return out
}

func toAPIConversation(c store.Conversation) models.Conversation {
	return models.Conversation{
		ConversationID: c.ConversationID,
		PublicID:       c.PublicID,
		Title:          c.Title,
		MessageCount:   c.MessageCount,
		TaskCount:      c.TaskCount,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}

func toAPIMessage(m store.Message) models.Message {
	return models.Message{
		MessageID:      m.MessageID,
		ConversationID: m.ConversationID,
		Role:           m.Role,
		Content:        m.Content,
		CreatedAt:      m.CreatedAt,
	}
}

func derefID(id *int64) int64 {
	if id == nil {
		return 0
	}
	return *id
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeJSONStatus(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

// writeJSONError sends a JSON body {"error": "message"} with the given status code.
func writeJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": message})
}
