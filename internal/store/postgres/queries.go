package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tasktalk/tasktalk/internal/store"
	"github.com/tasktalk/tasktalk/pkg/models"
)

const defaultListLimit = 100

func notFoundf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, store.ErrNotFound)...)
}

func unavailable(err error) error {
	if err == nil {
		return nil
	}
	var ve *store.ValidationError
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrUnavailable) || errors.As(err, &ve) {
		return err
	}
	return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
}

func (s *Store) CreateTask(ctx context.Context, draft store.TaskDraft) (store.Task, error) {
	if err := store.NormalizeDraft(&draft); err != nil {
		return store.Task{}, err
	}
	if draft.ConversationID != nil {
		if _, err := s.GetConversation(ctx, *draft.ConversationID); err != nil {
			return store.Task{}, err
		}
	}
	now := time.Now().UTC().Unix()
	var id int64
	err := s.Pool.QueryRow(ctx,
		`INSERT INTO tasks(title, description, status, priority, conversation_id, created_at, updated_at)
		 VALUES($1, $2, $3, $4, $5, $6, $7) RETURNING task_id`,
		draft.Title, draft.Description, draft.Status, draft.Priority, draft.ConversationID, now, now).Scan(&id)
	if err != nil {
		return store.Task{}, unavailable(err)
	}
	return store.Task{
		TaskID:         id,
		Title:          draft.Title,
		Description:    draft.Description,
		Status:         draft.Status,
		Priority:       draft.Priority,
		ConversationID: draft.ConversationID,
		CreatedAt:      time.Unix(now, 0).UTC(),
		UpdatedAt:      time.Unix(now, 0).UTC(),
	}, nil
}

const taskColumns = `task_id, title, description, status, priority, conversation_id, created_at, updated_at`

func scanTask(row pgx.Row) (store.Task, error) {
	var (
		t                  store.Task
		convoID            *int64
		createdAt, updated int64
	)
	if err := row.Scan(&t.TaskID, &t.Title, &t.Description, &t.Status, &t.Priority, &convoID, &createdAt, &updated); err != nil {
		return store.Task{}, err
	}
	t.ConversationID = convoID
	t.CreatedAt = time.Unix(createdAt, 0).UTC()
	t.UpdatedAt = time.Unix(updated, 0).UTC()
	return t, nil
}

func (s *Store) GetTask(ctx context.Context, taskID int64) (store.Task, error) {
	t, err := scanTask(s.Pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE task_id = $1`, taskID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Task{}, notFoundf("task %d", taskID)
		}
		return store.Task{}, unavailable(err)
	}
	return t, nil
}

func (s *Store) UpdateTask(ctx context.Context, taskID int64, update store.TaskUpdate) (store.Task, error) {
	if err := store.ValidateUpdate(update); err != nil {
		return store.Task{}, err
	}
	sets := make([]string, 0, 5)
	args := make([]any, 0, 6)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if update.Title != nil {
		sets = append(sets, "title = "+arg(strings.TrimSpace(*update.Title)))
	}
	if update.Description != nil {
		sets = append(sets, "description = "+arg(*update.Description))
	}
	if update.Status != nil {
		sets = append(sets, "status = "+arg(*update.Status))
	}
	if update.Priority != nil {
		sets = append(sets, "priority = "+arg(*update.Priority))
	}
	sets = append(sets, "updated_at = "+arg(time.Now().UTC().Unix()))

	q := "UPDATE tasks SET " + strings.Join(sets, ", ") + " WHERE task_id = " + arg(taskID) + " RETURNING " + taskColumns
	t, err := scanTask(s.Pool.QueryRow(ctx, q, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Task{}, notFoundf("task %d", taskID)
		}
		return store.Task{}, unavailable(err)
	}
	return t, nil
}

func (s *Store) DeleteTask(ctx context.Context, taskID int64) (store.Task, error) {
	t, err := scanTask(s.Pool.QueryRow(ctx, `DELETE FROM tasks WHERE task_id = $1 RETURNING `+taskColumns, taskID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Task{}, notFoundf("task %d", taskID)
		}
		return store.Task{}, unavailable(err)
	}
	return t, nil
}

func (s *Store) ListTasks(ctx context.Context, filter store.TaskFilter) ([]store.Task, error) {
	where := make([]string, 0, 3)
	args := make([]any, 0, 4)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.Status != "" {
		if !models.ValidStatus(filter.Status) {
			return nil, &store.ValidationError{Field: "status", Value: filter.Status, Allowed: models.TaskStatuses()}
		}
		where = append(where, "status = "+arg(filter.Status))
	}
	if filter.Priority != "" {
		if !models.ValidPriority(filter.Priority) {
			return nil, &store.ValidationError{Field: "priority", Value: filter.Priority, Allowed: models.TaskPriorities()}
		}
		where = append(where, "priority = "+arg(filter.Priority))
	}
	if filter.ConversationID != nil {
		where = append(where, "conversation_id = "+arg(*filter.ConversationID))
	}
	q := `SELECT ` + taskColumns + ` FROM tasks`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	q += " ORDER BY created_at ASC, task_id ASC LIMIT " + arg(limit)

	rows, err := s.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

func (s *Store) RecentTasks(ctx context.Context, limit int) ([]store.Task, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.Pool.Query(ctx,
		`SELECT `+taskColumns+` FROM tasks ORDER BY updated_at DESC, task_id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

func collectTasks(rows pgx.Rows) ([]store.Task, error) {
	var out []store.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, unavailable(err)
		}
		out = append(out, t)
	}
	return out, unavailable(rows.Err())
}

func (s *Store) CreateConversation(ctx context.Context, title string) (store.Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = "New conversation"
	}
	now := time.Now().UTC().Unix()
	publicID := uuid.NewString()
	var id int64
	err := s.Pool.QueryRow(ctx,
		`INSERT INTO conversations(public_id, title, created_at, updated_at) VALUES($1, $2, $3, $4) RETURNING conversation_id`,
		publicID, title, now, now).Scan(&id)
	if err != nil {
		return store.Conversation{}, unavailable(err)
	}
	return store.Conversation{
		ConversationID: id,
		PublicID:       publicID,
		Title:          title,
		CreatedAt:      time.Unix(now, 0).UTC(),
		UpdatedAt:      time.Unix(now, 0).UTC(),
	}, nil
}

func (s *Store) GetConversation(ctx context.Context, conversationID int64) (store.Conversation, error) {
	var (
		c                  store.Conversation
		createdAt, updated int64
	)
	err := s.Pool.QueryRow(ctx, `
SELECT c.conversation_id, c.public_id, c.title, c.created_at, c.updated_at,
  (SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.conversation_id) AS message_count,
  (SELECT COUNT(*) FROM tasks k WHERE k.conversation_id = c.conversation_id) AS task_count
FROM conversations c WHERE c.conversation_id = $1`, conversationID).Scan(
		&c.ConversationID, &c.PublicID, &c.Title, &createdAt, &updated, &c.MessageCount, &c.TaskCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Conversation{}, notFoundf("conversation %d", conversationID)
		}
		return store.Conversation{}, unavailable(err)
	}
	c.CreatedAt = time.Unix(createdAt, 0).UTC()
	c.UpdatedAt = time.Unix(updated, 0).UTC()
	return c, nil
}

func (s *Store) ListConversations(ctx context.Context, limit int) ([]store.Conversation, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.Pool.Query(ctx, `
SELECT c.conversation_id, c.public_id, c.title, c.created_at, c.updated_at,
  (SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.conversation_id) AS message_count,
  (SELECT COUNT(*) FROM tasks k WHERE k.conversation_id = c.conversation_id) AS task_count
FROM conversations c
ORDER BY c.updated_at DESC, c.conversation_id DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	var out []store.Conversation
	for rows.Next() {
		var (
			c                  store.Conversation
			createdAt, updated int64
		)
		if err := rows.Scan(&c.ConversationID, &c.PublicID, &c.Title, &createdAt, &updated, &c.MessageCount, &c.TaskCount); err != nil {
			return nil, unavailable(err)
		}
		c.CreatedAt = time.Unix(createdAt, 0).UTC()
		c.UpdatedAt = time.Unix(updated, 0).UTC()
		out = append(out, c)
	}
	return out, unavailable(rows.Err())
}

func (s *Store) AddMessage(ctx context.Context, conversationID int64, role, content string) (store.Message, error) {
	if err := store.ValidateMessage(role, content); err != nil {
		return store.Message{}, err
	}
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return store.Message{}, err
	}
	now := time.Now().UTC().Unix()
	var id int64
	err := s.Pool.QueryRow(ctx,
		`INSERT INTO messages(conversation_id, role, content, created_at) VALUES($1, $2, $3, $4) RETURNING message_id`,
		conversationID, role, content, now).Scan(&id)
	if err != nil {
		return store.Message{}, unavailable(err)
	}
	_, _ = s.Pool.Exec(ctx, `UPDATE conversations SET updated_at = $1 WHERE conversation_id = $2`, now, conversationID)
	return store.Message{
		MessageID:      id,
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Unix(now, 0).UTC(),
	}, nil
}

func (s *Store) ListMessages(ctx context.Context, conversationID int64, limit int) ([]store.Message, error) {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	var (
		rows pgx.Rows
		err  error
	)
	if limit > 0 {
		rows, err = s.Pool.Query(ctx, `
SELECT message_id, conversation_id, role, content, created_at FROM (
  SELECT message_id, conversation_id, role, content, created_at
  FROM messages WHERE conversation_id = $1
  ORDER BY created_at DESC, message_id DESC LIMIT $2
) w ORDER BY created_at ASC, message_id ASC`, conversationID, limit)
	} else {
		rows, err = s.Pool.Query(ctx,
			`SELECT message_id, conversation_id, role, content, created_at FROM messages WHERE conversation_id = $1 ORDER BY created_at ASC, message_id ASC`,
			conversationID)
	}
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	var out []store.Message
	for rows.Next() {
		var (
			m         store.Message
			createdAt int64
		)
		if err := rows.Scan(&m.MessageID, &m.ConversationID, &m.Role, &m.Content, &createdAt); err != nil {
			return nil, unavailable(err)
		}
		m.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, m)
	}
	return out, unavailable(rows.Err())
}

func (s *Store) SetPendingAction(ctx context.Context, conversationID int64, payload []byte, turnIndex int) error {
	if len(payload) == 0 {
		return &store.ValidationError{Field: "pending_action", Message: "payload is required"}
	}
	tag, err := s.Pool.Exec(ctx,
		`UPDATE conversations SET pending_action = $1, pending_turn = $2, updated_at = $3 WHERE conversation_id = $4`,
		string(payload), turnIndex, time.Now().UTC().Unix(), conversationID)
	if err != nil {
		return unavailable(err)
	}
	if tag.RowsAffected() == 0 {
		return notFoundf("conversation %d", conversationID)
	}
	return nil
}

func (s *Store) PendingAction(ctx context.Context, conversationID int64) (*store.PendingAction, error) {
	var (
		payload *string
		turn    *int
		updated int64
	)
	err := s.Pool.QueryRow(ctx,
		`SELECT pending_action, pending_turn, updated_at FROM conversations WHERE conversation_id = $1`,
		conversationID).Scan(&payload, &turn, &updated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundf("conversation %d", conversationID)
		}
		return nil, unavailable(err)
	}
	if payload == nil {
		return nil, nil
	}
	pa := &store.PendingAction{Payload: []byte(*payload), CreatedAt: time.Unix(updated, 0).UTC()}
	if turn != nil {
		pa.TurnIndex = *turn
	}
	return pa, nil
}

// ConsumePendingAction clears and returns the marker atomically; the guarded
// UPDATE makes consumption first-wins under concurrent turns.
func (s *Store) ConsumePendingAction(ctx context.Context, conversationID int64) (*store.PendingAction, error) {
	var (
		payload string
		turn    *int
		updated int64
	)
	// RETURNING sees the post-update row, so the old marker is read through a
	// locked self-join.
	err := s.Pool.QueryRow(ctx, `
UPDATE conversations c SET pending_action = NULL, pending_turn = NULL, updated_at = $1
FROM (
  SELECT conversation_id, pending_action, pending_turn FROM conversations
  WHERE conversation_id = $2 AND pending_action IS NOT NULL
  FOR UPDATE
) old
WHERE c.conversation_id = old.conversation_id
RETURNING old.pending_action, old.pending_turn, c.updated_at`,
		time.Now().UTC().Unix(), conversationID).Scan(&payload, &turn, &updated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// No marker, or another worker consumed it first. Distinguish a
			// missing conversation for the caller.
			if _, gerr := s.GetConversation(ctx, conversationID); gerr != nil {
				return nil, gerr
			}
			return nil, nil
		}
		return nil, unavailable(err)
	}
	pa := &store.PendingAction{Payload: []byte(payload), CreatedAt: time.Unix(updated, 0).UTC()}
	if turn != nil {
		pa.TurnIndex = *turn
	}
	return pa, nil
}

func (s *Store) SeedDemo(ctx context.Context) error {
	convos, err := s.ListConversations(ctx, 1)
	if err != nil {
		return err
	}
	if len(convos) > 0 {
		return nil
	}
	c, err := s.CreateConversation(ctx, "Getting started")
	if err != nil {
		return err
	}
	if _, err := s.AddMessage(ctx, c.ConversationID, models.RoleAssistant,
		"Hi! Ask me to create, update, list, or delete tasks. For example: \"Create a task to write the launch notes\"."); err != nil {
		return err
	}
	_, err = s.CreateTask(ctx, store.TaskDraft{
		Title:          "Try the chat: ask me to complete this task",
		Status:         models.StatusPending,
		Priority:       models.PriorityLow,
		ConversationID: &c.ConversationID,
	})
	return err
}
