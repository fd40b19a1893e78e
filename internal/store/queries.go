package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tasktalk/tasktalk/pkg/models"
)

// defaultListLimit caps unbounded list queries.
const defaultListLimit = 100

func (s *sqliteStore) CreateTask(ctx context.Context, draft TaskDraft) (Task, error) {
	if err := NormalizeDraft(&draft); err != nil {
		return Task{}, err
	}
	if draft.ConversationID != nil {
		if _, err := s.GetConversation(ctx, *draft.ConversationID); err != nil {
			return Task{}, err
		}
	}
	now := time.Now().UTC().Unix()
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO tasks(title, description, status, priority, conversation_id, created_at, updated_at) VALUES(?, ?, ?, ?, ?, ?, ?)`,
		draft.Title, draft.Description, draft.Status, draft.Priority, draft.ConversationID, now, now)
	if err != nil {
		return Task{}, unavailable(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Task{}, unavailable(err)
	}
	return Task{
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

func (s *sqliteStore) GetTask(ctx context.Context, taskID int64) (Task, error) {
	t, err := scanTask(s.stmtGetTask.QueryRowContext(ctx, taskID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Task{}, notFoundf("task %d", taskID)
		}
		return Task{}, unavailable(err)
	}
	return t, nil
}

func (s *sqliteStore) UpdateTask(ctx context.Context, taskID int64, update TaskUpdate) (Task, error) {
	if err := ValidateUpdate(update); err != nil {
		return Task{}, err
	}
	sets := make([]string, 0, 5)
	args := make([]any, 0, 6)
	if update.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, strings.TrimSpace(*update.Title))
	}
	if update.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *update.Description)
	}
	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *update.Status)
	}
	if update.Priority != nil {
		sets = append(sets, "priority = ?")
		args = append(args, *update.Priority)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC().Unix(), taskID)

	res, err := s.DB.ExecContext(ctx, "UPDATE tasks SET "+strings.Join(sets, ", ")+" WHERE task_id = ?", args...)
	if err != nil {
		return Task{}, unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Task{}, unavailable(err)
	}
	if n == 0 {
		return Task{}, notFoundf("task %d", taskID)
	}
	return s.GetTask(ctx, taskID)
}

func (s *sqliteStore) DeleteTask(ctx context.Context, taskID int64) (Task, error) {
	t, err := s.GetTask(ctx, taskID)
	if err != nil {
		return Task{}, err
	}
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM tasks WHERE task_id = ?`, taskID); err != nil {
		return Task{}, unavailable(err)
	}
	return t, nil
}

func (s *sqliteStore) ListTasks(ctx context.Context, filter TaskFilter) ([]Task, error) {
	where := make([]string, 0, 3)
	args := make([]any, 0, 4)
	if filter.Status != "" {
		if !models.ValidStatus(filter.Status) {
			return nil, &ValidationError{Field: "status", Value: filter.Status, Allowed: models.TaskStatuses()}
		}
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Priority != "" {
		if !models.ValidPriority(filter.Priority) {
			return nil, &ValidationError{Field: "priority", Value: filter.Priority, Allowed: models.TaskPriorities()}
		}
		where = append(where, "priority = ?")
		args = append(args, filter.Priority)
	}
	if filter.ConversationID != nil {
		where = append(where, "conversation_id = ?")
		args = append(args, *filter.ConversationID)
	}
	q := `SELECT task_id, title, description, status, priority, conversation_id, created_at, updated_at FROM tasks`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	q += " ORDER BY created_at ASC, task_id ASC LIMIT ?"
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, unavailable(err)
	}
	defer func() { _ = rows.Close() }()
	return collectTasks(rows)
}

func (s *sqliteStore) RecentTasks(ctx context.Context, limit int) ([]Task, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.stmtRecentTasks.QueryContext(ctx, limit)
	if err != nil {
		return nil, unavailable(err)
	}
	defer func() { _ = rows.Close() }()
	return collectTasks(rows)
}

func (s *sqliteStore) CreateConversation(ctx context.Context, title string) (Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = "New conversation"
	}
	now := time.Now().UTC().Unix()
	publicID := uuid.NewString()
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO conversations(public_id, title, created_at, updated_at) VALUES(?, ?, ?, ?)`,
		publicID, title, now, now)
	if err != nil {
		return Conversation{}, unavailable(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Conversation{}, unavailable(err)
	}
	return Conversation{
		ConversationID: id,
		PublicID:       publicID,
		Title:          title,
		CreatedAt:      time.Unix(now, 0).UTC(),
		UpdatedAt:      time.Unix(now, 0).UTC(),
	}, nil
}

func (s *sqliteStore) GetConversation(ctx context.Context, conversationID int64) (Conversation, error) {
	var (
		c                  Conversation
		createdAt, updated int64
	)
	err := s.stmtGetConvo.QueryRowContext(ctx, conversationID).Scan(
		&c.ConversationID, &c.PublicID, &c.Title, &createdAt, &updated, &c.MessageCount, &c.TaskCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Conversation{}, notFoundf("conversation %d", conversationID)
		}
		return Conversation{}, unavailable(err)
	}
	c.CreatedAt = time.Unix(createdAt, 0).UTC()
	c.UpdatedAt = time.Unix(updated, 0).UTC()
	return c, nil
}

func (s *sqliteStore) ListConversations(ctx context.Context, limit int) ([]Conversation, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT c.conversation_id, c.public_id, c.title, c.created_at, c.updated_at,
  (SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.conversation_id) AS message_count,
  (SELECT COUNT(*) FROM tasks k WHERE k.conversation_id = c.conversation_id) AS task_count
FROM conversations c
ORDER BY c.updated_at DESC, c.conversation_id DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, unavailable(err)
	}
	defer func() { _ = rows.Close() }()

	var out []Conversation
	for rows.Next() {
		var (
			c                  Conversation
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

func (s *sqliteStore) AddMessage(ctx context.Context, conversationID int64, role, content string) (Message, error) {
	if err := ValidateMessage(role, content); err != nil {
		return Message{}, err
	}
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return Message{}, err
	}
	now := time.Now().UTC().Unix()
	res, err := s.stmtAddMessage.ExecContext(ctx, conversationID, role, content, now)
	if err != nil {
		return Message{}, unavailable(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Message{}, unavailable(err)
	}
	_, _ = s.stmtTouchConvoTime.ExecContext(ctx, now, conversationID)
	return Message{
		MessageID:      id,
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Unix(now, 0).UTC(),
	}, nil
}

func (s *sqliteStore) ListMessages(ctx context.Context, conversationID int64, limit int) ([]Message, error) {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		// Most recent window, returned in ascending order.
		rows, err = s.DB.QueryContext(ctx, `
SELECT message_id, conversation_id, role, content, created_at FROM (
  SELECT message_id, conversation_id, role, content, created_at
  FROM messages WHERE conversation_id = ?
  ORDER BY created_at DESC, message_id DESC LIMIT ?
) ORDER BY created_at ASC, message_id ASC`, conversationID, limit)
	} else {
		rows, err = s.DB.QueryContext(ctx,
			`SELECT message_id, conversation_id, role, content, created_at FROM messages WHERE conversation_id = ? ORDER BY created_at ASC, message_id ASC`,
			conversationID)
	}
	if err != nil {
		return nil, unavailable(err)
	}
	defer func() { _ = rows.Close() }()

	var out []Message
	for rows.Next() {
		var (
			m         Message
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

func (s *sqliteStore) SetPendingAction(ctx context.Context, conversationID int64, payload []byte, turnIndex int) error {
	if len(payload) == 0 {
		return &ValidationError{Field: "pending_action", Message: "payload is required"}
	}
	res, err := s.stmtSetPending.ExecContext(ctx, string(payload), turnIndex, time.Now().UTC().Unix(), conversationID)
	if err != nil {
		return unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable(err)
	}
	if n == 0 {
		return notFoundf("conversation %d", conversationID)
	}
	return nil
}

func (s *sqliteStore) PendingAction(ctx context.Context, conversationID int64) (*PendingAction, error) {
	var (
		payload sql.NullString
		turn    sql.NullInt64
		updated int64
	)
	err := s.stmtGetPending.QueryRowContext(ctx, conversationID).Scan(&payload, &turn, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFoundf("conversation %d", conversationID)
		}
		return nil, unavailable(err)
	}
	if !payload.Valid {
		return nil, nil
	}
	return &PendingAction{
		Payload:   []byte(payload.String),
		TurnIndex: int(turn.Int64),
		CreatedAt: time.Unix(updated, 0).UTC(),
	}, nil
}

// ConsumePendingAction reads and clears the marker in one transaction. The
// guarded UPDATE makes consumption first-wins under concurrent turns for the
// same conversation.
func (s *sqliteStore) ConsumePendingAction(ctx context.Context, conversationID int64) (*PendingAction, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable(err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		payload sql.NullString
		turn    sql.NullInt64
		updated int64
	)
	err = tx.QueryRowContext(ctx,
		`SELECT pending_action, pending_turn, updated_at FROM conversations WHERE conversation_id = ?`,
		conversationID).Scan(&payload, &turn, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFoundf("conversation %d", conversationID)
		}
		return nil, unavailable(err)
	}
	if !payload.Valid {
		return nil, nil
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE conversations SET pending_action = NULL, pending_turn = NULL, updated_at = ? WHERE conversation_id = ? AND pending_action IS NOT NULL`,
		time.Now().UTC().Unix(), conversationID)
	if err != nil {
		return nil, unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, unavailable(err)
	}
	if n == 0 {
		// Another worker consumed it between our read and write.
		return nil, nil
	}
	if err := tx.Commit(); err != nil {
		return nil, unavailable(err)
	}
	return &PendingAction{
		Payload:   []byte(payload.String),
		TurnIndex: int(turn.Int64),
		CreatedAt: time.Unix(updated, 0).UTC(),
	}, nil
}

func (s *sqliteStore) SeedDemo(ctx context.Context) error {
	var n int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations`).Scan(&n); err != nil {
		return unavailable(err)
	}
	if n > 0 {
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
	_, err = s.CreateTask(ctx, TaskDraft{
		Title:          "Try the chat: ask me to complete this task",
		Status:         models.StatusPending,
		Priority:       models.PriorityLow,
		ConversationID: &c.ConversationID,
	})
	return err
}

func scanTask(row *sql.Row) (Task, error) {
	var (
		t                  Task
		convoID            sql.NullInt64
		createdAt, updated int64
	)
	if err := row.Scan(&t.TaskID, &t.Title, &t.Description, &t.Status, &t.Priority, &convoID, &createdAt, &updated); err != nil {
		return Task{}, err
	}
	if convoID.Valid {
		t.ConversationID = &convoID.Int64
	}
	t.CreatedAt = time.Unix(createdAt, 0).UTC()
	t.UpdatedAt = time.Unix(updated, 0).UTC()
	return t, nil
}

func collectTasks(rows *sql.Rows) ([]Task, error) {
	var out []Task
	for rows.Next() {
		var (
			t                  Task
			convoID            sql.NullInt64
			createdAt, updated int64
		)
		if err := rows.Scan(&t.TaskID, &t.Title, &t.Description, &t.Status, &t.Priority, &convoID, &createdAt, &updated); err != nil {
			return nil, unavailable(err)
		}
		if convoID.Valid {
			t.ConversationID = &convoID.Int64
		}
		t.CreatedAt = time.Unix(createdAt, 0).UTC()
		t.UpdatedAt = time.Unix(updated, 0).UTC()
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}
