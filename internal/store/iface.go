package store

import "context"

// Store is the persistence interface for tasks, conversations, messages, and
// pending-action markers. Implementations: the SQLite store returned by Open
// (default) and *postgres.Store (PostgreSQL).
//
// Failure contract: missing entities return errors wrapping ErrNotFound,
// rejected input returns *ValidationError, and driver/connection/timeout
// failures return errors wrapping ErrUnavailable. Each call is transactional.
type Store interface {
	// Tasks
	CreateTask(ctx context.Context, draft TaskDraft) (Task, error)
	GetTask(ctx context.Context, taskID int64) (Task, error)
	UpdateTask(ctx context.Context, taskID int64, update TaskUpdate) (Task, error)
	DeleteTask(ctx context.Context, taskID int64) (Task, error)
	ListTasks(ctx context.Context, filter TaskFilter) ([]Task, error)
	// RecentTasks returns the most recently touched tasks, newest first.
	// Used for "did you mean" suggestions.
	RecentTasks(ctx context.Context, limit int) ([]Task, error)

	// Conversations and messages
	CreateConversation(ctx context.Context, title string) (Conversation, error)
	GetConversation(ctx context.Context, conversationID int64) (Conversation, error)
	ListConversations(ctx context.Context, limit int) ([]Conversation, error)
	AddMessage(ctx context.Context, conversationID int64, role, content string) (Message, error)
	// ListMessages returns the most recent limit messages in ascending order
	// (oldest of the window first). Limit <= 0 returns all messages.
	ListMessages(ctx context.Context, conversationID int64, limit int) ([]Message, error)

	// Pending-action marker. At most one per conversation; SetPendingAction
	// overwrites any existing marker. ConsumePendingAction reads and clears
	// the marker in one transaction so an approval dispatches at most once;
	// it returns (nil, nil) when no marker exists.
	SetPendingAction(ctx context.Context, conversationID int64, payload []byte, turnIndex int) error
	PendingAction(ctx context.Context, conversationID int64) (*PendingAction, error)
	ConsumePendingAction(ctx context.Context, conversationID int64) (*PendingAction, error)

	// Lifecycle
	SeedDemo(ctx context.Context) error
	Close() error
}
