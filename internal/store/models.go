// Package store defines the persistence interface and shared models for tasks,
// conversations, messages, and the per-conversation pending-action marker.
package store

import "time"

// Task is a work item with status, priority, and an optional owning conversation.
type Task struct {
	TaskID         int64
	Title          string
	Description    string
	Status         string
	Priority       string
	ConversationID *int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Conversation is a chat thread. MessageCount and TaskCount are derived on read.
type Conversation struct {
	ConversationID int64
	PublicID       string
	Title          string
	MessageCount   int
	TaskCount      int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Message is one immutable turn of a conversation. Ordering is by CreatedAt
// with MessageID breaking ties (insertion order).
type Message struct {
	MessageID      int64
	ConversationID int64
	Role           string
	Content        string
	CreatedAt      time.Time
}

// PendingAction is the persisted marker for a candidate action awaiting user
// confirmation. Payload is the JSON-encoded candidate; TurnIndex is the
// message count at the time the action was proposed. A conversation holds at
// most one.
type PendingAction struct {
	Payload   []byte
	TurnIndex int
	CreatedAt time.Time
}

// TaskDraft carries the fields for creating a task. Status defaults to
// "pending" and Priority to "medium" when empty.
type TaskDraft struct {
	Title          string
	Description    string
	Status         string
	Priority       string
	ConversationID *int64
}

// TaskUpdate carries a partial update; nil fields are left unchanged.
type TaskUpdate struct {
	Title       *string
	Description *string
	Status      *string
	Priority    *string
}

// TaskFilter narrows ListTasks. Zero values mean "no constraint";
// Limit <= 0 means the default cap.
type TaskFilter struct {
	Status         string
	Priority       string
	ConversationID *int64
	Limit          int
}
