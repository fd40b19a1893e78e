// Package models provides shared types for the Tasktalk HTTP API and external tools.
// These types mirror the API JSON and are stable for use by pkg/client and other consumers.
package models

import "time"

// Task is a work item with status, priority, and an optional owning conversation.
type Task struct {
	TaskID         int64     `json:"task_id"`
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	Status         string    `json:"status"`
	Priority       string    `json:"priority"`
	ConversationID *int64    `json:"conversation_id,omitempty"`
	CreatedAt      time.Time `json:"created_at,omitempty"`
	UpdatedAt      time.Time `json:"updated_at,omitempty"`
}

// Conversation is a chat thread with ordered messages and associated tasks.
type Conversation struct {
	ConversationID int64     `json:"conversation_id"`
	PublicID       string    `json:"public_id,omitempty"`
	Title          string    `json:"title"`
	MessageCount   int       `json:"message_count,omitempty"`
	TaskCount      int       `json:"task_count,omitempty"`
	CreatedAt      time.Time `json:"created_at,omitempty"`
	UpdatedAt      time.Time `json:"updated_at,omitempty"`
}

// Message is one immutable turn of a conversation.
type Message struct {
	MessageID      int64     `json:"message_id"`
	ConversationID int64     `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at,omitempty"`
}

// TurnRequest is the input to POST /chat.
type TurnRequest struct {
	UserID         string `json:"user_id,omitempty"`
	Message        string `json:"message"`
	ConversationID *int64 `json:"conversation_id,omitempty"`
}

// TurnResponse is the result of one processed chat turn.
type TurnResponse struct {
	ConversationID int64  `json:"conversation_id"`
	ResponseText   string `json:"response"`
	ActionSummary  string `json:"action_summary,omitempty"`
}

// ToolInfo describes one catalog operation as exposed by GET /tools.
type ToolInfo struct {
	Name                 string         `json:"name"`
	Description          string         `json:"description"`
	Parameters           map[string]any `json:"parameters"`
	RequiresConfirmation bool           `json:"requires_confirmation"`
}
