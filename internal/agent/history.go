package agent

import (
	"context"
	"time"

	"github.com/tasktalk/tasktalk/internal/store"
)

// DefaultHistoryWindow is how many recent messages accompany a classification.
// Truncation drops the oldest messages and never reorders the rest.
const DefaultHistoryWindow = 20

// History is the conversation context manager: a bounded, ordered view over
// the message log. It does windowing and ordering only. Timeout bounds each
// store call.
type History struct {
	Store   store.Store
	Window  int
	Timeout time.Duration
}

// Load returns the most recent Window messages in ascending order.
func (h *History) Load(ctx context.Context, conversationID int64) ([]store.Message, error) {
	window := h.Window
	if window <= 0 {
		window = DefaultHistoryWindow
	}
	ctx, cancel := h.bound(ctx)
	defer cancel()
	return h.Store.ListMessages(ctx, conversationID, window)
}

// Append persists one turn to the conversation log.
func (h *History) Append(ctx context.Context, conversationID int64, role, content string) (store.Message, error) {
	ctx, cancel := h.bound(ctx)
	defer cancel()
	return h.Store.AddMessage(ctx, conversationID, role, content)
}

func (h *History) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, h.Timeout)
}
