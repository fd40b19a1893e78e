package postgres

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/tasktalk/tasktalk/internal/store"
)

// openTestStore skips unless DATABASE_URL points at a reachable postgres.
func openTestStore(t *testing.T) store.Store {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping postgres test")
	}
	st, err := Open(dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestOpenMigrateAndTaskCRUD(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	task, err := st.CreateTask(ctx, store.TaskDraft{Title: "pg smoke task", Priority: "high"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	defer func() { _, _ = st.DeleteTask(ctx, task.TaskID) }()
	if task.Status != "pending" || task.Priority != "high" {
		t.Fatalf("created task: %+v", task)
	}

	got, err := st.GetTask(ctx, task.TaskID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Title != "pg smoke task" {
		t.Fatalf("GetTask: %+v", got)
	}

	status := "in_progress"
	updated, err := st.UpdateTask(ctx, task.TaskID, store.TaskUpdate{Status: &status})
	if err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	if updated.Status != "in_progress" {
		t.Fatalf("UpdateTask: %+v", updated)
	}

	bad := "banana"
	if _, err := st.UpdateTask(ctx, task.TaskID, store.TaskUpdate{Status: &bad}); err == nil {
		t.Fatal("UpdateTask should reject an invalid status")
	}

	deleted, err := st.DeleteTask(ctx, task.TaskID)
	if err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	if deleted.TaskID != task.TaskID {
		t.Fatalf("DeleteTask: %+v", deleted)
	}
	if _, err := st.GetTask(ctx, task.TaskID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("GetTask after delete: %v", err)
	}
}

func TestConversationMessagesAndConsumeOnce(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	convo, err := st.CreateConversation(ctx, "pg smoke conversation")
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}

	for _, m := range []struct{ role, content string }{
		{"user", "delete task 1"},
		{"assistant", "Should I proceed? (yes/no)"},
	} {
		if _, err := st.AddMessage(ctx, convo.ConversationID, m.role, m.content); err != nil {
			t.Fatalf("AddMessage: %v", err)
		}
	}
	msgs, err := st.ListMessages(ctx, convo.ConversationID, 0)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Role != "user" || msgs[1].Role != "assistant" {
		t.Fatalf("messages: %+v", msgs)
	}

	payload := []byte(`{"op":"delete_task","entity":"task","params":{"task_id":1}}`)
	if err := st.SetPendingAction(ctx, convo.ConversationID, payload, 1); err != nil {
		t.Fatalf("SetPendingAction: %v", err)
	}

	first, err := st.ConsumePendingAction(ctx, convo.ConversationID)
	if err != nil {
		t.Fatalf("ConsumePendingAction: %v", err)
	}
	if first == nil || string(first.Payload) != string(payload) {
		t.Fatalf("first consume: %+v", first)
	}

	second, err := st.ConsumePendingAction(ctx, convo.ConversationID)
	if err != nil {
		t.Fatalf("second ConsumePendingAction: %v", err)
	}
	if second != nil {
		t.Fatalf("marker must be consumed exactly once, got %+v", second)
	}
}
