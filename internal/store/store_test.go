package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/tasktalk/tasktalk/pkg/models"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	home := filepath.Join(t.TempDir(), "home")
	if err := os.MkdirAll(home, 0o755); err != nil {
		t.Fatal(err)
	}
	st, err := Open(home)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestMigrationsAndTaskCRUD(t *testing.T) {
	t.Parallel()

	st := openTestStore(t)
	ctx := context.Background()

	created, err := st.CreateTask(ctx, TaskDraft{Title: "Implement user authentication"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if created.Status != models.StatusPending || created.Priority != models.PriorityMedium {
		t.Fatalf("defaults not applied: %+v", created)
	}

	got, err := st.GetTask(ctx, created.TaskID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Title != "Implement user authentication" {
		t.Fatalf("GetTask title = %q", got.Title)
	}

	status := models.StatusInProgress
	updated, err := st.UpdateTask(ctx, created.TaskID, TaskUpdate{Status: &status})
	if err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	if updated.Status != models.StatusInProgress {
		t.Fatalf("UpdateTask status = %q", updated.Status)
	}

	deleted, err := st.DeleteTask(ctx, created.TaskID)
	if err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	if deleted.TaskID != created.TaskID {
		t.Fatalf("DeleteTask returned wrong task: %+v", deleted)
	}

	if _, err := st.GetTask(ctx, created.TaskID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetTask after delete: want ErrNotFound, got %v", err)
	}
}

func TestTaskValidation(t *testing.T) {
	t.Parallel()

	st := openTestStore(t)
	ctx := context.Background()

	var ve *ValidationError
	if _, err := st.CreateTask(ctx, TaskDraft{Title: ""}); !errors.As(err, &ve) {
		t.Fatalf("empty title: want ValidationError, got %v", err)
	}
	if _, err := st.CreateTask(ctx, TaskDraft{Title: "x", Status: "banana"}); !errors.As(err, &ve) {
		t.Fatalf("bad status: want ValidationError, got %v", err)
	}
	if ve.Field != "status" || len(ve.Allowed) != 4 {
		t.Fatalf("ValidationError should name status and allowed values: %+v", ve)
	}

	task, err := st.CreateTask(ctx, TaskDraft{Title: "ok"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	bad := "banana"
	if _, err := st.UpdateTask(ctx, task.TaskID, TaskUpdate{Status: &bad}); !errors.As(err, &ve) {
		t.Fatalf("bad update status: want ValidationError, got %v", err)
	}
	// Invalid update must not have touched the row.
	got, err := st.GetTask(ctx, task.TaskID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Status != models.StatusPending {
		t.Fatalf("status changed by invalid update: %q", got.Status)
	}
}

func TestListTasksFilterAndIdempotentReads(t *testing.T) {
	t.Parallel()

	st := openTestStore(t)
	ctx := context.Background()

	_, _ = st.CreateTask(ctx, TaskDraft{Title: "a", Priority: models.PriorityHigh})
	_, _ = st.CreateTask(ctx, TaskDraft{Title: "b"})
	done := models.StatusCompleted
	tc, _ := st.CreateTask(ctx, TaskDraft{Title: "c"})
	_, _ = st.UpdateTask(ctx, tc.TaskID, TaskUpdate{Status: &done})

	all, err := st.ListTasks(ctx, TaskFilter{})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("ListTasks all = %d", len(all))
	}

	pending, err := st.ListTasks(ctx, TaskFilter{Status: models.StatusPending})
	if err != nil {
		t.Fatalf("ListTasks pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("ListTasks pending = %d", len(pending))
	}

	// Repeated reads without intervening mutation return identical results.
	for i := 0; i < 3; i++ {
		again, err := st.ListTasks(ctx, TaskFilter{})
		if err != nil {
			t.Fatalf("ListTasks #%d: %v", i, err)
		}
		if len(again) != len(all) {
			t.Fatalf("ListTasks not stable: %d != %d", len(again), len(all))
		}
		for j := range again {
			if again[j] != all[j] {
				t.Fatalf("ListTasks row %d changed between reads", j)
			}
		}
	}

	recent, err := st.RecentTasks(ctx, 2)
	if err != nil {
		t.Fatalf("RecentTasks: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("RecentTasks = %d", len(recent))
	}
	if recent[0].TaskID != tc.TaskID {
		t.Fatalf("RecentTasks should lead with the most recently updated task, got %+v", recent[0])
	}
}

func TestConversationsAndMessageOrdering(t *testing.T) {
	t.Parallel()

	st := openTestStore(t)
	ctx := context.Background()

	c, err := st.CreateConversation(ctx, "Planning")
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if c.PublicID == "" {
		t.Fatal("conversation needs a public id")
	}

	for i, content := range []string{"first", "second", "third"} {
		if _, err := st.AddMessage(ctx, c.ConversationID, models.RoleUser, content); err != nil {
			t.Fatalf("AddMessage %d: %v", i, err)
		}
	}

	msgs, err := st.ListMessages(ctx, c.ConversationID, 0)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 3 || msgs[0].Content != "first" || msgs[2].Content != "third" {
		t.Fatalf("messages out of order: %+v", msgs)
	}

	// Bounded window keeps the most recent messages, still ascending.
	window, err := st.ListMessages(ctx, c.ConversationID, 2)
	if err != nil {
		t.Fatalf("ListMessages window: %v", err)
	}
	if len(window) != 2 || window[0].Content != "second" || window[1].Content != "third" {
		t.Fatalf("window wrong: %+v", window)
	}

	if _, err := st.AddMessage(ctx, c.ConversationID, "robot", "hi"); err == nil {
		t.Fatal("invalid role accepted")
	}
	if _, err := st.AddMessage(ctx, 9999, models.RoleUser, "hi"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("AddMessage to missing conversation: want ErrNotFound, got %v", err)
	}

	got, err := st.GetConversation(ctx, c.ConversationID)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if got.MessageCount != 3 {
		t.Fatalf("MessageCount = %d", got.MessageCount)
	}
}

func TestPendingActionConsumeOnce(t *testing.T) {
	t.Parallel()

	st := openTestStore(t)
	ctx := context.Background()

	c, err := st.CreateConversation(ctx, "confirm")
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}

	if pa, err := st.PendingAction(ctx, c.ConversationID); err != nil || pa != nil {
		t.Fatalf("fresh conversation should have no pending action: %v %v", pa, err)
	}

	payload := []byte(`{"op":"delete_task","params":{"task_id":2}}`)
	if err := st.SetPendingAction(ctx, c.ConversationID, payload, 4); err != nil {
		t.Fatalf("SetPendingAction: %v", err)
	}

	pa, err := st.PendingAction(ctx, c.ConversationID)
	if err != nil || pa == nil {
		t.Fatalf("PendingAction: %v %v", pa, err)
	}
	if string(pa.Payload) != string(payload) || pa.TurnIndex != 4 {
		t.Fatalf("PendingAction round trip: %+v", pa)
	}

	first, err := st.ConsumePendingAction(ctx, c.ConversationID)
	if err != nil || first == nil {
		t.Fatalf("ConsumePendingAction: %v %v", first, err)
	}
	second, err := st.ConsumePendingAction(ctx, c.ConversationID)
	if err != nil {
		t.Fatalf("second consume: %v", err)
	}
	if second != nil {
		t.Fatal("pending action consumed twice")
	}

	if err := st.SetPendingAction(ctx, 424242, payload, 0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("SetPendingAction on missing conversation: want ErrNotFound, got %v", err)
	}
}

func TestSeedDemoIsIdempotent(t *testing.T) {
	t.Parallel()

	st := openTestStore(t)
	ctx := context.Background()

	if err := st.SeedDemo(ctx); err != nil {
		t.Fatalf("SeedDemo: %v", err)
	}
	if err := st.SeedDemo(ctx); err != nil {
		t.Fatalf("SeedDemo again: %v", err)
	}
	convos, err := st.ListConversations(ctx, 0)
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(convos) != 1 {
		t.Fatalf("SeedDemo should seed exactly once, got %d conversations", len(convos))
	}
}
