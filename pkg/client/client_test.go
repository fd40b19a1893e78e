package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tasktalk/tasktalk/pkg/models"
)

func TestNew(t *testing.T) {
	c := New("http://localhost:8080", "")
	if c.BaseURL != "http://localhost:8080" || c.APIKey != "" {
		t.Errorf("New: %+v", c)
	}
	c2 := New("http://localhost:8080", "secret")
	if c2.APIKey != "secret" {
		t.Errorf("New with key: %+v", c2)
	}
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	ok, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if !ok {
		t.Fatal("Health: expected ok true")
	}
}

func TestHealth_error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"down"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	if _, err := c.Health(context.Background()); err == nil {
		t.Fatal("expected error from 503")
	}
}

func TestChat_sendsConversationID(t *testing.T) {
	var got models.TurnRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/chat" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"conversation_id":7,"response":"Done.","action_summary":"delete_task"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	convoID := int64(7)
	turn, err := c.Chat(context.Background(), "yes", &convoID)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got.Message != "yes" || got.ConversationID == nil || *got.ConversationID != 7 {
		t.Errorf("request body: %+v", got)
	}
	if turn.ConversationID != 7 || turn.ActionSummary != "delete_task" {
		t.Errorf("turn: %+v", turn)
	}
}

func TestListTasks_buildsQuery(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"tasks":[{"task_id":1,"title":"a","status":"pending","priority":"high"}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	tasks, err := c.ListTasks(context.Background(), "pending", "high", 10)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if gotQuery != "status=pending&priority=high&limit=10" {
		t.Errorf("query: %q", gotQuery)
	}
	if len(tasks) != 1 || tasks[0].Title != "a" {
		t.Errorf("tasks: %+v", tasks)
	}
}

func TestGetConversation_unwrapsEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/conversations/3" {
			t.Errorf("path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"conversation":{"conversation_id":3,"title":"t"},"messages":[{"message_id":1,"conversation_id":3,"role":"user","content":"hi"}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	convo, messages, err := c.GetConversation(context.Background(), 3)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if convo.ConversationID != 3 || len(messages) != 1 || messages[0].Role != "user" {
		t.Errorf("convo=%+v messages=%+v", convo, messages)
	}
}

func TestClient_setsAPIKeyHeader(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-Key")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "mykey")
	_, _ = c.Health(context.Background())
	if gotKey != "mykey" {
		t.Errorf("X-API-Key: got %q", gotKey)
	}
}
