// Package client provides a Go SDK for the Tasktalk HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/tasktalk/tasktalk/pkg/models"
)

// Client calls the Tasktalk HTTP API. It is safe for concurrent use.
type Client struct {
	BaseURL    string       // e.g. "http://localhost:8080"
	APIKey     string       // optional; set for X-API-Key
	HTTPClient *http.Client // optional; nil uses http.DefaultClient
}

// New returns a client for the given base URL. APIKey is optional; when set,
// requests carry the X-API-Key header.
func New(baseURL, apiKey string) *Client {
	return &Client{BaseURL: baseURL, APIKey: apiKey}
}

func (c *Client) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("X-API-Key", c.APIKey)
	}
	return c.client().Do(req)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errBody struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		if errBody.Error != "" {
			return fmt.Errorf("api %s %s: %s", method, path, errBody.Error)
		}
		return fmt.Errorf("api %s %s: status %d", method, path, resp.StatusCode)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Health returns the /health response (ok: true).
func (c *Client) Health(ctx context.Context) (ok bool, err error) {
	var out struct {
		OK bool `json:"ok"`
	}
	err = c.doJSON(ctx, http.MethodGet, "/health", nil, &out)
	return out.OK, err
}

// Chat processes one conversational turn. A nil conversationID starts a new
// conversation; pass the returned ConversationID on follow-up turns so
// confirmation replies land in the same thread.
func (c *Client) Chat(ctx context.Context, message string, conversationID *int64) (*models.TurnResponse, error) {
	var out models.TurnResponse
	err := c.doJSON(ctx, http.MethodPost, "/chat", models.TurnRequest{
		Message:        message,
		ConversationID: conversationID,
	}, &out)
	return &out, err
}

// Tools returns the operation catalog exposed at /tools.
func (c *Client) Tools(ctx context.Context) ([]models.ToolInfo, error) {
	var out struct {
		Tools []models.ToolInfo `json:"tools"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/tools", nil, &out)
	return out.Tools, err
}

// ListTasks returns tasks, optionally filtered by status and priority
// (empty string = no filter, limit 0 = server default).
func (c *Client) ListTasks(ctx context.Context, status, priority string, limit int) ([]models.Task, error) {
	path := "/tasks"
	sep := "?"
	if status != "" {
		path += sep + "status=" + status
		sep = "&"
	}
	if priority != "" {
		path += sep + "priority=" + priority
		sep = "&"
	}
	if limit > 0 {
		path += sep + "limit=" + strconv.Itoa(limit)
	}
	var out struct {
		Tasks []models.Task `json:"tasks"`
	}
	err := c.doJSON(ctx, http.MethodGet, path, nil, &out)
	return out.Tasks, err
}

// CreateTask creates a task and returns it.
func (c *Client) CreateTask(ctx context.Context, draft models.Task) (*models.Task, error) {
	var out models.Task
	err := c.doJSON(ctx, http.MethodPost, "/tasks", draft, &out)
	return &out, err
}

// GetTask returns a task by ID.
func (c *Client) GetTask(ctx context.Context, taskID int64) (*models.Task, error) {
	var out models.Task
	err := c.doJSON(ctx, http.MethodGet, "/tasks/"+strconv.FormatInt(taskID, 10), nil, &out)
	return &out, err
}

// UpdateTask patches a task. Nil fields are left unchanged.
func (c *Client) UpdateTask(ctx context.Context, taskID int64, title, description, status, priority *string) (*models.Task, error) {
	body := make(map[string]any)
	if title != nil {
		body["title"] = *title
	}
	if description != nil {
		body["description"] = *description
	}
	if status != nil {
		body["status"] = *status
	}
	if priority != nil {
		body["priority"] = *priority
	}
	var out models.Task
	err := c.doJSON(ctx, http.MethodPatch, "/tasks/"+strconv.FormatInt(taskID, 10), body, &out)
	return &out, err
}

// DeleteTask deletes a task by ID and returns the deleted task.
func (c *Client) DeleteTask(ctx context.Context, taskID int64) (*models.Task, error) {
	var out struct {
		Deleted models.Task `json:"deleted"`
	}
	err := c.doJSON(ctx, http.MethodDelete, "/tasks/"+strconv.FormatInt(taskID, 10), nil, &out)
	return &out.Deleted, err
}

// ListConversations returns conversations, most recent first (limit 0 = server default).
func (c *Client) ListConversations(ctx context.Context, limit int) ([]models.Conversation, error) {
	path := "/conversations"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out struct {
		Conversations []models.Conversation `json:"conversations"`
	}
	err := c.doJSON(ctx, http.MethodGet, path, nil, &out)
	return out.Conversations, err
}

// CreateConversation creates a conversation and returns it.
func (c *Client) CreateConversation(ctx context.Context, title string) (*models.Conversation, error) {
	var out models.Conversation
	err := c.doJSON(ctx, http.MethodPost, "/conversations", map[string]string{"title": title}, &out)
	return &out, err
}

// GetConversation returns a conversation and its full message history.
func (c *Client) GetConversation(ctx context.Context, conversationID int64) (*models.Conversation, []models.Message, error) {
	var out struct {
		Conversation models.Conversation `json:"conversation"`
		Messages     []models.Message    `json:"messages"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/conversations/"+strconv.FormatInt(conversationID, 10), nil, &out)
	return &out.Conversation, out.Messages, err
}
