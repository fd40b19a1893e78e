package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tasktalk/tasktalk/pkg/models"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	app, err := NewApp(ServerOptions{Home: t.TempDir(), Addr: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	ts := httptest.NewServer(app.Server.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func TestServerSmoke(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	r1, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	if r1.StatusCode != 200 {
		t.Fatalf("/health status=%d", r1.StatusCode)
	}

	// create task
	resp := postJSON(t, ts.URL+"/tasks", `{"title":"test task","priority":"high"}`)
	if resp.StatusCode != 201 {
		t.Fatalf("POST /tasks status=%d", resp.StatusCode)
	}
	var created models.Task
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode created task: %v", err)
	}
	if created.Status != "pending" || created.Priority != "high" {
		t.Fatalf("created task: %+v", created)
	}

	// get by id
	getOne, _ := http.Get(fmt.Sprintf("%s/tasks/%d", ts.URL, created.TaskID))
	if getOne.StatusCode != 200 {
		t.Fatalf("GET task by id status=%d", getOne.StatusCode)
	}
	var got models.Task
	if err := json.NewDecoder(getOne.Body).Decode(&got); err != nil {
		t.Fatalf("decode task: %v", err)
	}
	if got.Title != "test task" {
		t.Fatalf("task: got %+v", got)
	}

	// patch
	patchReq, _ := http.NewRequest("PATCH", fmt.Sprintf("%s/tasks/%d", ts.URL, created.TaskID),
		strings.NewReader(`{"status":"in_progress"}`))
	patchResp, _ := http.DefaultClient.Do(patchReq)
	if patchResp.StatusCode != 200 {
		t.Fatalf("PATCH task status=%d", patchResp.StatusCode)
	}
	var updated models.Task
	if err := json.NewDecoder(patchResp.Body).Decode(&updated); err != nil {
		t.Fatalf("decode updated task: %v", err)
	}
	if updated.Status != "in_progress" {
		t.Fatalf("updated task: %+v", updated)
	}

	// validation error surfaces as 400 with a JSON error body
	bad := postJSON(t, ts.URL+"/tasks", `{"title":"x","status":"banana"}`)
	if bad.StatusCode != 400 {
		t.Fatalf("bad status should be 400, got %d", bad.StatusCode)
	}
	var errBody struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(bad.Body).Decode(&errBody); err != nil || errBody.Error == "" {
		t.Fatalf("expected error message in JSON: %v %q", err, errBody.Error)
	}

	// delete, then 404
	delReq, _ := http.NewRequest("DELETE", fmt.Sprintf("%s/tasks/%d", ts.URL, created.TaskID), nil)
	delResp, _ := http.DefaultClient.Do(delReq)
	if delResp.StatusCode != 200 {
		t.Fatalf("DELETE task status=%d", delResp.StatusCode)
	}
	gone, _ := http.Get(fmt.Sprintf("%s/tasks/%d", ts.URL, created.TaskID))
	if gone.StatusCode != 404 {
		t.Fatalf("GET deleted task status=%d", gone.StatusCode)
	}
}

func TestToolsEndpoint(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/tools")
	if err != nil {
		t.Fatalf("GET /tools: %v", err)
	}
	var body struct {
		Tools []models.ToolInfo `json:"tools"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode /tools: %v", err)
	}
	if len(body.Tools) != 7 {
		t.Fatalf("expected 7 tools, got %d", len(body.Tools))
	}
	byName := map[string]models.ToolInfo{}
	for _, tool := range body.Tools {
		byName[tool.Name] = tool
	}
	if !byName["delete_task"].RequiresConfirmation {
		t.Fatal("delete_task must require confirmation")
	}
	if byName["list_tasks"].RequiresConfirmation {
		t.Fatal("list_tasks must not require confirmation")
	}
	if byName["create_task"].Parameters["type"] != "object" {
		t.Fatalf("create_task schema: %v", byName["create_task"].Parameters)
	}
}

func TestChatCreateFlow(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/chat", `{"message":"create a task called \"chat driven task\""}`)
	if resp.StatusCode != 200 {
		t.Fatalf("POST /chat status=%d", resp.StatusCode)
	}
	var turn models.TurnResponse
	if err := json.NewDecoder(resp.Body).Decode(&turn); err != nil {
		t.Fatalf("decode turn: %v", err)
	}
	if turn.ConversationID == 0 {
		t.Fatal("chat should create a conversation lazily")
	}
	if turn.ActionSummary != "create_task" {
		t.Fatalf("action_summary = %q (%s)", turn.ActionSummary, turn.ResponseText)
	}

	// conversation now holds the user turn and the assistant reply
	convoResp, _ := http.Get(fmt.Sprintf("%s/conversations/%d", ts.URL, turn.ConversationID))
	if convoResp.StatusCode != 200 {
		t.Fatalf("GET conversation status=%d", convoResp.StatusCode)
	}
	var convoBody struct {
		Conversation models.Conversation `json:"conversation"`
		Messages     []models.Message    `json:"messages"`
	}
	if err := json.NewDecoder(convoResp.Body).Decode(&convoBody); err != nil {
		t.Fatalf("decode conversation: %v", err)
	}
	if len(convoBody.Messages) != 2 {
		t.Fatalf("messages = %d", len(convoBody.Messages))
	}
	if convoBody.Messages[0].Role != "user" || convoBody.Messages[1].Role != "assistant" {
		t.Fatalf("message roles: %+v", convoBody.Messages)
	}
}

func TestChatConfirmationFlowOverTwoPosts(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	// create a target through the CRUD API
	resp := postJSON(t, ts.URL+"/tasks", `{"title":"doomed"}`)
	var target models.Task
	if err := json.NewDecoder(resp.Body).Decode(&target); err != nil {
		t.Fatalf("decode task: %v", err)
	}

	first := postJSON(t, ts.URL+"/chat", fmt.Sprintf(`{"message":"delete task %d"}`, target.TaskID))
	var prompt models.TurnResponse
	if err := json.NewDecoder(first.Body).Decode(&prompt); err != nil {
		t.Fatalf("decode prompt: %v", err)
	}
	if prompt.ActionSummary != "confirm:delete_task" {
		t.Fatalf("first turn should gate: %q (%s)", prompt.ActionSummary, prompt.ResponseText)
	}
	if !strings.Contains(prompt.ResponseText, "yes/no") {
		t.Fatalf("prompt should ask yes/no: %q", prompt.ResponseText)
	}

	// target untouched between the two posts
	check, _ := http.Get(fmt.Sprintf("%s/tasks/%d", ts.URL, target.TaskID))
	if check.StatusCode != 200 {
		t.Fatalf("task should still exist, status=%d", check.StatusCode)
	}

	second := postJSON(t, ts.URL+"/chat",
		fmt.Sprintf(`{"message":"yes","conversation_id":%d}`, prompt.ConversationID))
	var done models.TurnResponse
	if err := json.NewDecoder(second.Body).Decode(&done); err != nil {
		t.Fatalf("decode second turn: %v", err)
	}
	if done.ActionSummary != "delete_task" {
		t.Fatalf("second turn should dispatch: %q (%s)", done.ActionSummary, done.ResponseText)
	}

	gone, _ := http.Get(fmt.Sprintf("%s/tasks/%d", ts.URL, target.TaskID))
	if gone.StatusCode != 404 {
		t.Fatalf("task should be deleted, status=%d", gone.StatusCode)
	}
}

func TestChatErrors(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	empty := postJSON(t, ts.URL+"/chat", `{"message":"   "}`)
	if empty.StatusCode != 400 {
		t.Fatalf("empty message status=%d", empty.StatusCode)
	}

	missing := postJSON(t, ts.URL+"/chat", `{"message":"hi","conversation_id":424242}`)
	if missing.StatusCode != 404 {
		t.Fatalf("missing conversation status=%d", missing.StatusCode)
	}
}

func TestStreamConnectedEvent(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, "GET", ts.URL+"/stream", nil)
	sseResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /stream: %v", err)
	}
	defer func() { _ = sseResp.Body.Close() }()

	sc := bufio.NewScanner(sseResp.Body)
	found := false
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "data: ") && strings.Contains(line, `"type":"connected"`) {
			found = true
			break
		}
	}
	if !found {
		t.Fatal("did not see connected event")
	}
}

func TestAPIKeyMiddleware(t *testing.T) {
	t.Parallel()

	app, err := NewApp(ServerOptions{Home: t.TempDir(), Addr: "127.0.0.1:0", APIKey: "sekrit"})
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	ts := httptest.NewServer(app.Server.Handler)
	t.Cleanup(ts.Close)

	// health is exempt
	health, _ := http.Get(ts.URL + "/health")
	if health.StatusCode != 200 {
		t.Fatalf("/health status=%d", health.StatusCode)
	}

	noKey, _ := http.Get(ts.URL + "/tasks")
	if noKey.StatusCode != 401 {
		t.Fatalf("missing key status=%d", noKey.StatusCode)
	}

	req, _ := http.NewRequest("GET", ts.URL+"/tasks", nil)
	req.Header.Set("X-API-Key", "sekrit")
	withKey, _ := http.DefaultClient.Do(req)
	if withKey.StatusCode != 200 {
		t.Fatalf("with key status=%d", withKey.StatusCode)
	}
}
