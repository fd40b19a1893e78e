package classify

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTools() []ToolDef {
	names := []string{
		"create_task", "get_task", "update_task", "delete_task", "list_tasks",
		"create_conversation", "get_conversation",
	}
	tools := make([]ToolDef, len(names))
	for i, n := range names {
		tools[i] = ToolDef{Name: n, Parameters: map[string]any{"type": "object"}}
	}
	return tools
}

func classifyOne(t *testing.T, utterance string) *Result {
	t.Helper()
	res, err := Scripted{}.Classify(context.Background(), Request{
		Utterance: utterance,
		Tools:     testTools(),
	})
	require.NoError(t, err)
	return res
}

func args(t *testing.T, call ToolCall) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(call.Arguments), &m))
	return m
}

func TestScriptedCreateTask(t *testing.T) {
	res := classifyOne(t, `create a task called "buy milk"`)
	require.Len(t, res.Calls, 1)
	assert.Equal(t, "create_task", res.Calls[0].Name)
	assert.Equal(t, "buy milk", args(t, res.Calls[0])["title"])
}

func TestScriptedCreateTaskUnquotedTitle(t *testing.T) {
	res := classifyOne(t, "add a task to water the plants")
	require.Len(t, res.Calls, 1)
	assert.Equal(t, "create_task", res.Calls[0].Name)
	assert.Equal(t, "water the plants", args(t, res.Calls[0])["title"])
}

func TestScriptedUpdateExtractsIDAndStatus(t *testing.T) {
	res := classifyOne(t, "mark task 7 as completed")
	require.Len(t, res.Calls, 1)
	assert.Equal(t, "update_task", res.Calls[0].Name)
	got := args(t, res.Calls[0])
	assert.Equal(t, float64(7), got["task_id"])
	assert.Equal(t, "completed", got["status"])
}

func TestScriptedDeleteTask(t *testing.T) {
	res := classifyOne(t, "delete task #3")
	require.Len(t, res.Calls, 1)
	assert.Equal(t, "delete_task", res.Calls[0].Name)
	assert.Equal(t, float64(3), args(t, res.Calls[0])["task_id"])
}

func TestScriptedShowDisambiguation(t *testing.T) {
	res := classifyOne(t, "show task 12")
	require.Len(t, res.Calls, 1)
	assert.Equal(t, "get_task", res.Calls[0].Name)

	res = classifyOne(t, "show my tasks")
	require.Len(t, res.Calls, 1)
	assert.Equal(t, "list_tasks", res.Calls[0].Name)
}

func TestScriptedWhatIsTaskBecomesGet(t *testing.T) {
	res := classifyOne(t, "What is task #999?")
	require.Len(t, res.Calls, 1)
	assert.Equal(t, "get_task", res.Calls[0].Name)
	assert.Equal(t, float64(999), args(t, res.Calls[0])["task_id"])
}

func TestScriptedListFilter(t *testing.T) {
	res := classifyOne(t, "list completed tasks")
	require.Len(t, res.Calls, 1)
	assert.Equal(t, "list_tasks", res.Calls[0].Name)
	assert.Equal(t, "completed", args(t, res.Calls[0])["status"])
}

func TestScriptedCompetingVerbsYieldSeveralCalls(t *testing.T) {
	// Both a create and an update verb over the task noun.
	res := classifyOne(t, "make a change to the task")
	require.GreaterOrEqual(t, len(res.Calls), 2)
}

func TestScriptedSmallTalk(t *testing.T) {
	res := classifyOne(t, "hello there")
	assert.Empty(t, res.Calls)
	assert.NotEmpty(t, res.Text)

	res = classifyOne(t, "what's the weather like?")
	assert.Empty(t, res.Calls)
	assert.NotEmpty(t, res.Text)
}

func TestScriptedConversationOps(t *testing.T) {
	res := classifyOne(t, "start a new conversation")
	require.Len(t, res.Calls, 1)
	assert.Equal(t, "create_conversation", res.Calls[0].Name)
}

func TestScriptedHonorsCatalog(t *testing.T) {
	res, err := Scripted{}.Classify(context.Background(), Request{
		Utterance: "delete task 3",
		Tools:     []ToolDef{{Name: "list_tasks", Parameters: map[string]any{"type": "object"}}},
	})
	require.NoError(t, err)
	assert.Empty(t, res.Calls, "must never select an operation outside the catalog")
}
