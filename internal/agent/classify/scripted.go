package classify

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// Scripted is a deterministic keyword classifier. It backs the chat CLI and
// tests when no model API key is configured, and mirrors how a model would
// answer: verb plus noun picks the operation, arguments are lifted from the
// text, and competing verbs produce competing calls.
type Scripted struct{}

// Name implements Classifier.
func (Scripted) Name() string { return "scripted" }

var (
	opVerbs = []struct {
		op    string
		verbs []string
	}{
		{"create_task", []string{"create", "add", "new", "make"}},
		{"update_task", []string{"update", "change", "modify", "mark", "set", "finish", "complete", "start"}},
		{"delete_task", []string{"delete", "remove", "drop"}},
		{"get_task", []string{"show", "describe", "open", "detail"}},
		{"list_tasks", []string{"list", "show", "view", "see", "what"}},
	}

	taskNouns = []string{"task", "todo", "to-do"}

	reQuoted = regexp.MustCompile(`"([^"]+)"|'([^']+)'`)
	reTaskID = regexp.MustCompile(`(?i)(?:task|todo|#)\s*#?\s*(\d+)`)
	reNumber = regexp.MustCompile(`\b(\d+)\b`)
)

// Classify implements Classifier.
func (Scripted) Classify(_ context.Context, req Request) (*Result, error) {
	text := strings.ToLower(req.Utterance)

	allowed := make(map[string]bool, len(req.Tools))
	for _, t := range req.Tools {
		allowed[t.Name] = true
	}

	if mentionsAny(text, []string{"conversation", "chat"}) {
		if op, hits := matchConversationOp(text); op != "" && allowed[op] {
			return &Result{Calls: []ToolCall{{Name: op, Arguments: "{}", Score: float64(hits)}}}, nil
		}
	}

	if !mentionsAny(text, taskNouns) {
		return &Result{Text: smallTalk(req.Utterance)}, nil
	}

	var calls []ToolCall
	for _, ov := range opVerbs {
		hits := 0
		for _, v := range ov.verbs {
			if mentionsWord(text, v) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		calls = append(calls, ToolCall{
			Name:      ov.op,
			Arguments: extractArgs(ov.op, req.Utterance, text),
			Score:     float64(hits),
		})
	}
	if len(calls) == 0 {
		return &Result{Text: smallTalk(req.Utterance)}, nil
	}

	// Disambiguate the shared "show" verb: a task id means get, otherwise list.
	if len(calls) == 2 && hasOp(calls, "get_task") && hasOp(calls, "list_tasks") {
		if reTaskID.MatchString(text) {
			calls = keepOp(calls, "get_task")
		} else {
			calls = keepOp(calls, "list_tasks")
		}
	}

	// "what is task #7" names a specific task; turn the list into a get.
	if len(calls) == 1 && calls[0].Name == "list_tasks" && allowed["get_task"] && reTaskID.MatchString(text) {
		calls[0] = ToolCall{
			Name:      "get_task",
			Arguments: extractArgs("get_task", req.Utterance, text),
			Score:     calls[0].Score,
		}
	}

	kept := calls[:0]
	for _, c := range calls {
		if allowed[c.Name] {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return &Result{Text: smallTalk(req.Utterance)}, nil
	}
	return &Result{Calls: kept}, nil
}

func matchConversationOp(text string) (string, int) {
	for _, v := range []string{"create", "new", "start", "make"} {
		if mentionsWord(text, v) {
			return "create_conversation", 1
		}
	}
	for _, v := range []string{"show", "open", "view", "get"} {
		if mentionsWord(text, v) {
			return "get_conversation", 1
		}
	}
	return "", 0
}

func extractArgs(op, original, lower string) string {
	args := map[string]any{}

	switch op {
	case "create_task":
		if title := quotedText(original); title != "" {
			args["title"] = title
		} else if title := titleAfterMarker(original); title != "" {
			args["title"] = title
		}
		if p := priorityWord(lower); p != "" {
			args["priority"] = p
		}
	case "update_task":
		if id, ok := taskID(lower); ok {
			args["task_id"] = id
		}
		if s := statusWord(lower); s != "" {
			args["status"] = s
		}
		if p := priorityWord(lower); p != "" {
			args["priority"] = p
		}
		if title := quotedText(original); title != "" {
			args["title"] = title
		}
	case "delete_task", "get_task":
		if id, ok := taskID(lower); ok {
			args["task_id"] = id
		} else if title := quotedText(original); title != "" {
			args["title"] = title
		}
	case "list_tasks":
		if s := statusWord(lower); s != "" {
			args["status"] = s
		}
		if p := priorityWord(lower); p != "" {
			args["priority"] = p
		}
	}

	b, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func taskID(text string) (int64, bool) {
	if m := reTaskID.FindStringSubmatch(text); m != nil {
		id, err := strconv.ParseInt(m[1], 10, 64)
		return id, err == nil
	}
	if m := reNumber.FindStringSubmatch(text); m != nil {
		id, err := strconv.ParseInt(m[1], 10, 64)
		return id, err == nil
	}
	return 0, false
}

func quotedText(s string) string {
	if m := reQuoted.FindStringSubmatch(s); m != nil {
		if m[1] != "" {
			return m[1]
		}
		return m[2]
	}
	return ""
}

// titleAfterMarker picks up "create a task called buy milk" style phrasing.
func titleAfterMarker(s string) string {
	lower := strings.ToLower(s)
	for _, marker := range []string{" called ", " named ", " titled ", " to ", " for "} {
		if i := strings.Index(lower, marker); i >= 0 {
			title := strings.TrimSpace(s[i+len(marker):])
			title = strings.TrimSuffix(title, ".")
			if title != "" {
				return title
			}
		}
	}
	return ""
}

func statusWord(text string) string {
	switch {
	case mentionsAny(text, []string{"done", "complete", "completed", "finish", "finished"}):
		return "completed"
	case mentionsAny(text, []string{"in progress", "in_progress", "start", "started", "working"}):
		return "in_progress"
	case mentionsAny(text, []string{"cancelled", "canceled"}):
		return "cancelled"
	case mentionsWord(text, "pending"):
		return "pending"
	}
	return ""
}

func priorityWord(text string) string {
	switch {
	case mentionsWord(text, "urgent"):
		return "urgent"
	case mentionsAny(text, []string{"high priority", "high-priority", "important"}):
		return "high"
	case mentionsAny(text, []string{"low priority", "low-priority"}):
		return "low"
	}
	return ""
}

func smallTalk(utterance string) string {
	lower := strings.ToLower(utterance)
	switch {
	case mentionsAny(lower, []string{"hello", "hi ", "hey"}) || lower == "hi":
		return "Hello! I can create, update, list, and delete your tasks. What would you like to do?"
	case mentionsAny(lower, []string{"help", "what can you do"}):
		return "I manage tasks through chat. Try \"create a task called buy milk\" or \"show my tasks\"."
	case mentionsAny(lower, []string{"thanks", "thank you"}):
		return "You're welcome!"
	}
	return "I can help with tasks and conversations. Tell me what you'd like to do, for example \"list my tasks\"."
}

func mentionsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

func mentionsWord(text, word string) bool {
	i := strings.Index(text, word)
	if i < 0 {
		return false
	}
	before := i == 0 || !isAlpha(text[i-1])
	j := i + len(word)
	after := j >= len(text) || !isAlpha(text[j])
	return before && after
}

func isAlpha(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func hasOp(calls []ToolCall, op string) bool {
	for _, c := range calls {
		if c.Name == op {
			return true
		}
	}
	return false
}

func keepOp(calls []ToolCall, op string) []ToolCall {
	for _, c := range calls {
		if c.Name == op {
			return []ToolCall{c}
		}
	}
	return calls
}
