package agent

import (
	"fmt"
	"sort"
	"strings"
)

// Verdict is the gate's reading of a reply to a confirmation prompt.
type Verdict int

const (
	// VerdictOther means the reply is neither a yes nor a no; the pending
	// action is treated as cancelled and the reply resolved fresh.
	VerdictOther Verdict = iota
	VerdictAffirm
	VerdictNegate
)

var (
	affirmWords = map[string]bool{
		"yes": true, "y": true, "yeah": true, "yep": true, "yup": true,
		"ok": true, "okay": true, "sure": true, "confirm": true, "confirmed": true,
		"do it": true, "go ahead": true, "please do": true, "affirmative": true,
	}
	negateWords = map[string]bool{
		"no": true, "n": true, "nope": true, "nah": true,
		"cancel": true, "stop": true, "abort": true, "don't": true, "dont": true,
		"never mind": true, "nevermind": true, "negative": true,
	}
)

// ReadConfirmation classifies a reply to a confirmation prompt. It is a
// separate, purely lexical pass: the intent classifier never sees
// confirmation turns.
func ReadConfirmation(utterance string) Verdict {
	text := strings.ToLower(strings.TrimSpace(utterance))
	text = strings.Trim(text, ".!?")
	if affirmWords[text] || negateWords[text] {
		if affirmWords[text] {
			return VerdictAffirm
		}
		return VerdictNegate
	}
	// Short replies that lead with a yes/no word still count.
	fields := strings.Fields(text)
	if len(fields) > 0 && len(fields) <= 4 {
		if affirmWords[fields[0]] {
			return VerdictAffirm
		}
		if negateWords[fields[0]] {
			return VerdictNegate
		}
	}
	return VerdictOther
}

// ConfirmationPrompt renders the plain-language question for a gated
// candidate, naming the operation, its target, and the parameters.
func ConfirmationPrompt(c *CandidateAction) string {
	var b strings.Builder
	switch c.Op {
	case "delete_task":
		fmt.Fprintf(&b, "This will permanently delete task #%v", c.Params["task_id"])
	case "update_task":
		fmt.Fprintf(&b, "This will update task #%v", c.Params["task_id"])
		if extras := describeParams(c.Params, "task_id"); extras != "" {
			b.WriteString(" (" + extras + ")")
		}
	case "create_task":
		fmt.Fprintf(&b, "This will create a task titled %q", c.Params["title"])
	case "create_conversation":
		b.WriteString("This will start a new conversation")
	default:
		fmt.Fprintf(&b, "This will run %s", c.Op)
		if extras := describeParams(c.Params); extras != "" {
			b.WriteString(" with " + extras)
		}
	}
	b.WriteString(". Should I proceed? (yes/no)")
	return b.String()
}

func describeParams(params map[string]any, skip ...string) string {
	skipped := make(map[string]bool, len(skip))
	for _, s := range skip {
		skipped[s] = true
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		if !skipped[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s: %v", k, params[k])
	}
	return strings.Join(parts, ", ")
}
