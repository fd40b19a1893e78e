package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/tasktalk/tasktalk/internal/store"
)

const msgUnavailable = "I couldn't reach the task store just now, so nothing was changed. Please try again in a moment."

func msgBadArguments(op string) string {
	return fmt.Sprintf("I understood you want to %s, but I couldn't make sense of the details. Could you rephrase?", strings.ReplaceAll(op, "_", " "))
}

// describeValidation renders a validation failure without leaking raw error
// text: it names the field and, when known, the allowed values.
func describeValidation(ve *store.ValidationError) string {
	if len(ve.Allowed) > 0 {
		return fmt.Sprintf("%q isn't a valid %s. Allowed values are: %s. Nothing was changed.",
			ve.Value, ve.Field, strings.Join(ve.Allowed, ", "))
	}
	if ve.Message != "" {
		return "That didn't work: " + ve.Message + ". Nothing was changed."
	}
	return fmt.Sprintf("The %s you gave isn't valid, so nothing was changed.", ve.Field)
}

// describeAmbiguity lists competing readings and asks the user to pick one.
func describeAmbiguity(candidates []CandidateAction) string {
	var b strings.Builder
	b.WriteString("I can read that a few ways:\n")
	for i, c := range candidates {
		fmt.Fprintf(&b, "  %d. %s", i+1, describeOp(&c))
		b.WriteByte('\n')
	}
	b.WriteString("Which did you mean?")
	return b.String()
}

func describeOp(c *CandidateAction) string {
	verb := strings.ReplaceAll(c.Op, "_", " ")
	if extras := describeParams(c.Params); extras != "" {
		return verb + " (" + extras + ")"
	}
	return verb
}

// describeNotFound builds the not-found reply: up to limit recently touched
// tasks as suggestions plus a clarification question.
func describeNotFound(ctx context.Context, st store.Store, entity string, limit int) (string, []store.Task) {
	var b strings.Builder
	fmt.Fprintf(&b, "I couldn't find that %s.", entity)

	var suggestions []store.Task
	if entity == "task" && limit > 0 {
		if recent, err := st.RecentTasks(ctx, limit); err == nil && len(recent) > 0 {
			suggestions = recent
			b.WriteString(" Recent tasks:\n")
			for _, task := range recent {
				fmt.Fprintf(&b, "  #%d %s (%s)\n", task.TaskID, task.Title, task.Status)
			}
			b.WriteString("Did you mean one of these?")
			return b.String(), suggestions
		}
	}
	b.WriteString(" Could you check the id and try again?")
	return b.String(), suggestions
}
