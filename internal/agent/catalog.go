package agent

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/tasktalk/tasktalk/internal/agent/classify"
	"github.com/tasktalk/tasktalk/internal/store"
	"github.com/tasktalk/tasktalk/pkg/models"
)

// ParamSpec declares one accepted parameter for an operation.
type ParamSpec struct {
	Name        string
	Type        string // "string" or "integer"
	Description string
	Required    bool
	Enum        []string
}

// OpSpec is one catalog entry: the operation, its parameters, and whether it
// mutates anything a user could regret.
type OpSpec struct {
	Name                 string
	Entity               string
	Description          string
	Params               []ParamSpec
	RequiresConfirmation bool
}

// Catalog is the closed set of operations the resolver may select and the
// dispatcher may execute. Nothing outside it is ever dispatched.
type Catalog struct {
	ops   []OpSpec
	index map[string]*OpSpec
}

// NewCatalog builds the operation catalog. confirmCreates additionally gates
// task and conversation creation behind a confirmation turn.
func NewCatalog(confirmCreates bool) *Catalog {
	statusEnum := models.TaskStatuses()
	priorityEnum := models.TaskPriorities()

	ops := []OpSpec{
		{
			Name:        "create_task",
			Entity:      "task",
			Description: "Create a new task with a title and optional description, status, and priority",
			Params: []ParamSpec{
				{Name: "title", Type: "string", Description: "Task title", Required: true},
				{Name: "description", Type: "string", Description: "Longer task description"},
				{Name: "status", Type: "string", Description: "Initial status", Enum: statusEnum},
				{Name: "priority", Type: "string", Description: "Task priority", Enum: priorityEnum},
			},
			RequiresConfirmation: confirmCreates,
		},
		{
			Name:        "get_task",
			Entity:      "task",
			Description: "Show one task by its numeric id",
			Params: []ParamSpec{
				{Name: "task_id", Type: "integer", Description: "Task id", Required: true},
			},
		},
		{
			Name:        "update_task",
			Entity:      "task",
			Description: "Change fields of an existing task (title, description, status, priority)",
			Params: []ParamSpec{
				{Name: "task_id", Type: "integer", Description: "Task id", Required: true},
				{Name: "title", Type: "string", Description: "New title"},
				{Name: "description", Type: "string", Description: "New description"},
				{Name: "status", Type: "string", Description: "New status", Enum: statusEnum},
				{Name: "priority", Type: "string", Description: "New priority", Enum: priorityEnum},
			},
			RequiresConfirmation: true,
		},
		{
			Name:        "delete_task",
			Entity:      "task",
			Description: "Delete a task by its numeric id",
			Params: []ParamSpec{
				{Name: "task_id", Type: "integer", Description: "Task id", Required: true},
			},
			RequiresConfirmation: true,
		},
		{
			Name:        "list_tasks",
			Entity:      "task",
			Description: "List tasks, optionally filtered by status or priority",
			Params: []ParamSpec{
				{Name: "status", Type: "string", Description: "Filter by status", Enum: statusEnum},
				{Name: "priority", Type: "string", Description: "Filter by priority", Enum: priorityEnum},
			},
		},
		{
			Name:        "create_conversation",
			Entity:      "conversation",
			Description: "Start a new conversation",
			Params: []ParamSpec{
				{Name: "title", Type: "string", Description: "Conversation title"},
			},
			RequiresConfirmation: confirmCreates,
		},
		{
			Name:        "get_conversation",
			Entity:      "conversation",
			Description: "Show a conversation by its numeric id",
			Params: []ParamSpec{
				{Name: "conversation_id", Type: "integer", Description: "Conversation id", Required: true},
			},
		},
	}

	c := &Catalog{ops: ops, index: make(map[string]*OpSpec, len(ops))}
	for i := range c.ops {
		c.index[c.ops[i].Name] = &c.ops[i]
	}
	return c
}

// Lookup returns the catalog entry for op, or nil.
func (c *Catalog) Lookup(op string) *OpSpec {
	return c.index[op]
}

// ToolDefs renders the catalog as classifier tool definitions.
func (c *Catalog) ToolDefs() []classify.ToolDef {
	defs := make([]classify.ToolDef, len(c.ops))
	for i, op := range c.ops {
		defs[i] = classify.ToolDef{
			Name:        op.Name,
			Description: op.Description,
			Parameters:  op.schema(),
		}
	}
	return defs
}

// Tools renders the catalog for the public /tools listing.
func (c *Catalog) Tools() []models.ToolInfo {
	infos := make([]models.ToolInfo, len(c.ops))
	for i, op := range c.ops {
		infos[i] = models.ToolInfo{
			Name:                 op.Name,
			Description:          op.Description,
			Parameters:           op.schema(),
			RequiresConfirmation: op.RequiresConfirmation,
		}
	}
	return infos
}

func (op *OpSpec) schema() map[string]any {
	props := make(map[string]any, len(op.Params))
	var required []string
	for _, p := range op.Params {
		prop := map[string]any{"type": p.Type, "description": p.Description}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// ExtractParams filters raw classifier arguments down to the declared schema:
// undeclared fields are dropped, types are coerced, and enum or missing
// required violations return a *store.ValidationError.
func (op *OpSpec) ExtractParams(raw map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(raw))
	for _, p := range op.Params {
		v, ok := raw[p.Name]
		if !ok || v == nil {
			if p.Required {
				return nil, &store.ValidationError{
					Field:   p.Name,
					Message: fmt.Sprintf("%s is required for %s", p.Name, op.Name),
				}
			}
			continue
		}
		switch p.Type {
		case "integer":
			n, err := toInt64(v)
			if err != nil {
				return nil, &store.ValidationError{Field: p.Name, Value: fmt.Sprint(v), Message: p.Name + " must be a number"}
			}
			out[p.Name] = n
		default:
			s, ok := v.(string)
			if !ok {
				s = fmt.Sprint(v)
			}
			s = strings.TrimSpace(s)
			if s == "" {
				if p.Required {
					return nil, &store.ValidationError{Field: p.Name, Message: p.Name + " must not be empty"}
				}
				continue
			}
			if len(p.Enum) > 0 && !contains(p.Enum, s) {
				return nil, &store.ValidationError{Field: p.Name, Value: s, Allowed: p.Enum}
			}
			out[p.Name] = s
		}
	}
	return out, nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("not an integer: %v", n)
		}
		return int64(n), nil
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case json.Number:
		return n.Int64()
	default:
		return 0, fmt.Errorf("not a number: %T", v)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
