package store

import (
	"strings"

	"github.com/tasktalk/tasktalk/pkg/models"
)

// NormalizeDraft applies defaults and validates a task draft in place.
// Exported so alternative Store implementations share one rule set.
func NormalizeDraft(d *TaskDraft) error {
	d.Title = strings.TrimSpace(d.Title)
	if d.Title == "" {
		return &ValidationError{Field: "title", Message: "title is required"}
	}
	if d.Status == "" {
		d.Status = models.StatusPending
	}
	if d.Priority == "" {
		d.Priority = models.PriorityMedium
	}
	if !models.ValidStatus(d.Status) {
		return &ValidationError{Field: "status", Value: d.Status, Allowed: models.TaskStatuses()}
	}
	if !models.ValidPriority(d.Priority) {
		return &ValidationError{Field: "priority", Value: d.Priority, Allowed: models.TaskPriorities()}
	}
	return nil
}

// ValidateUpdate checks a partial task update without applying it.
func ValidateUpdate(u TaskUpdate) error {
	if u.Title == nil && u.Description == nil && u.Status == nil && u.Priority == nil {
		return &ValidationError{Field: "update", Message: "no fields to update"}
	}
	if u.Title != nil && strings.TrimSpace(*u.Title) == "" {
		return &ValidationError{Field: "title", Message: "title cannot be empty"}
	}
	if u.Status != nil && !models.ValidStatus(*u.Status) {
		return &ValidationError{Field: "status", Value: *u.Status, Allowed: models.TaskStatuses()}
	}
	if u.Priority != nil && !models.ValidPriority(*u.Priority) {
		return &ValidationError{Field: "priority", Value: *u.Priority, Allowed: models.TaskPriorities()}
	}
	return nil
}

// ValidateMessage checks a message role and content before insert.
func ValidateMessage(role, content string) error {
	if !models.ValidRole(role) {
		return &ValidationError{Field: "role", Value: role, Allowed: []string{models.RoleUser, models.RoleAssistant, models.RoleSystem}}
	}
	if content == "" {
		return &ValidationError{Field: "content", Message: "content is required"}
	}
	return nil
}
