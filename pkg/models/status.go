package models

// Task statuses.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// Task priorities.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// TaskStatuses returns the closed set of valid task statuses.
func TaskStatuses() []string {
	return []string{StatusPending, StatusInProgress, StatusCompleted, StatusCancelled}
}

// TaskPriorities returns the closed set of valid task priorities.
func TaskPriorities() []string {
	return []string{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}
}

// ValidStatus reports whether s is a valid task status.
func ValidStatus(s string) bool {
	for _, v := range TaskStatuses() {
		if v == s {
			return true
		}
	}
	return false
}

// ValidPriority reports whether p is a valid task priority.
func ValidPriority(p string) bool {
	for _, v := range TaskPriorities() {
		if v == p {
			return true
		}
	}
	return false
}

// ValidRole reports whether r is a valid message role.
func ValidRole(r string) bool {
	return r == RoleUser || r == RoleAssistant || r == RoleSystem
}
