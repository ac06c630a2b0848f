package domain

import "slices"

// TaskStatus represents the current state of a Task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "inprogress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// statusRank orders statuses along the lifecycle. Equal ranks are alternative outcomes.
var statusRank = map[TaskStatus]int{
	TaskStatusPending:    0,
	TaskStatusInProgress: 1,
	TaskStatusCompleted:  2,
	TaskStatusFailed:     2,
}

var typeStatuses = map[TaskType][]TaskStatus{
	TaskTypeExport: {
		TaskStatusPending,
		TaskStatusInProgress,
		TaskStatusCompleted,
		TaskStatusFailed,
	},
	TaskTypeImport: {
		TaskStatusPending,
		TaskStatusInProgress,
		TaskStatusCompleted,
		TaskStatusFailed,
	},
}

// IsTerminal reports whether no further transition is allowed out of s.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Statuses returns the ordered set of statuses legal for the type.
func (t TaskType) Statuses() []TaskStatus {
	return slices.Clone(typeStatuses[t])
}

// Allows reports whether s is a legal status for the type.
func (t TaskType) Allows(s TaskStatus) bool {
	return slices.Contains(typeStatuses[t], s)
}

// CanTransition reports whether a task of this type may move from cur to next.
// Movement is forward-only; repeating the current status is always accepted.
func (t TaskType) CanTransition(cur, next TaskStatus) bool {
	if !t.Allows(next) {
		return false
	}
	if cur == next {
		return true
	}
	if cur.IsTerminal() {
		return false
	}
	return statusRank[next] > statusRank[cur]
}
