package domain

import "time"

// TaskType selects which worker handles a task.
type TaskType string

const (
	TaskTypeExport TaskType = "export"
	TaskTypeImport TaskType = "import"
)

// ParseTaskType returns the TaskType for s, or false if s is not a supported type.
func ParseTaskType(s string) (TaskType, bool) {
	switch TaskType(s) {
	case TaskTypeExport:
		return TaskTypeExport, true
	case TaskTypeImport:
		return TaskTypeImport, true
	default:
		return "", false
	}
}

type Task struct {
	ID        int64      `json:"id"`
	Type      TaskType   `json:"type"`
	Status    TaskStatus `json:"status"`
	Params    Params     `json:"params,omitempty"`
	ParentID  *int64     `json:"parent_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// NewTask builds a pending task. The store assigns the id.
func NewTask(taskType TaskType, params Params, parentID *int64) *Task {
	now := time.Now()
	return &Task{
		Type:      taskType,
		Status:    TaskStatusPending,
		Params:    params,
		ParentID:  parentID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CanTransition reports whether the task may move from its current status to next.
func (t *Task) CanTransition(next TaskStatus) bool {
	return t.Type.CanTransition(t.Status, next)
}
