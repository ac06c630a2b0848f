package domain

import "time"

// CreateTaskRequest represents the request body for creating a new Task.
type CreateTaskRequest struct {
	Type     string `json:"type" validate:"required"`
	Params   Params `json:"params"`
	ParentID *int64 `json:"parent_id,omitempty" validate:"omitempty,gt=0"`
}

// CreateTaskResponse is returned after a task was stored.
type CreateTaskResponse struct {
	TaskID     int64 `json:"task_id"`
	Dispatched bool  `json:"dispatched"`
}

// UpdateStatusRequest is sent by the worker to report progress.
type UpdateStatusRequest struct {
	Status TaskStatus `json:"status" validate:"required"`
}

// RemoteStatusRequest asks this host to resolve a parent task's status on a peer.
type RemoteStatusRequest struct {
	ParentID      int64  `json:"parent_id" validate:"required,gt=0"`
	ServerAddress string `json:"server_address" validate:"required,server_address"`
	BasePath      string `json:"base_path"`
}

// ParentStatusRequest is the body of the peer-facing status query.
type ParentStatusRequest struct {
	ParentID int64 `json:"parent_id" validate:"required,gt=0"`
}

// StatusResponse carries a task status. A nil Status means no task was found.
type StatusResponse struct {
	Status *TaskStatus `json:"status"`
}

// TaskResponse represents the response returned for a Task.
type TaskResponse struct {
	ID        int64      `json:"task_id"`
	Type      TaskType   `json:"type"`
	Status    TaskStatus `json:"status"`
	Params    Params     `json:"params,omitempty"`
	ParentID  *int64     `json:"parent_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func NewTaskResponse(t *Task) TaskResponse {
	return TaskResponse{
		ID:        t.ID,
		Type:      t.Type,
		Status:    t.Status,
		Params:    t.Params,
		ParentID:  t.ParentID,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}
