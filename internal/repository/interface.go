package repository

import (
	"context"

	"github.com/veranemoloko/impex-tasks/internal/domain"
)

// TaskStore defines the interface for task storage operations.
// Lookups of a missing task return errors.ErrTaskNotFound.
type TaskStore interface {
	Insert(ctx context.Context, task *domain.Task) (int64, error)
	GetByID(ctx context.Context, id int64) (*domain.Task, error)
	// GetByParentID returns the most recently created task tracking parentID.
	GetByParentID(ctx context.Context, parentID int64) (*domain.Task, error)
	UpdateStatus(ctx context.Context, id int64, status domain.TaskStatus) error
	// GetRawParams returns the serialized params column of a task as stored.
	GetRawParams(ctx context.Context, id int64) ([]byte, error)
}
