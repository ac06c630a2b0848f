package dispatch

import (
	"context"

	"github.com/veranemoloko/impex-tasks/internal/domain"
)

// WorkerDispatcher enqueues wake-up commands for the import/export worker.
type WorkerDispatcher interface {
	Dispatch(ctx context.Context, cmd domain.Command) error
}
