package dispatch

import (
	"context"

	"github.com/veranemoloko/impex-tasks/internal/domain"
	errpkg "github.com/veranemoloko/impex-tasks/internal/errors"
)

// MemoryDispatcher queues commands on a buffered channel for an in-process worker.
type MemoryDispatcher struct {
	queue chan domain.Command
}

func NewMemoryDispatcher(size int) *MemoryDispatcher {
	if size <= 0 {
		size = 1
	}
	return &MemoryDispatcher{queue: make(chan domain.Command, size)}
}

// Dispatch never blocks. A full queue is reported as ErrQueueFull.
func (d *MemoryDispatcher) Dispatch(ctx context.Context, cmd domain.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case d.queue <- cmd:
		return nil
	default:
		return errpkg.ErrQueueFull
	}
}

// C returns the channel the worker reads commands from.
func (d *MemoryDispatcher) C() <-chan domain.Command {
	return d.queue
}
