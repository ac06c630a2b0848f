package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/veranemoloko/impex-tasks/internal/domain"
	"github.com/veranemoloko/impex-tasks/internal/metrics"
	"golang.org/x/sync/errgroup"
)

// Handler reacts to a worker wake-up command, typically by rescanning pending tasks.
type Handler func(ctx context.Context, cmd domain.Command) error

// StreamReceiver reads commands from a consumer group.
type StreamReceiver interface {
	Receive(ctx context.Context, group, consumer string, block time.Duration) ([]domain.Command, error)
}

// Listener consumes wake-up commands and hands them to a Handler, at most limit at a time.
type Listener struct {
	handler Handler
	limit   int
	logger  *slog.Logger
}

func NewListener(handler Handler, limit int, logger *slog.Logger) *Listener {
	if limit <= 0 {
		limit = 1
	}
	return &Listener{
		handler: handler,
		limit:   limit,
		logger:  logger,
	}
}

// ListenChannel handles commands from ch until ctx is canceled or ch is closed.
// In-flight handlers are waited for before it returns.
func (l *Listener) ListenChannel(ctx context.Context, ch <-chan domain.Command) error {
	g := new(errgroup.Group)
	g.SetLimit(l.limit)

	for {
		select {
		case <-ctx.Done():
			return g.Wait()
		case cmd, ok := <-ch:
			if !ok {
				return g.Wait()
			}
			l.spawn(ctx, g, cmd)
		}
	}
}

// ListenStream polls the receiver until ctx is canceled. Read errors are logged and retried.
func (l *Listener) ListenStream(ctx context.Context, r StreamReceiver, group, consumer string) error {
	g := new(errgroup.Group)
	g.SetLimit(l.limit)

	for {
		if ctx.Err() != nil {
			return g.Wait()
		}

		cmds, err := r.Receive(ctx, group, consumer, 2*time.Second)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return g.Wait()
			}
			l.logger.Error("read commands failed", "group", group, "error", err)
			select {
			case <-ctx.Done():
				return g.Wait()
			case <-time.After(time.Second):
			}
			continue
		}

		for _, cmd := range cmds {
			l.spawn(ctx, g, cmd)
		}
	}
}

func (l *Listener) spawn(ctx context.Context, g *errgroup.Group, cmd domain.Command) {
	metrics.WorkerWakeups.Inc()
	g.Go(func() error {
		if err := l.handler(ctx, cmd); err != nil {
			l.logger.Error("worker command failed",
				"command", cmd.Name,
				"command_id", cmd.ID,
				"error", err,
			)
		}
		return nil
	})
}
