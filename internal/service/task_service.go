package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/veranemoloko/impex-tasks/internal/dispatch"
	"github.com/veranemoloko/impex-tasks/internal/domain"
	errpkg "github.com/veranemoloko/impex-tasks/internal/errors"
	"github.com/veranemoloko/impex-tasks/internal/metrics"
	"github.com/veranemoloko/impex-tasks/internal/remote"
	"github.com/veranemoloko/impex-tasks/internal/repository"
	"github.com/veranemoloko/impex-tasks/internal/validation"
	"golang.org/x/sync/singleflight"
)

const dispatchTimeout = 5 * time.Second

// StatusResolver asks a peer server for the status of a task by parent id.
type StatusResolver interface {
	FetchStatus(ctx context.Context, url string, parentID int64, p domain.RemoteTransferParams) (domain.TaskStatus, bool, error)
}

// TaskService creates tasks, wakes the worker and resolves task status locally or on a peer.
type TaskService struct {
	store      repository.TaskStore
	dispatcher dispatch.WorkerDispatcher
	remote     StatusResolver
	logger     *slog.Logger
	lookups    singleflight.Group
}

func NewTaskService(
	store repository.TaskStore,
	dispatcher dispatch.WorkerDispatcher,
	remote StatusResolver,
	logger *slog.Logger,
) *TaskService {
	return &TaskService{
		store:      store,
		dispatcher: dispatcher,
		remote:     remote,
		logger:     logger,
	}
}

// CreateTask stores a pending task and wakes the worker. When the wake-up cannot be sent
// the task id is still returned together with an *errors.DispatchError.
func (s *TaskService) CreateTask(ctx context.Context, taskType string, params domain.Params, parentID *int64) (int64, error) {
	tt, ok := domain.ParseTaskType(taskType)
	if !ok {
		return 0, fmt.Errorf("%w: %q", errpkg.ErrUnsupportedTaskType, taskType)
	}

	if params.HasRemoteTransfer() {
		rt, err := params.RemoteTransfer()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", errpkg.ErrInvalidParams, err)
		}
		if err := validation.ValidateRemoteTransfer(rt); err != nil {
			return 0, err
		}
	}

	task := domain.NewTask(tt, params, parentID)
	id, err := s.store.Insert(ctx, task)
	if err != nil {
		return 0, fmt.Errorf("insert task: %w", err)
	}
	metrics.TasksCreated.WithLabelValues(string(tt)).Inc()

	s.logger.Info("task created",
		"task_id", id,
		"type", tt,
		"parent_id", parentID,
	)

	if err := s.dispatch(ctx); err != nil {
		s.logger.Error("worker dispatch failed, task left pending",
			"task_id", id,
			"error", err,
		)
		return id, &errpkg.DispatchError{TaskID: id, Err: err}
	}

	return id, nil
}

// Redispatch sends another worker wake-up so pending tasks get picked up.
func (s *TaskService) Redispatch(ctx context.Context) error {
	if err := s.dispatch(ctx); err != nil {
		return fmt.Errorf("%w: %w", errpkg.ErrDispatchFailure, err)
	}
	s.logger.Info("worker wake-up re-sent")
	return nil
}

func (s *TaskService) dispatch(ctx context.Context) error {
	// Detached from caller cancellation: the task row already exists.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dispatchTimeout)
	defer cancel()

	if err := s.dispatcher.Dispatch(ctx, domain.NewStartWorkerCommand()); err != nil {
		metrics.DispatchTotal.WithLabelValues("error").Inc()
		return err
	}
	metrics.DispatchTotal.WithLabelValues("ok").Inc()
	return nil
}

// GetTask returns the full task or errors.ErrTaskNotFound.
func (s *TaskService) GetTask(ctx context.Context, id int64) (*domain.Task, error) {
	return s.store.GetByID(ctx, id)
}

// GetStatus returns the status of a task. found is false for an unknown id.
func (s *TaskService) GetStatus(ctx context.Context, id int64) (domain.TaskStatus, bool, error) {
	return statusOf(s.store.GetByID(ctx, id))
}

// GetStatusByParent returns the status of the newest task tracking parentID.
func (s *TaskService) GetStatusByParent(ctx context.Context, parentID int64) (domain.TaskStatus, bool, error) {
	return statusOf(s.store.GetByParentID(ctx, parentID))
}

func statusOf(task *domain.Task, err error) (domain.TaskStatus, bool, error) {
	if errors.Is(err, errpkg.ErrTaskNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return task.Status, true, nil
}

// UpdateStatus moves a task to status. It reports false without touching the store when
// the status is not legal for the task type or would move the task backwards.
func (s *TaskService) UpdateStatus(ctx context.Context, id int64, status domain.TaskStatus) (bool, error) {
	task, err := s.store.GetByID(ctx, id)
	if err != nil {
		return false, fmt.Errorf("get task %d: %w", id, err)
	}

	if !task.CanTransition(status) {
		metrics.StatusUpdates.WithLabelValues(string(status), "rejected").Inc()
		s.logger.Warn("status update rejected",
			"task_id", id,
			"type", task.Type,
			"current", task.Status,
			"requested", status,
		)
		return false, nil
	}

	if err := s.store.UpdateStatus(ctx, id, status); err != nil {
		metrics.StatusUpdates.WithLabelValues(string(status), "error").Inc()
		return false, fmt.Errorf("update task %d: %w", id, err)
	}

	metrics.StatusUpdates.WithLabelValues(string(status), "ok").Inc()
	s.logger.Info("task status updated",
		"task_id", id,
		"from", task.Status,
		"to", status,
	)
	return true, nil
}

type remoteResult struct {
	status domain.TaskStatus
	found  bool
}

// GetRemoteStatusByParent resolves the status of parentID's child on a peer server using
// the connection settings stored on task parentID. Every failure is an *errors.RemoteError.
func (s *TaskService) GetRemoteStatusByParent(ctx context.Context, parentID int64, serverAddress, basePath string) (domain.TaskStatus, bool, error) {
	key := fmt.Sprintf("%d|%s|%s", parentID, serverAddress, basePath)

	// The shared lookup outlives any single caller; the status client's timeout bounds it.
	lookupCtx := context.WithoutCancel(ctx)
	ch := s.lookups.DoChan(key, func() (any, error) {
		status, found, err := s.resolveRemote(lookupCtx, parentID, serverAddress, basePath)
		return remoteResult{status: status, found: found}, err
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return "", false, &errpkg.RemoteError{ParentID: parentID, Stage: errpkg.StageTransport, Err: ctx.Err()}
	}

	err, shared := res.Err, res.Shared
	if err != nil {
		s.logger.Warn("remote status resolution failed",
			"parent_id", parentID,
			"server_address", serverAddress,
			"error", err,
		)
		return "", false, err
	}

	out := res.Val.(remoteResult)
	s.logger.Debug("remote status resolved",
		"parent_id", parentID,
		"status", out.status,
		"found", out.found,
		"shared", shared,
	)
	return out.status, out.found, nil
}

func (s *TaskService) resolveRemote(ctx context.Context, parentID int64, serverAddress, basePath string) (domain.TaskStatus, bool, error) {
	rt, err := s.transferParams(ctx, parentID)
	if err != nil {
		return "", false, &errpkg.RemoteError{ParentID: parentID, Stage: errpkg.StageParams, Err: err}
	}

	url := remote.BuildURL(serverAddress, basePath, rt)
	status, found, err := s.remote.FetchStatus(ctx, url, parentID, rt)
	if err != nil {
		var re *errpkg.RemoteError
		if !errors.As(err, &re) {
			err = &errpkg.RemoteError{ParentID: parentID, Stage: errpkg.StageTransport, Err: err}
		}
		return "", false, err
	}
	return status, found, nil
}

func (s *TaskService) transferParams(ctx context.Context, parentID int64) (domain.RemoteTransferParams, error) {
	raw, err := s.store.GetRawParams(ctx, parentID)
	if err != nil {
		return domain.RemoteTransferParams{}, err
	}

	params, err := domain.UnmarshalParams(raw)
	if err != nil {
		return domain.RemoteTransferParams{}, fmt.Errorf("%w: %v", errpkg.ErrInvalidParams, err)
	}

	rt, err := params.RemoteTransfer()
	if err != nil {
		return domain.RemoteTransferParams{}, fmt.Errorf("%w: %v", errpkg.ErrInvalidParams, err)
	}
	if err := validation.ValidateRemoteTransfer(rt); err != nil {
		return domain.RemoteTransferParams{}, err
	}
	return rt, nil
}
