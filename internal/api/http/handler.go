package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/veranemoloko/impex-tasks/internal/domain"
	errpkg "github.com/veranemoloko/impex-tasks/internal/errors"
	"github.com/veranemoloko/impex-tasks/internal/validation"
)

// TaskServiceI defines the interface for task-related business logic.
type TaskServiceI interface {
	CreateTask(ctx context.Context, taskType string, params domain.Params, parentID *int64) (int64, error)
	GetTask(ctx context.Context, id int64) (*domain.Task, error)
	GetStatus(ctx context.Context, id int64) (domain.TaskStatus, bool, error)
	GetStatusByParent(ctx context.Context, parentID int64) (domain.TaskStatus, bool, error)
	UpdateStatus(ctx context.Context, id int64, status domain.TaskStatus) (bool, error)
	GetRemoteStatusByParent(ctx context.Context, parentID int64, serverAddress, basePath string) (domain.TaskStatus, bool, error)
	Redispatch(ctx context.Context) error
}

// TaskHandler handles HTTP requests for tasks.
type TaskHandler struct {
	taskService TaskServiceI
	logger      *slog.Logger
}

// NewTaskHandler creates a new TaskHandler with the provided service and logger.
func NewTaskHandler(taskService TaskServiceI, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{
		taskService: taskService,
		logger:      logger,
	}
}

// CreateTask handles POST /tasks.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateTaskRequest
	if !h.decode(w, r, &req) {
		return
	}

	id, err := h.taskService.CreateTask(r.Context(), req.Type, req.Params, req.ParentID)
	var dispatchErr *errpkg.DispatchError
	switch {
	case errors.As(err, &dispatchErr):
		writeJSON(w, http.StatusAccepted, domain.CreateTaskResponse{TaskID: id, Dispatched: false})
		return
	case err != nil:
		h.fail(w, "failed to create task", err)
		return
	}

	writeJSON(w, http.StatusCreated, domain.CreateTaskResponse{TaskID: id, Dispatched: true})
}

// GetTask handles GET /tasks/{taskID}.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathID(w, r, "taskID")
	if !ok {
		return
	}

	task, err := h.taskService.GetTask(r.Context(), taskID)
	if err != nil {
		h.fail(w, "failed to get task", err)
		return
	}

	writeJSON(w, http.StatusOK, domain.NewTaskResponse(task))
}

// GetStatus handles GET /tasks/{taskID}/status.
func (h *TaskHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathID(w, r, "taskID")
	if !ok {
		return
	}

	status, found, err := h.taskService.GetStatus(r.Context(), taskID)
	h.writeStatus(w, status, found, err)
}

// GetStatusByParent handles GET /tasks/parent/{parentID}/status.
func (h *TaskHandler) GetStatusByParent(w http.ResponseWriter, r *http.Request) {
	parentID, ok := pathID(w, r, "parentID")
	if !ok {
		return
	}

	status, found, err := h.taskService.GetStatusByParent(r.Context(), parentID)
	h.writeStatus(w, status, found, err)
}

// UpdateStatus handles PUT /tasks/{taskID}/status.
func (h *TaskHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathID(w, r, "taskID")
	if !ok {
		return
	}

	var req domain.UpdateStatusRequest
	if !h.decode(w, r, &req) {
		return
	}

	updated, err := h.taskService.UpdateStatus(r.Context(), taskID, req.Status)
	if err != nil {
		h.fail(w, "failed to update status", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"updated": updated})
}

// GetRemoteStatus handles POST /tasks/remote-status.
func (h *TaskHandler) GetRemoteStatus(w http.ResponseWriter, r *http.Request) {
	var req domain.RemoteStatusRequest
	if !h.decode(w, r, &req) {
		return
	}

	status, found, err := h.taskService.GetRemoteStatusByParent(r.Context(), req.ParentID, req.ServerAddress, req.BasePath)
	var remoteErr *errpkg.RemoteError
	if errors.As(err, &remoteErr) {
		h.logger.Warn("remote status resolution failed",
			"parent_id", req.ParentID,
			"stage", remoteErr.Stage,
			"error", err,
		)
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"error": errpkg.ErrRemoteResolution.Error(),
			"stage": string(remoteErr.Stage),
		})
		return
	}
	if err != nil {
		h.fail(w, "failed to resolve remote status", err)
		return
	}

	if !found {
		writeJSON(w, http.StatusNotFound, domain.StatusResponse{})
		return
	}
	writeJSON(w, http.StatusOK, domain.StatusResponse{Status: &status})
}

// Redispatch handles POST /tasks/dispatch.
func (h *TaskHandler) Redispatch(w http.ResponseWriter, r *http.Request) {
	if err := h.taskService.Redispatch(r.Context()); err != nil {
		h.fail(w, "failed to dispatch worker", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"dispatched": true})
}

func (h *TaskHandler) writeStatus(w http.ResponseWriter, status domain.TaskStatus, found bool, err error) {
	if err != nil {
		h.fail(w, "failed to get status", err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, errpkg.ErrTaskNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, domain.StatusResponse{Status: &status})
}

func (h *TaskHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.Error("failed to decode request", "error", err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}

	if err := validation.Struct(dst); err != nil {
		h.logger.Warn("validation failed", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// fail maps service errors to HTTP status codes.
func (h *TaskHandler) fail(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, errpkg.ErrTaskNotFound):
		writeError(w, http.StatusNotFound, errpkg.ErrTaskNotFound.Error())
	case errors.Is(err, errpkg.ErrUnsupportedTaskType), errors.Is(err, errpkg.ErrInvalidParams):
		h.logger.Warn(msg, "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, errpkg.ErrDispatchFailure):
		h.logger.Error(msg, "error", err)
		writeError(w, http.StatusServiceUnavailable, errpkg.ErrDispatchFailure.Error())
	default:
		h.logger.Error(msg, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
