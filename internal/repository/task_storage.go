package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/veranemoloko/impex-tasks/internal/domain"
	errpkg "github.com/veranemoloko/impex-tasks/internal/errors"
)

// record is the persisted form of a task. Params stay serialized so the state file
// holds exactly what the store hands back from GetRawParams.
type record struct {
	ID        int64             `json:"id"`
	Type      domain.TaskType   `json:"type"`
	Status    domain.TaskStatus `json:"status"`
	Params    json.RawMessage   `json:"params"`
	ParentID  *int64            `json:"parent_id,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// TaskStorage provides in-memory storage for tasks, optionally mirrored to a JSON state file.
type TaskStorage struct {
	mu     sync.RWMutex
	tasks  map[int64]*record
	nextID int64
	file   string
}

// NewTaskStorage creates a new TaskStorage and loads tasks from the file if it exists.
// An empty filePath keeps everything in memory.
func NewTaskStorage(filePath string) (*TaskStorage, error) {
	repo := &TaskStorage{
		tasks: make(map[int64]*record),
	}
	if filePath == "" {
		return repo, nil
	}
	repo.file = filepath.Clean(filePath)

	if err := repo.restoreTasks(); err != nil {
		return nil, fmt.Errorf("failed to load state from file: %w", err)
	}

	slog.Info("File repository initialized", "file_path", repo.file, "tasks_count", len(repo.tasks))
	return repo, nil
}

func (r *TaskStorage) restoreTasks() error {
	if isFileNotExist(r.file) {
		slog.Info("State file does not exist, starting with empty state", "file_path", r.file)
		return nil
	}

	data, err := os.ReadFile(r.file)
	if err != nil {
		return fmt.Errorf("failed to read state file: %w", err)
	}

	if len(data) == 0 {
		slog.Warn("State file is empty")
		return nil
	}

	var records []*record
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("failed to unmarshal state file: %w", err)
	}

	for _, rec := range records {
		r.tasks[rec.ID] = rec
		if rec.ID > r.nextID {
			r.nextID = rec.ID
		}
	}

	slog.Info("State loaded from file", "tasks_count", len(records), "file_path", r.file)
	return nil
}

func isFileNotExist(filePath string) bool {
	_, err := os.Stat(filePath)
	return os.IsNotExist(err)
}

// persistTasks must be called with r.mu held.
func (r *TaskStorage) persistTasks() error {
	if r.file == "" {
		return nil
	}

	records := make([]*record, 0, len(r.tasks))
	for _, rec := range r.tasks {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal tasks: %w", err)
	}

	tempFile := r.file + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}

	if err := os.Rename(tempFile, r.file); err != nil {
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	slog.Debug("State saved to file", "tasks_count", len(records), "file_path", r.file)
	return nil
}

// Insert stores a new task, assigns its id and persists the state.
func (r *TaskStorage) Insert(ctx context.Context, task *domain.Task) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	params, err := task.Params.Marshal()
	if err != nil {
		return 0, fmt.Errorf("failed to serialize params: %w", err)
	}

	var parentID *int64
	if task.ParentID != nil {
		p := *task.ParentID
		parentID = &p
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID
	r.tasks[id] = &record{
		ID:        id,
		Type:      task.Type,
		Status:    task.Status,
		Params:    params,
		ParentID:  parentID,
		CreatedAt: task.CreatedAt,
		UpdatedAt: task.UpdatedAt,
	}

	if err := r.persistTasks(); err != nil {
		delete(r.tasks, id)
		r.nextID--
		return 0, fmt.Errorf("failed to save state after creating task: %w", err)
	}

	task.ID = id
	slog.Debug("Task created and saved", "task_id", id)
	return id, nil
}

// GetByID retrieves a task by ID.
func (r *TaskStorage) GetByID(ctx context.Context, id int64) (*domain.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, exists := r.tasks[id]
	if !exists {
		return nil, errpkg.ErrTaskNotFound
	}
	return rec.toTask()
}

// GetByParentID returns the task with the highest id whose parent is parentID.
func (r *TaskStorage) GetByParentID(ctx context.Context, parentID int64) (*domain.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var found *record
	for _, rec := range r.tasks {
		if rec.ParentID == nil || *rec.ParentID != parentID {
			continue
		}
		if found == nil || rec.ID > found.ID {
			found = rec
		}
	}

	if found == nil {
		return nil, errpkg.ErrTaskNotFound
	}
	return found.toTask()
}

// UpdateStatus sets the status of an existing task and persists the state.
func (r *TaskStorage) UpdateStatus(ctx context.Context, id int64, status domain.TaskStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, exists := r.tasks[id]
	if !exists {
		return errpkg.ErrTaskNotFound
	}

	prevStatus, prevUpdated := rec.Status, rec.UpdatedAt
	rec.Status = status
	rec.UpdatedAt = time.Now()

	if err := r.persistTasks(); err != nil {
		rec.Status, rec.UpdatedAt = prevStatus, prevUpdated
		return fmt.Errorf("failed to save state after updating task: %w", err)
	}

	slog.Debug("Task updated and saved", "task_id", id, "status", status)
	return nil
}

// GetRawParams returns the serialized params of a task.
func (r *TaskStorage) GetRawParams(ctx context.Context, id int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, exists := r.tasks[id]
	if !exists {
		return nil, errpkg.ErrTaskNotFound
	}
	out := make([]byte, len(rec.Params))
	copy(out, rec.Params)
	return out, nil
}

func (rec *record) toTask() (*domain.Task, error) {
	params, err := domain.UnmarshalParams(rec.Params)
	if err != nil {
		return nil, err
	}
	var parentID *int64
	if rec.ParentID != nil {
		p := *rec.ParentID
		parentID = &p
	}
	return &domain.Task{
		ID:        rec.ID,
		Type:      rec.Type,
		Status:    rec.Status,
		Params:    params,
		ParentID:  parentID,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}, nil
}
