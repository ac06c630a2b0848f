package postgres

import (
	"context"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/veranemoloko/impex-tasks/internal/domain"
	errpkg "github.com/veranemoloko/impex-tasks/internal/errors"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var taskColumns = []string{"id", "type", "status", "params", "parent_id", "created_at", "updated_at"}

// Insert stores a new task and returns the id assigned by the database.
func (s *Store) Insert(ctx context.Context, task *domain.Task) (int64, error) {
	db, err := s.Database()
	if err != nil {
		return 0, errpkg.NewDBError("insert_task", err)
	}

	params, err := task.Params.Marshal()
	if err != nil {
		return 0, errpkg.NewDBError("insert_task", err)
	}

	sqlStr, args, err := psql.
		Insert("task").
		Columns("type", "status", "params", "parent_id", "created_at", "updated_at").
		Values(string(task.Type), string(task.Status), string(params), task.ParentID, task.CreatedAt, task.UpdatedAt).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, errpkg.NewDBError("insert_task", err)
	}

	var id int64
	if err := db.QueryRow(ctx, sqlStr, args...).Scan(&id); err != nil {
		return 0, mapError("insert_task", err)
	}

	task.ID = id
	return id, nil
}

// GetByID retrieves a task by id.
func (s *Store) GetByID(ctx context.Context, id int64) (*domain.Task, error) {
	db, err := s.Database()
	if err != nil {
		return nil, errpkg.NewDBError("get_task", err)
	}

	sqlStr, args, err := psql.
		Select(taskColumns...).
		From("task").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, errpkg.NewDBError("get_task", err)
	}

	return scanTask("get_task", db.QueryRow(ctx, sqlStr, args...))
}

// GetByParentID returns the task with the highest id tracking parentID.
func (s *Store) GetByParentID(ctx context.Context, parentID int64) (*domain.Task, error) {
	db, err := s.Database()
	if err != nil {
		return nil, errpkg.NewDBError("get_task_by_parent", err)
	}

	sqlStr, args, err := psql.
		Select(taskColumns...).
		From("task").
		Where(sq.Eq{"parent_id": parentID}).
		OrderBy("id DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, errpkg.NewDBError("get_task_by_parent", err)
	}

	return scanTask("get_task_by_parent", db.QueryRow(ctx, sqlStr, args...))
}

// UpdateStatus sets the status of an existing task.
func (s *Store) UpdateStatus(ctx context.Context, id int64, status domain.TaskStatus) error {
	db, err := s.Database()
	if err != nil {
		return errpkg.NewDBError("update_task_status", err)
	}

	sqlStr, args, err := psql.
		Update("task").
		Set("status", string(status)).
		Set("updated_at", time.Now()).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return errpkg.NewDBError("update_task_status", err)
	}

	tag, err := db.Exec(ctx, sqlStr, args...)
	if err != nil {
		return mapError("update_task_status", err)
	}
	if tag.RowsAffected() == 0 {
		return errpkg.ErrTaskNotFound
	}
	return nil
}

// GetRawParams returns the params column of a task as stored.
func (s *Store) GetRawParams(ctx context.Context, id int64) ([]byte, error) {
	db, err := s.Database()
	if err != nil {
		return nil, errpkg.NewDBError("get_task_params", err)
	}

	sqlStr, args, err := psql.
		Select("params").
		From("task").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, errpkg.NewDBError("get_task_params", err)
	}

	var raw []byte
	if err := db.QueryRow(ctx, sqlStr, args...).Scan(&raw); err != nil {
		return nil, mapError("get_task_params", err)
	}
	return raw, nil
}

func scanTask(op string, row pgx.Row) (*domain.Task, error) {
	var (
		task      domain.Task
		taskType  string
		status    string
		rawParams []byte
	)
	err := row.Scan(
		&task.ID,
		&taskType,
		&status,
		&rawParams,
		&task.ParentID,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(op, err)
	}

	params, err := domain.UnmarshalParams(rawParams)
	if err != nil {
		return nil, errpkg.NewDBError(op, err)
	}
	task.Type = domain.TaskType(taskType)
	task.Status = domain.TaskStatus(status)
	task.Params = params
	return &task, nil
}

func mapError(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return errpkg.ErrTaskNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505", "23514": // unique_violation, check_violation
			return &errpkg.DBConstraintError{
				DBError:    *errpkg.NewDBError(op, err),
				Constraint: pgErr.ConstraintName,
			}
		}
	}
	return errpkg.NewDBError(op, err)
}
