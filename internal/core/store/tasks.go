package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tasklist/tasklist/internal/core"
)

const taskColumns = "id, title, description, is_done, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

// ListTasks returns every task, newest first.
func (s *Store) ListTasks(ctx context.Context) ([]core.Task, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	rows, err := s.DB.QueryContext(ctx,
		"SELECT "+taskColumns+" FROM todos ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	tasks := make([]core.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("list tasks: %w", err)
		}
		tasks = append(tasks, *task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	return tasks, nil
}

// GetTask returns the task with the given id, or nil when none exists.
func (s *Store) GetTask(ctx context.Context, id int64) (*core.Task, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if id <= 0 {
		return nil, core.ErrInvalidID
	}

	row := s.DB.QueryRowContext(ctx, "SELECT "+taskColumns+" FROM todos WHERE id = ?", id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task %d: %w", id, err)
	}
	return task, nil
}

// CreateTask stores a new task and returns it as persisted.
func (s *Store) CreateTask(ctx context.Context, input core.TaskInput) (*core.Task, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	input, err := input.Normalize()
	if err != nil {
		return nil, err
	}

	now := s.now()
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO todos (title, description, is_done, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		input.Title, nullableString(input.Description), boolToInt(input.Done), now, now)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	task, err := s.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("create task: row %d not found after insert", id)
	}
	return task, nil
}

// UpdateTask applies patch to the task with the given id. It returns nil when
// the task does not exist.
func (s *Store) UpdateTask(ctx context.Context, id int64, patch core.TaskPatch) (*core.Task, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if id <= 0 {
		return nil, core.ErrInvalidID
	}

	patch, err := patch.Normalize()
	if err != nil {
		return nil, err
	}

	sets := make([]string, 0, 4)
	args := make([]any, 0, 5)
	if patch.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *patch.Title)
	}
	switch {
	case patch.ClearDescription:
		sets = append(sets, "description = NULL")
	case patch.Description != nil:
		sets = append(sets, "description = ?")
		args = append(args, *patch.Description)
	}
	if patch.Done != nil {
		sets = append(sets, "is_done = ?")
		args = append(args, boolToInt(*patch.Done))
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, s.now(), id)

	res, err := s.DB.ExecContext(ctx,
		"UPDATE todos SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return nil, fmt.Errorf("update task %d: %w", id, err)
	}
	if _, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("update task %d: %w", id, err)
	}

	// MySQL reports zero affected rows when values are unchanged, so existence
	// is decided by reading the row back.
	return s.GetTask(ctx, id)
}

// ToggleTask flips the completion flag of a task. It returns nil when the
// task does not exist.
func (s *Store) ToggleTask(ctx context.Context, id int64) (*core.Task, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if id <= 0 {
		return nil, core.ErrInvalidID
	}

	res, err := s.DB.ExecContext(ctx,
		`UPDATE todos SET is_done = CASE WHEN is_done = 0 THEN 1 ELSE 0 END, updated_at = ? WHERE id = ?`,
		s.now(), id)
	if err != nil {
		return nil, fmt.Errorf("toggle task %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("toggle task %d: %w", id, err)
	}
	if affected == 0 {
		return nil, nil
	}

	return s.GetTask(ctx, id)
}

// DeleteTask removes a task. It reports whether a row was deleted.
func (s *Store) DeleteTask(ctx context.Context, id int64) (bool, error) {
	if s == nil || s.DB == nil {
		return false, errors.New("store is not initialized")
	}
	if id <= 0 {
		return false, core.ErrInvalidID
	}

	res, err := s.DB.ExecContext(ctx, `DELETE FROM todos WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete task %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete task %d: %w", id, err)
	}
	return affected > 0, nil
}

// CountTasks returns the number of stored tasks.
func (s *Store) CountTasks(ctx context.Context) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}

	var count int64
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM todos`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return count, nil
}

func scanTask(row rowScanner) (*core.Task, error) {
	var (
		task        core.Task
		description sql.NullString
		done        int64
		createdAt   int64
		updatedAt   int64
	)
	if err := row.Scan(&task.ID, &task.Title, &description, &done, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	if description.Valid {
		value := description.String
		task.Description = &value
	}
	task.Done = done != 0
	task.CreatedAt = time.Unix(createdAt, 0).UTC()
	task.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &task, nil
}

func nullableString(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
