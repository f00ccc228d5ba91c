package core

import (
	"errors"
	"strings"
	"time"
)

// Task is a single entry in the task list.
type Task struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	Done        bool      `json:"is_done"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TaskInput carries the fields accepted when creating a task.
type TaskInput struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
	Done        bool    `json:"is_done"`
}

// TaskPatch describes a partial update. Nil fields are left untouched;
// ClearDescription sets the description to NULL.
type TaskPatch struct {
	Title            *string
	Description      *string
	ClearDescription bool
	Done             *bool
}

var (
	// ErrTitleRequired is returned when a task would be stored without a title.
	ErrTitleRequired = errors.New("title is required")

	// ErrEmptyPatch is returned when an update carries no recognised fields.
	ErrEmptyPatch = errors.New("no fields provided for update")

	// ErrInvalidID is returned for non-positive task identifiers.
	ErrInvalidID = errors.New("invalid task id")
)

// Normalize trims the title and validates the input.
func (in TaskInput) Normalize() (TaskInput, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return in, ErrTitleRequired
	}
	return in, nil
}

// Empty reports whether the patch changes nothing.
func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && !p.ClearDescription && p.Done == nil
}

// Normalize trims a provided title and validates the patch.
func (p TaskPatch) Normalize() (TaskPatch, error) {
	if p.Empty() {
		return p, ErrEmptyPatch
	}
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return p, ErrTitleRequired
		}
		p.Title = &title
	}
	return p, nil
}
