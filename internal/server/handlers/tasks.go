package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tasklist/tasklist/internal/core"
	apperrors "github.com/tasklist/tasklist/internal/errors"
	"github.com/tasklist/tasklist/internal/metrics"
)

// maxBodyBytes caps task request bodies.
const maxBodyBytes = 1 << 20

// RootBanner is the plain-text body served on GET /.
const RootBanner = "Task list API is running ✅"

// TaskStore is the persistence the task endpoints need.
type TaskStore interface {
	ListTasks(ctx context.Context) ([]core.Task, error)
	GetTask(ctx context.Context, id int64) (*core.Task, error)
	CreateTask(ctx context.Context, input core.TaskInput) (*core.Task, error)
	UpdateTask(ctx context.Context, id int64, patch core.TaskPatch) (*core.Task, error)
	DeleteTask(ctx context.Context, id int64) (bool, error)
	ToggleTask(ctx context.Context, id int64) (*core.Task, error)
}

// APIResponse is the success envelope for task endpoints.
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// TaskHandler serves the /api/todos endpoints.
type TaskHandler struct {
	store TaskStore
}

// NewTaskHandler creates a handler backed by store.
func NewTaskHandler(store TaskStore) *TaskHandler {
	return &TaskHandler{store: store}
}

// Routes mounts the task endpoints on r.
func (h *TaskHandler) Routes(r chi.Router) {
	r.Get("/todos", h.List)
	r.Post("/todos", h.Create)
	r.Get("/todos/{id}", h.Get)
	r.Put("/todos/{id}", h.Update)
	r.Delete("/todos/{id}", h.Delete)
	r.Patch("/todos/{id}/toggle", h.Toggle)
}

// List handles GET /api/todos.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	tasks, err := h.store.ListTasks(r.Context())
	metrics.RecordTaskOperation("list", err == nil, time.Since(start))
	if err != nil {
		apperrors.RespondWithError(w, r, apperrors.FromTaskError(r.Context(), err, "failed to list tasks"))
		return
	}
	if tasks == nil {
		tasks = []core.Task{}
	}

	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: tasks})
}

// Get handles GET /api/todos/{id}.
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(w, r)
	if !ok {
		return
	}

	start := time.Now()
	task, err := h.store.GetTask(r.Context(), id)
	metrics.RecordTaskOperation("get", err == nil, time.Since(start))
	if err != nil {
		apperrors.RespondWithError(w, r, apperrors.FromTaskError(r.Context(), err, "failed to load task"))
		return
	}
	if task == nil {
		respondTaskNotFound(w, r, id)
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: task})
}

// Create handles POST /api/todos.
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	fields, err := decodeFields(w, r)
	if err != nil {
		apperrors.RespondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "request body must be a JSON object"))
		return
	}

	input, err := taskInputFromFields(fields)
	if err != nil {
		apperrors.RespondWithError(w, r, apperrors.WrapValidationError(r.Context(), err, err.Error()))
		return
	}

	start := time.Now()
	task, err := h.store.CreateTask(r.Context(), input)
	metrics.RecordTaskOperation("create", err == nil, time.Since(start))
	if err != nil {
		apperrors.RespondWithError(w, r, apperrors.FromTaskError(r.Context(), err, "failed to create task"))
		return
	}

	writeJSON(w, http.StatusCreated, APIResponse{Success: true, Message: "Task created", Data: task})
}

// Update handles PUT /api/todos/{id}. Only the fields present in the body
// change; "description": null clears the description.
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(w, r)
	if !ok {
		return
	}

	fields, err := decodeFields(w, r)
	if err != nil {
		apperrors.RespondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "request body must be a JSON object"))
		return
	}

	patch, err := taskPatchFromFields(fields)
	if err != nil {
		apperrors.RespondWithError(w, r, apperrors.WrapValidationError(r.Context(), err, err.Error()))
		return
	}

	start := time.Now()
	task, err := h.store.UpdateTask(r.Context(), id, patch)
	metrics.RecordTaskOperation("update", err == nil, time.Since(start))
	if err != nil {
		apperrors.RespondWithError(w, r, apperrors.FromTaskError(r.Context(), err, "failed to update task"))
		return
	}
	if task == nil {
		respondTaskNotFound(w, r, id)
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{Success: true, Message: "Task updated", Data: task})
}

// Delete handles DELETE /api/todos/{id}.
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(w, r)
	if !ok {
		return
	}

	start := time.Now()
	deleted, err := h.store.DeleteTask(r.Context(), id)
	metrics.RecordTaskOperation("delete", err == nil, time.Since(start))
	if err != nil {
		apperrors.RespondWithError(w, r, apperrors.FromTaskError(r.Context(), err, "failed to delete task"))
		return
	}
	if !deleted {
		respondTaskNotFound(w, r, id)
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{Success: true, Message: "Task deleted"})
}

// Toggle handles PATCH /api/todos/{id}/toggle.
func (h *TaskHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(w, r)
	if !ok {
		return
	}

	start := time.Now()
	task, err := h.store.ToggleTask(r.Context(), id)
	metrics.RecordTaskOperation("toggle", err == nil, time.Since(start))
	if err != nil {
		apperrors.RespondWithError(w, r, apperrors.FromTaskError(r.Context(), err, "failed to toggle task"))
		return
	}
	if task == nil {
		respondTaskNotFound(w, r, id)
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{Success: true, Message: "Task status updated", Data: task})
}

// RootHandler serves the plain-text liveness banner on GET /.
func RootHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, RootBanner)
}

func taskID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		envelope := apperrors.WrapInvalidInput(r.Context(), core.ErrInvalidID, "invalid task id")
		envelope = envelope.WithDetails(map[string]interface{}{"id": raw})
		apperrors.RespondWithError(w, r, envelope)
		return 0, false
	}
	return id, true
}

func respondTaskNotFound(w http.ResponseWriter, r *http.Request, id int64) {
	envelope := apperrors.NewNotFoundError("task not found")
	envelope = envelope.WithDetails(map[string]interface{}{"id": id})
	apperrors.RespondWithError(w, r, envelope)
}

// decodeFields reads the body as a JSON object, keeping raw values so an
// explicit null is distinguishable from an absent field.
func decodeFields(w http.ResponseWriter, r *http.Request) (map[string]json.RawMessage, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return map[string]json.RawMessage{}, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	if fields == nil {
		return nil, errors.New("decode body: expected a JSON object")
	}
	return fields, nil
}

func taskInputFromFields(fields map[string]json.RawMessage) (core.TaskInput, error) {
	var input core.TaskInput

	title, present, err := stringField(fields, "title")
	if err != nil {
		return input, err
	}
	if !present || title == nil {
		return input, core.ErrTitleRequired
	}
	input.Title = *title

	if input.Description, _, err = stringField(fields, "description"); err != nil {
		return input, err
	}

	done, present, err := boolField(fields, "is_done")
	if err != nil {
		return input, err
	}
	if present {
		input.Done = done
	}

	return input.Normalize()
}

func taskPatchFromFields(fields map[string]json.RawMessage) (core.TaskPatch, error) {
	var patch core.TaskPatch

	title, present, err := stringField(fields, "title")
	if err != nil {
		return patch, err
	}
	if present {
		if title == nil {
			return patch, core.ErrTitleRequired
		}
		patch.Title = title
	}

	description, present, err := stringField(fields, "description")
	if err != nil {
		return patch, err
	}
	if present {
		if description == nil {
			patch.ClearDescription = true
		} else {
			patch.Description = description
		}
	}

	done, present, err := boolField(fields, "is_done")
	if err != nil {
		return patch, err
	}
	if present {
		patch.Done = &done
	}

	return patch.Normalize()
}

// stringField returns the named string field; a JSON null yields nil with present=true.
func stringField(fields map[string]json.RawMessage, name string) (*string, bool, error) {
	raw, ok := fields[name]
	if !ok {
		return nil, false, nil
	}
	if isNull(raw) {
		return nil, true, nil
	}

	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, true, fmt.Errorf("%s must be a string", name)
	}
	return &value, true, nil
}

// boolField accepts true/false and the 0/1 integers older clients send.
func boolField(fields map[string]json.RawMessage, name string) (bool, bool, error) {
	raw, ok := fields[name]
	if !ok || isNull(raw) {
		return false, false, nil
	}

	var value bool
	if err := json.Unmarshal(raw, &value); err == nil {
		return value, true, nil
	}

	var number int
	if err := json.Unmarshal(raw, &number); err == nil && (number == 0 || number == 1) {
		return number == 1, true, nil
	}

	return false, true, fmt.Errorf("%s must be a boolean", name)
}

func isNull(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
