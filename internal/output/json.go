package output

import (
	"encoding/json"

	"github.com/tasklist/tasklist/internal/core"
)

// JSONFormatter renders tasks as JSON.
type JSONFormatter struct {
	Indent bool
}

// FormatTasks renders a task list as a JSON array. An empty list renders as [].
func (f *JSONFormatter) FormatTasks(tasks []core.Task) (string, error) {
	if tasks == nil {
		tasks = []core.Task{}
	}
	return f.marshal(tasks)
}

// FormatTask renders a single task as a JSON object.
func (f *JSONFormatter) FormatTask(task *core.Task) (string, error) {
	if task == nil {
		return "", nil
	}
	return f.marshal(task)
}

func (f *JSONFormatter) marshal(value any) (string, error) {
	marshal := json.Marshal
	if f.Indent {
		marshal = func(v any) ([]byte, error) { return json.MarshalIndent(v, "", "  ") }
	}

	data, err := marshal(value)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
