package output

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/tasklist/tasklist/internal/core"
)

// TableFormatter renders tasks as an ASCII table.
type TableFormatter struct{}

// FormatTasks renders a task list with an open/done summary footer.
func (f *TableFormatter) FormatTasks(tasks []core.Task) (string, error) {
	if len(tasks) == 0 {
		return "No tasks.", nil
	}

	t := newTaskTable()
	done := 0
	for _, task := range tasks {
		if task.Done {
			done++
		}
		t.AppendRow(taskRow(task))
	}

	t.AppendFooter(table.Row{
		"",
		fmt.Sprintf("%d tasks", len(tasks)),
		fmt.Sprintf("%d done", done),
		"",
		"",
	})

	return t.Render(), nil
}

// FormatTask renders a single task as a one-row table.
func (f *TableFormatter) FormatTask(task *core.Task) (string, error) {
	if task == nil {
		return "", nil
	}

	t := newTaskTable()
	t.AppendRow(taskRow(*task))
	return t.Render(), nil
}

func newTaskTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"ID", "Title", "Status", "Description", "Updated"})
	return t
}

func taskRow(task core.Task) table.Row {
	return table.Row{
		task.ID,
		task.Title,
		statusLabel(task),
		descriptionText(task),
		task.UpdatedAt.UTC().Format(timeLayout),
	}
}
