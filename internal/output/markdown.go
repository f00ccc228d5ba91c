package output

import (
	"fmt"
	"strings"

	"github.com/tasklist/tasklist/internal/core"
)

// MarkdownFormatter renders tasks as a markdown table.
type MarkdownFormatter struct{}

// FormatTasks renders a task list as Markdown.
func (f *MarkdownFormatter) FormatTasks(tasks []core.Task) (string, error) {
	var sb strings.Builder
	sb.WriteString("## Tasks\n\n")
	if len(tasks) == 0 {
		sb.WriteString("_No tasks._\n")
		return sb.String(), nil
	}

	writeMarkdownHeader(&sb)
	done := 0
	for _, task := range tasks {
		if task.Done {
			done++
		}
		writeMarkdownRow(&sb, task)
	}

	sb.WriteString(fmt.Sprintf("\n**Done**: %d/%d\n", done, len(tasks)))
	return sb.String(), nil
}

// FormatTask renders a single task as Markdown.
func (f *MarkdownFormatter) FormatTask(task *core.Task) (string, error) {
	if task == nil {
		return "", nil
	}

	var sb strings.Builder
	writeMarkdownHeader(&sb)
	writeMarkdownRow(&sb, *task)
	return sb.String(), nil
}

func writeMarkdownHeader(sb *strings.Builder) {
	sb.WriteString("| ID | Title | Status | Description |\n")
	sb.WriteString("|----|-------|--------|-------------|\n")
}

func writeMarkdownRow(sb *strings.Builder, task core.Task) {
	sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s |\n",
		task.ID,
		escapeMarkdownCell(task.Title),
		statusLabel(task),
		escapeMarkdownCell(descriptionText(task)),
	))
}

func escapeMarkdownCell(value string) string {
	value = strings.ReplaceAll(value, "\n", " ")
	return strings.ReplaceAll(value, "|", "\\|")
}
