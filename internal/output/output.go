package output

import (
	"fmt"
	"strings"

	"github.com/tasklist/tasklist/internal/core"
)

// Format names a CLI rendering.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// Formatter renders tasks for the CLI.
type Formatter interface {
	FormatTasks(tasks []core.Task) (string, error)
	FormatTask(task *core.Task) (string, error)
}

var formatAliases = map[string]Format{
	"":         FormatTable,
	"table":    FormatTable,
	"json":     FormatJSON,
	"markdown": FormatMarkdown,
	"md":       FormatMarkdown,
}

// ParseFormat resolves a --output-format value. Empty means table.
func ParseFormat(value string) (Format, error) {
	if format, ok := formatAliases[strings.ToLower(strings.TrimSpace(value))]; ok {
		return format, nil
	}
	return "", fmt.Errorf("unsupported output format %q (want table, json or markdown)", value)
}

// NewFormatter returns the Formatter for format, falling back to a table.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	default:
		return &TableFormatter{}
	}
}

func statusLabel(task core.Task) string {
	if task.Done {
		return "done"
	}
	return "open"
}

func descriptionText(task core.Task) string {
	if task.Description == nil {
		return ""
	}
	return *task.Description
}

const timeLayout = "2006-01-02 15:04"
