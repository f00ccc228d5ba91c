package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tasklist/tasklist/internal/core"
	"github.com/tasklist/tasklist/internal/output"
)

// taskStore is the subset of the store the task commands use.
type taskStore interface {
	ListTasks(ctx context.Context) ([]core.Task, error)
	CreateTask(ctx context.Context, input core.TaskInput) (*core.Task, error)
	ToggleTask(ctx context.Context, id int64) (*core.Task, error)
	UpdateTask(ctx context.Context, id int64, patch core.TaskPatch) (*core.Task, error)
	DeleteTask(ctx context.Context, id int64) (bool, error)
}

var tasksCmd = &cobra.Command{
	Use:     "tasks",
	Aliases: []string{"todo", "todos"},
	Short:   "Manage tasks directly in the configured database",
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks, newest first",
	Args:  cobra.NoArgs,
	RunE: withTaskStore(func(cmd *cobra.Command, st taskStore, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}
		tasks, err := st.ListTasks(cmd.Context())
		if err != nil {
			return err
		}
		pending, _ := cmd.Flags().GetBool("pending")
		if pending {
			tasks = filterPending(tasks)
		}
		return writeTasks(cmd.OutOrStdout(), format, tasks)
	}),
}

var tasksAddCmd = &cobra.Command{
	Use:   "add <title...>",
	Short: "Create a task",
	Args:  cobra.MinimumNArgs(1),
	RunE: withTaskStore(func(cmd *cobra.Command, st taskStore, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}

		input := core.TaskInput{Title: strings.Join(args, " ")}
		if cmd.Flags().Changed("description") {
			description, _ := cmd.Flags().GetString("description")
			input.Description = &description
		}

		task, err := st.CreateTask(cmd.Context(), input)
		if err != nil {
			return err
		}
		return writeTask(cmd.OutOrStdout(), format, task)
	}),
}

var tasksDoneCmd = &cobra.Command{
	Use:   "done <id>",
	Short: "Mark a task as done (--toggle flips it instead)",
	Args:  cobra.ExactArgs(1),
	RunE: withTaskStore(func(cmd *cobra.Command, st taskStore, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}
		id, err := parseTaskID(args[0])
		if err != nil {
			return err
		}

		var task *core.Task
		if toggle, _ := cmd.Flags().GetBool("toggle"); toggle {
			task, err = st.ToggleTask(cmd.Context(), id)
		} else {
			done := true
			task, err = st.UpdateTask(cmd.Context(), id, core.TaskPatch{Done: &done})
		}
		if err != nil {
			return err
		}
		if task == nil {
			return fmt.Errorf("task %d not found", id)
		}
		return writeTask(cmd.OutOrStdout(), format, task)
	}),
}

var tasksRemoveCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"delete"},
	Short:   "Delete a task",
	Args:    cobra.ExactArgs(1),
	RunE: withTaskStore(func(cmd *cobra.Command, st taskStore, args []string) error {
		id, err := parseTaskID(args[0])
		if err != nil {
			return err
		}
		deleted, err := st.DeleteTask(cmd.Context(), id)
		if err != nil {
			return err
		}
		if !deleted {
			return fmt.Errorf("task %d not found", id)
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Deleted task %d\n", id)
		return err
	}),
}

// openTaskStore is replaced in tests.
var openTaskStore = func(ctx context.Context) (taskStore, func() error, error) {
	db, err := openConfiguredStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	return db, db.Close, nil
}

func withTaskStore(run func(cmd *cobra.Command, st taskStore, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		st, closeStore, err := openTaskStore(cmd.Context())
		if err != nil {
			return err
		}
		defer closeStore() // nolint:errcheck // CLI exit path

		return run(cmd, st, args)
	}
}

func parseTaskID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", core.ErrInvalidID, raw)
	}
	return id, nil
}

func filterPending(tasks []core.Task) []core.Task {
	pending := make([]core.Task, 0, len(tasks))
	for _, task := range tasks {
		if !task.Done {
			pending = append(pending, task)
		}
	}
	return pending
}

func resolveOutputFormat(cmd *cobra.Command) (output.Format, error) {
	value, err := cmd.Flags().GetString("output-format")
	if err != nil {
		return "", err
	}
	return output.ParseFormat(value)
}

func writeTasks(w io.Writer, format output.Format, tasks []core.Task) error {
	rendered, err := output.NewFormatter(format).FormatTasks(tasks)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, rendered)
	return err
}

func writeTask(w io.Writer, format output.Format, task *core.Task) error {
	rendered, err := output.NewFormatter(format).FormatTask(task)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, rendered)
	return err
}

func init() {
	rootCmd.AddCommand(tasksCmd)
	tasksCmd.AddCommand(tasksListCmd, tasksAddCmd, tasksDoneCmd, tasksRemoveCmd)

	tasksCmd.PersistentFlags().StringP("output-format", "o", "table", "Output format: table, json, markdown")

	tasksListCmd.Flags().Bool("pending", false, "Only show tasks that are not done")
	tasksAddCmd.Flags().StringP("description", "d", "", "Task description")
	tasksDoneCmd.Flags().Bool("toggle", false, "Flip the done flag instead of setting it")
}
