package cli

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tasktalk/tasktalk/internal/config"
	"github.com/tasktalk/tasktalk/internal/store"
	"github.com/tasktalk/tasktalk/pkg/models"
)

func newTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks directly, without the chat pipeline",
	}

	cmd.AddCommand(newTaskListCmd())
	cmd.AddCommand(newTaskAddCmd())
	cmd.AddCommand(newTaskShowCmd())
	cmd.AddCommand(newTaskDoneCmd())
	cmd.AddCommand(newTaskRmCmd())

	return cmd
}

func newTaskListCmd() *cobra.Command {
	var (
		status   string
		priority string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			tasks, err := st.ListTasks(cmd.Context(), store.TaskFilter{
				Status:   status,
				Priority: priority,
				Limit:    limit,
			})
			if err != nil {
				return err
			}
			if len(tasks) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No tasks.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tPRIORITY\tTITLE")
			for _, task := range tasks {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", task.TaskID, task.Status, task.Priority, task.Title)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (pending, in_progress, completed, cancelled)")
	cmd.Flags().StringVar(&priority, "priority", "", "Filter by priority (low, medium, high, urgent)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of tasks to show")

	return cmd
}

func newTaskAddCmd() *cobra.Command {
	var (
		description string
		priority    string
	)

	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Create a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			task, err := st.CreateTask(cmd.Context(), store.TaskDraft{
				Title:       args[0],
				Description: description,
				Priority:    priority,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created task #%d: %q (%s, %s priority)\n",
				task.TaskID, task.Title, task.Status, task.Priority)
			return nil
		},
	}

	cmd.Flags().StringVar(&description, "description", "", "Task description")
	cmd.Flags().StringVar(&priority, "priority", "", "Task priority (low, medium, high, urgent; default medium)")

	return cmd
}

func newTaskShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			st, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			task, err := st.GetTask(cmd.Context(), id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Task #%d: %s\n", task.TaskID, task.Title)
			fmt.Fprintf(out, "  Status:   %s\n", task.Status)
			fmt.Fprintf(out, "  Priority: %s\n", task.Priority)
			if task.Description != "" {
				fmt.Fprintf(out, "  Notes:    %s\n", task.Description)
			}
			if task.ConversationID != nil {
				fmt.Fprintf(out, "  Conversation: %d\n", *task.ConversationID)
			}
			fmt.Fprintf(out, "  Updated:  %s\n", task.UpdatedAt.Format("2006-01-02 15:04"))
			return nil
		},
	}
	return cmd
}

func newTaskDoneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "done <id>",
		Short: "Mark a task completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			st, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			status := models.StatusCompleted
			task, err := st.UpdateTask(cmd.Context(), id, store.TaskUpdate{Status: &status})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Completed task #%d: %q\n", task.TaskID, task.Title)
			return nil
		},
	}
	return cmd
}

func newTaskRmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			st, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			task, err := st.DeleteTask(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted task #%d: %q\n", task.TaskID, task.Title)
			return nil
		},
	}
	return cmd
}

func openStore(cmd *cobra.Command) (store.Store, error) {
	return store.Open(config.MustHomeFrom(cmd.Context()))
}

func parseTaskID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid task id %q", arg)
	}
	return id, nil
}
