package commands

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/balkashynov/tally/internal/db"
	"github.com/balkashynov/tally/internal/models"
	"github.com/balkashynov/tally/internal/parser"
	"github.com/balkashynov/tally/internal/tui"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage tasks in the local database",
	Long: `Administer the tasks time is accounted against. These commands work on
the server's database directly and must run on the server host.`,
}

var (
	addEstimate string
	addPolicy   string
	addDue      string
	addAssignee uint
	addNoUI     bool
)

var taskAddCmd = &cobra.Command{
	Use:   "add [title]",
	Short: "Add a task",
	Long: `Add a task. Without --no-ui an interactive form opens, prefilled with
whatever flags were given.

Examples:
  tally task add "Fix login bug" --estimate 2.5
  tally task add "Weekly support" --estimate 4 --policy per_week --no-ui
  tally task add "Release" --due "2 weeks" --assignee 3 --no-ui`,
	RunE: withDB(func(cmd *cobra.Command, args []string, gdb *gorm.DB) error {
		title := strings.Join(args, " ")
		now := time.Now()

		var draft tui.TaskDraft
		if addNoUI {
			d, err := draftFromFlags(cmd, title, now)
			if err != nil {
				return err
			}
			draft = d
		} else {
			prefilled := map[string]string{"title": title, "estimate": addEstimate, "policy": addPolicy, "due": addDue}
			if cmd.Flags().Changed("assignee") {
				prefilled["assignee"] = strconv.FormatUint(uint64(addAssignee), 10)
			}
			d, ok, err := tui.RunAddTaskTUI(prefilled, now)
			if err != nil {
				return fmt.Errorf("running task form: %w", err)
			}
			if !ok {
				fmt.Println("Task creation cancelled")
				return nil
			}
			draft = d
		}

		task, err := db.NewTaskService(gdb).CreateTask(cmd.Context(), db.CreateTaskRequest{
			Title:           draft.Title,
			AssignedTo:      draft.AssignedTo,
			EstimatedHours:  draft.EstimatedHours,
			TimeResetPolicy: draft.TimeResetPolicy,
			DueDate:         draft.DueDate,
		})
		if err != nil {
			return err
		}

		fmt.Printf("✅ Created task #%d: %s\n", task.ID, task.Title)
		if task.CapSeconds() > 0 {
			fmt.Printf("   Cap: %.2fh (%s)\n", task.EstimatedHours, task.TimeResetPolicy)
		}
		if task.DueDate != nil {
			fmt.Printf("   Due: %s\n", parser.FormatDueDate(task.DueDate, now))
		}
		return nil
	}),
}

func draftFromFlags(cmd *cobra.Command, title string, now time.Time) (tui.TaskDraft, error) {
	draft := tui.TaskDraft{Title: strings.TrimSpace(title), TimeResetPolicy: addPolicy}
	if draft.Title == "" {
		return draft, fmt.Errorf("task title is required")
	}
	if addEstimate != "" {
		hours, err := strconv.ParseFloat(addEstimate, 64)
		if err != nil {
			return draft, fmt.Errorf("invalid estimate %q: want hours, e.g. 2.5", addEstimate)
		}
		draft.EstimatedHours = hours
	}
	if addDue != "" {
		due, err := parser.ParseDueDate(addDue, now)
		if err != nil {
			return draft, err
		}
		draft.DueDate = due
	}
	if cmd.Flags().Changed("assignee") {
		id := addAssignee
		draft.AssignedTo = &id
	}
	return draft, nil
}

var listNoUI bool

var taskListCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List tasks",
	Args:    cobra.NoArgs,
	RunE: withDB(func(cmd *cobra.Command, args []string, gdb *gorm.DB) error {
		tasks, err := db.NewTaskService(gdb).ListTasks(cmd.Context())
		if err != nil {
			return err
		}
		if len(tasks) == 0 {
			fmt.Println("No tasks yet. Add one with 'tally task add'")
			return nil
		}

		now := time.Now()
		if !listNoUI {
			return tui.RunListTUI(tasks, now, true)
		}
		fmt.Printf("%-5s %-40s %-12s %-10s %s\n", "ID", "TITLE", "STATUS", "CAP", "DUE")
		for _, t := range tasks {
			fmt.Printf("%-5d %-40s %-12s %-10s %s\n", t.ID, clip(t.Title, 40), t.Status, capColumn(t), dueColumn(t, now))
		}
		return nil
	}),
}

var taskCompleteCmd = &cobra.Command{
	Use:     "complete <task-id>",
	Aliases: []string{"done"},
	Short:   "Mark a task as completed",
	Args:    cobra.ExactArgs(1),
	RunE: withDB(func(cmd *cobra.Command, args []string, gdb *gorm.DB) error {
		id, err := parseID(args[0], "task")
		if err != nil {
			return err
		}
		task, err := db.NewTaskService(gdb).SetStatus(cmd.Context(), id, models.TaskStatusCompleted)
		if err != nil {
			return err
		}
		fmt.Printf("✅ Completed task #%d: %s\n", task.ID, task.Title)
		return nil
	}),
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func capColumn(t models.Task) string {
	if t.CapSeconds() == 0 {
		return "-"
	}
	if t.PerWeek() {
		return fmt.Sprintf("%.1fh/wk", t.EstimatedHours)
	}
	return fmt.Sprintf("%.1fh", t.EstimatedHours)
}

func dueColumn(t models.Task, now time.Time) string {
	if t.DueDate == nil {
		return "-"
	}
	return parser.FormatDueDate(t.DueDate, now)
}

func init() {
	taskAddCmd.Flags().StringVarP(&addEstimate, "estimate", "e", "", "time cap in hours (empty for no cap)")
	taskAddCmd.Flags().StringVarP(&addPolicy, "policy", "p", "", "reset policy: fixed or per_week")
	taskAddCmd.Flags().StringVar(&addDue, "due", "", "due date: dd/mm/yyyy, today, tomorrow, 3 days, 2 weeks")
	taskAddCmd.Flags().UintVarP(&addAssignee, "assignee", "a", 0, "assigned user id")
	taskAddCmd.Flags().BoolVar(&addNoUI, "no-ui", false, "skip the interactive form")
	taskListCmd.Flags().BoolVar(&listNoUI, "no-ui", false, "print a plain table")

	taskCmd.AddCommand(taskAddCmd)
	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskCompleteCmd)
}
