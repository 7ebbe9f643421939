package commands

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/balkashynov/tally/internal/models"
	"github.com/balkashynov/tally/internal/parser"
)

var startDescription string

var startCmd = &cobra.Command{
	Use:   "start [task-id]",
	Short: "Start a timer without activity recording",
	Long: `Start a timer on the server. Without a task ID the timer is not charged
to any task. The timer must be kept alive with heartbeats; use 'tally track'
for an interactive session that does this for you.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		api, err := newClient()
		if err != nil {
			return err
		}
		var taskID *uint
		if len(args) == 1 {
			id, err := parseID(args[0], "task")
			if err != nil {
				return err
			}
			taskID = &id
		}

		track, err := api.Start(cmd.Context(), taskID, startDescription)
		if err != nil {
			return explainRejection(err)
		}
		fmt.Printf("⏱️  Started timer #%d%s at %s\n", track.ID, taskSuffix(track.TaskID), track.StartTime.Local().Format("15:04:05"))
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running timer",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		api, err := newClient()
		if err != nil {
			return err
		}
		active, err := api.Active(cmd.Context())
		if err != nil {
			return err
		}
		if active == nil {
			fmt.Println("No timer is running")
			return nil
		}

		track, err := api.Stop(cmd.Context(), active.ID)
		if err != nil {
			return err
		}
		fmt.Printf("⏹️  Stopped timer #%d%s after %s\n", track.ID, taskSuffix(track.TaskID), formatSeconds(track.DurationSeconds))
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running timer",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		api, err := newClient()
		if err != nil {
			return err
		}
		active, err := api.Active(cmd.Context())
		if err != nil {
			return err
		}
		if active == nil {
			fmt.Println("No timer is running")
			return nil
		}

		fmt.Printf("⏱️  Timer #%d%s\n", active.ID, taskSuffix(active.TaskID))
		fmt.Printf("   Started:   %s (%s)\n", active.StartTime.Local().Format("Jan 02 15:04"), humanize.Time(active.StartTime))
		fmt.Printf("   Elapsed:   %s\n", formatSeconds(active.Elapsed(time.Now())))
		if active.LastSeenAt != nil {
			fmt.Printf("   Heartbeat: %s\n", humanize.Time(*active.LastSeenAt))
		}
		if active.Description != "" {
			fmt.Printf("   Note:      %s\n", active.Description)
		}
		return nil
	},
}

var remainingPeriod string

var remainingCmd = &cobra.Command{
	Use:   "remaining <task-id>",
	Short: "Show tracked and remaining time for a task",
	Long: `Show how much of a task's time cap is used. --period selects which time
counts as tracked: total, day, week, dd/mm/yyyy or dd/mm/yyyy..dd/mm/yyyy.
Remaining time is always measured against the cap's own window.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		taskID, err := parseID(args[0], "task")
		if err != nil {
			return err
		}
		period, err := parser.ParsePeriod(remainingPeriod)
		if err != nil {
			return err
		}
		api, err := newClient()
		if err != nil {
			return err
		}

		summary, err := api.Remaining(cmd.Context(), taskID, periodQuery(period))
		if err != nil {
			return err
		}
		printSummary(summary)
		return nil
	},
}

// periodQuery renders a parsed period back into the server's query form.
func periodQuery(p models.Period) string {
	if p.Kind != models.PeriodRange {
		return p.Kind
	}
	return fmt.Sprintf("%s..%s", p.From.Format("02/01/2006"), p.To.AddDate(0, 0, -1).Format("02/01/2006"))
}

func printSummary(s *models.Summary) {
	fmt.Printf("📊 Task #%d (%s)\n", s.TaskID, s.Policy)
	fmt.Printf("   Tracked (%s): %s\n", s.Period, formatSeconds(s.TrackedSeconds))
	if s.ActiveSeconds > 0 {
		fmt.Printf("   Running:      %s\n", formatSeconds(s.ActiveSeconds))
	}
	if s.RemainingSeconds == nil {
		fmt.Println("   Cap:          none")
		return
	}
	fmt.Printf("   Cap:          %s\n", formatSeconds(s.CapSeconds))
	fmt.Printf("   Remaining:    %s\n", formatSeconds(*s.RemainingSeconds))
}

var logLimit int

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "List recent time tracks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		api, err := newClient()
		if err != nil {
			return err
		}
		tracks, err := api.List(cmd.Context(), logLimit)
		if err != nil {
			return err
		}
		if len(tracks) == 0 {
			fmt.Println("No time tracks yet")
			return nil
		}

		now := time.Now()
		fmt.Printf("%-6s %-6s %-17s %-10s %-8s %s\n", "ID", "TASK", "STARTED", "DURATION", "ACTIVE", "NOTE")
		for _, t := range tracks {
			fmt.Printf("%-6d %-6s %-17s %-10s %-8s %s\n",
				t.ID, taskColumn(t.TaskID), t.StartTime.Local().Format("Jan 02 15:04"),
				formatSeconds(t.Elapsed(now)), activityColumn(t), t.Description)
		}
		return nil
	},
}

func taskSuffix(taskID *uint) string {
	if taskID == nil {
		return ""
	}
	return fmt.Sprintf(" on task #%d", *taskID)
}

func taskColumn(taskID *uint) string {
	if taskID == nil {
		return "-"
	}
	return fmt.Sprintf("#%d", *taskID)
}

func activityColumn(t models.TimeTrack) string {
	switch {
	case t.Active():
		return "running"
	case t.Activity == nil:
		return "-"
	default:
		return fmt.Sprintf("%.0f%%", *t.Activity)
	}
}

func init() {
	startCmd.Flags().StringVarP(&startDescription, "description", "d", "", "note stored on the time track")
	remainingCmd.Flags().StringVarP(&remainingPeriod, "period", "p", models.PeriodTotal, "total, day, week or a dd/mm/yyyy date or range")
	logCmd.Flags().IntVarP(&logLimit, "limit", "n", 20, "number of tracks to show")
}
