package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/balkashynov/tally/internal/client"
	"github.com/balkashynov/tally/internal/clock"
	"github.com/balkashynov/tally/internal/tracker"
	"github.com/balkashynov/tally/internal/tui"
)

var (
	trackDescription string
	trackNoCapture   bool
	trackNoAnimation bool
)

var trackCmd = &cobra.Command{
	Use:   "track <task-id>",
	Short: "Track time on a task with activity recording",
	Long: `Start a timer on the server and open the tracking screen. While it runs,
keyboard and mouse activity in the terminal is counted, focus changes are
reported as activity sessions and screenshots are uploaded periodically.

Press s, q or Esc to stop and save.`,
	Args: cobra.ExactArgs(1),
	RunE: runTrack,
}

func runTrack(cmd *cobra.Command, args []string) error {
	taskID, err := parseID(args[0], "task")
	if err != nil {
		return err
	}
	api, err := newClient()
	if err != nil {
		return err
	}
	log, closer, err := newFileLogger()
	if err != nil {
		return err
	}
	defer closer.Close()

	opts := tracker.OptionsFromConfig(cfg)
	if trackNoCapture {
		opts.Capture = false
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := tracker.Begin(ctx, api, clock.Real(), taskID, trackDescription, opts, log)
	if err != nil {
		return explainRejection(err)
	}

	result, runErr := tui.RunTimerTUI(ctx, session, session.Track().Task, !trackNoAnimation)

	// The run context may already be cancelled by a signal; saving must
	// still reach the server.
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	track, stopErr := session.Stop(stopCtx)

	if runErr != nil {
		return runErr
	}
	if result == tui.TimerEnded {
		fmt.Printf("⏹️  Timer for task #%d was ended by the server after %s\n", taskID, formatSeconds(int(session.Elapsed().Seconds())))
		return nil
	}
	if stopErr != nil {
		var apiErr *client.APIError
		if errors.As(stopErr, &apiErr) && apiErr.Status == 404 {
			fmt.Printf("⏹️  Timer for task #%d had already ended on the server\n", taskID)
			return nil
		}
		return fmt.Errorf("stopping timer: %w", stopErr)
	}

	fmt.Printf("✅ Tracked %s on task #%d", formatSeconds(track.DurationSeconds), taskID)
	if track.Activity != nil {
		fmt.Printf(" (%.0f%% active)", *track.Activity)
	}
	fmt.Println()
	if n := session.Screenshots(); n > 0 {
		fmt.Printf("📸 %d screenshot(s) uploaded\n", n)
	}
	return nil
}

// explainRejection turns cap and due date refusals into a readable error.
func explainRejection(err error) error {
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch {
	case apiErr.CapReached():
		tracked := 0.0
		if apiErr.TrackedHours != nil {
			tracked = *apiErr.TrackedHours
		}
		return fmt.Errorf("%s: %.2fh of %.2fh used", apiErr.Message, tracked, *apiErr.LimitHours)
	case apiErr.DueDate != nil:
		return fmt.Errorf("%s (due %s)", apiErr.Message, apiErr.DueDate.Format("02/01/2006"))
	}
	return errors.New(apiErr.Message)
}

func parseID(arg, what string) (uint, error) {
	id, err := strconv.ParseUint(arg, 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid %s ID: %s", what, arg)
	}
	return uint(id), nil
}

func formatSeconds(s int) string {
	return (time.Duration(s) * time.Second).String()
}

func init() {
	trackCmd.Flags().StringVarP(&trackDescription, "description", "d", "", "note stored on the time track")
	trackCmd.Flags().BoolVar(&trackNoCapture, "no-capture", false, "disable screenshots and screen sampling")
	trackCmd.Flags().BoolVar(&trackNoAnimation, "no-animation", false, "disable the title shimmer")
}
