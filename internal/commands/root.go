package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/balkashynov/tally/internal/client"
	"github.com/balkashynov/tally/internal/config"
	"github.com/balkashynov/tally/internal/db"
	"github.com/balkashynov/tally/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Flags shared by every command
var (
	configPath string
	logLevel   string
	debugSQL   bool
	serverURL  string
	userID     uint
)

// cfg is loaded before any command runs.
var cfg config.Config

var rootCmd = &cobra.Command{
	Use:   "tally",
	Short: "Activity and time accounting for tasks",
	Long: `tally tracks time against tasks with per-task time caps, records what
you were working on while the timer runs, and uploads periodic screenshots
with a minute-by-minute activity breakdown.

Run 'tally serve' for the accounting server and 'tally track <task-id>'
on the machine being tracked.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		res, err := config.LoadFrom(configPath)
		if err != nil {
			return err
		}
		for _, w := range res.Warnings {
			fmt.Fprintf(os.Stderr, "⚠️  %s\n", w)
		}
		cfg = res.Config

		if cmd.Flags().Changed("log-level") {
			cfg.Log.Level = logLevel
		}
		if cmd.Flags().Changed("server") {
			cfg.Client.ServerURL = serverURL
		}
		if cmd.Flags().Changed("user") {
			cfg.Client.UserID = userID
		}
		return nil
	},
}

// newLogger logs to stderr.
func newLogger() *slog.Logger {
	return logging.New(cfg.Log.Level, os.Stderr)
}

// newFileLogger logs to the configured file so a full-screen UI keeps the
// terminal. The returned closer must be called on exit.
func newFileLogger() (*slog.Logger, io.Closer, error) {
	path := config.ExpandTilde(cfg.Log.File)
	if path == "" {
		return logging.Discard(), io.NopCloser(nil), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	return logging.New(cfg.Log.Level, f), f, nil
}

// openDB opens the configured database. Callers close it with db.Close.
func openDB() (*gorm.DB, error) {
	return db.Open(config.ExpandTilde(cfg.Storage.DBPath), db.Options{LogSQL: debugSQL})
}

// withDB runs fn with an open database.
func withDB(fn func(cmd *cobra.Command, args []string, gdb *gorm.DB) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		gdb, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close(gdb)
		return fn(cmd, args, gdb)
	}
}

// newClient returns an API client for the configured user.
func newClient() (*client.Client, error) {
	if cfg.Client.UserID == 0 {
		return nil, fmt.Errorf("no user configured: set [client] user_id in %s or pass --user", config.DefaultPath())
	}
	return client.New(cfg.Client.ServerURL, cfg.Client.UserID), nil
}

// SetVersion sets the version information
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tally %s (commit %s, built %s)\n", version, commit, date)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", config.DefaultPath(), "config file")
	pf.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	pf.BoolVar(&debugSQL, "debug-sql", false, "log every SQL statement")
	pf.StringVar(&serverURL, "server", "", "server URL (overrides [client] server_url)")
	pf.UintVar(&userID, "user", 0, "user id (overrides [client] user_id)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(trackCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(remainingCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(versionCmd)
}
