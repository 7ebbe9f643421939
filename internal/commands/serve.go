package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/balkashynov/tally/internal/clock"
	"github.com/balkashynov/tally/internal/config"
	"github.com/balkashynov/tally/internal/db"
	"github.com/balkashynov/tally/internal/server"
	"github.com/balkashynov/tally/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the accounting server",
	Long: `Run the HTTP accounting server. It reconciles activity sessions, enforces
task time caps, stores screenshots and sweeps timers whose client stopped
sending heartbeats.`,
	Args: cobra.NoArgs,
	RunE: withDB(func(cmd *cobra.Command, args []string, gdb *gorm.DB) error {
		if port, _ := cmd.Flags().GetInt("port"); port > 0 {
			cfg.Server.Port = port
		}
		log := newLogger()

		files, err := storage.NewDirStore(config.ExpandTilde(cfg.Storage.ScreenshotDir))
		if err != nil {
			return err
		}

		clk := clock.Real()
		settings := db.SettingsFromConfig(cfg.Accounting)
		authz := db.NewRoleAuthorizer(gdb)
		srv := server.New(cfg.Server, server.Deps{
			Activity:    db.NewActivityService(gdb, authz, settings, log),
			Tracks:      db.NewTimeTrackService(gdb, clk, settings, log),
			Screenshots: db.NewScreenshotService(gdb, files, authz, clk, settings, log),
			Files:       files,
		}, clk, log)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return srv.Run(ctx)
	}),
}

func init() {
	serveCmd.Flags().Int("port", 0, "listen port (overrides [server] port)")
}
