package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/balkashynov/tally/internal/db"
	"github.com/balkashynov/tally/internal/models"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users in the local database",
}

var userRole string

var userAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a user",
	Long: `Add a user. Admins and managers may track time against any task;
members only against tasks assigned to them.`,
	Args: cobra.MinimumNArgs(1),
	RunE: withDB(func(cmd *cobra.Command, args []string, gdb *gorm.DB) error {
		user, err := db.NewTaskService(gdb).CreateUser(cmd.Context(), strings.Join(args, " "), userRole)
		if err != nil {
			return err
		}
		fmt.Printf("✅ Created user #%d: %s (%s)\n", user.ID, user.Name, user.Role)
		fmt.Printf("   Set [client] user_id = %d in the tracking machine's config\n", user.ID)
		return nil
	}),
}

func init() {
	userAddCmd.Flags().StringVarP(&userRole, "role", "r", models.RoleMember, "admin, manager or member")
	userCmd.AddCommand(userAddCmd)
}
