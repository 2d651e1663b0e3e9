package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/trailhq/jobtrail/cmd/jobtrail/commands"
	"github.com/trailhq/jobtrail/config"
	"github.com/trailhq/jobtrail/logger"
)

var rootCmd = &cobra.Command{
	Use:   "jobtrail",
	Short: "jobtrail - Job application tracker with reminder delivery",
	Long: `jobtrail - Track job applications and never miss a follow-up.

jobtrail keeps candidates, applications, and interviews in a local SQLite
database and runs a background engine that delivers due reminders.

Available commands:
  pulse   - Run the reminder engine (worker pool + supervisor)
  remind  - Inspect due reminders
  db      - Manage database operations
  version - Show version information

Examples:
  jobtrail pulse start      # Run the reminder engine in foreground
  jobtrail remind ls        # List reminders currently due
  jobtrail db migrate       # Apply pending schema migrations
  jobtrail db stats         # Show database statistics`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			// A broken config file must still leave a working logger to
			// report through.
			if initErr := logger.Initialize(false); initErr != nil {
				return fmt.Errorf("failed to initialize logger: %w", initErr)
			}
			logger.Logger.Warnw("Failed to load configuration, using default log settings", "error", err)
			return nil
		}
		if err := logger.InitializeWithLevel(cfg.Log.JSON, cfg.Log.Level); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")

	rootCmd.AddCommand(commands.PulseCmd)
	rootCmd.AddCommand(commands.RemindCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
