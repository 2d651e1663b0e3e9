package commands

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/trailhq/jobtrail/config"
	"github.com/trailhq/jobtrail/errors"
	"github.com/trailhq/jobtrail/sym"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: sym.DB + " Manage jobtrail database",
	Long: sym.DB + ` db — Manage jobtrail database operations

Manage database operations including migrations and statistics.

Examples:
  jobtrail db migrate             # Apply pending schema migrations
  jobtrail db stats               # Show database statistics`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	Long:  "Open the configured database and apply any schema migrations it has not seen yet. Safe to run repeatedly.",
	RunE:  runDbMigrate,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	Long:  "Display candidate, application, reminder, and job counts for the configured database.",
	RunE:  runDbStats,
}

var dbPathFlag string

func init() {
	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbStatsCmd)
	DbCmd.PersistentFlags().StringVar(&dbPathFlag, "path", "", "Database path (defaults to configured path)")
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	// openDatabase migrates as part of opening
	database, err := openDatabase(dbPathFlag)
	if err != nil {
		return err
	}
	defer database.Close()

	fmt.Printf("%s Migrations applied\n", sym.DB)
	return nil
}

func runDbStats(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}
	dbPath := dbPathFlag
	if dbPath == "" {
		dbPath = cfg.Database.Path
	}

	database, err := openDatabase(dbPath)
	if err != nil {
		return err
	}
	defer database.Close()

	var candidates, applications, interviews int
	err = database.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM candidates),
			(SELECT COUNT(*) FROM applications),
			(SELECT COUNT(*) FROM interviews)
	`).Scan(&candidates, &applications, &interviews)
	if err != nil && err != sql.ErrNoRows {
		return errors.Wrap(err, "failed to query entity counts")
	}

	var remindersPending, remindersSent int
	err = database.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM application_reminders WHERE sent_at IS NULL) +
			(SELECT COUNT(*) FROM interview_reminders WHERE sent_at IS NULL),
			(SELECT COUNT(*) FROM application_reminders WHERE sent_at IS NOT NULL) +
			(SELECT COUNT(*) FROM interview_reminders WHERE sent_at IS NOT NULL)
	`).Scan(&remindersPending, &remindersSent)
	if err != nil && err != sql.ErrNoRows {
		return errors.Wrap(err, "failed to query reminder counts")
	}

	var auditEntries, queuedJobs int
	err = database.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM audit_logs),
			(SELECT COUNT(*) FROM pulse_jobs)
	`).Scan(&auditEntries, &queuedJobs)
	if err != nil && err != sql.ErrNoRows {
		return errors.Wrap(err, "failed to query audit and job counts")
	}

	fmt.Printf("%s Database Statistics\n", sym.DB)
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")
	fmt.Printf("Database Path:     %s\n", dbPath)
	fmt.Printf("Candidates:        %d\n", candidates)
	fmt.Printf("Applications:      %d\n", applications)
	fmt.Printf("Interviews:        %d\n", interviews)
	fmt.Printf("Reminders unsent:  %d\n", remindersPending)
	fmt.Printf("Reminders sent:    %d\n", remindersSent)
	fmt.Printf("Audit entries:     %d\n", auditEntries)
	fmt.Printf("Queued jobs:       %d\n", queuedJobs)

	return nil
}
