package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/trailhq/jobtrail/remind"
	"github.com/trailhq/jobtrail/sym"
	"github.com/trailhq/jobtrail/track"
)

// RemindCmd represents the remind command
var RemindCmd = &cobra.Command{
	Use:   "remind",
	Short: sym.Remind + " Inspect reminders",
	Long: sym.Remind + ` remind — Inspect reminder state

Shows what the engine would act on: reminders that are enabled, unsent,
and past due for applications in the matching status.

Examples:
  jobtrail remind ls              # List reminders currently due
  jobtrail remind ls --limit 10   # Cap the listing per reminder kind`,
}

var remindLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List reminders currently due",
	Long:  "List every reminder a processing pass started now would attempt to deliver, grouped by kind.",
	RunE:  runRemindLs,
}

var remindLimitFlag int

func init() {
	RemindCmd.AddCommand(remindLsCmd)
	remindLsCmd.Flags().IntVar(&remindLimitFlag, "limit", remind.DefaultBatchSize, "Maximum reminders to list per kind")
}

func runRemindLs(cmd *cobra.Command, args []string) error {
	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	store := remind.NewStore(database)
	now := time.Now()
	ctx := cmd.Context()

	kinds := []struct {
		kind      track.ReminderKind
		interview bool
	}{
		{track.ReminderSavedForLater, false},
		{track.ReminderWaitingForResponse, false},
		{track.ReminderReceivedOffer, false},
		{track.ReminderPreInterview, true},
		{track.ReminderPostInterview, true},
	}

	total := 0
	for _, k := range kinds {
		var due []*remind.DueReminder
		if k.interview {
			due, err = store.ListDueInterviewReminders(ctx, k.kind, now, remindLimitFlag)
		} else {
			due, err = store.ListDueApplicationReminders(ctx, k.kind, now, remindLimitFlag)
		}
		if err != nil {
			return err
		}
		if len(due) == 0 {
			continue
		}

		fmt.Printf("%s %s (%d due)\n", sym.Remind, k.kind, len(due))
		for _, d := range due {
			fmt.Printf("  %s  %s  %s @ %s  → %s\n",
				d.ReminderID,
				d.Due.Instant().Format("2006-01-02 15:04 MST"),
				d.RoleTitle, d.Company,
				d.CandidateEmail)
		}
		fmt.Println()
		total += len(due)
	}

	if total == 0 {
		fmt.Printf("%s No reminders due\n", sym.Remind)
	}
	return nil
}
