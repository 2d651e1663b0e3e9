package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/trailhq/jobtrail/config"
	"github.com/trailhq/jobtrail/logger"
	"github.com/trailhq/jobtrail/notify"
	"github.com/trailhq/jobtrail/pulse/async"
	"github.com/trailhq/jobtrail/pulse/schedule"
	"github.com/trailhq/jobtrail/remind"
	"github.com/trailhq/jobtrail/sym"
)

// PulseCmd represents the pulse command - the reminder engine daemon
var PulseCmd = &cobra.Command{
	Use:   "pulse",
	Short: sym.Pulse + " Manage the reminder engine (worker pool + supervisor)",
	Long: sym.Pulse + ` Pulse - the jobtrail reminder engine.

The engine runs two cooperating loops:
- A supervisor that keeps exactly one reminder-processing job queued
- A worker pool that executes queued jobs and reaps abandoned ones

Each processing pass finds every reminder that is due and unsent,
delivers it, and stamps it sent in the candidate's local calendar.
Delivery is at-least-once: a crash mid-pass means the next pass
retries whatever was not stamped.

Example:
  jobtrail pulse start              # Start engine in foreground
  jobtrail pulse start --workers 3  # Start with 3 concurrent workers`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// PulseStartCmd starts the reminder engine in foreground mode.
var PulseStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the reminder engine",
	Long: `Start the reminder engine in foreground mode.

The engine will:
- Start the worker pool for reminder job processing
- Start the supervisor that keeps one processing job in flight
- Run until interrupted (Ctrl+C), finishing in-flight work first`,
	RunE: runPulseStart,
}

func init() {
	PulseCmd.AddCommand(PulseStartCmd)
	PulseStartCmd.Flags().Int("workers", 0, "Number of concurrent workers (0 uses config)")
}

func runPulseStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	workers, _ := cmd.Flags().GetInt("workers")
	if workers <= 0 {
		workers = cfg.Pulse.Workers
	}

	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	// Delivery chain: structured-log sender behind a rate limiter.
	sender := notify.NewRateLimitedSender(
		notify.NewLogSender(logger.Logger),
		cfg.Notify.RatePerSecond,
		cfg.Notify.RateBurst,
	)

	reporter := notify.NewLogReporter(logger.Logger)

	registry := async.NewHandlerRegistry()
	registry.Register(remind.NewHandler(database, sender, reporter, cfg.Pulse.BatchSize, logger.Logger))

	poolCfg := async.DefaultWorkerPoolConfig()
	poolCfg.Workers = workers
	poolCfg.PollInterval = time.Duration(cfg.Pulse.PollIntervalSeconds) * time.Second

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pool := async.NewWorkerPool(ctx, database, poolCfg, logger.Logger, registry)
	pool.Start()

	supCfg := schedule.DefaultSupervisorConfig(remind.HandlerName)
	supCfg.Interval = time.Duration(cfg.Pulse.SupervisorIntervalSeconds) * time.Second
	supCfg.JobTTL = time.Duration(cfg.Pulse.JobTTLSeconds) * time.Second

	supervisor := schedule.NewSupervisor(ctx, pool.Queue(), supCfg, logger.Logger)
	supervisor.Start()

	fmt.Printf("%s Reminder engine started\n", sym.Pulse)
	fmt.Printf("  Workers: %d\n", workers)
	fmt.Printf("  Poll interval: %v\n", poolCfg.PollInterval)
	fmt.Printf("  Supervisor interval: %v\n", supCfg.Interval)
	fmt.Printf("  Batch size: %d per category\n", cfg.Pulse.BatchSize)
	fmt.Printf("\n%s Press Ctrl+C for graceful shutdown\n\n", sym.Pulse)

	<-ctx.Done()

	fmt.Printf("\n%s Shutting down...\n", sym.Pulse)

	// Stop components in reverse order of startup
	supervisor.Stop()
	pool.Stop()

	fmt.Printf("%s Reminder engine stopped\n", sym.Pulse)
	return nil
}
