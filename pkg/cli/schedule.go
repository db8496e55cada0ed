package cli

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/tenantguard/pkg/async"
	"github.com/platinummonkey/tenantguard/pkg/audit"
)

// ScheduleConfig sets the cron specs of the maintenance jobs. An empty spec
// disables its job.
type ScheduleConfig struct {
	SweepSpec    string
	ExportSpec   string
	ExportWindow time.Duration
	JobTimeout   time.Duration
}

func newScheduleCommand() *Command {
	cmd := &Command{
		Name:        "schedule",
		Description: "Run the expired-role sweep and audit archival on cron schedules",
		Flags:       flag.NewFlagSet("schedule", flag.ContinueOnError),
	}
	sweepSpec := cmd.Flags.String("sweep-schedule", "*/15 * * * *", "Cron schedule for the expired-role sweep (empty disables)")
	exportSpec := cmd.Flags.String("export-schedule", "", "Cron schedule for audit archival (empty disables)")
	window := cmd.Flags.Duration("export-window", 24*time.Hour, "How far back each archival run reaches")
	timeout := cmd.Flags.Duration("job-timeout", 5*time.Minute, "Deadline for a single job run")

	cmd.Run = func(ctx context.Context, env *Env, args []string) error {
		if err := parse(cmd, env, args); err != nil {
			return err
		}
		c, err := newScheduler(ctx, env, ScheduleConfig{
			SweepSpec:    *sweepSpec,
			ExportSpec:   *exportSpec,
			ExportWindow: *window,
			JobTimeout:   *timeout,
		})
		if err != nil {
			return err
		}

		c.Start()
		env.Logger.WithFields(map[string]interface{}{
			"sweep_schedule":  *sweepSpec,
			"export_schedule": *exportSpec,
		}).Info("scheduler started")

		<-ctx.Done()
		<-c.Stop().Done()
		env.Logger.Info("scheduler stopped")
		return nil
	}
	return cmd
}

// newScheduler registers the enabled jobs on a cron that has not started.
// A job still running when it fires again skips that firing.
func newScheduler(ctx context.Context, env *Env, cfg ScheduleConfig) (*cron.Cron, error) {
	if cfg.SweepSpec == "" && cfg.ExportSpec == "" {
		return nil, fmt.Errorf("no jobs scheduled")
	}
	if cfg.ExportSpec != "" {
		if env.Archive == nil {
			return nil, fmt.Errorf("audit archival needs an archive bucket")
		}
		if cfg.ExportWindow <= 0 {
			return nil, fmt.Errorf("export window must be positive")
		}
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 5 * time.Minute
	}

	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	job := func(name string, fn async.Job) async.Scheduled {
		return async.Scheduled{Ctx: ctx, Name: name, Timeout: cfg.JobTimeout, Logger: env.Logger, Fn: fn}
	}

	if cfg.SweepSpec != "" {
		if _, err := c.AddJob(cfg.SweepSpec, job("expired-role-sweep", sweepJob(env))); err != nil {
			return nil, fmt.Errorf("invalid sweep schedule: %w", err)
		}
	}
	if cfg.ExportSpec != "" {
		if _, err := c.AddJob(cfg.ExportSpec, job("audit-archival", archiveJob(env, cfg.ExportWindow))); err != nil {
			return nil, fmt.Errorf("invalid export schedule: %w", err)
		}
	}
	return c, nil
}

func sweepJob(env *Env) async.Job {
	return func(ctx context.Context) error {
		n, err := sweep(ctx, env)
		if err != nil {
			return err
		}
		env.Logger.WithField("retired", n).Info("expired role sweep completed")
		return nil
	}
}

// archiveJob uploads the window of audit entries ending at each run
func archiveJob(env *Env, window time.Duration) async.Job {
	return func(ctx context.Context) error {
		end := env.now()
		start := end.Add(-window)
		key, n, err := uploadAudit(ctx, env, audit.Filter{StartTime: &start, EndTime: &end})
		if err != nil {
			return err
		}
		env.Logger.WithFields(map[string]interface{}{"key": key, "entries": n}).Info("audit archival completed")
		return nil
	}
}
