// Package async runs background maintenance jobs with a timeout and panic
// recovery, so one bad run cannot take the scheduler down.
//
//	err := async.Run(ctx, time.Minute, "expired role sweep", func(ctx context.Context) error {
//		_, err := members.RetireExpiredRoles(ctx)
//		return err
//	})
//
// Scheduled adapts a job to robfig/cron:
//
//	c.AddJob("*/15 * * * *", async.Scheduled{Ctx: ctx, Name: "sweep", Timeout: time.Minute, Logger: logger, Fn: sweep})
package async
