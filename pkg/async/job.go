package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/tenantguard/pkg/observability"
)

// Job is one unit of background work
type Job func(ctx context.Context) error

// PanicError is a recovered panic from a job
type PanicError struct {
	Task  string
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Task, e.Value)
}

// Run executes fn with a timeout derived from parent. A panic in fn is
// returned as a *PanicError.
func Run(parent context.Context, timeout time.Duration, task string, fn Job) (err error) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Task: task, Value: r, Stack: debug.Stack()}
		}
	}()

	return fn(ctx)
}

// Scheduled adapts a Job to cron.Job. Each firing goes through Run; a
// failure is logged with its duration and never propagates.
type Scheduled struct {
	Ctx     context.Context
	Name    string
	Timeout time.Duration
	Logger  *observability.Logger
	Fn      Job
}

var _ cron.Job = Scheduled{}

// Run implements cron.Job
func (s Scheduled) Run() {
	if s.Ctx.Err() != nil {
		return
	}
	start := time.Now()
	err := Run(s.Ctx, s.Timeout, s.Name, s.Fn)
	logger := s.Logger.WithFields(map[string]interface{}{
		"job":         s.Name,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	if err == nil {
		logger.Debug("job completed")
		return
	}
	if p, ok := err.(*PanicError); ok {
		logger = logger.WithField("stack", string(p.Stack))
	}
	logger.WithError(err).Error("job failed")
}
