package async

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantguard/pkg/observability"
)

func TestRun_Success(t *testing.T) {
	called := false
	err := Run(context.Background(), time.Second, "noop", func(ctx context.Context) error {
		called = true
		_, ok := ctx.Deadline()
		assert.True(t, ok)
		return nil
	})
	assert.NoError(t, err)
	assert.True(t, called)
}

func TestRun_Error(t *testing.T) {
	err := Run(context.Background(), time.Second, "failing", func(context.Context) error {
		return errors.New("db down")
	})
	assert.EqualError(t, err, "db down")
}

func TestRun_Timeout(t *testing.T) {
	err := Run(context.Background(), 20*time.Millisecond, "slow", func(ctx context.Context) error {
		select {
		case <-time.After(time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRun_PanicRecovery(t *testing.T) {
	err := Run(context.Background(), time.Second, "sweep", func(context.Context) error {
		panic("nil catalog")
	})
	var p *PanicError
	require.ErrorAs(t, err, &p)
	assert.Equal(t, "sweep", p.Task)
	assert.Equal(t, "panic in sweep: nil catalog", err.Error())
	assert.NotEmpty(t, p.Stack)
}

func TestScheduled_LogsFailures(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewLogger(observability.DebugLevel, &buf)

	Scheduled{Ctx: context.Background(), Name: "archive", Timeout: time.Second, Logger: logger,
		Fn: func(context.Context) error { return errors.New("bucket missing") }}.Run()
	assert.Contains(t, buf.String(), "job failed")
	assert.Contains(t, buf.String(), "bucket missing")
	assert.Contains(t, buf.String(), `"job":"archive"`)

	buf.Reset()
	Scheduled{Ctx: context.Background(), Name: "sweep", Timeout: time.Second, Logger: logger,
		Fn: func(context.Context) error { panic("boom") }}.Run()
	assert.Contains(t, buf.String(), "panic in sweep: boom")
	assert.Contains(t, buf.String(), "stack")
}

func TestScheduled_SkipsAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	Scheduled{Ctx: ctx, Name: "sweep", Timeout: time.Second, Logger: observability.NewLogger(observability.ErrorLevel, &bytes.Buffer{}),
		Fn: func(context.Context) error { called = true; return nil }}.Run()
	assert.False(t, called)
}
