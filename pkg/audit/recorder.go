package audit

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/tenantguard/pkg/async"
)

// FailureCounter is told about every audit write that did not persist
type FailureCounter interface {
	IncAuditWriteFailure()
}

// Recorder writes audit entries on a best-effort basis. A failed write is
// reported to the diagnostic logger and never returned to the caller.
type Recorder struct {
	sink     Sink
	diag     *logrus.Logger
	failures FailureCounter
	timeout  time.Duration
	now      func() time.Time
}

// RecorderOption configures a Recorder
type RecorderOption func(*Recorder)

// WithFailureCounter counts failed writes, typically in metrics
func WithFailureCounter(c FailureCounter) RecorderOption {
	return func(r *Recorder) { r.failures = c }
}

// WithWriteTimeout bounds each sink write
func WithWriteTimeout(d time.Duration) RecorderOption {
	return func(r *Recorder) { r.timeout = d }
}

// NewRecorder creates a recorder. A nil diagnostic logger logs to stderr.
func NewRecorder(sink Sink, diag *logrus.Logger, opts ...RecorderOption) *Recorder {
	if diag == nil {
		diag = logrus.New()
	}
	r := &Recorder{
		sink:    sink,
		diag:    diag,
		timeout: 5 * time.Second,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record appends one entry
func (r *Recorder) Record(ctx context.Context, entry Entry) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now()
	}
	if entry.Result == "" {
		entry.Result = ResultSuccess
	}

	// the entry outlives a cancelled request
	err := r.write(context.WithoutCancel(ctx), &entry)
	if err == nil {
		return
	}

	if r.failures != nil {
		r.failures.IncAuditWriteFailure()
	}
	fields := logrus.Fields{
		"action":     entry.Action,
		"resource":   entry.Resource,
		"result":     entry.Result,
		"request_id": entry.RequestID,
	}
	if entry.ActorID != nil {
		fields["actor_id"] = *entry.ActorID
	}
	if entry.OrganizationID != nil {
		fields["organization_id"] = *entry.OrganizationID
	}
	r.diag.WithFields(fields).WithError(err).Error("audit write failed")
}

func (r *Recorder) write(ctx context.Context, entry *Entry) error {
	if r.sink == nil {
		return fmt.Errorf("no audit sink configured")
	}
	return async.Run(ctx, r.timeout, "audit sink", func(ctx context.Context) error {
		return r.sink.Write(ctx, entry)
	})
}

// NewDiagnosticLogger builds the JSON logrus logger that receives audit
// write failures and unexpected errors. An empty path logs to stderr. The
// returned closer releases the file, if any.
func NewDiagnosticLogger(path string, level string) (*logrus.Logger, io.Closer, error) {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})

	lvl := logrus.InfoLevel
	if level != "" {
		parsed, err := logrus.ParseLevel(level)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid diagnostic log level: %w", err)
		}
		lvl = parsed
	}
	log.SetLevel(lvl)

	if path == "" {
		log.SetOutput(os.Stderr)
		return log, io.NopCloser(nil), nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open diagnostic log: %w", err)
	}
	log.SetOutput(f)
	return log, f, nil
}
