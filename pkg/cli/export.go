package cli

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/platinummonkey/tenantguard/pkg/archive"
	"github.com/platinummonkey/tenantguard/pkg/audit"
)

func newExportAuditCommand() *Command {
	cmd := &Command{
		Name:        "export-audit",
		Description: "Export audit entries as JSON lines to stdout or the archive bucket",
		Flags:       flag.NewFlagSet("export-audit", flag.ContinueOnError),
	}
	orgID := cmd.Flags.Int64("org", 0, "Organization ID (0 for all)")
	action := cmd.Flags.String("action", "", "Only this action")
	result := cmd.Flags.String("result", "", "Only success or failure")
	since := cmd.Flags.String("since", "", "Start time, RFC3339 or a duration before now (e.g. 24h)")
	until := cmd.Flags.String("until", "", "End time, RFC3339 or a duration before now")
	upload := cmd.Flags.Bool("upload", false, "Upload to the archive bucket instead of writing to stdout")

	cmd.Run = func(ctx context.Context, env *Env, args []string) error {
		if err := parse(cmd, env, args); err != nil {
			return err
		}

		filter := audit.Filter{Action: *action, Result: audit.Result(*result)}
		switch filter.Result {
		case "", audit.ResultSuccess, audit.ResultFailure:
		default:
			return fmt.Errorf("--result must be success or failure")
		}
		if *orgID > 0 {
			filter.OrganizationID = orgID
		}
		var err error
		if filter.StartTime, err = parseTimeFlag(*since, env.now()); err != nil {
			return fmt.Errorf("--since: %w", err)
		}
		if filter.EndTime, err = parseTimeFlag(*until, env.now()); err != nil {
			return fmt.Errorf("--until: %w", err)
		}

		if !*upload {
			_, err := exportAudit(ctx, env, filter, env.Out)
			return err
		}
		key, n, err := uploadAudit(ctx, env, filter)
		if err != nil {
			return err
		}
		env.printf("exported %d audit entries to %s", n, key)
		return nil
	}
	return cmd
}

func exportAudit(ctx context.Context, env *Env, filter audit.Filter, w io.Writer) (int, error) {
	sink, err := audit.NewDBSink(env.DB.DB)
	if err != nil {
		return 0, err
	}
	return audit.Export(ctx, sink, filter, w)
}

// uploadAudit buffers an export and stores it under the audit key for now
func uploadAudit(ctx context.Context, env *Env, filter audit.Filter) (string, int, error) {
	if env.Archive == nil {
		return "", 0, fmt.Errorf("no archive bucket configured (set TENANTGUARD_ARCHIVE_S3_BUCKET)")
	}
	var buf bytes.Buffer
	n, err := exportAudit(ctx, env, filter, &buf)
	if err != nil {
		return "", 0, err
	}
	key := env.Archive.Key(archive.AuditKey(filter.OrganizationID, env.now()))
	if err := env.Archive.PutObject(ctx, key, buf.Bytes(), "application/x-ndjson"); err != nil {
		return "", 0, err
	}
	return key, n, nil
}

// parseTimeFlag accepts RFC3339 or a duration measured back from now
func parseTimeFlag(v string, now time.Time) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return nil, fmt.Errorf("%q is neither RFC3339 nor a duration", v)
	}
	t := now.Add(-d)
	return &t, nil
}
