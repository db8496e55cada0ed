package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/platinummonkey/tenantguard/pkg/apperrors"
	"github.com/platinummonkey/tenantguard/pkg/archive"
	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/catalog"
	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/orgs"
	"github.com/platinummonkey/tenantguard/pkg/rbac"
	"github.com/platinummonkey/tenantguard/pkg/store"
)

// Archiver is the object store audit exports are uploaded to
type Archiver interface {
	archive.Uploader
	Key(parts ...string) string
}

// Env is what subcommands run against
type Env struct {
	Out     io.Writer
	Logger  *observability.Logger
	DB      *store.DB
	Catalog *catalog.Catalog
	// Archive is nil when no bucket is configured
	Archive Archiver
	// Audit records operator changes. Nil writes to the audit_log table
	// with failures logged to stderr.
	Audit *audit.Recorder
	Now   func() time.Time
}

func (e *Env) members() *orgs.SQLService {
	return orgs.NewSQLService(e.DB.DB, rbac.NewResolver(e.Catalog))
}

func (e *Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}

func (e *Env) recorder() *audit.Recorder {
	if e.Audit != nil {
		return e.Audit
	}
	var sink audit.Sink
	if e.DB != nil {
		if db, err := audit.NewDBSink(e.DB.DB); err == nil {
			sink = db
		}
	}
	e.Audit = audit.NewRecorder(sink, nil)
	return e.Audit
}

// operatorAction describes one state change made from the command line
type operatorAction struct {
	Action         string
	Resource       string
	ResourceID     string
	OrganizationID *int64
	Details        map[string]interface{}
}

// record writes the audit entry for a command. Operator entries carry no
// actor id; err decides the result.
func (e *Env) record(ctx context.Context, a operatorAction, err error) {
	details := map[string]interface{}{"actor": "operator"}
	for k, v := range a.Details {
		details[k] = v
	}
	entry := audit.Entry{
		OrganizationID: a.OrganizationID,
		Action:         a.Action,
		Resource:       a.Resource,
		ResourceID:     a.ResourceID,
		Details:        details,
		Result:         audit.ResultSuccess,
		CreatedAt:      e.now(),
	}
	if err != nil {
		entry.Result = audit.ResultFailure
		entry.Reason = apperrors.ReasonOf(err)
		if apperrors.KindOf(err) == apperrors.KindUnexpected {
			entry.Reason = err.Error()
		}
	}
	e.recorder().Record(ctx, entry)
}

func (e *Env) printf(format string, args ...interface{}) {
	fmt.Fprintf(e.Out, format+"\n", args...)
}

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Run         func(ctx context.Context, env *Env, args []string) error
	Subcommands map[string]*Command
	Flags       *flag.FlagSet
}

// NewRootCommand creates the root command
func NewRootCommand() *Command {
	root := &Command{
		Name:        "tenantguard-admin",
		Description: "tenantguard operator tooling",
		Subcommands: make(map[string]*Command),
		Flags:       flag.NewFlagSet("tenantguard-admin", flag.ContinueOnError),
	}

	for _, cmd := range []*Command{
		newMigrateCommand(),
		newCreateOrgCommand(),
		newCreateCompanyCommand(),
		newSetSeatLimitCommand(),
		newPlatformRoleCommand(),
		newSweepCommand(),
		newExportAuditCommand(),
		newScheduleCommand(),
	} {
		root.Subcommands[cmd.Name] = cmd
	}

	return root
}

// Execute runs the subcommand named by args[0]
func (c *Command) Execute(ctx context.Context, env *Env, args []string) error {
	if len(args) == 0 {
		return c.usage(env.Out)
	}

	if strings.EqualFold(args[0], "-h") || strings.EqualFold(args[0], "--help") {
		return c.usage(env.Out)
	}

	if subcmd, ok := c.Subcommands[args[0]]; ok {
		return subcmd.Run(ctx, env, args[1:])
	}

	return fmt.Errorf("unknown command: %s", args[0])
}

// usage prints the command usage
func (c *Command) usage(w io.Writer) error {
	fmt.Fprintf(w, "Usage: %s <command> [args]\n\n", c.Name)
	fmt.Fprintf(w, "Commands:\n")
	names := make([]string, 0, len(c.Subcommands))
	for name := range c.Subcommands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-22s %s\n", name, c.Subcommands[name].Description)
	}
	return nil
}

// parse reads flags for cmd, sending flag errors to the env output
func parse(cmd *Command, env *Env, args []string) error {
	cmd.Flags.SetOutput(env.Out)
	return cmd.Flags.Parse(args)
}
