package cli

import (
	"context"
	"flag"
	"fmt"
	"strconv"

	"github.com/platinummonkey/tenantguard/pkg/store"
)

func newMigrateCommand() *Command {
	return &Command{
		Name:        "migrate",
		Description: "Apply pending schema migrations",
		Flags:       flag.NewFlagSet("migrate", flag.ContinueOnError),
		Run: func(ctx context.Context, env *Env, args []string) error {
			if err := store.Migrate(ctx, env.DB); err != nil {
				return err
			}
			env.printf("migrations applied (%s)", env.DB.Dialect)
			return nil
		},
	}
}

func newCreateOrgCommand() *Command {
	cmd := &Command{
		Name:        "create-org",
		Description: "Create an organization with a seat limit",
		Flags:       flag.NewFlagSet("create-org", flag.ContinueOnError),
	}
	name := cmd.Flags.String("name", "", "Organization name")
	seats := cmd.Flags.Int("seat-limit", 0, "Number of license seats")

	cmd.Run = func(ctx context.Context, env *Env, args []string) (err error) {
		if err := parse(cmd, env, args); err != nil {
			return err
		}
		act := operatorAction{
			Action:   "create_org",
			Resource: "organizations",
			Details:  map[string]interface{}{"name": *name, "seat_limit": *seats},
		}
		defer func() { env.record(ctx, act, err) }()

		if *name == "" {
			return fmt.Errorf("--name is required")
		}
		org, err := env.members().CreateOrganization(ctx, *name, *seats)
		if err != nil {
			return err
		}
		act.ResourceID = strconv.FormatInt(org.ID, 10)
		act.OrganizationID = &org.ID
		env.printf("organization %d created: %s (%d seats)", org.ID, org.Name, org.SeatLimit)
		return nil
	}
	return cmd
}

func newCreateCompanyCommand() *Command {
	cmd := &Command{
		Name:        "create-company",
		Description: "Create a company under an organization",
		Flags:       flag.NewFlagSet("create-company", flag.ContinueOnError),
	}
	orgID := cmd.Flags.Int64("org", 0, "Organization ID")
	name := cmd.Flags.String("name", "", "Company name")

	cmd.Run = func(ctx context.Context, env *Env, args []string) (err error) {
		if err := parse(cmd, env, args); err != nil {
			return err
		}
		act := operatorAction{
			Action:         "create_company",
			Resource:       "companies",
			OrganizationID: orgID,
			Details:        map[string]interface{}{"name": *name},
		}
		defer func() { env.record(ctx, act, err) }()

		if *orgID <= 0 || *name == "" {
			return fmt.Errorf("--org and --name are required")
		}
		company, err := env.members().CreateCompany(ctx, *orgID, *name)
		if err != nil {
			return err
		}
		act.ResourceID = strconv.FormatInt(company.ID, 10)
		env.printf("company %d created in organization %d: %s", company.ID, company.OrganizationID, company.Name)
		return nil
	}
	return cmd
}

func newSetSeatLimitCommand() *Command {
	cmd := &Command{
		Name:        "set-seat-limit",
		Description: "Resize an organization's license pool",
		Flags:       flag.NewFlagSet("set-seat-limit", flag.ContinueOnError),
	}
	orgID := cmd.Flags.Int64("org", 0, "Organization ID")
	limit := cmd.Flags.Int("limit", -1, "New seat limit")

	cmd.Run = func(ctx context.Context, env *Env, args []string) (err error) {
		if err := parse(cmd, env, args); err != nil {
			return err
		}
		act := operatorAction{
			Action:         "set_seat_limit",
			Resource:       "organizations",
			ResourceID:     strconv.FormatInt(*orgID, 10),
			OrganizationID: orgID,
			Details:        map[string]interface{}{"seat_limit": *limit},
		}
		defer func() { env.record(ctx, act, err) }()

		if *orgID <= 0 || *limit < 0 {
			return fmt.Errorf("--org and --limit are required")
		}
		if err := env.members().SetSeatLimit(ctx, *orgID, *limit); err != nil {
			return err
		}
		env.printf("organization %d seat limit set to %d", *orgID, *limit)
		return nil
	}
	return cmd
}
