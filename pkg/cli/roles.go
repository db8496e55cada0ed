package cli

import (
	"context"
	"flag"
	"fmt"

	"github.com/platinummonkey/tenantguard/pkg/catalog"
	"github.com/platinummonkey/tenantguard/pkg/rbac"
)

// operator is the assigner for grants made from the command line. It holds
// the catalog's highest role as a platform role and has no principal row.
func operator(cat *catalog.Catalog) *rbac.Principal {
	return &rbac.Principal{Email: "operator", PlatformRoles: []catalog.Role{cat.Highest()}}
}

func newPlatformRoleCommand() *Command {
	cmd := &Command{
		Name:        "platform-role",
		Description: "Grant or revoke a platform role by email",
		Flags:       flag.NewFlagSet("platform-role", flag.ContinueOnError),
	}
	email := cmd.Flags.String("email", "", "Principal email (must have signed in once)")
	role := cmd.Flags.String("role", "", "Role key")
	revoke := cmd.Flags.Bool("revoke", false, "Revoke instead of grant")

	cmd.Run = func(ctx context.Context, env *Env, args []string) (err error) {
		if err := parse(cmd, env, args); err != nil {
			return err
		}
		act := operatorAction{
			Action:     "grant_platform_role",
			Resource:   "platform_roles",
			ResourceID: *role,
			Details:    map[string]interface{}{"email": *email},
		}
		if *revoke {
			act.Action = "revoke_platform_role"
		}
		defer func() { env.record(ctx, act, err) }()

		if *email == "" || *role == "" {
			return fmt.Errorf("--email and --role are required")
		}

		members := env.members()
		p, err := members.FindPrincipalByEmail(ctx, *email)
		if err != nil {
			return err
		}
		act.Details["principal_id"] = p.ID

		if *revoke {
			removed, err := members.RemovePlatformRole(ctx, operator(env.Catalog), p.ID, *role)
			if err != nil {
				return err
			}
			act.Details["changed"] = removed
			if !removed {
				env.printf("%s does not hold %s", p.Email, *role)
				return nil
			}
			env.printf("revoked %s from %s", *role, p.Email)
			return nil
		}

		added, err := members.AddPlatformRole(ctx, operator(env.Catalog), p.ID, *role)
		if err != nil {
			return err
		}
		act.Details["changed"] = added
		if !added {
			env.printf("%s already holds %s", p.Email, *role)
			return nil
		}
		env.printf("granted %s to %s", *role, p.Email)
		return nil
	}
	return cmd
}

func newSweepCommand() *Command {
	cmd := &Command{
		Name:        "sweep-expired-roles",
		Description: "Retire role grants whose expiry has passed",
		Flags:       flag.NewFlagSet("sweep-expired-roles", flag.ContinueOnError),
	}
	cmd.Run = func(ctx context.Context, env *Env, args []string) error {
		if err := parse(cmd, env, args); err != nil {
			return err
		}
		n, err := sweep(ctx, env)
		if err != nil {
			return err
		}
		env.printf("retired %d expired role grants", n)
		return nil
	}
	return cmd
}

// sweep retires expired grants. Runs that retire nothing are not audited.
func sweep(ctx context.Context, env *Env) (n int64, err error) {
	n, err = env.members().RetireExpiredRoles(ctx)
	if err != nil || n > 0 {
		env.record(ctx, operatorAction{
			Action:   "sweep_expired_roles",
			Resource: "role_assignments",
			Details:  map[string]interface{}{"retired": n},
		}, err)
	}
	return n, err
}
