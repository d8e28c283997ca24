package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/estatebook/estatebook/internal/accounting"
	"github.com/estatebook/estatebook/jobs"
	"github.com/estatebook/estatebook/internal/shared"
	"github.com/estatebook/estatebook/internal/users"
)

func newSeedCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load reference data",
	}

	accounts := &cobra.Command{
		Use:   "accounts",
		Short: "Create the default chart of accounts and posting mappings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, closeAll, err := e.services(cmd.Context())
			if err != nil {
				return err
			}
			defer closeAll()
			res, err := svc.Accounting.SeedChart(cmd.Context(), accounting.DefaultChart())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "accounts: %d created, %d existing; %d mappings\n", res.Created, res.Existing, res.Mappings)
			return nil
		},
	}

	rbacCmd := &cobra.Command{
		Use:   "rbac",
		Short: "Create the permission catalogue and built-in roles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, closeAll, err := e.services(cmd.Context())
			if err != nil {
				return err
			}
			defer closeAll()
			res, err := svc.RBAC.SeedDefaults(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rbac: %d permissions, %d roles\n", res.Permissions, res.Roles)
			return nil
		},
	}

	var in users.UserInput
	admin := &cobra.Command{
		Use:   "admin",
		Short: "Create an administrator account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if in.Email == "" || len(in.Password) < 8 {
				return fmt.Errorf("--email and a --password of at least 8 characters are required")
			}
			if in.Name == "" {
				in.Name = "Administrator"
			}
			svc, closeAll, err := e.services(cmd.Context())
			if err != nil {
				return err
			}
			defer closeAll()
			u, err := svc.Users.Create(cmd.Context(), jobs.SystemActor, in)
			if err != nil {
				if fe, ok := users.AsFieldErrors(err); ok {
					return fmt.Errorf("invalid admin: %v", fe)
				}
				return fmt.Errorf("create admin: %s", shared.UserSafeMessage(err))
			}
			if err := svc.RBAC.AssignRoleByName(cmd.Context(), u.ID, shared.RoleAdmin); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "admin %s created with id %d\n", u.Email, u.ID)
			return nil
		},
	}
	admin.Flags().StringVar(&in.Email, "email", "", "login email")
	admin.Flags().StringVar(&in.Name, "name", "", "display name")
	admin.Flags().StringVar(&in.Password, "password", "", "initial password")

	cmd.AddCommand(accounts, rbacCmd, admin)
	return cmd
}
