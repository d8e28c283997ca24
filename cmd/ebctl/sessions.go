package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newSessionsCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Maintain recorded login sessions",
	}
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete session records past their expiry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, closeAll, err := e.services(cmd.Context())
			if err != nil {
				return err
			}
			defer closeAll()
			n, err := svc.Auth.PruneSessions(cmd.Context(), time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d expired sessions\n", n)
			return nil
		},
	}
	cmd.AddCommand(prune)
	return cmd
}
