package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/estatebook/estatebook/internal/platform/migrate"
)

func newMigrateCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the database schema",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			runner, err := e.migrator()
			if err != nil {
				return err
			}
			defer func() { _ = runner.Close() }()
			return runner.Up()
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if steps <= 0 {
				return fmt.Errorf("--steps must be positive, got %d", steps)
			}
			runner, err := e.migrator()
			if err != nil {
				return err
			}
			defer func() { _ = runner.Close() }()
			return runner.Down(steps)
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			runner, err := e.migrator()
			if err != nil {
				return err
			}
			defer func() { _ = runner.Close() }()
			v, dirty, err := runner.Version()
			if err != nil {
				return err
			}
			state := "clean"
			if dirty {
				state = "dirty"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d (%s)\n", v, state)
			return nil
		},
	}

	cmd.AddCommand(up, down, version)
	return cmd
}

func (e *env) migrator() (*migrate.Runner, error) {
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	return migrate.New(cfg.PGDSN, e.logger)
}
