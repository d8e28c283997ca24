package main

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/estatebook/estatebook/jobs"
)

func newJobsCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and trigger background jobs",
	}

	trigger := &cobra.Command{
		Use:       "trigger <task>",
		Short:     "Enqueue a scheduled task now",
		Long:      "Enqueue one of the scheduled tasks with its default payload. The worker picks it up like a cron run.",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: jobs.TaskNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := e.redisOpts()
			if err != nil {
				return err
			}
			client := jobs.NewClient(opts)
			defer func() { _ = client.Close() }()
			info, err := client.Trigger(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("trigger %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s as %s on queue %s\n", info.Type, info.ID, info.Queue)
			return nil
		},
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Print queue depth as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := e.redisOpts()
			if err != nil {
				return err
			}
			inspector := asynq.NewInspector(opts)
			defer func() { _ = inspector.Close() }()
			st, err := jobs.Stats(inspector, jobs.QueueDefault)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		},
	}

	cmd.AddCommand(trigger, stats)
	return cmd
}
