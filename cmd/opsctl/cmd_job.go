package main

import (
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func jobCmd() *cobra.Command {
	job := &cobra.Command{Use: "job", Short: "Scheduled jobs"}
	job.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List registered jobs",
			RunE: func(cmd *cobra.Command, args []string) error {
				names := application.scheduler.Names()
				sort.Strings(names)
				rows := make([]table.Row, 0, len(names))
				for _, n := range names {
					rows = append(rows, table.Row{n})
				}
				return render(names, table.Row{"Job"}, rows)
			},
		},
		&cobra.Command{
			Use:   "run <job>",
			Short: "Run one job now under its lock",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return application.scheduler.RunNow(cmd.Context(), args[0])
			},
		},
	)
	return job
}
