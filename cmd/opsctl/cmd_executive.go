package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"bitbucket.org/mmdatafocus/ops_backend/executive"
	"bitbucket.org/mmdatafocus/ops_backend/models"
)

func healthCmd() *cobra.Command {
	var latest bool
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Compute and store a company health snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				score *models.HealthScore
				err   error
			)
			if latest {
				score, err = application.health.Latest(cmd.Context())
			} else {
				score, err = application.health.Snapshot(cmd.Context())
			}
			if err != nil {
				return err
			}
			prev := ""
			if score.PreviousScore != nil {
				prev = num(*score.PreviousScore)
			}
			b := score.Breakdown
			return render(score, table.Row{"Component", "Score"}, []table.Row{
				{"financial", num(b.Financial)},
				{"operational", num(b.Operational)},
				{"quality", num(b.Quality)},
				{"hr", num(b.HR)},
				{"customer", num(b.Customer)},
				{"overall", num(score.Overall)},
				{"previous", prev},
				{"trend", score.Trend},
			})
		},
	}
	cmd.Flags().BoolVar(&latest, "latest", false, "show the last stored snapshot instead of computing one")
	return cmd
}

func kpiCmd() *cobra.Command {
	var (
		period string
		at     string
	)
	cmd := &cobra.Command{
		Use:   "kpi",
		Short: "Compute KPIs for a period with growth against the previous one",
		RunE: func(cmd *cobra.Command, args []string) error {
			when := time.Now().UTC()
			if at != "" {
				t, err := time.Parse("2006-01-02", at)
				if err != nil {
					return fmt.Errorf("--at: %w", err)
				}
				when = t
			}
			kpi, err := application.kpi.Compute(cmd.Context(), models.Period(period), when)
			if err != nil {
				return err
			}
			current := executive.KPIFields(kpi.Values)
			previous := executive.KPIFields(kpi.Previous)
			names := make([]string, 0, len(current))
			for name := range current {
				names = append(names, name)
			}
			sort.Strings(names)
			rows := make([]table.Row, 0, len(names))
			for _, name := range names {
				rows = append(rows, table.Row{name, num(current[name]), num(previous[name]), num(kpi.GrowthRates[name]) + "%"})
			}
			return render(kpi, table.Row{"KPI", kpi.Id, "Previous", "Growth"}, rows)
		},
	}
	cmd.Flags().StringVarP(&period, "period", "p", string(models.PeriodMonthly), "daily, weekly, monthly, quarterly or yearly")
	cmd.Flags().StringVar(&at, "at", "", "a date inside the period (YYYY-MM-DD, default today)")
	return cmd
}

func goalsCmd() *cobra.Command {
	goals := &cobra.Command{Use: "goals", Short: "Strategic goal status"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List goals with their derived status",
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := application.goals.List(cmd.Context())
			if err != nil {
				return err
			}
			return renderGoals(items)
		},
	}
	refresh := &cobra.Command{
		Use:   "refresh",
		Short: "Recompute status and progress of every goal",
		RunE: func(cmd *cobra.Command, args []string) error {
			changed, err := application.goals.Refresh(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("%d goals changed\n", changed)
			return nil
		},
	}
	var current float64
	progress := &cobra.Command{
		Use:   "progress <goal-id>",
		Short: "Record a goal's current value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := application.goals.UpdateProgress(cmd.Context(), args[0], current)
			if err != nil {
				return err
			}
			return renderGoals([]models.StrategicGoal{*g})
		},
	}
	progress.Flags().Float64Var(&current, "value", 0, "current value")
	_ = progress.MarkFlagRequired("value")

	goals.AddCommand(list, refresh, progress)
	return goals
}

func renderGoals(items []models.StrategicGoal) error {
	rows := make([]table.Row, 0, len(items))
	for _, g := range items {
		rows = append(rows, table.Row{g.Id, g.Title, num(g.CurrentValue) + "/" + num(g.TargetValue), num(g.Progress) + "%", g.Status, g.DueDate.Format("2006-01-02")})
	}
	return render(items, table.Row{"ID", "Title", "Value", "Progress", "Status", "Due"}, rows)
}

func correlateCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "correlate",
		Short: "Run the cross-domain correlation analyses",
		RunE: func(cmd *cobra.Command, args []string) error {
			from, to := application.analytics.Window(days)
			results, err := application.analytics.All(cmd.Context(), from, to)
			if err != nil {
				return err
			}
			rows := make([]table.Row, 0, len(results))
			for _, r := range results {
				match := "no"
				if r.MatchesExpectation() {
					match = "yes"
				}
				rows = append(rows, table.Row{r.Name, num(r.Coefficient), r.Strength, r.Direction, match, r.SampleSize, len(r.Outliers)})
			}
			return render(results, table.Row{"Analysis", "r", "Strength", "Direction", "Expected", "Samples", "Outliers"}, rows)
		},
	}
	cmd.Flags().IntVar(&days, "days", 90, "trailing window in days")
	return cmd
}
