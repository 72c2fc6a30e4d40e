package main

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"bitbucket.org/mmdatafocus/ops_backend/alerts"
	"bitbucket.org/mmdatafocus/ops_backend/models"
)

func alertsCmd() *cobra.Command {
	al := &cobra.Command{Use: "alerts", Short: "Executive alerts"}
	al.AddCommand(alertsDetectCmd(), alertsListCmd(), alertsAckCmd(), alertsResolveCmd(), alertsSnoozeCmd())
	return al
}

func alertsDetectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detect",
		Short: "Run every detector once",
		RunE: func(cmd *cobra.Command, args []string) error {
			detectors := alerts.DefaultDetectors(application.settings.Thresholds)
			sum := application.monitor.RunDetectors(cmd.Context(), detectors)
			fmt.Printf("proposed=%d created=%d deduplicated=%d\n", sum.Proposed, sum.Created, sum.Deduplicated)
			return sum.Err()
		},
	}
}

func alertsListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List alerts newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := application.monitor.List(cmd.Context(), models.AlertStatus(status))
			if err != nil {
				return err
			}
			return renderAlerts(items)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "active, acknowledged, resolved or snoozed")
	return cmd
}

func alertsAckCmd() *cobra.Command {
	var by string
	cmd := &cobra.Command{
		Use:   "ack <alert-id>",
		Short: "Acknowledge an active alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if by == "" {
				by = os.Getenv("USER")
			}
			a, err := application.monitor.Acknowledge(cmd.Context(), args[0], by)
			if err != nil {
				return err
			}
			return renderAlerts([]models.ExecutiveAlert{*a})
		},
	}
	cmd.Flags().StringVar(&by, "by", "", "who acknowledges (default $USER)")
	return cmd
}

func alertsResolveCmd() *cobra.Command {
	var resolution string
	cmd := &cobra.Command{
		Use:   "resolve <alert-id>",
		Short: "Resolve an active alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := application.monitor.Resolve(cmd.Context(), args[0], resolution)
			if err != nil {
				return err
			}
			return renderAlerts([]models.ExecutiveAlert{*a})
		},
	}
	cmd.Flags().StringVar(&resolution, "resolution", "", "how it was resolved")
	return cmd
}

func alertsSnoozeCmd() *cobra.Command {
	var d time.Duration
	cmd := &cobra.Command{
		Use:   "snooze <alert-id>",
		Short: "Snooze an active alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := application.monitor.Snooze(cmd.Context(), args[0], time.Now().UTC().Add(d))
			if err != nil {
				return err
			}
			return renderAlerts([]models.ExecutiveAlert{*a})
		},
	}
	cmd.Flags().DurationVar(&d, "for", 4*time.Hour, "snooze duration")
	return cmd
}

func renderAlerts(items []models.ExecutiveAlert) error {
	rows := make([]table.Row, 0, len(items))
	for _, a := range items {
		rows = append(rows, table.Row{a.Id, a.Severity, a.Status, a.Title, a.Source, a.CreatedAt.Format(time.RFC3339), stamp(a.SnoozedUntil)})
	}
	return render(items, table.Row{"ID", "Severity", "Status", "Title", "Source", "Created", "Snoozed until"}, rows)
}
