package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	configPath  string
	jsonOutput  bool
	application *app
)

var rootCmd = &cobra.Command{
	Use:   "opsctl",
	Short: "Operations cascade worker and executive analytics",
	Long: `opsctl runs the event cascade worker and the scheduled jobs, dispatches
events by hand and prints the executive views: health, KPIs, goals,
correlations and alerts.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), configPath)
		if err != nil {
			return err
		}
		application = a
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if application != nil {
			application.Close()
		}
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "settings file (default $OPS_CONFIG)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print JSON instead of tables")
	rootCmd.AddCommand(
		workerCmd(),
		dispatchCmd(),
		healthCmd(),
		kpiCmd(),
		goalsCmd(),
		correlateCmd(),
		alertsCmd(),
		jobCmd(),
	)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
