package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"catbot/pkg/automation"
	"catbot/pkg/ui"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one posting cycle and exit",
	Long: `Run one cycle: check the daily quota, post waiting user content or fetch a
new candidate from the source accounts, caption it, post it and clean up.

Exit status is 0 when the cycle completes, including when there was nothing
to post or a transient failure was skipped. Configuration and authentication
errors exit with status 1.`,
	Example: `  # Simulate a cycle
  catbot run

  # Publish for real
  catbot run --testing=false

  # From cron, every six hours
  0 */6 * * * cd /srv/catbot && catbot run --testing=false --json >> cron.log`,
	Args: cobra.NoArgs,
	RunE: runCycle,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runCycle(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := setupLogger(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner, err := automation.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer runner.Close()

	rep, err := runner.Run(ctx)
	if rep != nil {
		printReport(rep)
	}
	return err
}

func printReport(rep *automation.Report) {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(rep)
		return
	}
	ui.PrintReport(rep)
}
