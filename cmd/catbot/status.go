package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"catbot/pkg/automation"
	"catbot/pkg/ui"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show counters, the last run and recent posts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		log, err := setupLogger(cfg)
		if err != nil {
			return err
		}

		ctx := context.Background()
		runner, err := automation.New(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer runner.Close()

		st := runner.Status(ctx)
		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		}
		ui.PrintStatus(st)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
