package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"catbot/pkg/config"
	"catbot/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage catbot configuration.

Configuration is loaded from, highest priority first:
  - Command line flags
  - Environment variables (and .env files)
  - Configuration file
  - Default values`,
}

// initCmd represents the config init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with all defaults",
	Long: `Write a configuration file holding every option at its default value.

The file is created as 'catbot.yaml' in the current directory unless a
different path is given with --config. Secrets are better kept in the
environment or stored with 'catbot auth login'.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

// showCmd represents the config show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration with secrets masked",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

// validateCmd represents the config validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			ui.PrintError("Configuration validation failed")
			return err
		}
		ui.PrintSuccess("Configuration is valid")
		ui.PrintInfo("Mode", modeName(cfg))
		ui.PrintInfo("Source accounts", fmt.Sprint(cfg.Source.Accounts))
		ui.PrintInfo("Data directory", cfg.Storage.DataDir)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = "catbot.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		ui.PrintError("Configuration file already exists", path)
		return fmt.Errorf("refusing to overwrite %s", path)
	}

	if err := config.DefaultConfig().Save(path); err != nil {
		return err
	}

	ui.PrintSuccess("Configuration written to " + path)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Set source accounts and thresholds in the file")
	fmt.Println("2. Store publishing credentials with 'catbot auth login'")
	fmt.Println("3. Try a simulated cycle with 'catbot run'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	display := *cfg
	display.Instagram.AccessToken = mask(display.Instagram.AccessToken)
	display.Source.SessionID = mask(display.Source.SessionID)
	display.Source.CSRFToken = mask(display.Source.CSRFToken)
	display.Caption.APIKey = mask(display.Caption.APIKey)
	display.Staging.AccessKeyID = mask(display.Staging.AccessKeyID)
	display.Staging.SecretAccessKey = mask(display.Staging.SecretAccessKey)

	data, err := yaml.Marshal(&display)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	ui.PrintHighlight("Current Configuration")
	fmt.Println()
	fmt.Print(string(data))
	return nil
}

func mask(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 8:
		return "***"
	default:
		return s[:4] + "..." + s[len(s)-4:]
	}
}

func modeName(cfg *config.Config) string {
	if cfg.Posting.TestingMode {
		return "testing"
	}
	return "production"
}
