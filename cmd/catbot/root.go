package main

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"catbot/pkg/auth"
	"catbot/pkg/config"
	"catbot/pkg/logger"
	"catbot/pkg/ui"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile  string
	logLevel    string
	dataDir     string
	testingMode bool
	noColor     bool
	jsonOutput  bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "catbot",
	Short: "Reposts popular cat content to an Instagram account",
	Long: `catbot finds a popular, not yet posted cat photo or reel on a set of source
accounts, writes a caption for it and publishes it to your Instagram account.

Each cycle posts at most one item. Run it from cron with 'catbot run', or
start the dashboard with 'catbot serve' and trigger cycles over HTTP.

Testing mode is on by default: posts are simulated and recorded but nothing
is published. Set TESTING_MODE=false or pass --testing=false to go live.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		ui.SetNoColor(noColor || jsonOutput)
	},
}

// Execute runs the root command. Any returned error exits with status 1.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		ui.PrintError("Error", err.Error())
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./catbot.yaml or ~/.config/catbot/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "directory for downloads, ledger and history")
	rootCmd.PersistentFlags().BoolVar(&testingMode, "testing", true, "simulate posts instead of publishing")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")

	rootCmd.SetVersionTemplate(`catbot {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig loads configuration with command line overrides and fills
// missing publishing credentials from the credential store.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := make(map[string]interface{})
	if cmd.Flags().Changed("testing") {
		flags["testing"] = testingMode
	}
	if dataDir != "" {
		flags["data-dir"] = dataDir
	}
	if logLevel != "" {
		flags["log-level"] = logLevel
	}
	if cmd.Flags().Lookup("port") != nil && cmd.Flags().Changed("port") {
		port, _ := cmd.Flags().GetInt("port")
		flags["port"] = port
	}

	return config.LoadWith(configFile, flags, applyStoredCredentials)
}

// credentialSource fills empty credential settings from a store
type credentialSource interface {
	Apply(cfg *config.Config) (*auth.Account, error)
}

func applyStoredCredentials(cfg *config.Config) {
	if cfg.Instagram.AccessToken != "" && cfg.Instagram.AccountID != "" {
		return
	}
	log := logger.GetLogger().WithField("component", "credentials")
	manager, err := auth.NewManager()
	if err != nil {
		log.WithError(err).Warn("credential store unavailable, using config and environment only")
		return
	}
	fillCredentials(cfg, manager, log)
}

// fillCredentials applies stored credentials. A missing account is normal;
// any other failure (locked keychain, wrong passphrase) is logged.
func fillCredentials(cfg *config.Config, source credentialSource, log logger.Logger) {
	account, err := source.Apply(cfg)
	switch {
	case errors.Is(err, auth.ErrCredentialsNotFound):
		log.Debug("no stored credentials")
	case err != nil:
		log.WithError(err).Warn("could not read stored credentials")
	default:
		log.WithField("username", account.Username).Debug("using stored credentials")
	}
}

// setupLogger initializes the global logger from cfg
func setupLogger(cfg *config.Config) (logger.Logger, error) {
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger.GetLogger(), nil
}
