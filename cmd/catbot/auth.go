package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"catbot/pkg/auth"
	"catbot/pkg/config"
	"catbot/pkg/graph"
	"catbot/pkg/logger"
	"catbot/pkg/ui"
)

var skipVerify bool

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage stored Instagram credentials",
	Long: `Manage the publishing account's credentials.

Credentials are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (read only)

Never share your credentials or config files!`,
}

// loginCmd represents the auth login command
var loginCmd = &cobra.Command{
	Use:   "login [username]",
	Short: "Store publishing credentials securely",
	Long: `Store the publishing account's credentials in the system keychain or
an encrypted file.

You will be prompted for:
  - Account ID
  - Long-lived access token
  - Session ID and CSRF token for reading source accounts (optional)

The token is checked against the Graph API before it is saved unless
--skip-verify is given.`,
	Example: `  # Interactive login
  catbot auth login

  # Login with username
  catbot auth login daily.cats`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

// logoutCmd represents the auth logout command
var logoutCmd = &cobra.Command{
	Use:   "logout [username]",
	Short: "Remove stored credentials",
	Long: `Remove stored credentials.

With no username the only stored account is removed after confirmation.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogout,
}

// listCmd represents the auth list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored accounts",
	Long:  `List all stored accounts with secrets masked.`,
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(listCmd)

	loginCmd.Flags().BoolVar(&skipVerify, "skip-verify", false, "store the token without checking it")
}

func runLogin(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	reader := bufio.NewReader(os.Stdin)
	auth.ShowQuickGuide()

	var username string
	if len(args) > 0 {
		username = args[0]
	} else {
		username = prompt(reader, "Instagram username: ")
		if username == "help" {
			auth.ShowTokenGuide()
			username = prompt(reader, "Instagram username: ")
		}
	}
	if username == "" {
		return errors.New("username is required")
	}

	if existing, _ := manager.Retrieve(username); existing != nil {
		answer := prompt(reader, fmt.Sprintf("Account '%s' already exists. Update credentials? (y/N): ", username))
		if !strings.HasPrefix(strings.ToLower(answer), "y") {
			return nil
		}
	}

	account := &auth.Account{
		Username:     username,
		AccountID:    prompt(reader, "Account ID: "),
		LastModified: time.Now(),
	}

	fmt.Println("\nSecrets are hidden as you type.")
	fmt.Print("Access token: ")
	if account.AccessToken, err = readPassword(reader); err != nil {
		return fmt.Errorf("failed to read access token: %w", err)
	}
	fmt.Print("\nsessionid cookie (optional): ")
	if account.SessionID, err = readPassword(reader); err != nil {
		return fmt.Errorf("failed to read session ID: %w", err)
	}
	if account.SessionID != "" {
		fmt.Print("\ncsrftoken cookie: ")
		if account.CSRFToken, err = readPassword(reader); err != nil {
			return fmt.Errorf("failed to read CSRF token: %w", err)
		}
	}
	fmt.Println()

	if err := account.Validate(); err != nil {
		return err
	}

	if !skipVerify {
		if err := verifyAccount(cmd.Context(), account); err != nil {
			ui.PrintError("Token check failed", err.Error())
			return err
		}
	}

	if err := manager.Store(account); err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}

	ui.PrintSuccess("Account saved: " + username)
	fmt.Println("\nSet INSTAGRAM_USERNAME=" + username + " (or instagram.username in the config)")
	fmt.Println("when more than one account is stored.")
	fmt.Println("\nTry a simulated cycle:")
	fmt.Println("  $ catbot run")
	fmt.Println("Then go live:")
	fmt.Println("  $ catbot run --testing=false")
	return nil
}

// verifyAccount asks the Graph API who owns the token and checks it
// matches the account ID given.
func verifyAccount(ctx context.Context, account *auth.Account) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	defaults := config.DefaultConfig().Instagram
	defaults.AccountID = account.AccountID
	defaults.AccessToken = account.AccessToken

	me, err := graph.NewClient(defaults, logger.NewNopLogger()).ValidateCredentials(ctx)
	if err != nil {
		return err
	}
	if me.UserID != "" && me.UserID != account.AccountID && me.ID != account.AccountID {
		return fmt.Errorf("token belongs to account %s, not %s", me.UserID, account.AccountID)
	}
	if me.Username != "" {
		ui.PrintInfo("Token verified for", me.Username)
	}
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	var username string
	if len(args) > 0 {
		username = args[0]
	} else {
		accounts, err := manager.List()
		if err != nil {
			return fmt.Errorf("failed to list accounts: %w", err)
		}
		switch len(accounts) {
		case 0:
			ui.PrintWarning("No stored accounts found")
			return nil
		case 1:
			username = accounts[0].Username
			answer := prompt(bufio.NewReader(os.Stdin), fmt.Sprintf("Remove account '%s'? (y/N): ", username))
			if !strings.HasPrefix(strings.ToLower(answer), "y") {
				return nil
			}
		default:
			return errors.New("several accounts are stored; name the one to remove")
		}
	}

	if err := manager.Delete(username); err != nil {
		return fmt.Errorf("failed to remove account: %w", err)
	}
	ui.PrintSuccess("Account removed: " + username)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	accounts, err := manager.List()
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}

	if len(accounts) == 0 {
		ui.PrintInfo("No stored accounts", "Use 'catbot auth login' to add an account")
		return nil
	}

	ui.PrintHighlight("Stored Accounts")
	fmt.Println()
	for i, account := range accounts {
		sanitized := auth.SanitizeAccount(account)
		fmt.Printf("%d. Username: %s\n", i+1, sanitized.Username)
		fmt.Printf("   Account ID: %s\n", sanitized.AccountID)
		fmt.Printf("   Access Token: %s\n", sanitized.AccessToken)
		if sanitized.SessionID != "" {
			fmt.Printf("   Session ID: %s\n", sanitized.SessionID)
		}
		if !sanitized.LastModified.IsZero() {
			fmt.Printf("   Last Modified: %s\n", sanitized.LastModified.Format("2006-01-02 15:04:05"))
		}
		fmt.Println()
	}
	return nil
}

func prompt(reader *bufio.Reader, label string) string {
	fmt.Print(label)
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

// readPassword reads a line without echo, or a plain line when stdin is not a terminal
func readPassword(reader *bufio.Reader) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		input, err := reader.ReadString('\n')
		if err != nil && input == "" {
			return "", err
		}
		return strings.TrimSpace(input), nil
	}
	b, err := term.ReadPassword(fd)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
