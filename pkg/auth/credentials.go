package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"catbot/pkg/config"
)

// Account holds the publishing credentials for one Instagram account and,
// optionally, the browser session used to read source accounts.
type Account struct {
	Username     string    `json:"username"`
	AccountID    string    `json:"account_id"`
	AccessToken  string    `json:"access_token"`
	SessionID    string    `json:"session_id,omitempty"`
	CSRFToken    string    `json:"csrf_token,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// CredentialStore is the interface for storing and retrieving credentials
type CredentialStore interface {
	// Store saves credentials for a given account
	Store(account *Account) error

	// Retrieve gets credentials for a specific username
	Retrieve(username string) (*Account, error)

	// List returns all stored accounts
	List() ([]*Account, error)

	// Delete removes credentials for a specific username
	Delete(username string) error

	// Exists checks if credentials exist for a username
	Exists(username string) bool
}

// Manager handles credential storage with fallback mechanisms
type Manager struct {
	stores []CredentialStore
}

// NewManager creates a credential manager backed by the system keychain
// when available, then an encrypted file, then the environment.
func NewManager() (*Manager, error) {
	var stores []CredentialStore

	if keyringStore, err := NewKeyringStore(); err == nil {
		stores = append(stores, keyringStore)
	}

	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	encryptedStore, err := NewEncryptedFileStore(filepath.Join(configDir, "credentials.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, encryptedStore, NewEnvironmentStore())

	return &Manager{stores: stores}, nil
}

// NewManagerWithStores creates a manager over the given stores, tried in order
func NewManagerWithStores(stores ...CredentialStore) *Manager {
	return &Manager{stores: stores}
}

// Validate checks that an account carries what publishing needs
func (a *Account) Validate() error {
	var errList []error
	if a.Username == "" {
		errList = append(errList, errors.New("username is required"))
	}
	if a.AccountID == "" {
		errList = append(errList, errors.New("account ID is required"))
	}
	if a.AccessToken == "" {
		errList = append(errList, errors.New("access token is required"))
	}
	return errors.Join(errList...)
}

// Store saves credentials using the first store that accepts them
func (m *Manager) Store(account *Account) error {
	if account == nil {
		return ErrInvalidCredentials
	}
	if err := account.Validate(); err != nil {
		return err
	}

	account.LastModified = time.Now()

	var lastErr error
	for _, store := range m.stores {
		err := store.Store(account)
		if err == nil {
			return nil
		}
		lastErr = err
	}

	if lastErr != nil {
		return fmt.Errorf("failed to store credentials: %w", lastErr)
	}
	return errors.New("no available credential stores")
}

// Retrieve gets credentials from the first store that has them
func (m *Manager) Retrieve(username string) (*Account, error) {
	for _, store := range m.stores {
		if account, err := store.Retrieve(username); err == nil && account != nil {
			return account, nil
		}
	}
	return nil, fmt.Errorf("%w for user: %s", ErrCredentialsNotFound, username)
}

// RetrieveDefault returns the environment credentials if set, otherwise the
// most recently stored account.
func (m *Manager) RetrieveDefault() (*Account, error) {
	for _, store := range m.stores {
		if envStore, ok := store.(*EnvironmentStore); ok {
			if account, err := envStore.Retrieve(""); err == nil {
				return account, nil
			}
		}
	}

	accounts, err := m.List()
	if err == nil && len(accounts) > 0 {
		return accounts[0], nil
	}

	return nil, ErrCredentialsNotFound
}

// List returns all stored accounts, most recently modified first
func (m *Manager) List() ([]*Account, error) {
	accountMap := make(map[string]*Account)

	for _, store := range m.stores {
		accounts, err := store.List()
		if err != nil {
			continue
		}
		for _, account := range accounts {
			if existing, ok := accountMap[account.Username]; !ok || account.LastModified.After(existing.LastModified) {
				accountMap[account.Username] = account
			}
		}
	}

	result := make([]*Account, 0, len(accountMap))
	for _, account := range accountMap {
		result = append(result, account)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].LastModified.After(result[j].LastModified)
	})

	return result, nil
}

// Delete removes credentials from all stores
func (m *Manager) Delete(username string) error {
	var deleted bool
	var lastErr error

	for _, store := range m.stores {
		if err := store.Delete(username); err == nil {
			deleted = true
		} else {
			lastErr = err
		}
	}

	if !deleted && lastErr != nil {
		return fmt.Errorf("failed to delete credentials: %w", lastErr)
	}
	if !deleted {
		return fmt.Errorf("%w for user: %s", ErrCredentialsNotFound, username)
	}

	return nil
}

// Apply fills publishing and session settings that cfg leaves empty from
// the stored account. Values already present in cfg win.
func (m *Manager) Apply(cfg *config.Config) (*Account, error) {
	var (
		account *Account
		err     error
	)
	if cfg.Instagram.Username != "" {
		account, err = m.Retrieve(cfg.Instagram.Username)
	} else {
		account, err = m.RetrieveDefault()
	}
	if err != nil {
		return nil, err
	}

	fill(&cfg.Instagram.Username, account.Username)
	fill(&cfg.Instagram.AccountID, account.AccountID)
	fill(&cfg.Instagram.AccessToken, account.AccessToken)
	fill(&cfg.Source.SessionID, account.SessionID)
	fill(&cfg.Source.CSRFToken, account.CSRFToken)
	return account, nil
}

func fill(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

// getConfigDir returns the configuration directory path
func getConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "catbot")
	case "windows":
		configDir = filepath.Join(os.Getenv("APPDATA"), "catbot")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "catbot")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config", "catbot")
		}
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return configDir, nil
}

// SanitizeAccount creates a copy of the account with secrets masked
func SanitizeAccount(account *Account) *Account {
	if account == nil {
		return nil
	}

	return &Account{
		Username:     account.Username,
		AccountID:    account.AccountID,
		AccessToken:  maskString(account.AccessToken),
		SessionID:    maskOptional(account.SessionID),
		CSRFToken:    maskOptional(account.CSRFToken),
		LastModified: account.LastModified,
	}
}

// maskString masks all but the first 4 and last 4 characters of a string
func maskString(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

func maskOptional(s string) string {
	if s == "" {
		return ""
	}
	return maskString(s)
}

// Errors
var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrStoreUnavailable    = errors.New("credential store unavailable")
)
