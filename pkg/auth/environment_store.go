package auth

import (
	"os"
	"strings"
	"time"
)

// EnvironmentStore reads credentials from the same variables the config
// layer uses. It is read-only.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(account *Account) error {
	return ErrStoreUnavailable
}

// Retrieve returns the environment credentials. A non-empty username must
// match INSTAGRAM_USERNAME when that is set.
func (e *EnvironmentStore) Retrieve(username string) (*Account, error) {
	token := env("INSTAGRAM_ACCESS_TOKEN")
	accountID := env("INSTAGRAM_ACCOUNT_ID")
	if token == "" || accountID == "" {
		return nil, ErrCredentialsNotFound
	}

	envUser := env("INSTAGRAM_USERNAME")
	switch {
	case username != "" && envUser != "" && username != envUser:
		return nil, ErrCredentialsNotFound
	case envUser != "":
		username = envUser
	case username == "":
		username = "default"
	}

	return &Account{
		Username:     username,
		AccountID:    accountID,
		AccessToken:  token,
		SessionID:    env("INSTAGRAM_SESSION_ID"),
		CSRFToken:    env("INSTAGRAM_CSRF_TOKEN"),
		LastModified: time.Now(),
	}, nil
}

// List returns a single account if the environment holds credentials
func (e *EnvironmentStore) List() ([]*Account, error) {
	account, err := e.Retrieve("")
	if err != nil {
		return []*Account{}, nil
	}
	return []*Account{account}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(username string) error {
	return ErrStoreUnavailable
}

// Exists checks if environment credentials exist
func (e *EnvironmentStore) Exists(username string) bool {
	_, err := e.Retrieve(username)
	return err == nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
