package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "catbot"
	keyringPrefix  = "publisher_"

	// keyringIndex lists stored usernames since keychains cannot be enumerated
	keyringIndex = "index"
)

// KeyringStore implements CredentialStore using the system keychain
type KeyringStore struct {
	mu sync.Mutex
}

// NewKeyringStore creates a keyring store after checking the keychain
// accepts writes.
func NewKeyringStore() (*KeyringStore, error) {
	testKey := "test_availability"
	if err := keyring.Set(keyringService, testKey, "test"); err != nil {
		return nil, fmt.Errorf("keyring not available: %w", err)
	}
	_ = keyring.Delete(keyringService, testKey)

	return &KeyringStore{}, nil
}

// Store saves credentials to the system keychain
func (k *KeyringStore) Store(account *Account) error {
	if account == nil || account.Username == "" {
		return ErrInvalidCredentials
	}

	data, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if err := keyring.Set(keyringService, keyringPrefix+account.Username, string(data)); err != nil {
		return fmt.Errorf("failed to store in keyring: %w", err)
	}

	names, err := k.index()
	if err != nil {
		return err
	}
	for _, n := range names {
		if n == account.Username {
			return nil
		}
	}
	return k.saveIndex(append(names, account.Username))
}

// Retrieve gets credentials from the system keychain
func (k *KeyringStore) Retrieve(username string) (*Account, error) {
	if username == "" {
		return nil, ErrInvalidCredentials
	}

	data, err := keyring.Get(keyringService, keyringPrefix+username)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrCredentialsNotFound
		}
		return nil, fmt.Errorf("failed to retrieve from keyring: %w", err)
	}

	var account Account
	if err := json.Unmarshal([]byte(data), &account); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account: %w", err)
	}

	return &account, nil
}

// List returns every account recorded in the index
func (k *KeyringStore) List() ([]*Account, error) {
	k.mu.Lock()
	names, err := k.index()
	k.mu.Unlock()
	if err != nil {
		return nil, err
	}

	accounts := make([]*Account, 0, len(names))
	for _, name := range names {
		account, err := k.Retrieve(name)
		if err != nil {
			continue
		}
		accounts = append(accounts, account)
	}
	return accounts, nil
}

// Delete removes credentials from the system keychain
func (k *KeyringStore) Delete(username string) error {
	if username == "" {
		return ErrInvalidCredentials
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if err := keyring.Delete(keyringService, keyringPrefix+username); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrCredentialsNotFound
		}
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}

	names, err := k.index()
	if err != nil {
		return err
	}
	kept := names[:0]
	for _, n := range names {
		if n != username {
			kept = append(kept, n)
		}
	}
	return k.saveIndex(kept)
}

// Exists checks if credentials exist in the keychain
func (k *KeyringStore) Exists(username string) bool {
	if username == "" {
		return false
	}
	_, err := keyring.Get(keyringService, keyringPrefix+username)
	return err == nil
}

func (k *KeyringStore) index() ([]string, error) {
	data, err := keyring.Get(keyringService, keyringIndex)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read keyring index: %w", err)
	}
	var names []string
	if err := json.Unmarshal([]byte(data), &names); err != nil {
		return nil, fmt.Errorf("failed to parse keyring index: %w", err)
	}
	return names, nil
}

func (k *KeyringStore) saveIndex(names []string) error {
	if len(names) == 0 {
		if err := keyring.Delete(keyringService, keyringIndex); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("failed to clear keyring index: %w", err)
		}
		return nil
	}
	sort.Strings(names)
	data, err := json.Marshal(names)
	if err != nil {
		return err
	}
	if err := keyring.Set(keyringService, keyringIndex, string(data)); err != nil {
		return fmt.Errorf("failed to write keyring index: %w", err)
	}
	return nil
}
