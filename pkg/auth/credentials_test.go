package auth

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"catbot/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

// memStore is an in-memory CredentialStore with error injection
type memStore struct {
	mu       sync.Mutex
	accounts map[string]Account
	storeErr error
}

func newMemStore() *memStore { return &memStore{accounts: map[string]Account{}} }

func (m *memStore) Store(account *Account) error {
	if m.storeErr != nil {
		return m.storeErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[account.Username] = *account
	return nil
}

func (m *memStore) Retrieve(username string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[username]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return &a, nil
}

func (m *memStore) List() ([]*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		acc := a
		out = append(out, &acc)
	}
	return out, nil
}

func (m *memStore) Delete(username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[username]; !ok {
		return ErrCredentialsNotFound
	}
	delete(m.accounts, username)
	return nil
}

func (m *memStore) Exists(username string) bool {
	_, err := m.Retrieve(username)
	return err == nil
}

func testAccount(name string) *Account {
	return &Account{
		Username:    name,
		AccountID:   "17841400000000001",
		AccessToken: "IGQWRtoken_value_1234567890",
		SessionID:   "12345678%3Aabcdef",
	}
}

func clearCredentialEnv(t *testing.T) {
	for _, key := range []string{"INSTAGRAM_ACCESS_TOKEN", "INSTAGRAM_ACCOUNT_ID", "INSTAGRAM_USERNAME", "INSTAGRAM_SESSION_ID", "INSTAGRAM_CSRF_TOKEN"} {
		t.Setenv(key, "")
	}
}

func TestManagerLifecycle(t *testing.T) {
	store := newMemStore()
	manager := NewManagerWithStores(store)

	require.NoError(t, manager.Store(testAccount("daily.cats")))

	got, err := manager.Retrieve("daily.cats")
	require.NoError(t, err)
	assert.Equal(t, "17841400000000001", got.AccountID)
	assert.False(t, got.LastModified.IsZero())

	accounts, err := manager.List()
	require.NoError(t, err)
	assert.Len(t, accounts, 1)

	require.NoError(t, manager.Delete("daily.cats"))
	_, err = manager.Retrieve("daily.cats")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
	assert.Error(t, manager.Delete("daily.cats"))
}

func TestManagerStoreValidates(t *testing.T) {
	manager := NewManagerWithStores(newMemStore())

	err := manager.Store(&Account{Username: "cats"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "account ID is required")
	assert.Contains(t, err.Error(), "access token is required")
	assert.ErrorIs(t, manager.Store(nil), ErrInvalidCredentials)
}

func TestManagerFallsBackToNextStore(t *testing.T) {
	broken := newMemStore()
	broken.storeErr = errors.New("keychain locked")
	fallback := newMemStore()
	manager := NewManagerWithStores(broken, fallback)

	require.NoError(t, manager.Store(testAccount("cats")))
	assert.True(t, fallback.Exists("cats"))
	assert.False(t, broken.Exists("cats"))
}

func TestManagerListPrefersNewest(t *testing.T) {
	a, b := newMemStore(), newMemStore()
	old := testAccount("cats")
	old.AccessToken = "old-token-value"
	old.LastModified = time.Now().Add(-time.Hour)
	fresh := testAccount("cats")
	fresh.LastModified = time.Now()
	require.NoError(t, a.Store(old))
	require.NoError(t, b.Store(fresh))

	accounts, err := NewManagerWithStores(a, b).List()
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, fresh.AccessToken, accounts[0].AccessToken)
}

func TestApplyFillsEmptySettings(t *testing.T) {
	clearCredentialEnv(t)
	store := newMemStore()
	require.NoError(t, store.Store(testAccount("daily.cats")))
	manager := NewManagerWithStores(store, NewEnvironmentStore())

	cfg := config.DefaultConfig()
	cfg.Instagram.Username = "daily.cats"
	cfg.Instagram.AccountID = "from-config"

	_, err := manager.Apply(cfg)
	require.NoError(t, err)
	assert.Equal(t, "from-config", cfg.Instagram.AccountID)
	assert.Equal(t, "IGQWRtoken_value_1234567890", cfg.Instagram.AccessToken)
	assert.Equal(t, "12345678%3Aabcdef", cfg.Source.SessionID)

	cfg = config.DefaultConfig()
	cfg.Instagram.Username = "unknown"
	_, err = manager.Apply(cfg)
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
}

func TestSanitizeAccount(t *testing.T) {
	account := testAccount("cats")
	clean := SanitizeAccount(account)

	assert.Equal(t, "cats", clean.Username)
	assert.Equal(t, account.AccountID, clean.AccountID)
	assert.Equal(t, "IGQW...7890", clean.AccessToken)
	assert.NotEqual(t, account.SessionID, clean.SessionID)
	assert.Empty(t, clean.CSRFToken)
	assert.Nil(t, SanitizeAccount(nil))
}

func TestEncryptedFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.enc")
	store, err := NewEncryptedFileStoreWithPassphrase(path, "correct horse battery staple")
	require.NoError(t, err)

	require.NoError(t, store.Store(testAccount("cats")))
	require.NoError(t, store.Store(testAccount("kittens")))

	got, err := store.Retrieve("cats")
	require.NoError(t, err)
	assert.Equal(t, "IGQWRtoken_value_1234567890", got.AccessToken)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, bytes.Contains(content, []byte("IGQWRtoken")))

	accounts, err := store.List()
	require.NoError(t, err)
	assert.Len(t, accounts, 2)

	other, err := NewEncryptedFileStoreWithPassphrase(path, "wrong")
	require.NoError(t, err)
	_, err = other.Retrieve("cats")
	assert.Error(t, err)

	require.NoError(t, store.Delete("cats"))
	require.NoError(t, store.Delete("kittens"))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	assert.ErrorIs(t, store.Delete("cats"), ErrCredentialsNotFound)
}

func TestEncryptedFileStoreReadsPassphraseEnv(t *testing.T) {
	t.Setenv(PassphraseEnv, "from-env")
	path := filepath.Join(t.TempDir(), "creds.enc")

	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Store(testAccount("cats")))

	same, err := NewEncryptedFileStoreWithPassphrase(path, "from-env")
	require.NoError(t, err)
	assert.True(t, same.Exists("cats"))
}

func TestEnvironmentStore(t *testing.T) {
	clearCredentialEnv(t)
	store := NewEnvironmentStore()

	_, err := store.Retrieve("")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)

	t.Setenv("INSTAGRAM_ACCESS_TOKEN", "env-token")
	t.Setenv("INSTAGRAM_ACCOUNT_ID", "1784")
	t.Setenv("INSTAGRAM_USERNAME", "daily.cats")

	account, err := store.Retrieve("")
	require.NoError(t, err)
	assert.Equal(t, "daily.cats", account.Username)
	assert.Equal(t, "env-token", account.AccessToken)

	_, err = store.Retrieve("someone.else")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
	assert.ErrorIs(t, store.Store(account), ErrStoreUnavailable)
	assert.ErrorIs(t, store.Delete("daily.cats"), ErrStoreUnavailable)
}

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()

	store, err := NewKeyringStore()
	require.NoError(t, err)

	require.NoError(t, store.Store(testAccount("cats")))
	require.NoError(t, store.Store(testAccount("kittens")))
	require.NoError(t, store.Store(testAccount("cats")))

	assert.True(t, store.Exists("cats"))
	accounts, err := store.List()
	require.NoError(t, err)
	assert.Len(t, accounts, 2)

	require.NoError(t, store.Delete("cats"))
	assert.False(t, store.Exists("cats"))
	assert.ErrorIs(t, store.Delete("cats"), ErrCredentialsNotFound)

	accounts, err = store.List()
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "kittens", accounts[0].Username)
}
