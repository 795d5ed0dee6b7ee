package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize   = 32
	keySize    = 32
	iterations = 100000

	// PassphraseEnv overrides the generated passphrase file
	PassphraseEnv = "CATBOT_PASSPHRASE"
)

// EncryptedFileStore keeps credentials in an AES-GCM encrypted file whose
// key is derived from a passphrase with PBKDF2.
type EncryptedFileStore struct {
	path       string
	passphrase string
	mu         sync.RWMutex
}

// envelope is the on-disk shape
type envelope struct {
	Salt      string    `json:"salt"`
	Encrypted string    `json:"encrypted"`
	Version   int       `json:"version"`
	Modified  time.Time `json:"modified"`
}

// NewEncryptedFileStore creates a store at path using the passphrase from
// CATBOT_PASSPHRASE or, failing that, a generated passphrase file next to
// the user's config.
func NewEncryptedFileStore(path string) (*EncryptedFileStore, error) {
	passphrase, err := loadPassphrase()
	if err != nil {
		return nil, fmt.Errorf("failed to get passphrase: %w", err)
	}
	return NewEncryptedFileStoreWithPassphrase(path, passphrase)
}

// NewEncryptedFileStoreWithPassphrase creates a store with an explicit passphrase
func NewEncryptedFileStoreWithPassphrase(path, passphrase string) (*EncryptedFileStore, error) {
	if passphrase == "" {
		return nil, errors.New("passphrase is required")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}
	return &EncryptedFileStore{path: path, passphrase: passphrase}, nil
}

// Store saves credentials to the encrypted file
func (e *EncryptedFileStore) Store(account *Account) error {
	if account == nil || account.Username == "" {
		return ErrInvalidCredentials
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	accounts, salt, err := e.load()
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load existing data: %w", err)
	}
	if accounts == nil {
		accounts = make(map[string]Account)
	}
	accounts[account.Username] = *account

	return e.save(accounts, salt)
}

// Retrieve gets credentials from the encrypted file
func (e *EncryptedFileStore) Retrieve(username string) (*Account, error) {
	if username == "" {
		return nil, ErrInvalidCredentials
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	accounts, _, err := e.load()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrCredentialsNotFound
		}
		return nil, fmt.Errorf("failed to load data: %w", err)
	}

	account, ok := accounts[username]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return &account, nil
}

// List returns all stored accounts
func (e *EncryptedFileStore) List() ([]*Account, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	accounts, _, err := e.load()
	if err != nil {
		if os.IsNotExist(err) {
			return []*Account{}, nil
		}
		return nil, fmt.Errorf("failed to load data: %w", err)
	}

	out := make([]*Account, 0, len(accounts))
	for _, account := range accounts {
		acc := account
		out = append(out, &acc)
	}
	return out, nil
}

// Delete removes credentials, and the file once it is empty
func (e *EncryptedFileStore) Delete(username string) error {
	if username == "" {
		return ErrInvalidCredentials
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	accounts, salt, err := e.load()
	if err != nil {
		if os.IsNotExist(err) {
			return ErrCredentialsNotFound
		}
		return fmt.Errorf("failed to load data: %w", err)
	}
	if _, ok := accounts[username]; !ok {
		return ErrCredentialsNotFound
	}

	delete(accounts, username)
	if len(accounts) == 0 {
		return os.Remove(e.path)
	}
	return e.save(accounts, salt)
}

// Exists checks if credentials exist
func (e *EncryptedFileStore) Exists(username string) bool {
	account, err := e.Retrieve(username)
	return err == nil && account != nil
}

// load decrypts the file and returns its accounts with the salt in use
func (e *EncryptedFileStore) load() (map[string]Account, []byte, error) {
	content, err := os.ReadFile(e.path)
	if err != nil {
		return nil, nil, err
	}

	var env envelope
	if err := json.Unmarshal(content, &env); err != nil {
		return nil, nil, fmt.Errorf("failed to parse file: %w", err)
	}
	salt, err := base64.StdEncoding.DecodeString(env.Salt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode salt: %w", err)
	}
	sealed, err := base64.StdEncoding.DecodeString(env.Encrypted)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode encrypted data: %w", err)
	}

	plain, err := decrypt(sealed, e.key(salt))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decrypt data: %w", err)
	}

	var accounts map[string]Account
	if err := json.Unmarshal(plain, &accounts); err != nil {
		return nil, nil, fmt.Errorf("failed to parse accounts: %w", err)
	}
	return accounts, salt, nil
}

// save encrypts accounts and replaces the file atomically
func (e *EncryptedFileStore) save(accounts map[string]Account, salt []byte) error {
	if len(salt) == 0 {
		salt = make([]byte, saltSize)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return fmt.Errorf("failed to generate salt: %w", err)
		}
	}

	plain, err := json.Marshal(accounts)
	if err != nil {
		return fmt.Errorf("failed to marshal accounts: %w", err)
	}
	sealed, err := encrypt(plain, e.key(salt))
	if err != nil {
		return fmt.Errorf("failed to encrypt data: %w", err)
	}

	content, err := json.MarshalIndent(envelope{
		Salt:      base64.StdEncoding.EncodeToString(salt),
		Encrypted: base64.StdEncoding.EncodeToString(sealed),
		Version:   1,
		Modified:  time.Now(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal file data: %w", err)
	}

	tmp := e.path + ".tmp"
	if err := os.WriteFile(tmp, content, 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return os.Rename(tmp, e.path)
}

func (e *EncryptedFileStore) key(salt []byte) []byte {
	return pbkdf2.Key([]byte(e.passphrase), salt, iterations, keySize, sha256.New)
}

// loadPassphrase reads CATBOT_PASSPHRASE or a generated passphrase file
func loadPassphrase() (string, error) {
	if pass := os.Getenv(PassphraseEnv); pass != "" {
		return pass, nil
	}

	configDir, err := getConfigDir()
	if err != nil {
		return "", err
	}
	file := filepath.Join(configDir, ".passphrase")

	if content, err := os.ReadFile(file); err == nil && len(content) > 0 {
		return string(content), nil
	}

	b := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("failed to generate passphrase: %w", err)
	}
	passphrase := base64.URLEncoding.EncodeToString(b)
	if err := os.WriteFile(file, []byte(passphrase), 0600); err != nil {
		return "", fmt.Errorf("failed to save passphrase: %w", err)
	}
	return passphrase, nil
}

// encrypt seals plaintext with AES-GCM, prefixing the nonce
func encrypt(plaintext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// decrypt opens data sealed by encrypt
func decrypt(ciphertext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, body := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, body, nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
