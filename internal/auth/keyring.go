package auth

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/zalando/go-keyring"
)

// KeyringService is the service name used for keyring entries.
const KeyringService = "webterm"

// CredentialStore remembers accepted credentials per endpoint.
type CredentialStore interface {
	Get(account string) (string, error)
	Set(account, credential string) error
	Delete(account string) error
}

// KeyringStore stores credentials in the OS keyring (macOS Keychain, Linux
// Secret Service, Windows Credential Manager).
type KeyringStore struct{}

// NewKeyringStore returns a store backed by the system keyring.
func NewKeyringStore() *KeyringStore {
	return &KeyringStore{}
}

// Get returns the stored credential, or "" when there is none.
func (ks *KeyringStore) Get(account string) (string, error) {
	secret, err := keyring.Get(KeyringService, account)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("read keyring: %w", err)
	}
	return secret, nil
}

// Set stores credential for account.
func (ks *KeyringStore) Set(account, credential string) error {
	if err := keyring.Set(KeyringService, account, credential); err != nil {
		return fmt.Errorf("write keyring: %w", err)
	}
	slog.Debug("stored credential in keyring", slog.String("account", account))
	return nil
}

// Delete removes the stored credential. A missing entry is not an error.
func (ks *KeyringStore) Delete(account string) error {
	if err := keyring.Delete(KeyringService, account); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("delete keyring entry: %w", err)
	}
	return nil
}

// Ensure KeyringStore implements CredentialStore.
var _ CredentialStore = (*KeyringStore)(nil)
