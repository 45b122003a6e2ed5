// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/jeranaias/chatterm/internal/model"
	"github.com/jeranaias/chatterm/internal/util"
)

// Credential storage file names under the config directory.
const (
	credentialFile = "credentials.enc"
	keyFile        = "credentials.key"
)

// ErrCorruptCredentials indicates the credential file could not be
// decrypted or parsed. Treated as "no identity" by Session, but surfaced
// so callers can log it.
var ErrCorruptCredentials = errors.New("corrupt credential file")

// Identity is the authenticated caller: the bearer token plus the user it
// belongs to.
type Identity struct {
	Token string     `json:"token"`
	User  model.User `json:"user"`
}

// =============================================================================
// CREDENTIAL STORE
// =============================================================================

// CredentialStore persists the identity's durable representation.
//
// SECURITY: The credential file is encrypted with XChaCha20-Poly1305 under
// a machine-local key held beside it with 0600 permissions. This protects
// the bearer token against casual reads (backups, sync tools), not against
// an attacker with the same local account.
type CredentialStore struct {
	credPath string
	keyPath  string
}

// NewCredentialStore creates a store rooted at dir.
func NewCredentialStore(dir string) *CredentialStore {
	return &CredentialStore{
		credPath: filepath.Join(dir, credentialFile),
		keyPath:  filepath.Join(dir, keyFile),
	}
}

// DefaultStoreDir returns the default credential directory, ~/.chatterm.
func DefaultStoreDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".chatterm"), nil
}

// Load reads the stored identity. A missing file yields (nil, nil).
func (s *CredentialStore) Load() (*Identity, error) {
	sealed, err := os.ReadFile(s.credPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credential file: %w", err)
	}

	key, err := s.loadKey()
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to init cipher: %w", err)
	}
	if len(sealed) < aead.NonceSize() {
		return nil, ErrCorruptCredentials
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptCredentials, err)
	}

	var id Identity
	if err := json.Unmarshal(plain, &id); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptCredentials, err)
	}
	return &id, nil
}

// Save encrypts and persists the identity atomically.
func (s *CredentialStore) Save(id Identity) error {
	plain, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("failed to marshal identity: %w", err)
	}

	key, err := s.loadOrCreateKey()
	if err != nil {
		return err
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return fmt.Errorf("failed to init cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, plain, nil)
	if err := util.AtomicWriteFile(s.credPath, sealed, 0600); err != nil {
		return fmt.Errorf("failed to write credential file: %w", err)
	}
	return nil
}

// Clear removes the stored identity. Missing files are not an error.
func (s *CredentialStore) Clear() error {
	if err := os.Remove(s.credPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove credential file: %w", err)
	}
	return nil
}

// loadKey reads the encryption key from disk.
func (s *CredentialStore) loadKey() ([]byte, error) {
	key, err := os.ReadFile(s.keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, ErrCorruptCredentials
	}
	return key, nil
}

// loadOrCreateKey reads the encryption key, generating and persisting one
// on first use.
func (s *CredentialStore) loadOrCreateKey() ([]byte, error) {
	if key, err := os.ReadFile(s.keyPath); err == nil {
		if len(key) != chacha20poly1305.KeySize {
			return nil, ErrCorruptCredentials
		}
		return key, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	if err := util.AtomicWriteFile(s.keyPath, key, 0600); err != nil {
		return nil, fmt.Errorf("failed to write key file: %w", err)
	}
	return key, nil
}
