// Package vault stores portal credentials encrypted at rest. The key and
// the ciphertext live in separate files so leaking one without the other
// reveals nothing; both carry owner-only permissions.
package vault

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrNoCredentials is returned by Load when no credentials have been stored.
var ErrNoCredentials = errors.New("vault: no stored credentials")

// Credentials is the portal login triple.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Domain   string `json:"domain"`
}

const (
	credFile = "credentials.enc"
	keyFile  = "vault.key"
)

// Vault encrypts credentials with XChaCha20-Poly1305 under a locally
// generated key.
type Vault struct {
	credPath string
	keyPath  string
}

// New creates a vault rooted at dir.
func New(dir string) *Vault {
	return &Vault{
		credPath: filepath.Join(dir, credFile),
		keyPath:  filepath.Join(dir, keyFile),
	}
}

// Exists reports whether credentials are stored.
func (v *Vault) Exists() bool {
	_, err := os.Stat(v.credPath)
	return err == nil
}

// Store encrypts and writes the credentials, generating the key on first
// use. An existing entry is overwritten.
func (v *Vault) Store(c Credentials) error {
	if c.Username == "" || c.Password == "" {
		return errors.New("vault: username and password are required")
	}

	key, err := v.loadOrCreateKey()
	if err != nil {
		return err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return fmt.Errorf("vault: init cipher: %w", err)
	}

	plaintext, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("vault: encode credentials: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("vault: nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, plaintext, nil)

	if err := os.WriteFile(v.credPath, sealed, 0o600); err != nil {
		return fmt.Errorf("vault: write credentials: %w", err)
	}
	return nil
}

// Load decrypts and returns the stored credentials.
func (v *Vault) Load() (Credentials, error) {
	sealed, err := os.ReadFile(v.credPath)
	if errors.Is(err, fs.ErrNotExist) {
		return Credentials{}, ErrNoCredentials
	}
	if err != nil {
		return Credentials{}, fmt.Errorf("vault: read credentials: %w", err)
	}

	key, err := os.ReadFile(v.keyPath)
	if errors.Is(err, fs.ErrNotExist) {
		return Credentials{}, ErrNoCredentials
	}
	if err != nil {
		return Credentials{}, fmt.Errorf("vault: read key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return Credentials{}, fmt.Errorf("vault: init cipher: %w", err)
	}
	if len(sealed) < aead.NonceSize() {
		return Credentials{}, errors.New("vault: credentials file truncated")
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return Credentials{}, fmt.Errorf("vault: decrypt credentials: %w", err)
	}

	var c Credentials
	if err := json.Unmarshal(plaintext, &c); err != nil {
		return Credentials{}, fmt.Errorf("vault: decode credentials: %w", err)
	}
	return c, nil
}

// Delete removes the stored credentials and the key. Missing files are not
// an error.
func (v *Vault) Delete() error {
	for _, path := range []string{v.credPath, v.keyPath} {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("vault: delete %s: %w", filepath.Base(path), err)
		}
	}
	return nil
}

func (v *Vault) loadOrCreateKey() ([]byte, error) {
	key, err := os.ReadFile(v.keyPath)
	if err == nil {
		if len(key) != chacha20poly1305.KeySize {
			return nil, errors.New("vault: key file has wrong size")
		}
		return key, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("vault: read key: %w", err)
	}

	key = make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("vault: generate key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(v.keyPath), 0o700); err != nil {
		return nil, fmt.Errorf("vault: key dir: %w", err)
	}
	if err := os.WriteFile(v.keyPath, key, 0o600); err != nil {
		return nil, fmt.Errorf("vault: write key: %w", err)
	}
	return key, nil
}
