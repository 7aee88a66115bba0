// Package credential keeps the Gmail OAuth token in the system keyring.
package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/99designs/keyring"
	"golang.org/x/oauth2"

	"gmerge/internal/model"
)

const (
	serviceName = "gmerge"
	tokenKey    = "gmail-oauth-token"
)

// Open returns the system keyring, falling back to an encrypted file under
// configDir on hosts without a keyring daemon.
func Open(configDir string) (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  filepath.Join(configDir, "credentials"),
		FilePasswordFunc:         keyring.FixedStringPrompt("gmerge-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}
	return ring, nil
}

// TokenStore persists one OAuth token.
type TokenStore struct {
	ring keyring.Keyring
}

func NewTokenStore(ring keyring.Keyring) *TokenStore {
	return &TokenStore{ring: ring}
}

// Token returns the stored token or model.ErrNotAuthenticated.
func (s *TokenStore) Token() (*oauth2.Token, error) {
	item, err := s.ring.Get(tokenKey)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil, model.ErrNotAuthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(item.Data, &tok); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	return &tok, nil
}

func (s *TokenStore) SaveToken(tok *oauth2.Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if err := s.ring.Set(keyring.Item{
		Key:         tokenKey,
		Data:        data,
		Label:       "gmerge Gmail token",
		Description: "OAuth token used by gmerge to send mail",
	}); err != nil {
		return fmt.Errorf("set token: %w", err)
	}
	return nil
}

// Delete removes the token. Deleting a missing token is not an error.
func (s *TokenStore) Delete() error {
	err := s.ring.Remove(tokenKey)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}
