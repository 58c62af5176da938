package secret

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	// ServiceName namespaces keyring entries.
	ServiceName = "integrator"
	// registryKey tracks stored secret names; go-keyring has no list call.
	registryKey = "_integrator_secret_registry"
)

// KeyringStore persists credentials in the OS keyring (Keychain, Secret
// Service, WinCred).
type KeyringStore struct {
	serviceName string
}

// NewKeyringStore creates a keyring-backed store.
func NewKeyringStore() *KeyringStore {
	return &KeyringStore{serviceName: ServiceName}
}

// Get retrieves a credential from the OS keyring.
func (s *KeyringStore) Get(_ context.Context, key string) (string, error) {
	value, err := keyring.Get(s.serviceName, key)
	if err != nil {
		if err == keyring.ErrNotFound {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to get secret %s from keyring: %w", key, err)
	}
	return value, nil
}

// Set stores a credential in the OS keyring and records it in the registry.
func (s *KeyringStore) Set(_ context.Context, key, value, category string) error {
	if err := keyring.Set(s.serviceName, key, value); err != nil {
		return fmt.Errorf("failed to store secret %s in keyring: %w", key, err)
	}
	if err := s.updateRegistry(func(reg map[string]string) {
		reg[key] = category
	}); err != nil {
		return fmt.Errorf("failed to update secret registry: %w", err)
	}
	return nil
}

// Delete removes a credential from the OS keyring and the registry.
func (s *KeyringStore) Delete(_ context.Context, key string) error {
	if err := keyring.Delete(s.serviceName, key); err != nil && err != keyring.ErrNotFound {
		return fmt.Errorf("failed to delete secret %s from keyring: %w", key, err)
	}
	if err := s.updateRegistry(func(reg map[string]string) {
		delete(reg, key)
	}); err != nil {
		return fmt.Errorf("failed to update secret registry: %w", err)
	}
	return nil
}

// List returns the records tracked in the registry entry.
func (s *KeyringStore) List(_ context.Context) ([]Record, error) {
	reg, err := s.readRegistry()
	if err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(reg))
	for key, category := range reg {
		records = append(records, Record{Key: key, Category: category})
	}
	return records, nil
}

// IsAvailable probes the keyring with a throwaway entry.
func (s *KeyringStore) IsAvailable() bool {
	testKey := "_integrator_test_availability"
	if err := keyring.Set(s.serviceName, testKey, "test"); err != nil {
		return false
	}
	_, err := keyring.Get(s.serviceName, testKey)
	_ = keyring.Delete(s.serviceName, testKey)
	return err == nil
}

func (s *KeyringStore) readRegistry() (map[string]string, error) {
	raw, err := keyring.Get(s.serviceName, registryKey)
	if err != nil {
		// Registry doesn't exist yet.
		return map[string]string{}, nil
	}
	reg := map[string]string{}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &reg); err != nil {
			return nil, fmt.Errorf("corrupt secret registry: %w", err)
		}
	}
	return reg, nil
}

func (s *KeyringStore) updateRegistry(mutate func(map[string]string)) error {
	reg, err := s.readRegistry()
	if err != nil {
		return err
	}
	mutate(reg)
	data, err := json.Marshal(reg)
	if err != nil {
		return err
	}
	return keyring.Set(s.serviceName, registryKey, string(data))
}
