// Package secret is the client side of the external credential store. The
// orchestrator reads and writes credentials through the Store interface and
// never manages the storage engine itself.
package secret

import (
	"context"
	"errors"
)

// ErrNotFound indicates the requested secret does not exist in the store.
var ErrNotFound = errors.New("secret not found")

// Record is one stored credential. Values are never included in listings.
type Record struct {
	Key      string `json:"key"`
	Category string `json:"category,omitempty"`
}

// Store is the boundary to the credential store.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set persists a credential under key. Category groups credentials by the
	// integration that owns them.
	Set(ctx context.Context, key, value, category string) error

	// Delete removes a credential. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns the records known to the store, values omitted.
	List(ctx context.Context) ([]Record, error)

	// IsAvailable checks if the backing store is usable on this system.
	IsAvailable() bool
}

// Has reports whether key resolves to a non-empty value in the store.
func Has(ctx context.Context, s Store, key string) bool {
	v, err := s.Get(ctx, key)
	return err == nil && v != ""
}
