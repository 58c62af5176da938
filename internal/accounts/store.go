// Package accounts persists the per-provider connection evidence: connected
// accounts established through redirect OAuth flows and token records written
// by out-of-band brokers.
package accounts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"
)

const (
	accountsBucket = "accounts"
	tokensBucket   = "tokens"
)

// Account is one connected third-party account.
type Account struct {
	Provider  string    `json:"provider"`
	ID        string    `json:"id"`
	Login     string    `json:"login,omitempty"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TokenRecord is a stored token set for a token-class provider. Expiry is the
// token owner's concern; connection status only looks at AccessToken
// presence.
type TokenRecord struct {
	Provider     string    `json:"provider"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Store is a bbolt-backed account and token store.
type Store struct {
	db     *bbolt.DB
	logger *zap.Logger
}

// Open opens (creating if needed) the account database at path.
func Open(path string, logger *zap.Logger) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open account database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{accountsBucket, tokensBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// AddAccount persists a connected account. Re-adding the same provider/id
// pair overwrites the existing record.
func (s *Store) AddAccount(a Account) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(accountsBucket))
		data, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("failed to marshal account: %w", err)
		}
		return bucket.Put(accountKey(a.Provider, a.ID), data)
	})
}

// ListAccounts returns the connected accounts for a provider. The first
// entry is "the" connected account for display purposes.
func (s *Store) ListAccounts(provider string) ([]Account, error) {
	var out []Account
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(accountsBucket)).Cursor()
		prefix := []byte(provider + "/")
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var a Account
			if err := json.Unmarshal(v, &a); err != nil {
				s.logger.Warn("Skipping corrupt account record",
					zap.String("key", string(k)),
					zap.Error(err))
				continue
			}
			out = append(out, a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RemoveAccounts deletes every connected account for a provider.
func (s *Store) RemoveAccounts(provider string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(accountsBucket))
		c := bucket.Cursor()
		prefix := []byte(provider + "/")

		var keys [][]byte
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		for _, k := range keys {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// SaveToken stores the token record for a token-class provider.
func (s *Store) SaveToken(rec TokenRecord) error {
	rec.UpdatedAt = time.Now()
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal token record: %w", err)
		}
		return tx.Bucket([]byte(tokensBucket)).Put([]byte(rec.Provider), data)
	})
}

// GetToken returns the token record for a provider, or nil if none exists.
func (s *Store) GetToken(provider string) (*TokenRecord, error) {
	var rec *TokenRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(tokensBucket)).Get([]byte(provider))
		if data == nil {
			return nil
		}
		rec = &TokenRecord{}
		if err := json.Unmarshal(data, rec); err != nil {
			return fmt.Errorf("corrupt token record for %s: %w", provider, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// DeleteToken removes the token record for a provider.
func (s *Store) DeleteToken(provider string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(tokensBucket)).Delete([]byte(provider))
	})
}

func accountKey(provider, id string) []byte {
	return []byte(provider + "/" + id)
}
