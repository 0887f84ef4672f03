package db

import (
	"database/sql"
	"strings"
	"time"

	"github.com/oss-wishlist/wishlist/internal/errors"
)

// KVStore is a key/value store over the session_cache table.
// It satisfies sessioncache.Store.
type KVStore struct {
	db *sql.DB
}

// NewKVStore returns a KVStore backed by db.
func NewKVStore(db *sql.DB) *KVStore {
	return &KVStore{db: db}
}

// Get returns the value stored under key.
func (s *KVStore) Get(key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRow(`SELECT value FROM session_cache WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.NewInternal(err)
	}
	return value, true, nil
}

// Set stores value under key, replacing any previous value.
func (s *KVStore) Set(key string, value []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO session_cache (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().Unix())
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// Delete removes the given keys. Missing keys are ignored.
func (s *KVStore) Delete(keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	if _, err := s.db.Exec(`DELETE FROM session_cache WHERE key IN (`+placeholders+`)`, args...); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// DeletePrefix removes every key starting with prefix and returns how many were removed.
func (s *KVStore) DeletePrefix(prefix string) (int64, error) {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	result, err := s.db.Exec(`DELETE FROM session_cache WHERE key LIKE ? ESCAPE '\'`, escaped+"%")
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return result.RowsAffected()
}
