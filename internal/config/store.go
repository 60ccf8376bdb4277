// Package config implements the durable key/value settings store (§4.A):
// a SQLite-backed table of strings fronted by a process-wide in-memory
// cache that Load fills from the table and Set keeps current, with typed
// accessors layered over the raw string get/set. A key missing from the
// cache is not looked up in the table.
package config

import (
	"context"
	"strconv"
	"sync"

	"github.com/pkg/errors"

	"github.com/bookarr/bookarr/internal/database"
)

// Store is the single process-wide config handle. Zero value is not
// usable; construct with New.
type Store struct {
	db *database.DB

	mu    sync.RWMutex
	cache map[string]string
}

func New(db *database.DB) *Store {
	return &Store{db: db, cache: make(map[string]string)}
}

// Load populates the in-memory cache from the durable store. Call once at
// startup; Get/Set keep the cache coherent afterward without needing a
// reload.
func (s *Store) Load(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM config")
	if err != nil {
		return errors.Wrap(err, "config: load")
	}
	defer rows.Close()

	fresh := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return errors.Wrap(err, "config: scan row")
		}
		fresh[k] = v
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "config: iterate rows")
	}

	s.mu.Lock()
	s.cache = fresh
	s.mu.Unlock()
	return nil
}

// Get returns the cached value, or def if the key is not in the cache.
// It does not read the durable store: values reach the cache only
// through Load and Set.
func (s *Store) Get(key, def string) string {
	s.mu.RLock()
	v, ok := s.cache[key]
	s.mu.RUnlock()
	if !ok {
		return def
	}
	return v
}

// Set writes value durably, then updates the cache. The cache update
// happens only after the durable write succeeds, so a Get that observes
// the new value is guaranteed the write already committed (§4.A
// happens-before requirement).
func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return errors.Wrapf(err, "config: set %q", key)
	}

	s.mu.Lock()
	s.cache[key] = value
	s.mu.Unlock()
	return nil
}

// Delete removes key from both the durable store and the cache.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM config WHERE key = ?", key)
	if err != nil {
		return errors.Wrapf(err, "config: delete %q", key)
	}

	s.mu.Lock()
	delete(s.cache, key)
	s.mu.Unlock()
	return nil
}

func (s *Store) GetInt(key string, def int) int {
	v := s.Get(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func (s *Store) SetInt(ctx context.Context, key string, value int) error {
	return s.Set(ctx, key, strconv.Itoa(value))
}

func (s *Store) GetBool(key string, def bool) bool {
	v := s.Get(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func (s *Store) SetBool(ctx context.Context, key string, value bool) error {
	return s.Set(ctx, key, strconv.FormatBool(value))
}
