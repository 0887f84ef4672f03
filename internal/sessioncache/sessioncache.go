// Package sessioncache keeps a short-lived, per-user copy of the repository
// listing so the code host is not queried on every page load.
//
// Every operation takes the user's identity explicitly, normally the
// provider-qualified key from wishlist.Identity. Entries are never stored
// under an un-namespaced key and a read only sees entries written for the
// exact same identity.
package sessioncache

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/oss-wishlist/wishlist/internal/logging"
	"github.com/oss-wishlist/wishlist/internal/wishlist"
)

// DefaultTTL is how long a cached listing stays valid.
const DefaultTTL = 5 * time.Minute

// ErrNoUsername is returned when an operation is attempted without an identity.
var ErrNoUsername = errors.New("session cache requires a username")

// Store is the key/value backend of the cache.
type Store interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	Delete(keys ...string) error
}

// Cache is the per-user repository cache.
type Cache struct {
	store  Store
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLogger sets the logger used for dropped entries.
func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) { c.logger = logging.OrNop(l) }
}

// New returns a cache over store. A non-positive ttl means DefaultTTL.
func New(store Store, ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{store: store, ttl: ttl, now: time.Now, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DataKey returns the key holding the repositories of username.
func DataKey(username string) string {
	return "repos:" + url.QueryEscape(username)
}

// TimestampKey returns the key holding the capture time of username's entry.
func TimestampKey(username string) string {
	return DataKey(username) + ":ts"
}

func identity(username string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", ErrNoUsername
	}
	return username, nil
}

// Write stores repos for username together with the current time.
func (c *Cache) Write(username string, repos []wishlist.RepositoryCandidate) error {
	user, err := identity(username)
	if err != nil {
		return err
	}
	if repos == nil {
		repos = []wishlist.RepositoryCandidate{}
	}
	data, err := json.Marshal(repos)
	if err != nil {
		return fmt.Errorf("encode cached repositories: %w", err)
	}
	if err := c.store.Set(DataKey(user), data); err != nil {
		return err
	}
	ts := strconv.FormatInt(c.now().UnixMilli(), 10)
	return c.store.Set(TimestampKey(user), []byte(ts))
}

// Read returns the cached repos of username while the entry is younger than
// the TTL. Anything else, including a backend error, is a miss.
func (c *Cache) Read(username string) ([]wishlist.RepositoryCandidate, bool) {
	user, err := identity(username)
	if err != nil {
		return nil, false
	}
	raw, ok, err := c.store.Get(TimestampKey(user))
	if err != nil {
		c.logger.Warn("session cache read failed", zap.String("user", user), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	capturedMs, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		c.logger.Warn("dropping session cache entry with bad timestamp", zap.String("user", user))
		_ = c.Clear(user)
		return nil, false
	}
	if c.now().Sub(time.UnixMilli(capturedMs)) >= c.ttl {
		return nil, false
	}

	data, ok, err := c.store.Get(DataKey(user))
	if err != nil || !ok {
		return nil, false
	}
	var repos []wishlist.RepositoryCandidate
	if err := json.Unmarshal(data, &repos); err != nil {
		c.logger.Warn("dropping undecodable session cache entry", zap.String("user", user), zap.Error(err))
		_ = c.Clear(user)
		return nil, false
	}
	return repos, true
}

// Clear removes both entries of username. Used on logout and account switch.
func (c *Cache) Clear(username string) error {
	user, err := identity(username)
	if err != nil {
		return err
	}
	return c.store.Delete(DataKey(user), TimestampKey(user))
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (m *MemoryStore) Get(key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *MemoryStore) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryStore) Delete(keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

// Keys returns the stored keys, for tests and diagnostics.
func (m *MemoryStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	return keys
}
