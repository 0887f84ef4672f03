package auth

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/oss-wishlist/wishlist/internal/wishlist"
)

// Session is an authenticated login.
type Session struct {
	ID        string
	User      wishlist.User
	Token     *oauth2.Token
	Admin     bool
	CreatedAt time.Time
	ExpiresAt time.Time
}

type sessionStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
	now      func() time.Time
}

func newSessionStore(now func() time.Time) *sessionStore {
	return &sessionStore{sessions: make(map[string]Session), now: now}
}

func (s *sessionStore) Set(sess Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
}

func (s *sessionStore) Get(id string) (Session, bool) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return Session{}, false
	}
	if s.now().After(sess.ExpiresAt) {
		s.Delete(id)
		return Session{}, false
	}
	return sess, true
}

func (s *sessionStore) Delete(id string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	return sess, ok
}

type stateEntry struct {
	Provider string
	Redirect string
	Expires  time.Time
}

type stateStore struct {
	mu     sync.Mutex
	states map[string]stateEntry
	ttl    time.Duration
	now    func() time.Time
}

func newStateStore(ttl time.Duration, now func() time.Time) *stateStore {
	return &stateStore{states: make(map[string]stateEntry), ttl: ttl, now: now}
}

// New records a fresh state value for one login attempt.
func (s *stateStore) New(providerName, redirect string) string {
	state := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.states {
		if s.now().After(e.Expires) {
			delete(s.states, k)
		}
	}
	s.states[state] = stateEntry{Provider: providerName, Redirect: redirect, Expires: s.now().Add(s.ttl)}
	return state
}

// Consume returns and forgets a state value. Expired values are rejected.
func (s *stateStore) Consume(state string) (stateEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.states[state]
	delete(s.states, state)
	if !ok || s.now().After(entry.Expires) {
		return stateEntry{}, false
	}
	return entry, true
}
