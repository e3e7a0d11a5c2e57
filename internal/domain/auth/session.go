package auth

import (
	"strings"
	"sync"

	"eduverse-client-go/internal/domain/auth/model"
	"eduverse-client-go/internal/platform/errors"
)

type (
	// Identity re-exports the shared principal record for callers.
	Identity = model.Identity
	// Logger re-exports the logging interface used across the domain.
	Logger = model.Logger
	// Publisher re-exports the event sink used across the domain.
	Publisher = model.Publisher
)

// Session pairs the bearer credential with the identity it was issued for.
// Both are set together or both are empty.
type Session struct {
	Credential string
	Identity   *Identity
}

// Valid reports whether the session holds a credential.
func (s Session) Valid() bool {
	return s.Credential != ""
}

// SessionStore holds the current session in memory for the lifetime of the process.
type SessionStore struct {
	mu      sync.RWMutex
	session Session
	version uint64
}

// NewSessionStore returns an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{}
}

// Get returns a copy of the current session.
func (s *SessionStore) Get() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Session{
		Credential: s.session.Credential,
		Identity:   s.session.Identity.Clone(),
	}
}

// Credential returns the current bearer credential or "".
func (s *SessionStore) Credential() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Credential
}

// Authenticated reports whether a credential is held.
func (s *SessionStore) Authenticated() bool {
	return s.Credential() != ""
}

// Version increments on every write.
func (s *SessionStore) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Set replaces the session. Both credential and identity are required.
func (s *SessionStore) Set(credential string, identity *Identity) error {
	if err := validSession(credential, identity); err != nil {
		return err
	}
	s.mu.Lock()
	s.replace(credential, identity)
	s.mu.Unlock()
	return nil
}

// SetIfUnchanged replaces the session only when no write happened since
// Version returned version. It reports whether the session was replaced.
func (s *SessionStore) SetIfUnchanged(version uint64, credential string, identity *Identity) (bool, error) {
	if err := validSession(credential, identity); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.version != version {
		return false, nil
	}
	s.replace(credential, identity)
	return true, nil
}

func (s *SessionStore) replace(credential string, identity *Identity) {
	s.session = Session{Credential: credential, Identity: identity.Clone()}
	s.version++
}

func validSession(credential string, identity *Identity) error {
	if strings.TrimSpace(credential) == "" {
		return errors.New(errors.KindDomain, "session.set", "credential must not be empty")
	}
	if identity == nil {
		return errors.New(errors.KindDomain, "session.set", "identity must not be nil")
	}
	return nil
}

// Clear drops both credential and identity.
func (s *SessionStore) Clear() {
	s.mu.Lock()
	s.session = Session{}
	s.version++
	s.mu.Unlock()
}
