package auth

import (
	"context"

	"eduverse-client-go/internal/platform/errors"
)

// Event topics published by explicit login and logout.
const (
	TopicLoggedIn  = "session:logged_in"
	TopicLoggedOut = "session:logged_out"
)

// Service runs the explicit session flows: login, logout and restore on startup.
type Service struct {
	authority   Authority
	session     *SessionStore
	coordinator *Coordinator
	logger      Logger
	publisher   Publisher
}

// NewService builds a Service around an existing coordinator.
func NewService(authority Authority, session *SessionStore, coordinator *Coordinator, logger Logger, publisher Publisher) *Service {
	return &Service{
		authority:   authority,
		session:     session,
		coordinator: coordinator,
		logger:      logger,
		publisher:   publisher,
	}
}

// Login authenticates with username and password and stores the session.
func (s *Service) Login(ctx context.Context, username, password string) (Session, error) {
	grant, err := s.authority.Login(ctx, username, password)
	if err != nil {
		return Session{}, err
	}

	identity := grant.Identity
	if fetched, err := s.authority.Identity(ctx, grant.Credential); err == nil && fetched != nil {
		identity = fetched
	}
	if identity == nil {
		if derived, ok := IdentityFromCredential(grant.Credential); ok {
			identity = derived
		} else {
			identity = &Identity{Username: username}
		}
	}

	if err := s.session.Set(grant.Credential, identity); err != nil {
		return Session{}, err
	}
	s.logger.Info("logged in as %s", identity.Username)
	s.publish(TopicLoggedIn, identity.Clone())
	return s.session.Get(), nil
}

// Restore re-derives the session from the refresh cookie. Credentials are never
// cached across runs, so this is how a new process picks up a prior login.
func (s *Service) Restore(ctx context.Context) (Session, error) {
	if _, err := s.coordinator.Refresh(ctx); err != nil {
		return Session{}, err
	}
	return s.session.Get(), nil
}

// Logout ends the session. The remote call is best effort; local state is
// always cleared.
func (s *Service) Logout(ctx context.Context) error {
	s.Terminate(ctx)
	return nil
}

// Terminate calls the logout endpoint ignoring its failure and clears the session.
func (s *Service) Terminate(ctx context.Context) {
	if err := s.authority.Logout(ctx); err != nil {
		s.logger.Warn("remote logout failed, clearing local session anyway: %v", err)
	}
	s.session.Clear()
	s.publish(TopicLoggedOut, nil)
}

// Session returns the current session.
func (s *Service) Session() Session {
	return s.session.Get()
}

// RequireSession returns the current session or an auth_expired error.
func (s *Service) RequireSession() (Session, error) {
	current := s.session.Get()
	if !current.Valid() {
		return Session{}, errors.New(errors.KindAuthExpired, "auth.session", "not signed in")
	}
	return current, nil
}

func (s *Service) publish(topic string, arg any) {
	if s.publisher != nil {
		s.publisher.Publish(topic, arg)
	}
}
