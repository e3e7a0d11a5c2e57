package auth

import (
	"context"
	"sync"
	"sync/atomic"

	"eduverse-client-go/internal/platform/logging"
)

// fakeAuthority is a scriptable Authority. Refresh blocks on gate when set.
type fakeAuthority struct {
	mu          sync.Mutex
	gate        chan struct{}
	grant       Grant
	refreshErr  error
	identity    *Identity
	identityErr error
	logoutErr   error
	loginGrant  Grant
	loginErr    error

	refreshCalls  atomic.Int64
	identityCalls atomic.Int64
	logoutCalls   atomic.Int64
}

func (f *fakeAuthority) Refresh(ctx context.Context) (Grant, error) {
	f.refreshCalls.Add(1)
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.grant, f.refreshErr
}

func (f *fakeAuthority) Identity(ctx context.Context, credential string) (*Identity, error) {
	f.identityCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.identity.Clone(), f.identityErr
}

func (f *fakeAuthority) Logout(ctx context.Context) error {
	f.logoutCalls.Add(1)
	return f.logoutErr
}

func (f *fakeAuthority) Login(ctx context.Context, username, password string) (Grant, error) {
	return f.loginGrant, f.loginErr
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *recordingPublisher) Publish(topic string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
}

func (p *recordingPublisher) Topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.topics...)
}

func newTestCoordinator(authority Authority, session *SessionStore, publisher Publisher) *Coordinator {
	c, err := NewCoordinator(CoordinatorOptions{
		Authority: authority,
		Session:   session,
		Logger:    logging.Nop(),
		Publisher: publisher,
	})
	if err != nil {
		panic(err)
	}
	return c
}
