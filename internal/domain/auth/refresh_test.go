package auth

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eduverse-client-go/internal/platform/errors"
)

func waitJoined(t *testing.T, c *Coordinator, n int64) {
	t.Helper()
	require.Eventually(t, func() bool { return c.Stats().Joined >= n }, 2*time.Second, time.Millisecond)
}

func TestCoordinator_ConcurrentCallersShareOneFlight(t *testing.T) {
	const callers = 5
	authority := &fakeAuthority{
		gate:     make(chan struct{}),
		grant:    Grant{Credential: "T2"},
		identity: &Identity{ID: "u-1", Username: "alice"},
	}
	session := NewSessionStore()
	require.NoError(t, session.Set("T1", &Identity{ID: "u-1", Username: "alice"}))
	c := newTestCoordinator(authority, session, nil)

	var wg sync.WaitGroup
	outcomes := make([]Outcome, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = c.Refresh(context.Background())
		}(i)
	}

	waitJoined(t, c, callers)
	close(authority.gate)
	wg.Wait()

	assert.Equal(t, int64(1), c.Stats().Flights)
	assert.Equal(t, int64(1), authority.refreshCalls.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "T2", outcomes[i].Credential)
		assert.True(t, outcomes[i].IdentityRefreshed)
	}
	assert.Equal(t, "T2", session.Credential())
}

func TestCoordinator_FailureReachesEveryWaiterAndKeepsSession(t *testing.T) {
	const callers = 3
	authority := &fakeAuthority{
		gate:       make(chan struct{}),
		refreshErr: stderrors.New("cookie expired"),
	}
	session := NewSessionStore()
	require.NoError(t, session.Set("T1", &Identity{ID: "u-1"}))
	publisher := &recordingPublisher{}
	c := newTestCoordinator(authority, session, publisher)

	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Refresh(context.Background())
		}(i)
	}
	waitJoined(t, c, callers)
	close(authority.gate)
	wg.Wait()

	for _, err := range errs {
		require.Error(t, err)
		assert.True(t, errors.IsKind(err, errors.KindRefreshFailed))
	}
	assert.Equal(t, int64(1), c.Stats().Flights)
	assert.Equal(t, "T1", session.Credential())
	assert.Equal(t, []string{TopicRefreshFailed}, publisher.Topics())
}

func TestCoordinator_NewFlightAfterResolution(t *testing.T) {
	authority := &fakeAuthority{grant: Grant{Credential: "T2"}, identity: &Identity{ID: "u-1"}}
	c := newTestCoordinator(authority, NewSessionStore(), nil)

	_, err := c.Refresh(context.Background())
	require.NoError(t, err)

	authority.mu.Lock()
	authority.grant = Grant{Credential: "T3"}
	authority.mu.Unlock()

	out, err := c.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "T3", out.Credential)
	assert.Equal(t, int64(2), c.Stats().Flights)
}

func TestCoordinator_CancelledCallerDoesNotFailOthers(t *testing.T) {
	authority := &fakeAuthority{
		gate:     make(chan struct{}),
		grant:    Grant{Credential: "T2"},
		identity: &Identity{ID: "u-1"},
	}
	c := newTestCoordinator(authority, NewSessionStore(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancelled := make(chan error, 1)
	go func() {
		_, err := c.Refresh(ctx)
		cancelled <- err
	}()
	waitJoined(t, c, 1)

	patient := make(chan Outcome, 1)
	go func() {
		out, _ := c.Refresh(context.Background())
		patient <- out
	}()
	waitJoined(t, c, 2)

	cancel()
	err := <-cancelled
	assert.True(t, errors.IsKind(err, errors.KindRefreshFailed))

	close(authority.gate)
	assert.Equal(t, "T2", (<-patient).Credential)
	assert.Equal(t, int64(1), c.Stats().Flights)
}

func TestCoordinator_IdentityFallbacks(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u-9", "username": "carol"}).
		SignedString([]byte("k"))
	require.NoError(t, err)

	tests := []struct {
		name     string
		grant    Grant
		previous *Identity
		expected string
	}{
		{
			name:     "refresh payload",
			grant:    Grant{Credential: token, Identity: &Identity{ID: "u-1", Username: "from-payload"}},
			previous: &Identity{ID: "u-1", Username: "from-session"},
			expected: "from-payload",
		},
		{
			name:     "current session",
			grant:    Grant{Credential: token},
			previous: &Identity{ID: "u-1", Username: "from-session"},
			expected: "from-session",
		},
		{
			name:     "token claims",
			grant:    Grant{Credential: token},
			expected: "carol",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authority := &fakeAuthority{grant: tt.grant, identityErr: stderrors.New("identity down")}
			session := NewSessionStore()
			if tt.previous != nil {
				require.NoError(t, session.Set("T1", tt.previous))
			}
			c := newTestCoordinator(authority, session, nil)

			out, err := c.Refresh(context.Background())
			require.NoError(t, err)
			assert.False(t, out.IdentityRefreshed)
			assert.Equal(t, tt.expected, out.Identity.Username)

			stored := session.Get()
			assert.Equal(t, token, stored.Credential)
			assert.Equal(t, tt.expected, stored.Identity.Username)
		})
	}
}

func TestCoordinator_PublishesRefreshed(t *testing.T) {
	publisher := &recordingPublisher{}
	authority := &fakeAuthority{grant: Grant{Credential: "T2"}, identity: &Identity{ID: "u-1"}}
	c := newTestCoordinator(authority, NewSessionStore(), publisher)

	_, err := c.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{TopicRefreshed}, publisher.Topics())
}

func TestNewCoordinator_RequiresDependencies(t *testing.T) {
	_, err := NewCoordinator(CoordinatorOptions{Session: NewSessionStore()})
	assert.True(t, errors.IsKind(err, errors.KindBootstrap))

	_, err = NewCoordinator(CoordinatorOptions{Authority: &fakeAuthority{}})
	assert.True(t, errors.IsKind(err, errors.KindBootstrap))
}

func TestCoordinator_LogoutDuringFlightWins(t *testing.T) {
	authority := &fakeAuthority{
		gate:     make(chan struct{}),
		grant:    Grant{Credential: "T2"},
		identity: &Identity{ID: "u-1"},
	}
	session := NewSessionStore()
	require.NoError(t, session.Set("T1", &Identity{ID: "u-1"}))
	publisher := &recordingPublisher{}
	c := newTestCoordinator(authority, session, publisher)

	done := make(chan error, 1)
	go func() {
		_, err := c.Refresh(context.Background())
		done <- err
	}()
	require.Eventually(t, func() bool { return authority.refreshCalls.Load() == 1 }, 2*time.Second, time.Millisecond)

	session.Clear()
	close(authority.gate)

	err := <-done
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindRefreshFailed))
	assert.False(t, session.Authenticated())
	assert.Equal(t, []string{TopicRefreshFailed}, publisher.Topics())
}

func TestCoordinator_LoginDuringFlightWins(t *testing.T) {
	authority := &fakeAuthority{
		gate:     make(chan struct{}),
		grant:    Grant{Credential: "T2"},
		identity: &Identity{ID: "u-1"},
	}
	session := NewSessionStore()
	c := newTestCoordinator(authority, session, nil)

	done := make(chan Outcome, 1)
	go func() {
		out, _ := c.Refresh(context.Background())
		done <- out
	}()
	require.Eventually(t, func() bool { return authority.refreshCalls.Load() == 1 }, 2*time.Second, time.Millisecond)

	require.NoError(t, session.Set("L1", &Identity{ID: "u-2", Username: "bob"}))
	close(authority.gate)

	out := <-done
	assert.Equal(t, "L1", out.Credential)
	assert.Equal(t, "bob", out.Identity.Username)
	assert.Equal(t, "L1", session.Credential())
}
