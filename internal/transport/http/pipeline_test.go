package httptransport

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eduverse-client-go/internal/domain/auth"
	"eduverse-client-go/internal/platform/errors"
	"eduverse-client-go/internal/platform/logging"
	"eduverse-client-go/internal/platform/testing/apitest"
)

type harness struct {
	backend     *apitest.Backend
	session     *auth.SessionStore
	coordinator *auth.Coordinator
	navigator   *RouteNavigator
	navigations atomic.Int64
	pipeline    *Pipeline
}

func newHarness(t *testing.T, mutate func(*Options)) *harness {
	t.Helper()
	h := &harness{backend: apitest.New()}
	t.Cleanup(h.backend.Close)

	client, err := NewClient(ClientConfig{BaseURL: h.backend.BaseURL(), Timeout: 5 * time.Second})
	require.NoError(t, err)

	logger := logging.Nop()
	authority := auth.NewHTTPAuthority(client, auth.Paths{
		Refresh:  apitest.PathRefresh,
		Identity: apitest.PathIdentity,
		Logout:   apitest.PathLogout,
		Login:    apitest.PathLogin,
	})
	h.session = auth.NewSessionStore()
	h.coordinator, err = auth.NewCoordinator(auth.CoordinatorOptions{
		Authority: authority,
		Session:   h.session,
		Logger:    logger,
	})
	require.NoError(t, err)
	service := auth.NewService(authority, h.session, h.coordinator, logger, nil)

	h.navigator = NewRouteNavigator("/catalog", func(string) { h.navigations.Add(1) })
	opts := Options{
		Client:  client,
		Session: h.session,
		Refresher: RefreshFunc(func(ctx context.Context) (string, error) {
			out, err := h.coordinator.Refresh(ctx)
			return out.Credential, err
		}),
		Terminator: service,
		Navigator:  h.navigator,
		LoginPath:  "/login",
		Logger:     logger,
	}
	if mutate != nil {
		mutate(&opts)
	}
	h.pipeline, err = NewPipeline(opts)
	require.NoError(t, err)

	_, err = service.Login(context.Background(), "alice", "secret")
	require.NoError(t, err)
	return h
}

var echoRoute = apitest.Route(http.MethodPost, apitest.PathEcho)
var refreshRoute = apitest.Route(http.MethodPost, apitest.PathRefresh)
var logoutRoute = apitest.Route(http.MethodPost, apitest.PathLogout)

func TestExecute_AttachesBearer(t *testing.T) {
	h := newHarness(t, nil)
	credential := h.session.Credential()

	resp, err := h.pipeline.Execute(context.Background(), Request{Method: http.MethodPost, Path: apitest.PathEcho, Body: []byte("ping")})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.False(t, resp.Retried)

	captured := h.backend.Captured(echoRoute)
	require.Len(t, captured, 1)
	assert.Equal(t, "Bearer "+credential, captured[0].Authorization)
	assert.Equal(t, 0, h.backend.Calls(refreshRoute))
}

func TestExecute_RefreshesOnceAndRetries(t *testing.T) {
	h := newHarness(t, nil)
	stale := h.session.Credential()
	h.backend.Expire(stale)

	resp, err := h.pipeline.Execute(context.Background(), Request{
		Method: http.MethodPost,
		Path:   apitest.PathEcho,
		JSON:   map[string]string{"lesson": "intro"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.True(t, resp.Retried)

	assert.Equal(t, 1, h.backend.Calls(refreshRoute))
	captured := h.backend.Captured(echoRoute)
	require.Len(t, captured, 2)
	assert.Equal(t, "Bearer "+stale, captured[0].Authorization)
	assert.Equal(t, "Bearer "+h.session.Credential(), captured[1].Authorization)
	assert.NotEqual(t, stale, h.session.Credential())
	assert.Equal(t, captured[0].Body, captured[1].Body)
	assert.Equal(t, "application/json", captured[1].ContentType)
}

func TestExecute_RefreshFailureEndsSession(t *testing.T) {
	h := newHarness(t, nil)
	h.backend.Expire(h.session.Credential())
	h.backend.FailRefresh(true)

	resp, err := h.pipeline.Execute(context.Background(), Request{Method: http.MethodPost, Path: apitest.PathEcho})
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.True(t, errors.IsKind(err, errors.KindRefreshFailed))

	assert.False(t, h.session.Authenticated())
	assert.Nil(t, h.session.Get().Identity)
	assert.Equal(t, 1, h.backend.Calls(logoutRoute))
	assert.Equal(t, 1, h.backend.Calls(echoRoute))
	assert.Equal(t, "/login", h.navigator.Current())
	assert.Equal(t, int64(1), h.navigations.Load())
}

func TestExecute_NoNavigationWhenAlreadyOnLogin(t *testing.T) {
	h := newHarness(t, nil)
	h.navigator.Navigate("/login")
	h.navigations.Store(0)
	h.backend.Expire(h.session.Credential())
	h.backend.FailRefresh(true)
	h.backend.FailLogout(true)

	_, err := h.pipeline.Execute(context.Background(), Request{Method: http.MethodPost, Path: apitest.PathEcho})
	require.Error(t, err)
	assert.Equal(t, int64(0), h.navigations.Load())
	assert.False(t, h.session.Authenticated())
}

func TestExecute_SecondUnauthorizedIsReturned(t *testing.T) {
	h := newHarness(t, nil)
	h.backend.RejectAll(true)

	resp, err := h.pipeline.Execute(context.Background(), Request{Method: http.MethodPost, Path: apitest.PathEcho})
	require.NoError(t, err)
	assert.True(t, resp.Unauthorized())
	assert.True(t, resp.Retried)
	assert.Equal(t, 1, h.backend.Calls(refreshRoute))
	assert.Equal(t, 2, h.backend.Calls(echoRoute))
	assert.True(t, h.session.Authenticated())

	decodeErr := resp.Decode("echo", nil)
	assert.True(t, errors.IsKind(decodeErr, errors.KindAuthExpired))
}

func TestExecute_MultipartRetriedWithoutExplicitContentType(t *testing.T) {
	h := newHarness(t, nil)
	h.backend.Expire(h.session.Credential())

	resp, err := h.pipeline.Execute(context.Background(), Request{
		Method: http.MethodPost,
		Path:   apitest.PathEcho,
		Header: map[string]string{"Content-Type": "application/json"},
		Multipart: &Multipart{
			Fields: map[string]string{"title": "Week 1"},
			Files:  []FilePart{{Field: "file", FileName: "notes.txt", ContentType: "text/plain", Content: []byte("lecture-notes")}},
		},
	})
	require.NoError(t, err)
	assert.True(t, resp.Retried)

	captured := h.backend.Captured(echoRoute)
	require.Len(t, captured, 2)
	for _, c := range captured {
		assert.Contains(t, c.ContentType, "multipart/form-data; boundary=")
		assert.Contains(t, string(c.Body), "lecture-notes")
		assert.Contains(t, string(c.Body), "Week 1")
	}
}

func TestExecute_ConcurrentUnauthorizedShareRefresh(t *testing.T) {
	const callers = 4
	h := newHarness(t, nil)
	h.backend.Expire(h.session.Credential())
	release := h.backend.HoldRefresh()
	defer release()

	var wg sync.WaitGroup
	statuses := make([]int, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := h.pipeline.Execute(context.Background(), Request{Method: http.MethodPost, Path: apitest.PathEcho})
			if err == nil {
				statuses[i] = resp.Status
			}
		}(i)
	}

	require.Eventually(t, func() bool { return h.coordinator.Stats().Joined >= callers }, 2*time.Second, time.Millisecond)
	release()
	wg.Wait()

	assert.Equal(t, 1, h.backend.Calls(refreshRoute))
	for _, status := range statuses {
		assert.Equal(t, http.StatusOK, status)
	}
}

func TestExecute_ProactiveRefresh(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.RefreshSkew = 2 * time.Hour
		o.ExpiresAt = func(credential string) (time.Time, bool) {
			claims, err := auth.InspectCredential(credential)
			return claims.ExpiresAt, err == nil
		}
	})
	held := h.session.Credential()

	resp, err := h.pipeline.Execute(context.Background(), Request{Method: http.MethodPost, Path: apitest.PathEcho})
	require.NoError(t, err)
	assert.False(t, resp.Retried)
	assert.Equal(t, 1, h.backend.Calls(refreshRoute))

	captured := h.backend.Captured(echoRoute)
	require.Len(t, captured, 1)
	assert.NotEqual(t, "Bearer "+held, captured[0].Authorization)
}

func TestExecute_TransportFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.backend.Close()

	_, err := h.pipeline.Execute(context.Background(), Request{Method: http.MethodGet, Path: apitest.PathEcho})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindTransport))
	assert.True(t, h.session.Authenticated())
}

func TestGetJSON_DecodesEnvelope(t *testing.T) {
	h := newHarness(t, nil)

	var identity auth.Identity
	require.NoError(t, h.pipeline.GetJSON(context.Background(), apitest.PathIdentity, nil, &identity))
	assert.Equal(t, "alice", identity.Username)

	var missing map[string]any
	err := h.pipeline.GetJSON(context.Background(), apitest.PathResources+"/nope", nil, &missing)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindDomain))
}

func TestNewPipeline_Validates(t *testing.T) {
	_, err := NewPipeline(Options{})
	assert.True(t, errors.IsKind(err, errors.KindBootstrap))
}

func TestRouteNavigator(t *testing.T) {
	var seen []string
	nav := NewRouteNavigator("/", func(p string) { seen = append(seen, p) })
	nav.Navigate("/login")
	assert.Equal(t, "/login", nav.Current())
	assert.Equal(t, []string{"/login"}, seen)
}
