package session_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-campus-session/internal/apitest"
	"github.com/jrsteele09/go-campus-session/internal/config"
	fakejar "github.com/jrsteele09/go-campus-session/jar/repofake"
	"github.com/jrsteele09/go-campus-session/session"
	"github.com/jrsteele09/go-campus-session/sessionmodel"
	"github.com/jrsteele09/go-campus-session/store"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func TestTransportAttachesCredential(t *testing.T) {
	t.Run("every request after login carries the credential", func(t *testing.T) {
		f := setupTestFixture(t)
		f.login(t)

		for i := 0; i < 5; i++ {
			resp, err := f.get(context.Background(), "room-1")
			require.NoError(t, err)
			require.Equal(t, http.StatusOK, resp.StatusCode)
		}
		require.Equal(t, 5, f.server.Authorized(apitest.RouteResource))
	})

	t.Run("anonymous requests pass through untouched", func(t *testing.T) {
		f := setupTestFixture(t)

		resp, err := f.get(context.Background(), "room-1")
		require.NoError(t, err)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.Equal(t, 0, f.metrics.invalidated(session.ReasonAuthExpired))
	})

	t.Run("bearer injection", func(t *testing.T) {
		f := setupTestFixture(t, session.WithInjectionMode(config.InjectBearer))
		f.login(t)

		resp, err := f.get(context.Background(), "room-1")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("other origins never see the credential", func(t *testing.T) {
		f := setupTestFixture(t)
		f.login(t)

		var cookieHeader string
		other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookieHeader = r.Header.Get("Cookie")
			w.WriteHeader(http.StatusOK)
		}))
		defer other.Close()

		resp, err := f.manager.Client().Get(other.URL + "/anything")
		require.NoError(t, err)
		resp.Body.Close()
		require.Empty(t, cookieHeader)
	})

	t.Run("requests are tagged", func(t *testing.T) {
		f := setupTestFixture(t)
		var headers http.Header
		f.manager = f.newManager(t, session.WithUserAgent("test-agent"), session.WithBaseTransport(
			roundTripperFunc(func(req *http.Request) (*http.Response, error) {
				headers = req.Header.Clone()
				return http.DefaultTransport.RoundTrip(req)
			})))

		_, err := f.get(context.Background(), "room-1")
		require.NoError(t, err)
		require.NotEmpty(t, headers.Get("X-Request-ID"))
		require.Equal(t, "test-agent", headers.Get("User-Agent"))
	})
}

func TestTransportRepairsJar(t *testing.T) {
	t.Run("cleared jar is repaired from the durable store", func(t *testing.T) {
		f := setupTestFixture(t)
		f.login(t)
		require.NoError(t, f.jar.ClearAll())

		resp, err := f.get(context.Background(), "room-1")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		v, ok := f.jarValue(t)
		require.True(t, ok)
		require.Equal(t, "tok1", v)
		require.Equal(t, 1, f.metrics.repairs())
		require.True(t, f.manager.State().IsAuthenticated())
	})

	t.Run("failed repair write still uses the durable credential", func(t *testing.T) {
		f := setupTestFixture(t)
		f.login(t)
		require.NoError(t, f.jar.ClearAll())
		f.jar.Fail(fakejar.OpSet, 1)

		resp, err := f.get(context.Background(), "room-1")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		_, ok := f.jarValue(t)
		require.False(t, ok)
	})

	t.Run("store lookups of concurrent requests overlap", func(t *testing.T) {
		f := setupTestFixture(t, session.WithLookupTimeout(2*time.Second))
		f.store.SetDelay(150 * time.Millisecond)

		start := time.Now()
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = f.get(context.Background(), "room-1")
			}()
		}
		wg.Wait()

		require.Less(t, time.Since(start), 600*time.Millisecond)
		require.Equal(t, 8, f.store.Calls(store.OpGet))
	})
}

func TestTransportDegradesOnStorageFailure(t *testing.T) {
	t.Run("unreadable store sends the request unauthenticated", func(t *testing.T) {
		f := setupTestFixture(t)
		f.login(t)
		require.NoError(t, f.jar.ClearAll())
		f.store.Fail(store.OpGet, "", -1)

		resp, err := f.get(context.Background(), "room-1")
		require.NoError(t, err)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		// No credential was attached, so the 401 says nothing about the session.
		require.True(t, f.manager.State().IsAuthenticated())
		require.Equal(t, "tok1", f.store.Snapshot()[sessionmodel.KeyCredential])
	})

	t.Run("unreadable jar sends the request unauthenticated", func(t *testing.T) {
		f := setupTestFixture(t)
		f.login(t)
		f.jar.Fail(fakejar.OpGet, 1)

		resp, err := f.get(context.Background(), "room-1")
		require.NoError(t, err)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.True(t, f.manager.State().IsAuthenticated())
	})

	t.Run("slow store lookups are bounded", func(t *testing.T) {
		f := setupTestFixture(t, session.WithLookupTimeout(50*time.Millisecond))
		f.login(t)
		require.NoError(t, f.jar.ClearAll())
		f.store.SetDelay(2 * time.Second)

		start := time.Now()
		resp, err := f.get(context.Background(), "room-1")
		require.NoError(t, err)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.Less(t, time.Since(start), time.Second)
	})
}

func TestTransportAuthFailure(t *testing.T) {
	t.Run("401 on an authenticated request clears every tier", func(t *testing.T) {
		f := setupTestFixture(t)
		p := &mockPresenter{}
		p.Test(t)
		p.On("OnSessionStateChanged", mock.MatchedBy(isAuthenticated)).Once()
		p.On("OnSessionStateChanged", mock.MatchedBy(isAnonymous)).Once()
		f.manager = f.newManager(t, session.WithPresenter(p))

		f.login(t)
		f.server.Revoke("tok1")

		_, err := f.get(context.Background(), "room-1")
		require.ErrorIs(t, err, sessionmodel.ErrAuthExpired)
		require.Equal(t, sessionmodel.MessageSignInAgain, sessionmodel.UserMessage(err))

		f.requireEmpty(t)
		p.AssertExpectations(t)
		require.Equal(t, 1, f.metrics.invalidated(session.ReasonAuthExpired))
	})

	t.Run("concurrent failures invalidate once", func(t *testing.T) {
		f := setupTestFixture(t)
		p := &mockPresenter{}
		p.Test(t)
		p.On("OnSessionStateChanged", mock.MatchedBy(isAuthenticated)).Once()
		p.On("OnSessionStateChanged", mock.MatchedBy(isAnonymous)).Once()
		f.manager = f.newManager(t, session.WithPresenter(p))

		f.login(t)
		f.server.Revoke("tok1")

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				// Later requests find the jar already cleared and go out
				// unauthenticated; either outcome is fine here.
				_, _ = f.get(context.Background(), "room-1")
			}()
		}
		wg.Wait()

		f.requireEmpty(t)
		p.AssertExpectations(t)
		p.AssertNumberOfCalls(t, "OnSessionStateChanged", 2)
		require.Equal(t, 1, f.metrics.invalidated(session.ReasonAuthExpired))
	})

	t.Run("failure for a superseded credential leaves the new login alone", func(t *testing.T) {
		f := setupTestFixture(t)
		f.login(t)
		f.server.Revoke("tok1")

		var once sync.Once
		f.manager = f.newManager(t, session.WithBaseTransport(
			roundTripperFunc(func(req *http.Request) (*http.Response, error) {
				if strings.HasPrefix(req.URL.Path, "/resources/") {
					once.Do(func() {
						// The user signs in again while the stale request is in flight.
						_, err := f.manager.Login(context.Background(), testEmail, testPassword)
						require.NoError(t, err)
					})
				}
				return http.DefaultTransport.RoundTrip(req)
			})))

		_, err := f.get(context.Background(), "room-1")
		require.ErrorIs(t, err, sessionmodel.ErrAuthExpired)

		v, ok := f.jarValue(t)
		require.True(t, ok)
		require.Equal(t, "tok2", v)
		require.Equal(t, "tok2", f.store.Snapshot()[sessionmodel.KeyCredential])
		require.True(t, f.manager.State().IsAuthenticated())
		require.Equal(t, 0, f.metrics.invalidated(session.ReasonAuthExpired))
	})

	t.Run("failure does not wait for an in-flight login", func(t *testing.T) {
		f := setupTestFixture(t)
		f.login(t)
		f.server.Revoke("tok1")

		entered := make(chan struct{})
		release := make(chan struct{})
		var enterOnce, releaseOnce sync.Once
		unblock := func() { releaseOnce.Do(func() { close(release) }) }
		t.Cleanup(unblock)

		f.manager = f.newManager(t, session.WithBaseTransport(
			roundTripperFunc(func(req *http.Request) (*http.Response, error) {
				if req.URL.Path == "/auth/login" {
					enterOnce.Do(func() {
						close(entered)
						<-release
					})
				}
				return http.DefaultTransport.RoundTrip(req)
			})))

		loginErr := make(chan error, 1)
		go func() {
			_, err := f.manager.Login(context.Background(), testEmail, testPassword)
			loginErr <- err
		}()
		<-entered

		start := time.Now()
		_, err := f.get(context.Background(), "room-1")
		require.ErrorIs(t, err, sessionmodel.ErrAuthExpired)
		require.Less(t, time.Since(start), time.Second)
		f.requireEmpty(t)

		unblock()
		require.NoError(t, <-loginErr)
		v, ok := f.jarValue(t)
		require.True(t, ok)
		require.Equal(t, "tok2", v)
		require.True(t, f.manager.State().IsAuthenticated())
	})

	t.Run("other error statuses pass through", func(t *testing.T) {
		f := setupTestFixture(t)
		f.login(t)

		req, err := http.NewRequest(http.MethodGet, f.server.URL+"/missing", nil)
		require.NoError(t, err)
		resp, err := f.manager.Client().Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
		require.True(t, f.manager.State().IsAuthenticated())
	})
}

func TestTokenSource(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.manager.TokenSource().Token()
	require.ErrorIs(t, err, sessionmodel.ErrAuthExpired)

	f.login(t)
	tok, err := f.manager.TokenSource().Token()
	require.NoError(t, err)
	require.Equal(t, "tok1", tok.AccessToken)
	require.True(t, tok.Valid())
}
