package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-campus-session/api"
	fakejar "github.com/jrsteele09/go-campus-session/jar/repofake"
	"github.com/jrsteele09/go-campus-session/session"
	"github.com/jrsteele09/go-campus-session/sessionmodel"
	"github.com/jrsteele09/go-campus-session/store"
)

// restart simulates a new process: the jar is gone, the durable store stays.
func (f *testFixture) restart(t *testing.T, options ...session.Option) {
	t.Helper()
	f.jar = fakejar.NewFakeJar()
	f.manager = f.newManager(t, options...)
}

func TestReconcile(t *testing.T) {
	ctx := context.Background()

	t.Run("restores a complete session", func(t *testing.T) {
		f := setupTestFixture(t)
		f.login(t)
		f.restart(t)

		state := f.manager.Reconcile(ctx)
		require.True(t, state.IsAuthenticated())
		require.Equal(t, testUserID, state.Profile.ID)

		v, ok := f.jarValue(t)
		require.True(t, ok)
		require.Equal(t, "tok1", v)

		f.manager.Wait()
		require.Equal(t, 1, f.server.Calls(api.RouteAuthMyInfo))
		require.True(t, f.manager.State().IsAuthenticated())
	})

	t.Run("runs once", func(t *testing.T) {
		f := setupTestFixture(t)
		f.login(t)
		f.restart(t)

		f.manager.Reconcile(ctx)
		f.manager.Wait()
		f.manager.Reconcile(ctx)
		f.manager.Wait()
		require.Equal(t, 1, f.server.Calls(api.RouteAuthMyInfo))
	})

	t.Run("session revoked while the process was down", func(t *testing.T) {
		f := setupTestFixture(t)
		f.login(t)
		f.server.RevokeAll()
		f.restart(t)

		state := f.manager.Reconcile(ctx)
		require.True(t, state.IsAuthenticated())

		f.manager.Wait()
		f.requireEmpty(t)
		require.Equal(t, 1, f.metrics.invalidated(session.ReasonAuthExpired))
	})

	t.Run("presenter may use the client while a revoked session is restored", func(t *testing.T) {
		f := setupTestFixture(t)
		f.login(t)
		f.server.RevokeAll()

		var lock sync.Mutex
		var seen []sessionmodel.StateKind
		var requestErr error
		f.restart(t, session.WithPresenter(session.PresenterFunc(func(state sessionmodel.State) {
			lock.Lock()
			seen = append(seen, state.Kind)
			lock.Unlock()
			if state.IsAuthenticated() {
				_, err := f.get(context.Background(), "room-1")
				lock.Lock()
				requestErr = err
				lock.Unlock()
			}
		})))

		done := make(chan sessionmodel.State, 1)
		go func() {
			done <- f.manager.Reconcile(ctx)
		}()
		select {
		case state := <-done:
			require.False(t, state.IsAuthenticated())
		case <-time.After(3 * time.Second):
			t.Fatal("Reconcile did not return")
		}
		f.manager.Wait()

		f.requireEmpty(t)
		lock.Lock()
		defer lock.Unlock()
		require.ErrorIs(t, requestErr, sessionmodel.ErrAuthExpired)
		require.Equal(t, []sessionmodel.StateKind{sessionmodel.Authenticated, sessionmodel.Anonymous}, seen)
		require.Equal(t, 1, f.metrics.invalidated(session.ReasonAuthExpired))
	})

	t.Run("flag without credential is signed out", func(t *testing.T) {
		f := setupTestFixture(t)
		require.NoError(t, f.store.Set(ctx, sessionmodel.KeyAuthenticated, sessionmodel.AuthenticatedValue))
		require.NoError(t, f.store.Set(ctx, sessionmodel.KeyProfile, `{"id":"u1"}`))

		state := f.manager.Reconcile(ctx)
		require.False(t, state.IsAuthenticated())
		f.manager.Wait()
		f.requireEmpty(t)
		require.Equal(t, 0, f.server.Calls(api.RouteAuthMyInfo))
	})

	t.Run("credential without flag is signed out", func(t *testing.T) {
		f := setupTestFixture(t)
		require.NoError(t, f.store.Set(ctx, sessionmodel.KeyCredential, "tok9"))

		state := f.manager.Reconcile(ctx)
		require.False(t, state.IsAuthenticated())
		f.requireEmpty(t)
		require.Equal(t, 1, f.metrics.invalidated(session.ReasonReconcile))
	})

	t.Run("empty store stays signed out quietly", func(t *testing.T) {
		f := setupTestFixture(t)

		state := f.manager.Reconcile(ctx)
		require.False(t, state.IsAuthenticated())
		require.Equal(t, 0, f.metrics.invalidated(session.ReasonReconcile))
	})

	t.Run("unreadable cached profile waits for the refresh", func(t *testing.T) {
		f := setupTestFixture(t)
		f.login(t)
		require.NoError(t, f.store.Set(ctx, sessionmodel.KeyProfile, "{broken"))
		f.restart(t)

		state := f.manager.Reconcile(ctx)
		require.True(t, state.IsAuthenticated())
		require.Empty(t, state.Profile.ID)

		f.manager.Wait()
		require.Equal(t, testUserID, f.manager.State().Profile.ID)
	})

	t.Run("storage failure starts signed out without clearing", func(t *testing.T) {
		f := setupTestFixture(t)
		f.login(t)
		f.store.Fail(store.OpGet, "", -1)
		f.restart(t)

		state := f.manager.Reconcile(ctx)
		require.False(t, state.IsAuthenticated())
		f.manager.Wait()

		f.store.Heal()
		require.Equal(t, "tok1", f.store.Snapshot()[sessionmodel.KeyCredential])
	})

	t.Run("jar already holding the credential is left alone", func(t *testing.T) {
		f := setupTestFixture(t)
		f.login(t)
		f.manager = f.newManager(t)

		state := f.manager.Reconcile(ctx)
		require.True(t, state.IsAuthenticated())
		f.manager.Wait()
		require.Equal(t, 0, f.metrics.repairs())
	})
}
