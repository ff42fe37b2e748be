package session_test

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-campus-session/internal/apitest"
	"github.com/jrsteele09/go-campus-session/jar"
	fakejar "github.com/jrsteele09/go-campus-session/jar/repofake"
	"github.com/jrsteele09/go-campus-session/metrics"
	"github.com/jrsteele09/go-campus-session/session"
	"github.com/jrsteele09/go-campus-session/sessionmodel"
	fakestore "github.com/jrsteele09/go-campus-session/store/repofake"
)

const (
	testEmail    = "a@x.com"
	testPassword = "secret1"
	testUserID   = "u1"
)

// mockPresenter records state transitions.
type mockPresenter struct {
	mock.Mock
}

func (p *mockPresenter) OnSessionStateChanged(state sessionmodel.State) {
	p.Called(state)
}

// countingRecorder counts what the manager reports.
type countingRecorder struct {
	metrics.NoopRecorder

	lock          sync.Mutex
	invalidations map[string]int
	authFailures  int
	jarRepairs    int
	logins        map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{invalidations: make(map[string]int), logins: make(map[string]int)}
}

func (r *countingRecorder) RecordInvalidation(reason string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.invalidations[reason]++
}

func (r *countingRecorder) RecordAuthFailure() {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.authFailures++
}

func (r *countingRecorder) RecordJarRepair() {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.jarRepairs++
}

func (r *countingRecorder) RecordLogin(result string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.logins[result]++
}

func (r *countingRecorder) invalidated(reason string) int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.invalidations[reason]
}

func (r *countingRecorder) repairs() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.jarRepairs
}

// testFixture holds all test dependencies
type testFixture struct {
	server    *apitest.Server
	jar       *fakejar.FakeJar
	store     *fakestore.FakeStore
	presenter *mockPresenter
	metrics   *countingRecorder
	manager   *session.Manager
}

// setupTestFixture creates a manager against a fake API with one user. The
// presenter accepts any transition; tests that count them set their own
// expectations with newManager.
func setupTestFixture(t *testing.T, options ...session.Option) *testFixture {
	t.Helper()

	f := &testFixture{
		server:    apitest.New(t),
		jar:       fakejar.NewFakeJar(),
		store:     fakestore.NewFakeStore(),
		presenter: &mockPresenter{},
		metrics:   newCountingRecorder(),
	}
	f.server.AddUser(testEmail, testPassword, sessionmodel.Profile{ID: testUserID, Name: "Alice"})
	f.presenter.On("OnSessionStateChanged", mock.Anything).Maybe()
	f.manager = f.newManager(t, options...)
	return f
}

// newManager builds another manager over the fixture's server and stores, the
// way a restarted process would see them.
func (f *testFixture) newManager(t *testing.T, options ...session.Option) *session.Manager {
	t.Helper()
	opts := append([]session.Option{
		session.WithPresenter(f.presenter),
		session.WithMetrics(f.metrics),
		session.WithClearPolicy(3, time.Millisecond),
		session.WithLookupTimeout(200 * time.Millisecond),
	}, options...)
	m, err := session.NewManager(f.server.URL, session.Stores{Jar: f.jar, Durable: f.store}, opts...)
	require.NoError(t, err)
	return m
}

func (f *testFixture) login(t *testing.T) sessionmodel.Profile {
	t.Helper()
	profile, err := f.manager.Login(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	return profile
}

// get fetches a protected resource through the manager's client.
func (f *testFixture) get(ctx context.Context, name string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.server.ResourceURL(name), nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.manager.Client().Do(req)
	if err != nil {
		return nil, err
	}
	resp.Body.Close()
	return resp, nil
}

func (f *testFixture) jarValue(t *testing.T) (string, bool) {
	t.Helper()
	origin, err := jar.ParseOrigin(f.server.URL)
	require.NoError(t, err)
	v, ok, err := f.jar.Get(origin)
	require.NoError(t, err)
	return v, ok
}

// requireEmpty asserts that no tier holds any session data.
func (f *testFixture) requireEmpty(t *testing.T) {
	t.Helper()
	_, ok := f.jarValue(t)
	require.False(t, ok, "jar still holds a credential")
	require.Empty(t, f.store.Snapshot())
	require.False(t, f.manager.State().IsAuthenticated())
}

func isAnonymous(s sessionmodel.State) bool {
	return s.Kind == sessionmodel.Anonymous
}

func isAuthenticated(s sessionmodel.State) bool {
	return s.Kind == sessionmodel.Authenticated
}
