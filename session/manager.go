// Package session manages the authenticated session of the reservation API
// client. The credential lives in two tiers: a process-scoped jar, which is
// the fast path consulted by every request, and a durable encrypted store,
// which is the backup of record. Login writes through both, requests repair
// the jar from the store, and invalidation clears both.
package session

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-campus-session/api"
	"github.com/jrsteele09/go-campus-session/internal/config"
	"github.com/jrsteele09/go-campus-session/jar"
	"github.com/jrsteele09/go-campus-session/metrics"
	"github.com/jrsteele09/go-campus-session/sessionmodel"
	"github.com/jrsteele09/go-campus-session/store"
)

const (
	defaultLookupTimeout = 2 * time.Second
	defaultClearRetries  = 3
	defaultClearBackoff  = 50 * time.Millisecond
	defaultHTTPTimeout   = 30 * time.Second
	defaultUserAgent     = "campus-session/1"
)

// Invalidation reasons, used in logs and metrics.
const (
	ReasonLogout        = "logout"
	ReasonAuthExpired   = "auth_expired"
	ReasonExplicit      = "explicit"
	ReasonLoginRollback = "login_rollback"
	ReasonReconcile     = "reconcile"
)

// Stores holds the two credential tiers.
type Stores struct {
	Jar     jar.Jar     // Transient, process scoped
	Durable store.Store // Encrypted, survives restarts
}

// Manager is the session core. One Manager serves one API origin.
type Manager struct {
	origin     string
	cookieName string
	injection  string
	userAgent  string

	jar     jar.Jar
	durable store.Store
	api     *api.Client

	baseTransport http.RoundTripper
	httpTimeout   time.Duration
	httpClient    *http.Client

	presenter Presenter
	metrics   metrics.Recorder
	logger    zerolog.Logger

	lookupTimeout time.Duration
	clearRetries  int
	clearBackoff  time.Duration

	// flowMu serializes Login, Logout, Invalidate and Reconcile end to end,
	// network calls included. The response interceptor never takes it.
	flowMu sync.Mutex

	// stateMu guards the session keys in both tiers, pending and state
	// transitions. It is only held across local storage I/O.
	stateMu sync.Mutex
	pending map[clearStep]struct{}

	// repairMu orders jar repairs against the start of a clear so a repair can
	// never write back a credential that is being invalidated.
	repairMu      sync.Mutex
	repairBlocked bool

	// epoch changes whenever the authoritative credential does: on every login,
	// every effective invalidation and every completed clear.
	epoch atomic.Uint64

	state         *stateHolder
	signals       *signalQueue
	reconcileOnce sync.Once
	background    sync.WaitGroup
}

// Option defines a function type to modify the Manager instance.
type Option func(*Manager)

// WithPresenter sets the collaborator told about state transitions.
func WithPresenter(p Presenter) Option {
	return func(m *Manager) {
		m.presenter = p
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(m *Manager) {
		m.metrics = r
	}
}

// WithLogger sets the logger. The global zerolog logger is used otherwise.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithCookieName sets the cookie the credential travels in.
func WithCookieName(name string) Option {
	return func(m *Manager) {
		m.cookieName = name
	}
}

// WithInjectionMode selects how the credential is attached to requests:
// config.InjectCookie (default) or config.InjectBearer.
func WithInjectionMode(mode string) Option {
	return func(m *Manager) {
		m.injection = mode
	}
}

// WithLookupTimeout bounds durable store lookups on the request path.
func WithLookupTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.lookupTimeout = d
	}
}

// WithClearPolicy sets how many attempts each clear gets and the backoff
// between them.
func WithClearPolicy(attempts int, backoff time.Duration) Option {
	return func(m *Manager) {
		m.clearRetries = attempts
		m.clearBackoff = backoff
	}
}

// WithBaseTransport sets the transport requests are sent on after the session
// interceptors ran. http.DefaultTransport is used otherwise.
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(m *Manager) {
		m.baseTransport = rt
	}
}

// WithHTTPTimeout sets the client timeout for API calls.
func WithHTTPTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.httpTimeout = d
	}
}

// WithUserAgent sets the User-Agent added to requests that carry none.
func WithUserAgent(ua string) Option {
	return func(m *Manager) {
		m.userAgent = ua
	}
}

// WithConfig applies the session and API settings from cfg.
func WithConfig(cfg interface {
	config.SessionConfig
	config.APIConfig
}) Option {
	return func(m *Manager) {
		m.cookieName = cfg.GetCookieName()
		m.injection = cfg.GetInjectionMode()
		m.lookupTimeout = cfg.GetLookupTimeout()
		m.clearRetries = cfg.GetClearRetries()
		m.clearBackoff = cfg.GetClearBackoff()
		m.httpTimeout = cfg.GetHTTPTimeout()
		m.userAgent = cfg.GetUserAgent()
	}
}

// NewManager initializes a Manager for the API at baseURL.
func NewManager(baseURL string, stores Stores, options ...Option) (*Manager, error) {
	if stores.Jar == nil {
		return nil, errors.New("[NewManager] jar is required")
	}
	if stores.Durable == nil {
		return nil, errors.New("[NewManager] durable store is required")
	}
	origin, err := jar.ParseOrigin(baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "[NewManager] invalid base URL")
	}

	m := &Manager{
		origin:        origin,
		cookieName:    sessionmodel.DefaultCookieName,
		injection:     config.InjectCookie,
		userAgent:     defaultUserAgent,
		jar:           stores.Jar,
		durable:       stores.Durable,
		baseTransport: http.DefaultTransport,
		httpTimeout:   defaultHTTPTimeout,
		presenter:     noopPresenter{},
		metrics:       metrics.NewNoopRecorder(),
		logger:        log.Logger,
		lookupTimeout: defaultLookupTimeout,
		clearRetries:  defaultClearRetries,
		clearBackoff:  defaultClearBackoff,
		pending:       make(map[clearStep]struct{}),
		state:         newStateHolder(),
	}
	for _, opt := range options {
		opt(m)
	}
	if m.cookieName == "" {
		return nil, errors.New("[NewManager] cookie name is required")
	}
	if m.injection != config.InjectCookie && m.injection != config.InjectBearer {
		return nil, errors.Errorf("[NewManager] unknown injection mode %q", m.injection)
	}
	if m.presenter == nil {
		m.presenter = noopPresenter{}
	}
	m.signals = &signalQueue{presenter: m.presenter}
	if m.metrics == nil {
		m.metrics = metrics.NewNoopRecorder()
	}
	if m.clearRetries < 1 {
		m.clearRetries = 1
	}
	m.logger = m.logger.With().Str("component", "session").Str("origin", origin).Logger()

	m.httpClient = &http.Client{
		Transport: &Transport{manager: m, base: m.baseTransport},
		Timeout:   m.httpTimeout,
	}
	m.api, err = api.NewClient(api.Config{BaseURL: baseURL, HTTPClient: m.httpClient})
	if err != nil {
		return nil, errors.Wrap(err, "[NewManager] failed to create api client")
	}
	return m, nil
}

// Origin returns the API origin the session is scoped to.
func (m *Manager) Origin() string {
	return m.origin
}

// State returns the current session state.
func (m *Manager) State() sessionmodel.State {
	return m.state.get()
}

// Client returns an http.Client whose requests pass through the session
// interceptors. Use it for every call to the reservation API.
func (m *Manager) Client() *http.Client {
	return m.httpClient
}

// API returns the endpoint client bound to the intercepted http.Client.
func (m *Manager) API() *api.Client {
	return m.api
}

// Wait blocks until background work started by Reconcile has finished.
func (m *Manager) Wait() {
	m.background.Wait()
}

// transition must be called with stateMu held. The presenter hears about it
// from notify, once the caller has released its locks.
func (m *Manager) transition(next sessionmodel.State) {
	if m.state.set(next) {
		m.logger.Info().Str("state", next.Kind.String()).Msg("session state changed")
		m.signals.push(next)
	}
}

// notify delivers queued transitions. Deferred by every operation that can
// transition, ahead of its locks, so it runs after they are released.
func (m *Manager) notify() {
	m.signals.flush()
}

func (m *Manager) attributes() jar.Attributes {
	return jar.DefaultAttributes(m.origin)
}

// detached keeps local store writes running when the caller's context is
// cancelled after the server has already acted.
func detached(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
