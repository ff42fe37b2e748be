package main

import (
	"context"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-campus-session/internal/config"
	apperrors "github.com/jrsteele09/go-campus-session/internal/errors"
	"github.com/jrsteele09/go-campus-session/jar"
	"github.com/jrsteele09/go-campus-session/metrics"
	"github.com/jrsteele09/go-campus-session/session"
	"github.com/jrsteele09/go-campus-session/sessionmodel"
	"github.com/jrsteele09/go-campus-session/store"
	"github.com/jrsteele09/go-campus-session/store/encrypted"
	"github.com/jrsteele09/go-campus-session/store/sqlstore"
)

// app wires one session manager for the lifetime of a command.
type app struct {
	manager  *session.Manager
	registry *prometheus.Registry
	stdout   io.Writer
	closers  []io.Closer
}

func newApp(ctx context.Context, c config.Config, stdout io.Writer) (*app, error) {
	durable, closer, err := openStore(ctx, c)
	if err != nil {
		return nil, err
	}
	a := &app{registry: prometheus.NewRegistry(), stdout: stdout}
	if closer != nil {
		a.closers = append(a.closers, closer)
	}

	cookies, err := jar.NewCookieJar(c.GetCookieName())
	if err != nil {
		a.Close()
		return nil, err
	}
	a.manager, err = session.NewManager(c.GetAPIURL(), session.Stores{Jar: cookies, Durable: durable},
		session.WithConfig(c),
		session.WithMetrics(metrics.NewPrometheusRecorderWithRegistry(a.registry)),
		session.WithPresenter(session.PresenterFunc(a.onStateChanged)),
	)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// openStore opens the durable store the configuration selects. The closer is
// nil for stores that hold no handle.
func openStore(ctx context.Context, c config.StoreConfig) (store.Store, io.Closer, error) {
	key := c.GetStoreKey()
	if key == "" {
		return nil, nil, errors.Wrap(apperrors.ErrInvalidConfig, "SESSION_STORE_KEY is required")
	}
	path := c.GetStorePath()

	switch driver := c.GetStoreDriver(); driver {
	case config.DriverFile:
		fs, err := encrypted.Open(path, key)
		if err != nil {
			return nil, nil, err
		}
		return fs, nil, nil
	case config.DriverSQLite:
		s, err := sqlstore.Open(ctx, path, key, encrypted.DefaultKDFParams())
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	default:
		return nil, nil, apperrors.Wrapf(apperrors.ErrUnknownDriver, "SESSION_STORE_DRIVER %q", driver)
	}
}

func (a *app) Close() {
	if a.manager != nil {
		a.manager.Wait()
	}
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close store")
		}
	}
}

func (a *app) onStateChanged(state sessionmodel.State) {
	log.Debug().Str("state", state.Kind.String()).Str("user_id", state.Profile.ID).Msg("session state changed")
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.stdout, format, args...)
}

func displayName(p sessionmodel.Profile) string {
	switch {
	case p.Name != "" && p.Email != "":
		return fmt.Sprintf("%s <%s>", p.Name, p.Email)
	case p.Name != "":
		return p.Name
	case p.Email != "":
		return p.Email
	case p.ID != "":
		return p.ID
	default:
		return "unknown user"
	}
}
