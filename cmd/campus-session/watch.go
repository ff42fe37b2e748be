package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-campus-session/sessionmodel"
)

// watch keeps the session warm by refreshing the profile on an interval and
// exposes the session metrics until it is stopped.
func (a *app) watch(ctx context.Context, args []string) error {
	fs := newFlagSet("watch")
	addr := fs.String("addr", ":9090", "listen address for /metrics and /healthz")
	interval := fs.Duration("interval", 5*time.Minute, "profile refresh interval")
	if err := fs.Parse(args); err != nil || *interval <= 0 {
		return errUsage
	}

	a.manager.Reconcile(ctx)

	server := &http.Server{Addr: *addr, Handler: a.router(), ReadHeaderTimeout: 5 * time.Second}
	errs := make(chan error, 1)
	go func() {
		errs <- listenAndServe(server)
	}()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return shutdown(server)
		case err := <-errs:
			return err
		case <-ticker.C:
			if !a.manager.State().IsAuthenticated() {
				continue
			}
			if _, err := a.manager.RefreshProfile(ctx); err != nil {
				log.Warn().Err(err).Msg("profile refresh failed")
			}
		}
	}
}

func (a *app) router() http.Handler {
	metricsHandler := promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})

	r := mux.NewRouter()
	r.HandleFunc("/metrics", chainMiddleware(metricsHandler.ServeHTTP, loggingMiddleware, recoverMiddleware)).Methods(http.MethodGet)
	r.HandleFunc("/healthz", chainMiddleware(a.healthz, loggingMiddleware, recoverMiddleware)).Methods(http.MethodGet)
	return r
}

type healthResponse struct {
	State  string `json:"state"`
	UserID string `json:"userId,omitempty"`
}

func (a *app) healthz(w http.ResponseWriter, _ *http.Request) {
	state := a.manager.State()
	resp := healthResponse{State: state.Kind.String()}
	if state.Kind == sessionmodel.Authenticated {
		resp.UserID = state.Profile.ID
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Err(err).Msg("failed to write health response")
	}
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("metrics listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}
