package session

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-campus-session/api"
	"github.com/jrsteele09/go-campus-session/sessionmodel"
)

// Login authenticates with identifier and secret. On success the credential
// has been written to the jar and the durable store, the profile snapshot and
// authenticated flag are stored, and the state is Authenticated.
//
// If the server accepts the login but a local write fails, every tier is
// cleared again and a PartialLoginWriteError is returned; the user is not
// logged in. Failed logins write nothing.
func (m *Manager) Login(ctx context.Context, identifier, secret string) (sessionmodel.Profile, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || secret == "" {
		m.metrics.RecordLogin("invalid_input")
		return sessionmodel.Profile{}, errors.Wrap(sessionmodel.ErrInvalidInput, "identifier and secret are required")
	}

	defer m.notify()
	m.flowMu.Lock()
	defer m.flowMu.Unlock()

	resp, err := m.api.Login(withFlow(ctx, false), sessionmodel.LoginRequest{Email: identifier, Password: secret})
	if err != nil {
		result := loginResult(err)
		m.metrics.RecordLogin(result)
		m.logger.Info().Err(err).Str("result", result).Msg("login failed")
		return sessionmodel.Profile{}, err
	}

	credential := extractCredential(resp, m.cookieName)
	if credential == "" {
		m.metrics.RecordLogin("unknown")
		m.logger.Warn().Int("status", resp.Status).Msg("login response carried no credential")
		return sessionmodel.Profile{}, errors.Wrap(sessionmodel.ErrUnknown, "login response carried no credential")
	}

	var profile sessionmodel.Profile
	if resp.Profile != nil {
		profile = *resp.Profile
	}

	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	writeCtx := detached(ctx)
	m.epoch.Add(1)
	if err := m.writeSession(writeCtx, credential, resp.Profile); err != nil {
		m.metrics.RecordLogin("partial_write")
		m.logger.Error().Err(err).Msg("login accepted but local session could not be written, rolling back")
		if clearErr := m.invalidateLocked(writeCtx, ReasonLoginRollback); clearErr != nil {
			m.logger.Warn().Err(clearErr).Msg("login rollback left clears pending")
		}
		return sessionmodel.Profile{}, err
	}

	m.unblockRepairs()
	m.transition(sessionmodel.AuthenticatedState(profile))
	m.metrics.RecordLogin("success")
	m.logger.Info().Str("user_id", profile.ID).Msg("login succeeded")
	return profile, nil
}

// writeSession performs the four login writes in order. The caller holds stateMu.
func (m *Manager) writeSession(ctx context.Context, credential string, profile *sessionmodel.Profile) error {
	if err := m.jar.Set(m.origin, credential, m.attributes()); err != nil {
		return &sessionmodel.PartialLoginWriteError{Step: "jar", Cause: err}
	}
	if err := m.durable.Set(ctx, sessionmodel.KeyCredential, credential); err != nil {
		return &sessionmodel.PartialLoginWriteError{Step: sessionmodel.KeyCredential, Cause: err}
	}

	// A login without a profile must not leave the previous user's snapshot.
	if profile != nil {
		encoded, err := sessionmodel.EncodeProfile(*profile)
		if err != nil {
			return &sessionmodel.PartialLoginWriteError{Step: sessionmodel.KeyProfile, Cause: err}
		}
		if err := m.durable.Set(ctx, sessionmodel.KeyProfile, encoded); err != nil {
			return &sessionmodel.PartialLoginWriteError{Step: sessionmodel.KeyProfile, Cause: err}
		}
	} else if err := m.durable.Remove(ctx, sessionmodel.KeyProfile); err != nil {
		return &sessionmodel.PartialLoginWriteError{Step: sessionmodel.KeyProfile, Cause: err}
	}

	if err := m.durable.Set(ctx, sessionmodel.KeyAuthenticated, sessionmodel.AuthenticatedValue); err != nil {
		return &sessionmodel.PartialLoginWriteError{Step: sessionmodel.KeyAuthenticated, Cause: err}
	}

	// Everything a previous invalidation left pending has just been overwritten.
	for step := range m.pending {
		delete(m.pending, step)
	}
	return nil
}

// extractCredential prefers a credential field in the body and falls back to
// the session cookie the server set.
func extractCredential(resp *api.LoginResponse, cookieName string) string {
	if resp.Credential != "" {
		return resp.Credential
	}
	for _, c := range resp.Cookies {
		if c.Name == cookieName && c.Value != "" && c.MaxAge >= 0 {
			return c.Value
		}
	}
	return ""
}

func loginResult(err error) string {
	switch {
	case errors.Is(err, sessionmodel.ErrNetworkUnreachable):
		return "network"
	case errors.Is(err, sessionmodel.ErrRejected):
		return "rejected"
	case errors.Is(err, sessionmodel.ErrInvalidInput):
		return "invalid_input"
	default:
		return "unknown"
	}
}
