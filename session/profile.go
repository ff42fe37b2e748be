package session

import (
	"context"

	"github.com/jrsteele09/go-campus-session/sessionmodel"
)

// RefreshProfile fetches the profile from the identity endpoint and, if the
// session it was fetched for is still the current one, stores it as the new
// snapshot. An authentication failure is handled by the transport, which
// invalidates the session before this returns ErrAuthExpired.
func (m *Manager) RefreshProfile(ctx context.Context) (sessionmodel.Profile, error) {
	epoch := m.epoch.Load()
	profile, err := m.api.MyInfo(ctx)
	if err != nil {
		return sessionmodel.Profile{}, err
	}

	defer m.notify()
	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	if m.epoch.Load() != epoch || !m.state.get().IsAuthenticated() {
		m.logger.Debug().Msg("session changed during profile refresh, discarding result")
		return profile, nil
	}

	encoded, err := sessionmodel.EncodeProfile(profile)
	if err == nil {
		err = m.durable.Set(detached(ctx), sessionmodel.KeyProfile, encoded)
	}
	if err != nil {
		m.metrics.RecordStorageError("store_set")
		m.logger.Warn().Err(err).Msg("failed to cache refreshed profile")
	}
	m.transition(sessionmodel.AuthenticatedState(profile))
	return profile, nil
}
